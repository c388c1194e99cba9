// Package version parses Python package versions far enough to compare
// release numbers. Only the release segment takes part in ordering;
// epoch, pre, post, dev and local labels are recognised and then ignored,
// except that pre and dev releases are flagged.
package version

import (
	"regexp"
	"strconv"
	"strings"

	"upgradeimpact/internal/core/errors"
)

var pattern = regexp.MustCompile(`^[vV]?(?:\d+!)?(\d+(?:\.\d+)*)((?:[-_.]?(?:a|b|c|rc|alpha|beta|pre|preview|post|rev|r|dev)[-_.]?\d*)*)(?:\+[a-zA-Z0-9.]+)?$`)

var prerelease = regexp.MustCompile(`(?i)(a|b|c|rc|alpha|beta|pre|preview|dev)`)

type Version struct {
	Raw        string
	Release    []int
	Prerelease bool
}

func Parse(raw string) (Version, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, errors.AddContext(errors.New(errors.CodeValidationError, "invalid version"), errors.CtxVersion, raw)
	}
	parts := strings.Split(m[1], ".")
	release := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "invalid release segment"), errors.CtxVersion, raw)
		}
		release[i] = n
	}
	suffix := strings.TrimLeft(m[2], "-_.")
	isPre := suffix != "" && prerelease.MatchString(strings.TrimPrefix(strings.TrimPrefix(suffix, "post"), "rev"))
	return Version{Raw: raw, Release: release, Prerelease: isPre}, nil
}

// Part returns release position i, or 0 past the end.
func (v Version) Part(i int) int {
	if i < len(v.Release) {
		return v.Release[i]
	}
	return 0
}

func (v Version) Major() int { return v.Part(0) }
func (v Version) Minor() int { return v.Part(1) }
func (v Version) Patch() int { return v.Part(2) }

// Compare orders release segments, padding the shorter with zeros.
func Compare(a, b Version) int {
	n := len(a.Release)
	if len(b.Release) > n {
		n = len(b.Release)
	}
	for i := 0; i < n; i++ {
		x, y := a.Part(i), b.Part(i)
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	}
	return 0
}

// CompareStrings parses and compares; ok is false if either side is invalid.
func CompareStrings(a, b string) (int, bool) {
	va, err := Parse(a)
	if err != nil {
		return 0, false
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, false
	}
	return Compare(va, vb), true
}
