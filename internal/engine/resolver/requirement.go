// Package resolver expands direct dependencies with the requirements their
// releases declare on the package index.
package resolver

import (
	"regexp"
	"strings"
)

// Requirement is the part of a PEP 508 string the resolver acts on.
type Requirement struct {
	Name      string
	Extras    []string
	Specifier string
	// MinVersion is the lower bound of the specifier, empty when the
	// requirement has none.
	MinVersion string
	// Optional requirements are only installed with an extra.
	Optional bool
}

var (
	namePattern   = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?`)
	extraMarker   = regexp.MustCompile(`\bextra\s*==`)
	specOperators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}
)

// ParseRequirement reads strings like `urllib3 (<3,>=1.21.1)` or
// `PySocks!=1.5.7,>=1.5.6; extra == "socks"`. Direct URL references and
// strings without a project name are rejected.
func ParseRequirement(raw string) (Requirement, bool) {
	spec, marker, _ := strings.Cut(raw, ";")
	spec = strings.TrimSpace(spec)
	if strings.Contains(spec, "@") {
		return Requirement{}, false
	}

	name := namePattern.FindString(spec)
	if name == "" {
		return Requirement{}, false
	}
	req := Requirement{Name: name, Optional: extraMarker.MatchString(marker)}
	rest := strings.TrimSpace(spec[len(name):])

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Requirement{}, false
		}
		for _, e := range strings.Split(rest[1:end], ",") {
			if e = strings.TrimSpace(e); e != "" {
				req.Extras = append(req.Extras, e)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")"))
	req.Specifier = rest
	req.MinVersion = lowerBound(rest)
	return req, true
}

// lowerBound returns the version of the first clause that pins or bounds
// from below. Wildcard pins drop their `.*`.
func lowerBound(specifier string) string {
	for _, clause := range strings.Split(specifier, ",") {
		clause = strings.TrimSpace(clause)
		for _, op := range specOperators {
			if !strings.HasPrefix(clause, op) {
				continue
			}
			v := strings.TrimSpace(clause[len(op):])
			switch op {
			case "===", "~=", "==", ">=":
				if v = strings.TrimSuffix(v, ".*"); v != "" {
					return v
				}
			}
			break
		}
	}
	return ""
}
