package apidiff

import (
	"encoding/json"
	"fmt"
	"sort"

	"upgradeimpact/internal/core/errors"
)

type ChangeType string

const (
	Removed    ChangeType = "removed"
	Modified   ChangeType = "modified"
	Deprecated ChangeType = "deprecated"
)

func (c ChangeType) Valid() bool {
	switch c {
	case Removed, Modified, Deprecated:
		return true
	}
	return false
}

// Change is one classified API difference. A symbol may carry both a
// modified and a deprecated record.
type Change struct {
	SymbolName   string     `json:"symbol_name"`
	ChangeType   ChangeType `json:"change_type"`
	OldSignature *string    `json:"old_signature"`
	NewSignature *string    `json:"new_signature"`
	Description  string     `json:"description"`
}

type Coverage string

const (
	CoverageKnown   Coverage = "known"
	CoverageUnknown Coverage = "unknown"
)

type Result struct {
	Changes  []Change `json:"changes"`
	Coverage Coverage `json:"coverage"`
	// Uncovered holds used paths under import packages the snapshots did
	// not read. They were not compared.
	Uncovered []string `json:"uncovered,omitempty"`
}

// Diff compares the used symbols between two snapshots. Symbols missing
// from the old snapshot are not reported, nor are additions. When either
// snapshot is missing the result is empty with unknown coverage.
func Diff(oldSnap, newSnap *Snapshot, used []string) Result {
	if oldSnap == nil || newSnap == nil {
		return Result{Coverage: CoverageUnknown}
	}

	paths := append([]string(nil), used...)
	sort.Strings(paths)

	res := Result{Coverage: CoverageKnown}
	prev := ""
	for i, path := range paths {
		if i > 0 && path == prev {
			continue
		}
		prev = path

		oldSym, ok := oldSnap.Lookup(path)
		if !ok {
			continue
		}
		newSym, ok := newSnap.Lookup(path)
		if !ok {
			res.Changes = append(res.Changes, Change{
				SymbolName:   path,
				ChangeType:   Removed,
				OldSignature: signatureString(oldSym.Signature),
				Description:  fmt.Sprintf("Symbol '%s' was removed", path),
			})
			continue
		}
		if !oldSym.Signature.Equal(newSym.Signature) {
			res.Changes = append(res.Changes, Change{
				SymbolName:   path,
				ChangeType:   Modified,
				OldSignature: signatureString(oldSym.Signature),
				NewSignature: signatureString(newSym.Signature),
				Description:  fmt.Sprintf("Signature changed for '%s'", path),
			})
		}
		if newSym.Deprecated {
			res.Changes = append(res.Changes, Change{
				SymbolName:   path,
				ChangeType:   Deprecated,
				NewSignature: signatureString(newSym.Signature),
				Description:  fmt.Sprintf("'%s' is now deprecated", path),
			})
		}
	}
	return res
}

func signatureString(sig Signature) *string {
	s := sig.String()
	return &s
}

// Encode serializes changes as the cache's JSON array form.
func Encode(changes []Change) ([]byte, error) {
	if changes == nil {
		changes = []Change{}
	}
	return json.Marshal(changes)
}

// Decode parses the cache form. Unknown change types are rejected.
func Decode(data []byte) ([]Change, error) {
	var changes []Change
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "decode api changes")
	}
	for i, c := range changes {
		if !c.ChangeType.Valid() {
			return nil, errors.Newf(errors.CodeValidationError, "change %d has unknown change_type %q", i, c.ChangeType)
		}
	}
	return changes, nil
}

// Count returns how many changes have the given type.
func Count(changes []Change, t ChangeType) int {
	n := 0
	for _, c := range changes {
		if c.ChangeType == t {
			n++
		}
	}
	return n
}
