// Package apidiff compares the exported API surface of two versions of a
// package, restricted to the symbols a codebase actually uses.
package apidiff

import (
	"sort"
	"strings"
)

type ParamKind string

const (
	PositionalOnly ParamKind = "positional_only"
	Positional     ParamKind = "positional_or_keyword"
	VarPositional  ParamKind = "var_positional"
	KeywordOnly    ParamKind = "keyword_only"
	VarKeyword     ParamKind = "var_keyword"
)

type Param struct {
	Name       string    `json:"name"`
	Kind       ParamKind `json:"kind"`
	HasDefault bool      `json:"has_default"`
}

// Signature is an ordered parameter list.
type Signature []Param

// Equal reports element-wise equality, order included.
func (s Signature) Equal(other Signature) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the signature in Python syntax with defaults elided:
// (a, b=..., /, c, *args, d, **kw).
func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	first := true
	write := func(part string) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(part)
	}

	sawVarPositional := false
	sawKeywordOnly := false
	for i, p := range s {
		if p.Kind == KeywordOnly && !sawVarPositional && !sawKeywordOnly {
			write("*")
		}
		switch p.Kind {
		case VarPositional:
			sawVarPositional = true
			write("*" + p.Name)
		case VarKeyword:
			write("**" + p.Name)
		default:
			if p.Kind == KeywordOnly {
				sawKeywordOnly = true
			}
			name := p.Name
			if p.HasDefault {
				name += "=..."
			}
			write(name)
		}
		if p.Kind == PositionalOnly && (i == len(s)-1 || s[i+1].Kind != PositionalOnly) {
			write("/")
		}
	}
	b.WriteByte(')')
	return b.String()
}

type SymbolKind string

const (
	KindFunction SymbolKind = "function"
	KindClass    SymbolKind = "class"
	KindMethod   SymbolKind = "method"
)

type Symbol struct {
	Path       string     `json:"path"`
	Kind       SymbolKind `json:"kind"`
	Signature  Signature  `json:"signature"`
	Deprecated bool       `json:"deprecated"`
}

// Snapshot is the public API of one package version. Coverage may be
// partial; absence from Symbols means "not seen", not "does not exist".
type Snapshot struct {
	Package string            `json:"package"`
	Version string            `json:"version"`
	Symbols map[string]Symbol `json:"symbols"`
	// Modules lists the top-level import packages that were read. Empty
	// means the snapshot makes no claim about which packages it covers.
	Modules []string `json:"modules,omitempty"`
}

func NewSnapshot(pkg, version string) *Snapshot {
	return &Snapshot{Package: pkg, Version: version, Symbols: map[string]Symbol{}}
}

func (s *Snapshot) Add(sym Symbol) {
	s.Symbols[sym.Path] = sym
}

// Merge copies other's symbols and modules into s. Symbols already in s win.
func (s *Snapshot) Merge(other *Snapshot) {
	if other == nil {
		return
	}
	for path, sym := range other.Symbols {
		if _, ok := s.Symbols[path]; !ok {
			s.Symbols[path] = sym
		}
	}
	for _, m := range other.Modules {
		if !s.hasModule(m) {
			s.Modules = append(s.Modules, m)
		}
	}
}

func (s *Snapshot) hasModule(name string) bool {
	for _, m := range s.Modules {
		if m == name {
			return true
		}
	}
	return false
}

// Covers reports whether path falls under one of the snapshot's modules.
func (s *Snapshot) Covers(path string) bool {
	if s == nil {
		return false
	}
	if len(s.Modules) == 0 {
		return true
	}
	for _, m := range s.Modules {
		if path == m || strings.HasPrefix(path, m+".") {
			return true
		}
	}
	return false
}

// Uncovered returns the distinct used paths that s does not cover, sorted.
func (s *Snapshot) Uncovered(used []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range used {
		if seen[p] || s.Covers(p) {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) Lookup(path string) (Symbol, bool) {
	if s == nil {
		return Symbol{}, false
	}
	sym, ok := s.Symbols[path]
	return sym, ok
}
