package symbols

import "strings"

// SourceFile is one input file; Path is used for reporting only.
type SourceFile struct {
	Path    string
	Content []byte
}

// AliasMap records the local bindings introduced by a file's imports.
// Built once per file; read-only afterwards.
type AliasMap struct {
	modules map[string]string
	symbols map[string]string
}

func newAliasMap() AliasMap {
	return AliasMap{modules: map[string]string{}, symbols: map[string]string{}}
}

// Module resolves a name bound by `import X [as Y]`.
func (m AliasMap) Module(local string) (string, bool) {
	v, ok := m.modules[local]
	return v, ok
}

// Symbol resolves a name bound by `from X import Y [as Z]`.
func (m AliasMap) Symbol(local string) (string, bool) {
	v, ok := m.symbols[local]
	return v, ok
}

func (m AliasMap) Modules() map[string]string { return copyMap(m.modules) }
func (m AliasMap) Symbols() map[string]string { return copyMap(m.symbols) }

func (m AliasMap) Len() int { return len(m.modules) + len(m.symbols) }

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// UsageNode is one import site of an external symbol. SymbolPath is always
// the canonical dotted path, never the local alias.
type UsageNode struct {
	PackageName string `json:"package_name"`
	SymbolPath  string `json:"symbol_path"`
	FilePath    string `json:"file_path"`
	LineNumbers []int  `json:"line_numbers"`
	CallCount   int    `json:"call_count"`
}

// CallSite is a call resolved to a canonical symbol.
type CallSite struct {
	Symbol         string            `json:"symbol"`
	FilePath       string            `json:"file_path"`
	Line           int               `json:"line"`
	PositionalArgs []string          `json:"positional_args"`
	KeywordArgs    map[string]string `json:"keyword_args"`
}

// Leaf returns the last dotted segment of path.
func Leaf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// TopLevel returns the first dotted segment of path.
func TopLevel(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}
