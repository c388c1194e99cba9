package symbols

import (
	"log/slog"
	"strings"

	"upgradeimpact/internal/engine/parser"
	"upgradeimpact/internal/shared/observability"
)

// Resolver analyzes single files. It holds no per-file state and may be
// shared across goroutines.
type Resolver struct {
	parser *parser.Parser
	logger *slog.Logger
}

func NewResolver(p *parser.Parser) *Resolver {
	if p == nil {
		p = parser.NewParser()
	}
	return &Resolver{parser: p, logger: slog.Default()}
}

func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Resolve returns the file's alias map and its import usage nodes. A file
// that fails to parse yields an empty map and no nodes.
func (r *Resolver) Resolve(file SourceFile) (AliasMap, []UsageNode) {
	fa := r.Analyze(file)
	return fa.Aliases(), fa.Imports()
}

// Analyze parses file and builds its alias map. Parse failures are logged and
// recorded on the result rather than returned.
func (r *Resolver) Analyze(file SourceFile) *FileAnalysis {
	observability.FilesResolvedTotal.Inc()
	mod, err := r.parser.ParseFile(file.Path, file.Content)
	if err != nil {
		observability.ParseFailuresTotal.Inc()
		r.logger.Warn("failed to parse source file", "path", file.Path, "error", err)
		return &FileAnalysis{path: file.Path, aliases: newAliasMap(), err: err}
	}
	return &FileAnalysis{path: file.Path, module: mod, aliases: buildAliasMap(mod)}
}

// FileAnalysis is the resolved view of one file.
type FileAnalysis struct {
	path    string
	module  *parser.Module
	aliases AliasMap
	err     error
}

func (f *FileAnalysis) Path() string      { return f.path }
func (f *FileAnalysis) Aliases() AliasMap { return f.aliases }

// Err is the parse error, if any.
func (f *FileAnalysis) Err() error { return f.err }

func (f *FileAnalysis) nodes() []parser.Node {
	if f.module == nil {
		return nil
	}
	return f.module.Nodes
}

// buildAliasMap walks every import in the file, at any depth, before usage
// extraction begins. Later bindings overwrite earlier ones.
func buildAliasMap(mod *parser.Module) AliasMap {
	m := newAliasMap()
	for _, n := range mod.Nodes {
		switch v := n.(type) {
		case *parser.Import:
			for _, a := range v.Names {
				if a.AsName != "" {
					m.modules[a.AsName] = a.Name
					continue
				}
				// `import a.b.c` binds only `a`.
				top := TopLevel(a.Name)
				m.modules[top] = top
			}
		case *parser.ImportFrom:
			if v.Level > 0 || v.Module == "" {
				continue
			}
			for _, a := range v.Names {
				m.symbols[a.Local()] = v.Module + "." + a.Name
			}
		case *parser.Call, *parser.FunctionDef, *parser.ClassDef:
		}
	}
	return m
}

// Imports returns one node per imported name, in source order.
func (f *FileAnalysis) Imports() []UsageNode {
	var out []UsageNode
	for _, n := range f.nodes() {
		switch v := n.(type) {
		case *parser.Import:
			for _, a := range v.Names {
				out = append(out, UsageNode{
					PackageName: TopLevel(a.Name),
					SymbolPath:  a.Name,
					FilePath:    f.path,
					LineNumbers: []int{v.Line},
				})
			}
		case *parser.ImportFrom:
			if v.Level > 0 || v.Module == "" {
				continue
			}
			pkg := TopLevel(v.Module)
			if v.Star {
				out = append(out, UsageNode{
					PackageName: pkg,
					SymbolPath:  v.Module + ".*",
					FilePath:    f.path,
					LineNumbers: []int{v.Line},
				})
				continue
			}
			for _, a := range v.Names {
				out = append(out, UsageNode{
					PackageName: pkg,
					SymbolPath:  v.Module + "." + a.Name,
					FilePath:    f.path,
					LineNumbers: []int{v.Line},
				})
			}
		case *parser.Call, *parser.FunctionDef, *parser.ClassDef:
		}
	}
	return out
}

// FindSymbolUsage returns the call sites that lexically resolve to path:
// bare names bound by a from-import of exactly path, and `mod.leaf(...)`
// where mod is a plain name bound to path's module prefix. Receivers that
// are themselves attributes or calls are not followed.
func (f *FileAnalysis) FindSymbolUsage(path string) []CallSite {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return nil
	}
	leaf := parts[len(parts)-1]
	prefix := strings.Join(parts[:len(parts)-1], ".")

	var sites []CallSite
	for _, n := range f.nodes() {
		call, ok := n.(*parser.Call)
		if !ok {
			continue
		}
		matched := false
		switch fn := call.Func.(type) {
		case parser.Name:
			resolved, ok := f.aliases.Symbol(fn.ID)
			matched = ok && resolved == path
		case parser.Attribute:
			if fn.Attr != leaf {
				break
			}
			recv, ok := fn.Value.(parser.Name)
			if !ok {
				break
			}
			mod, ok := f.aliases.Module(recv.ID)
			matched = ok && mod == prefix
		case parser.OtherExpr:
		}
		if matched {
			sites = append(sites, f.callSite(path, call))
		}
	}
	return sites
}

// CountFunctionCalls counts calls whose target ends in leaf. Bare names are
// alias-resolved first. Attribute calls count whenever the attribute equals
// leaf, whatever the receiver: `session.get()` counts toward
// `requests.get`. The result is an upper bound.
func (f *FileAnalysis) CountFunctionCalls(leaf string) int {
	count := 0
	for _, n := range f.nodes() {
		call, ok := n.(*parser.Call)
		if !ok {
			continue
		}
		switch fn := call.Func.(type) {
		case parser.Name:
			resolved, ok := f.aliases.Symbol(fn.ID)
			if !ok {
				resolved = fn.ID
			}
			if strings.HasSuffix(resolved, "."+leaf) {
				count++
			}
		case parser.Attribute:
			if fn.Attr == leaf {
				count++
			}
		case parser.OtherExpr:
		}
	}
	return count
}

// FunctionCalls returns every call in the file with its best-effort
// canonical target.
func (f *FileAnalysis) FunctionCalls() []CallSite {
	var sites []CallSite
	for _, n := range f.nodes() {
		call, ok := n.(*parser.Call)
		if !ok {
			continue
		}
		sites = append(sites, f.callSite(f.resolveCallee(call.Func), call))
	}
	return sites
}

func (f *FileAnalysis) resolveCallee(e parser.Expr) string {
	switch fn := e.(type) {
	case parser.Name:
		if resolved, ok := f.aliases.Symbol(fn.ID); ok {
			return resolved
		}
		return fn.ID
	case parser.Attribute:
		if recv, ok := fn.Value.(parser.Name); ok {
			if mod, ok := f.aliases.Module(recv.ID); ok {
				return mod + "." + fn.Attr
			}
			if sym, ok := f.aliases.Symbol(recv.ID); ok {
				return sym + "." + fn.Attr
			}
		}
		return parser.ExprString(fn)
	case parser.OtherExpr:
		return fn.Text
	}
	return ""
}

func (f *FileAnalysis) callSite(symbol string, call *parser.Call) CallSite {
	kw := make(map[string]string, len(call.Keywords))
	for _, k := range call.Keywords {
		kw[k.Name] = k.Value
	}
	return CallSite{
		Symbol:         symbol,
		FilePath:       f.path,
		Line:           call.Line,
		PositionalArgs: append([]string(nil), call.Args...),
		KeywordArgs:    kw,
	}
}
