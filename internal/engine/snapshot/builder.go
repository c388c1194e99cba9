// Package snapshot reads a Python package's source tree into an API
// snapshot.
package snapshot

import (
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/parser"
)

const maxAliasDepth = 8

var skippedDirs = map[string]bool{
	"tests":       true,
	"test":        true,
	"__pycache__": true,
}

type Builder struct {
	parser *parser.Parser
	logger *slog.Logger
}

func NewBuilder(p *parser.Parser) *Builder {
	if p == nil {
		p = parser.NewParser()
	}
	return &Builder{parser: p, logger: slog.Default()}
}

// reexport maps a name visible in one module to its definition elsewhere.
// A star re-export has an empty name and copies every public member.
type reexport struct {
	module string
	name   string
	target string
}

type collector struct {
	importName string
	snap       *apidiff.Snapshot
	reexports  []reexport
}

func newCollector(importName, version string) *collector {
	snap := apidiff.NewSnapshot(importName, version)
	snap.Modules = []string{importName}
	return &collector{importName: importName, snap: snap}
}

// BuildFS reads every .py file under fsys, whose root is the import
// package directory. Files that fail to parse are skipped.
func (b *Builder) BuildFS(importName, version string, fsys fs.FS) (*apidiff.Snapshot, error) {
	c := newCollector(importName, version)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && skippedDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, ".py") {
			return nil
		}
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		b.collectFile(c, modulePath(importName, p), strings.HasSuffix(p, "__init__.py"), p, content)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.resolveReexports()
	return c.snap, nil
}

// BuildModule reads a single-file distribution such as six.py.
func (b *Builder) BuildModule(importName, version, filePath string, content []byte) *apidiff.Snapshot {
	c := newCollector(importName, version)
	b.collectFile(c, importName, false, filePath, content)
	c.resolveReexports()
	return c.snap
}

func modulePath(importName, rel string) string {
	rel = strings.TrimSuffix(rel, ".py")
	rel = strings.TrimSuffix(rel, "__init__")
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return importName
	}
	return importName + "." + strings.ReplaceAll(rel, "/", ".")
}

func (b *Builder) collectFile(c *collector, module string, isPackage bool, filePath string, content []byte) {
	mod, err := b.parser.ParseFile(filePath, content)
	if err != nil {
		b.logger.Debug("skipping unparseable module", "module", module, "error", err)
		return
	}

	inits := map[string]*parser.FunctionDef{}
	classes := map[string]*parser.ClassDef{}
	var methods []*parser.FunctionDef

	for _, n := range mod.Nodes {
		switch v := n.(type) {
		case *parser.FunctionDef:
			if v.Local {
				continue
			}
			if v.Owner == "" {
				if isPublic(v.Name) {
					c.snap.Add(apidiff.Symbol{
						Path:       module + "." + v.Name,
						Kind:       apidiff.KindFunction,
						Signature:  convertParams(v.Params),
						Deprecated: isDeprecated(v.Docstring, v.Decorators),
					})
				}
				continue
			}
			if strings.Contains(v.Owner, ".") {
				continue
			}
			if v.Name == "__init__" {
				inits[v.Owner] = v
				continue
			}
			if isPublic(v.Name) {
				methods = append(methods, v)
			}
		case *parser.ClassDef:
			if v.Local || v.Owner != "" || !isPublic(v.Name) {
				continue
			}
			classes[v.Name] = v
		case *parser.ImportFrom:
			if v.Local {
				continue
			}
			c.addReexports(module, isPackage, v)
		case *parser.Import, *parser.Call:
		}
	}

	for name, cls := range classes {
		var sig apidiff.Signature
		deprecated := isDeprecated(cls.Docstring, cls.Decorators)
		if init, ok := inits[name]; ok {
			sig = convertParams(dropBound(init.Params))
			deprecated = deprecated || isDeprecated(init.Docstring, init.Decorators)
		}
		c.snap.Add(apidiff.Symbol{
			Path:       module + "." + name,
			Kind:       apidiff.KindClass,
			Signature:  sig,
			Deprecated: deprecated,
		})
	}
	for _, m := range methods {
		cls, ok := classes[m.Owner]
		if !ok {
			continue
		}
		params := m.Params
		if !hasDecorator(m.Decorators, "staticmethod") {
			params = dropBound(params)
		}
		c.snap.Add(apidiff.Symbol{
			Path:       module + "." + cls.Name + "." + m.Name,
			Kind:       apidiff.KindMethod,
			Signature:  convertParams(params),
			Deprecated: isDeprecated(m.Docstring, m.Decorators) || isDeprecated(cls.Docstring, cls.Decorators),
		})
	}
}

func (c *collector) addReexports(module string, isPackage bool, imp *parser.ImportFrom) {
	var target string
	switch {
	case imp.Level > 0:
		base := module
		if !isPackage {
			base = parentModule(module)
		}
		for i := 1; i < imp.Level && base != ""; i++ {
			base = parentModule(base)
		}
		if base == "" {
			return
		}
		target = base
		if imp.Module != "" {
			target += "." + imp.Module
		}
	case imp.Module == c.importName || strings.HasPrefix(imp.Module, c.importName+"."):
		target = imp.Module
	default:
		return
	}

	if imp.Star {
		c.reexports = append(c.reexports, reexport{module: module, target: target})
		return
	}
	for _, a := range imp.Names {
		local := a.Local()
		if !isPublic(local) {
			continue
		}
		c.reexports = append(c.reexports, reexport{module: module, name: local, target: target + "." + a.Name})
	}
}

// resolveReexports copies re-exported symbols, and their members, under the
// re-exporting module. Chains are followed up to maxAliasDepth hops.
func (c *collector) resolveReexports() {
	for pass := 0; pass < maxAliasDepth; pass++ {
		changed := false
		paths := make([]string, 0, len(c.snap.Symbols))
		for p := range c.snap.Symbols {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		for _, r := range c.reexports {
			if r.name == "" {
				for _, p := range paths {
					rest, ok := strings.CutPrefix(p, r.target+".")
					if !ok || strings.Count(rest, ".") > 1 || !isPublic(rest) {
						continue
					}
					changed = c.copySymbol(p, r.module+"."+rest) || changed
				}
				continue
			}
			alias := r.module + "." + r.name
			for _, p := range paths {
				if p == r.target {
					changed = c.copySymbol(p, alias) || changed
				} else if rest, ok := strings.CutPrefix(p, r.target+"."); ok {
					changed = c.copySymbol(p, alias+"."+rest) || changed
				}
			}
		}
		if !changed {
			return
		}
	}
}

func (c *collector) copySymbol(from, to string) bool {
	if _, exists := c.snap.Symbols[to]; exists {
		return false
	}
	sym := c.snap.Symbols[from]
	sym.Path = to
	c.snap.Symbols[to] = sym
	return true
}

func parentModule(module string) string {
	if i := strings.LastIndexByte(module, '.'); i >= 0 {
		return module[:i]
	}
	return ""
}

func isPublic(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_")
}

func isDeprecated(docstring string, decorators []string) bool {
	if strings.Contains(strings.ToLower(docstring), "deprecated") {
		return true
	}
	for _, d := range decorators {
		if strings.Contains(strings.ToLower(d), "deprecated") {
			return true
		}
	}
	return false
}

func hasDecorator(decorators []string, name string) bool {
	for _, d := range decorators {
		if d == name || path.Ext(d) == "."+name {
			return true
		}
	}
	return false
}

// dropBound removes the implicit self/cls parameter.
func dropBound(params []parser.Param) []parser.Param {
	if len(params) == 0 {
		return nil
	}
	switch params[0].Kind {
	case parser.ParamVarPositional, parser.ParamVarKeyword, parser.ParamKeywordOnly:
		return params
	}
	return params[1:]
}

func convertParams(params []parser.Param) apidiff.Signature {
	if len(params) == 0 {
		return nil
	}
	out := make(apidiff.Signature, len(params))
	for i, p := range params {
		out[i] = apidiff.Param{Name: p.Name, Kind: apidiff.ParamKind(p.Kind), HasDefault: p.HasDefault}
	}
	return out
}
