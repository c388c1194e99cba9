package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

type PythonExtractor struct {
	engine *ExtractorEngine
}

func NewPythonExtractor() *PythonExtractor {
	e := &PythonExtractor{}
	e.engine = NewExtractorEngine(map[string]NodeHandler{
		"import_statement":      e.extractImport,
		"import_from_statement": e.extractFromImport,
		"function_definition":   e.extractFunction,
		"class_definition":      e.extractClass,
		"call":                  e.extractCall,
	})
	return e
}

func (e *PythonExtractor) Extract(root *sitter.Node, source []byte, filePath string) *Module {
	mod := &Module{Path: filePath}
	ctx := &ExtractionContext{Source: source, Module: mod}
	e.engine.Walk(ctx, root)
	return mod
}

func (e *PythonExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	imp := &Import{Local: ctx.inFunction, Line: ctx.Line(node)}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name":
			imp.Names = append(imp.Names, Alias{Name: normalizeDotted(ctx.Text(child))})
		case "aliased_import":
			imp.Names = append(imp.Names, e.aliased(ctx, child))
		}
	}
	if len(imp.Names) > 0 {
		ctx.emit(imp)
	}
	return true
}

func (e *PythonExtractor) extractFromImport(ctx *ExtractionContext, node *sitter.Node) bool {
	imp := &ImportFrom{Local: ctx.inFunction, Line: ctx.Line(node)}
	afterImport := false

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "import":
			afterImport = true
		case "relative_import":
			imp.Level, imp.Module = e.relative(ctx, child)
		case "dotted_name":
			if afterImport {
				imp.Names = append(imp.Names, Alias{Name: normalizeDotted(ctx.Text(child))})
			} else {
				imp.Module = normalizeDotted(ctx.Text(child))
			}
		case "aliased_import":
			imp.Names = append(imp.Names, e.aliased(ctx, child))
		case "wildcard_import":
			imp.Star = true
		}
	}
	ctx.emit(imp)
	return true
}

func (e *PythonExtractor) aliased(ctx *ExtractionContext, node *sitter.Node) Alias {
	return Alias{
		Name:   normalizeDotted(ctx.Text(node.ChildByFieldName("name"))),
		AsName: ctx.Text(node.ChildByFieldName("alias")),
	}
}

func (e *PythonExtractor) relative(ctx *ExtractionContext, node *sitter.Node) (int, string) {
	level := 0
	module := ""
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "import_prefix":
			level = strings.Count(ctx.Text(child), ".")
		case "dotted_name":
			module = normalizeDotted(ctx.Text(child))
		}
	}
	return level, module
}

func (e *PythonExtractor) extractCall(ctx *ExtractionContext, node *sitter.Node) bool {
	call := &Call{
		Func: e.lowerExpr(ctx, node.ChildByFieldName("function")),
		Line: ctx.Line(node),
	}
	if args := node.ChildByFieldName("arguments"); args != nil {
		if args.Kind() == "argument_list" {
			for i := uint(0); i < args.NamedChildCount(); i++ {
				arg := args.NamedChild(i)
				switch arg.Kind() {
				case "comment", "dictionary_splat":
				case "keyword_argument":
					call.Keywords = append(call.Keywords, Keyword{
						Name:  ctx.Text(arg.ChildByFieldName("name")),
						Value: ctx.Text(arg.ChildByFieldName("value")),
					})
				default:
					call.Args = append(call.Args, ctx.Text(arg))
				}
			}
		} else {
			// f(x for x in y)
			call.Args = append(call.Args, ctx.Text(args))
		}
	}
	ctx.emit(call)
	return false
}

func (e *PythonExtractor) lowerExpr(ctx *ExtractionContext, node *sitter.Node) Expr {
	if node == nil {
		return OtherExpr{}
	}
	switch node.Kind() {
	case "identifier":
		return Name{ID: ctx.Text(node)}
	case "attribute":
		return Attribute{
			Value: e.lowerExpr(ctx, node.ChildByFieldName("object")),
			Attr:  ctx.Text(node.ChildByFieldName("attribute")),
		}
	case "parenthesized_expression":
		if node.NamedChildCount() == 1 {
			return e.lowerExpr(ctx, node.NamedChild(0))
		}
	}
	return OtherExpr{Text: ctx.Text(node)}
}

func (e *PythonExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.Text(node.ChildByFieldName("name"))
	if name == "" {
		return false
	}

	fn := &FunctionDef{
		Name:       name,
		Params:     e.parameters(ctx, node.ChildByFieldName("parameters")),
		Decorators: e.pythonDecorators(ctx, node),
		Docstring:  e.docstring(ctx, node.ChildByFieldName("body")),
		Owner:      strings.Join(ctx.classes, "."),
		Local:      ctx.inFunction,
		Line:       ctx.Line(node),
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if node.Child(i).Kind() == "async" {
			fn.Async = true
			break
		}
	}
	ctx.emit(fn)

	// Defaults and decorators are evaluated in the enclosing scope; only the
	// body belongs to the function.
	if params := node.ChildByFieldName("parameters"); params != nil {
		e.engine.WalkChildren(ctx, params)
	}
	savedClasses, savedIn := ctx.classes, ctx.inFunction
	ctx.classes, ctx.inFunction = nil, true
	e.engine.Walk(ctx, node.ChildByFieldName("body"))
	ctx.classes, ctx.inFunction = savedClasses, savedIn
	return true
}

func (e *PythonExtractor) extractClass(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.Text(node.ChildByFieldName("name"))
	if name == "" {
		return false
	}

	cls := &ClassDef{
		Name:       name,
		Decorators: e.pythonDecorators(ctx, node),
		Docstring:  e.docstring(ctx, node.ChildByFieldName("body")),
		Owner:      strings.Join(ctx.classes, "."),
		Local:      ctx.inFunction,
		Line:       ctx.Line(node),
	}
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := uint(0); i < supers.NamedChildCount(); i++ {
			base := supers.NamedChild(i)
			if base.Kind() == "keyword_argument" || base.Kind() == "comment" {
				continue
			}
			cls.Bases = append(cls.Bases, ctx.Text(base))
		}
		e.engine.WalkChildren(ctx, supers)
	}
	ctx.emit(cls)

	saved := ctx.classes
	ctx.classes = append(append([]string(nil), saved...), name)
	e.engine.Walk(ctx, node.ChildByFieldName("body"))
	ctx.classes = saved
	return true
}

func (e *PythonExtractor) parameters(ctx *ExtractionContext, params *sitter.Node) []Param {
	if params == nil {
		return nil
	}

	var out []Param
	kind := ParamPositional
	for i := uint(0); i < params.NamedChildCount(); i++ {
		child := params.NamedChild(i)
		switch child.Kind() {
		case "identifier":
			out = append(out, Param{Name: ctx.Text(child), Kind: kind})
		case "default_parameter", "typed_default_parameter":
			out = append(out, Param{Name: ctx.Text(child.ChildByFieldName("name")), Kind: kind, HasDefault: true})
		case "typed_parameter":
			p, star := e.typedParameter(ctx, child, kind)
			out = append(out, p)
			if star {
				kind = ParamKeywordOnly
			}
		case "list_splat_pattern":
			out = append(out, Param{Name: splatName(ctx.Text(child)), Kind: ParamVarPositional})
			kind = ParamKeywordOnly
		case "dictionary_splat_pattern":
			out = append(out, Param{Name: splatName(ctx.Text(child)), Kind: ParamVarKeyword})
		case "keyword_separator":
			kind = ParamKeywordOnly
		case "positional_separator":
			for j := range out {
				out[j].Kind = ParamPositionalOnly
			}
		}
	}
	return out
}

// typedParameter handles `name: T`, `*args: T` and `**kw: T`. The second
// result reports whether the parameter opens the keyword-only section.
func (e *PythonExtractor) typedParameter(ctx *ExtractionContext, node *sitter.Node, kind ParamKind) (Param, bool) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "identifier":
			return Param{Name: ctx.Text(child), Kind: kind}, false
		case "list_splat_pattern":
			return Param{Name: splatName(ctx.Text(child)), Kind: ParamVarPositional}, true
		case "dictionary_splat_pattern":
			return Param{Name: splatName(ctx.Text(child)), Kind: ParamVarKeyword}, false
		}
	}
	return Param{Name: ctx.Text(node), Kind: kind}, false
}

func (e *PythonExtractor) docstring(ctx *ExtractionContext, body *sitter.Node) string {
	if body == nil {
		return ""
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		stmt := body.NamedChild(i)
		if stmt.Kind() == "comment" {
			continue
		}
		if stmt.Kind() != "expression_statement" || stmt.NamedChildCount() == 0 {
			return ""
		}
		expr := stmt.NamedChild(0)
		if expr.Kind() != "string" && expr.Kind() != "concatenated_string" {
			return ""
		}
		return cleanDocstring(ctx.Text(expr))
	}
	return ""
}

func (e *PythonExtractor) pythonDecorators(ctx *ExtractionContext, node *sitter.Node) []string {
	parent := node.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return nil
	}

	decorators := make([]string, 0, parent.ChildCount())
	for i := uint(0); i < parent.ChildCount(); i++ {
		child := parent.Child(i)
		if child.Kind() != "decorator" {
			continue
		}
		dec := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ctx.Text(child)), "@"))
		if dec == "" {
			continue
		}
		decorators = append(decorators, dec)
	}
	return decorators
}
