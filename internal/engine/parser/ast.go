package parser

// Node is one statement or expression of interest lowered out of a Python
// syntax tree. The set of implementations is closed; consumers switch on the
// concrete type.
type Node interface {
	node()
	Pos() int
}

// Expr is the callee shape of a Call.
type Expr interface {
	expr()
}

// Alias is one imported name with its optional local binding.
type Alias struct {
	Name   string
	AsName string
}

// Local returns the name bound in the importing scope.
func (a Alias) Local() string {
	if a.AsName != "" {
		return a.AsName
	}
	return a.Name
}

// Import is `import a.b [as c], d`. Local marks imports inside a function
// body.
type Import struct {
	Names []Alias
	Local bool
	Line  int
}

// ImportFrom is `from [.]*module import names`. Level counts leading dots.
type ImportFrom struct {
	Module string
	Level  int
	Names  []Alias
	Star   bool
	Local  bool
	Line   int
}

// Keyword is a `name=value` call argument.
type Keyword struct {
	Name  string
	Value string
}

// Call is any call expression. Args and keyword values keep their source text;
// `**kwargs` expansions are dropped.
type Call struct {
	Func     Expr
	Args     []string
	Keywords []Keyword
	Line     int
}

type ParamKind string

const (
	ParamPositionalOnly ParamKind = "positional_only"
	ParamPositional     ParamKind = "positional_or_keyword"
	ParamVarPositional  ParamKind = "var_positional"
	ParamKeywordOnly    ParamKind = "keyword_only"
	ParamVarKeyword     ParamKind = "var_keyword"
)

type Param struct {
	Name       string
	Kind       ParamKind
	HasDefault bool
}

// FunctionDef is a `def`. Owner is the dotted path of the enclosing classes
// when the function is a method; Local marks definitions nested inside
// another function body.
type FunctionDef struct {
	Name       string
	Params     []Param
	Decorators []string
	Docstring  string
	Async      bool
	Owner      string
	Local      bool
	Line       int
}

type ClassDef struct {
	Name       string
	Bases      []string
	Decorators []string
	Docstring  string
	Owner      string
	Local      bool
	Line       int
}

// Name is a bare identifier.
type Name struct {
	ID string
}

// Attribute is `value.attr`.
type Attribute struct {
	Value Expr
	Attr  string
}

// OtherExpr is any callee that is neither a name nor an attribute
// (subscripts, calls, lambdas).
type OtherExpr struct {
	Text string
}

func (*Import) node()      {}
func (*ImportFrom) node()  {}
func (*Call) node()        {}
func (*FunctionDef) node() {}
func (*ClassDef) node()    {}

func (n *Import) Pos() int      { return n.Line }
func (n *ImportFrom) Pos() int  { return n.Line }
func (n *Call) Pos() int        { return n.Line }
func (n *FunctionDef) Pos() int { return n.Line }
func (n *ClassDef) Pos() int    { return n.Line }

func (Name) expr()      {}
func (Attribute) expr() {}
func (OtherExpr) expr() {}

// Module is a parsed file: every node of interest in source pre-order.
type Module struct {
	Path  string
	Nodes []Node
}

// ExprString renders an expression in dotted form.
func ExprString(e Expr) string {
	switch v := e.(type) {
	case Name:
		return v.ID
	case Attribute:
		return ExprString(v.Value) + "." + v.Attr
	case OtherExpr:
		return v.Text
	default:
		return ""
	}
}
