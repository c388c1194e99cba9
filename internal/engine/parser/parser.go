package parser

import (
	"time"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Parser turns Python source into a lowered Module. Safe for concurrent use.
type Parser struct {
	pool      *ParserPool
	extractor *PythonExtractor
}

func PythonLanguage() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_python.Language())
}

func NewParser() *Parser {
	return &Parser{
		pool:      NewParserPool(PythonLanguage()),
		extractor: NewPythonExtractor(),
	}
}

// ParseFile parses content and lowers it. A tree with error or missing nodes
// returns a SYNTAX_ERROR carrying the first offending line.
func (p *Parser) ParseFile(path string, content []byte) (*Module, error) {
	start := time.Now()
	defer func() {
		observability.ParsingDuration.WithLabelValues("python").Observe(time.Since(start).Seconds())
	}()

	sp := p.pool.Get()
	defer p.pool.Put(sp)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.AddContext(errors.New(errors.CodeInternal, "tree-sitter returned no tree"), errors.CtxPath, path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		err := errors.New(errors.CodeSyntax, "invalid python syntax")
		err = errors.AddContext(err, errors.CtxPath, path)
		if bad := firstErrorNode(root); bad != nil {
			err = errors.AddContext(err, errors.CtxLine, int(bad.StartPosition().Row)+1)
		}
		return nil, err
	}

	return p.extractor.Extract(root, content, path), nil
}

func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if bad := firstErrorNode(node.Child(i)); bad != nil {
			return bad
		}
	}
	return node
}
