package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler lowers a node of one kind. Returns true if the handler has
// walked the node's children itself and the walker should not descend.
type NodeHandler func(ctx *ExtractionContext, node *sitter.Node) bool

// ExtractionContext carries shared state while a tree is lowered.
type ExtractionContext struct {
	Source []byte
	Module *Module

	// classes is the stack of enclosing class names; inFunction is set while
	// walking a function body.
	classes    []string
	inFunction bool
}

func (c *ExtractionContext) emit(n Node) {
	c.Module.Nodes = append(c.Module.Nodes, n)
}

// ExtractorEngine walks the syntax tree and dispatches node handlers by kind.
type ExtractorEngine struct {
	handlers map[string]NodeHandler
}

func NewExtractorEngine(handlers map[string]NodeHandler) *ExtractorEngine {
	return &ExtractorEngine{handlers: handlers}
}

func (e *ExtractorEngine) Walk(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil {
		return
	}

	if handler, ok := e.handlers[node.Kind()]; ok {
		if handler(ctx, node) {
			return
		}
	}
	e.WalkChildren(ctx, node)
}

func (e *ExtractorEngine) WalkChildren(ctx *ExtractionContext, node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		e.Walk(ctx, node.Child(i))
	}
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.Source[node.StartByte():node.EndByte()])
}

func (c *ExtractionContext) Line(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}
