package parser

import (
	"runtime"
	"sync/atomic"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParserPool keeps a bounded set of idle tree-sitter parsers for one grammar.
// Usage indexing parses on several goroutines and each worker leases its own
// parser. Parsers returned while the pool is full are closed.
type ParserPool struct {
	lang   *sitter.Language
	idle   chan *sitter.Parser
	leased atomic.Int64
}

// NewParserPool sizes the idle set to twice GOMAXPROCS.
func NewParserPool(lang *sitter.Language) *ParserPool {
	return &ParserPool{
		lang: lang,
		idle: make(chan *sitter.Parser, 2*runtime.GOMAXPROCS(0)),
	}
}

// Get leases an idle parser or allocates one.
func (p *ParserPool) Get() *sitter.Parser {
	var sp *sitter.Parser
	select {
	case sp = <-p.idle:
	default:
		sp = sitter.NewParser()
	}
	// Reset may drop the language on older bindings.
	sp.SetLanguage(p.lang)
	p.leased.Add(1)
	return sp
}

// Put resets sp and returns it. sp must not be used afterwards.
func (p *ParserPool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	p.leased.Add(-1)
	sp.Reset()
	select {
	case p.idle <- sp:
	default:
		sp.Close()
	}
}

// Leased reports parsers currently checked out.
func (p *ParserPool) Leased() int {
	return int(p.leased.Load())
}

// Idle reports parsers waiting for reuse.
func (p *ParserPool) Idle() int {
	return len(p.idle)
}
