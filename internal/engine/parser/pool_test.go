package parser

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

func TestParserPool_LeaseAndReturn(t *testing.T) {
	pool := NewParserPool(PythonLanguage())

	sp := pool.Get()
	require.NotNil(t, sp)
	assert.Equal(t, 1, pool.Leased())

	pool.Put(sp)
	assert.Equal(t, 0, pool.Leased())
	assert.Equal(t, 1, pool.Idle())

	again := pool.Get()
	assert.Same(t, sp, again, "idle parser is reused")
	pool.Put(again)

	pool.Put(nil)
	assert.Equal(t, 0, pool.Leased())
}

func TestParserPool_ReusedParserStillParses(t *testing.T) {
	pool := NewParserPool(PythonLanguage())

	sp := pool.Get()
	sp.Reset()
	pool.Put(sp)

	sp = pool.Get()
	defer pool.Put(sp)
	tree := sp.Parse([]byte("from requests import get\nget('x')\n"), nil)
	require.NotNil(t, tree)
	defer tree.Close()
	assert.False(t, tree.RootNode().HasError())
}

func TestParserPool_OverflowIsClosed(t *testing.T) {
	pool := NewParserPool(PythonLanguage())
	limit := cap(pool.idle)

	leased := make([]*sitter.Parser, 0, limit+3)
	for i := 0; i < limit+3; i++ {
		leased = append(leased, pool.Get())
	}
	for _, sp := range leased {
		pool.Put(sp)
	}
	assert.Equal(t, limit, pool.Idle())
	assert.Equal(t, 0, pool.Leased())
}

func TestParserPool_Concurrent(t *testing.T) {
	pool := NewParserPool(PythonLanguage())
	src := []byte("import os\n\ndef run():\n    return os.getcwd()\n")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				sp := pool.Get()
				if tree := sp.Parse(src, nil); tree != nil {
					tree.Close()
				} else {
					t.Error("nil tree")
				}
				pool.Put(sp)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, pool.Leased())
}
