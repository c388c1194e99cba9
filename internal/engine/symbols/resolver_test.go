package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgradeimpact/internal/core/errors"
)

func analyze(t *testing.T, code string) *FileAnalysis {
	t.Helper()
	fa := NewResolver(nil).Analyze(SourceFile{Path: "app.py", Content: []byte(code)})
	require.NoError(t, fa.Err())
	return fa
}

func TestAliasMap(t *testing.T) {
	fa := analyze(t, `
import numpy as np
import os.path
import json
from requests import get as fetch, Session
from . import sibling

def f():
    from yaml import safe_load
`)
	aliases := fa.Aliases()

	mod, ok := aliases.Module("np")
	assert.True(t, ok)
	assert.Equal(t, "numpy", mod)

	mod, ok = aliases.Module("os")
	assert.True(t, ok)
	assert.Equal(t, "os", mod)
	_, ok = aliases.Module("os.path")
	assert.False(t, ok, "dotted imports bind only the top-level name")

	sym, ok := aliases.Symbol("fetch")
	assert.True(t, ok)
	assert.Equal(t, "requests.get", sym)

	sym, _ = aliases.Symbol("Session")
	assert.Equal(t, "requests.Session", sym)

	sym, _ = aliases.Symbol("safe_load")
	assert.Equal(t, "yaml.safe_load", sym, "nested imports are part of the alias map")

	_, ok = aliases.Symbol("sibling")
	assert.False(t, ok, "relative imports are project-local")
}

func TestImports(t *testing.T) {
	fa := analyze(t, `
import numpy as np
import os.path
from requests.adapters import HTTPAdapter
from yaml import *
from .local import thing
`)
	nodes := fa.Imports()
	require.Len(t, nodes, 4)

	assert.Equal(t, UsageNode{PackageName: "numpy", SymbolPath: "numpy", FilePath: "app.py", LineNumbers: []int{2}}, nodes[0])
	assert.Equal(t, "os", nodes[1].PackageName)
	assert.Equal(t, "os.path", nodes[1].SymbolPath)
	assert.Equal(t, "requests", nodes[2].PackageName)
	assert.Equal(t, "requests.adapters.HTTPAdapter", nodes[2].SymbolPath)
	assert.Equal(t, "yaml.*", nodes[3].SymbolPath)
	assert.Equal(t, []int{5}, nodes[3].LineNumbers)
}

func TestFindSymbolUsage_NumpyAlias(t *testing.T) {
	fa := analyze(t, `import numpy as np
x = np.array([1, 2, 3])
`)
	sites := fa.FindSymbolUsage("numpy.array")
	require.Len(t, sites, 1)
	assert.Equal(t, "numpy.array", sites[0].Symbol)
	assert.Equal(t, 2, sites[0].Line)
	assert.Equal(t, []string{"[1, 2, 3]"}, sites[0].PositionalArgs)
	assert.Empty(t, sites[0].KeywordArgs)

	assert.Empty(t, fa.FindSymbolUsage("numpy.zeros"))
}

func TestFindSymbolUsage(t *testing.T) {
	fa := analyze(t, `
import requests
from requests import get as fetch
import requests.adapters

fetch("https://a", timeout=3)
requests.get("https://b")
requests.adapters.HTTPAdapter()
session.get("https://c")
get("https://d")
`)

	sites := fa.FindSymbolUsage("requests.get")
	require.Len(t, sites, 2)
	assert.Equal(t, 6, sites[0].Line)
	assert.Equal(t, map[string]string{"timeout": "3"}, sites[0].KeywordArgs)
	assert.Equal(t, 7, sites[1].Line)

	assert.Empty(t, fa.FindSymbolUsage("requests.adapters.HTTPAdapter"), "chained receivers are not followed")
	assert.Nil(t, fa.FindSymbolUsage("requests"), "single-segment paths never match")
}

// CountFunctionCalls is a heuristic: any attribute call with a matching
// name counts, even on receivers unrelated to the package.
func TestCountFunctionCalls_OvercountsAttributeCalls(t *testing.T) {
	fa := analyze(t, `
import requests
from requests import get

get("a")
requests.get("b")
session.get("c")
cache.get("d")
get_user("e")
`)
	assert.Equal(t, 4, fa.CountFunctionCalls("get"))
	assert.Equal(t, 2, len(fa.FindSymbolUsage("requests.get")))
}

func TestCountFunctionCalls_UnresolvedBareNameDoesNotCount(t *testing.T) {
	fa := analyze(t, `
def get():
    pass

get()
`)
	assert.Equal(t, 0, fa.CountFunctionCalls("get"))
}

func TestFunctionCalls(t *testing.T) {
	fa := analyze(t, `
import numpy as np
from json import dumps
np.zeros(3)
dumps({})
print("x")
`)
	calls := fa.FunctionCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, "numpy.zeros", calls[0].Symbol)
	assert.Equal(t, "json.dumps", calls[1].Symbol)
	assert.Equal(t, "print", calls[2].Symbol)
}

func TestResolve_SyntaxError(t *testing.T) {
	r := NewResolver(nil)
	file := SourceFile{Path: "broken.py", Content: []byte("import numpy as np\ndef (:\n")}

	aliases, nodes := r.Resolve(file)
	assert.Equal(t, 0, aliases.Len())
	assert.Empty(t, nodes)

	fa := r.Analyze(file)
	assert.True(t, errors.IsCode(fa.Err(), errors.CodeSyntax))
	assert.Empty(t, fa.FindSymbolUsage("numpy.array"))
	assert.Equal(t, 0, fa.CountFunctionCalls("array"))
}

func TestLeafAndTopLevel(t *testing.T) {
	assert.Equal(t, "get", Leaf("requests.api.get"))
	assert.Equal(t, "os", Leaf("os"))
	assert.Equal(t, "requests", TopLevel("requests.api.get"))
	assert.Equal(t, "os", TopLevel("os"))
}
