package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgradeimpact/internal/engine/symbols"
)

func sources() []symbols.SourceFile {
	return []symbols.SourceFile{
		{Path: "svc/client.py", Content: []byte(`import requests
from requests import Session

s = Session()
r = requests.get("https://example.com")
r2 = s.get("https://example.com")
`)},
		{Path: "svc/util.py", Content: []byte(`import yaml
from requests.adapters import HTTPAdapter

data = yaml.safe_load(open("x"))
`)},
		{Path: "svc/broken.py", Content: []byte("import requests\ndef (:\n")},
	}
}

func TestBuild(t *testing.T) {
	ix := NewIndexer(nil, 2)
	res, err := ix.Build(context.Background(), "requests", sources())
	require.NoError(t, err)

	require.Len(t, res.Nodes, 3)
	assert.Equal(t, "svc/client.py", res.Nodes[0].FilePath)
	assert.Equal(t, "requests", res.Nodes[0].SymbolPath)
	assert.Equal(t, "requests.Session", res.Nodes[1].SymbolPath)
	assert.Equal(t, 1, res.Nodes[1].CallCount)
	assert.Equal(t, "requests.adapters.HTTPAdapter", res.Nodes[2].SymbolPath)

	assert.Equal(t, Summary{
		TotalFiles:       2,
		UniqueSymbols:    3,
		TotalCalls:       1,
		ImportStatements: 3,
		SkippedFiles:     1,
	}, res.Summary)
	assert.Equal(t, []string{"requests", "requests.Session", "requests.adapters.HTTPAdapter"}, res.Symbols())
}

func TestBuildFor_MultipleImportNames(t *testing.T) {
	ix := NewIndexer(nil, 1)
	res, err := ix.BuildFor(context.Background(), []string{"yaml", "_yaml"}, sources())
	require.NoError(t, err)
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, "yaml", res.Nodes[0].PackageName)
}

func TestBuild_Deterministic(t *testing.T) {
	files := sources()
	reversed := make([]symbols.SourceFile, len(files))
	for i := range files {
		reversed[len(files)-1-i] = files[i]
	}

	ix := NewIndexer(nil, 4)
	a, err := ix.Build(context.Background(), "requests", files)
	require.NoError(t, err)
	b, err := ix.Build(context.Background(), "requests", reversed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuild_EmptyInput(t *testing.T) {
	res, err := NewIndexer(nil, 0).Build(context.Background(), "requests", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Nodes)
	assert.Equal(t, Summary{}, res.Summary)
}

func TestBuildAll(t *testing.T) {
	all, err := NewIndexer(nil, 2).BuildAll(context.Background(), sources())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 1, all["yaml"].Summary.ImportStatements)
	assert.Equal(t, 3, all["requests"].Summary.ImportStatements)
}

func TestAnalyzeAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewIndexer(nil, 1).AnalyzeAll(ctx, sources())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCallTargets(t *testing.T) {
	ix := NewIndexer(nil, 2)
	analyses, err := ix.AnalyzeAll(context.Background(), sources())
	require.NoError(t, err)

	nodes := CallTargets(analyses, "requests")
	require.Len(t, nodes, 1)
	assert.Equal(t, "requests.get", nodes[0].SymbolPath)
	assert.Equal(t, "requests", nodes[0].PackageName)
	assert.Equal(t, "svc/client.py", nodes[0].FilePath)
	assert.Equal(t, []int{5}, nodes[0].LineNumbers)
	assert.Equal(t, 1, nodes[0].CallCount)

	yamlNodes := CallTargets(analyses, "yaml")
	require.Len(t, yamlNodes, 1)
	assert.Equal(t, "yaml.safe_load", yamlNodes[0].SymbolPath)
}
