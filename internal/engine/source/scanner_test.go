package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestScanner_Sources(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app/main.py":                "import requests\n",
		"app/util.py":                "import numpy as np\n",
		"app/api_pb2.py":             "# Generated by the protocol buffer compiler.  DO NOT EDIT!\nimport google\n",
		"app/schema_gen.py":          "x = 1\n",
		"tests/test_main.py":         "import pytest\n",
		"app/conftest.py":            "import pytest\n",
		".venv/lib/site.py":          "import os\n",
		"migrations/0001_initial.py": "from django.db import migrations\n",
		"README.md":                  "# readme\n",
	})

	s, err := NewScanner(root, Options{
		ExcludeDirs:  []string{".venv", "migrations"},
		ExcludeFiles: []string{"*_gen.py"},
	})
	require.NoError(t, err)

	files, err := s.Sources(context.Background())
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"app/main.py", "app/util.py"}, paths)
	assert.Equal(t, "import requests\n", string(files[0].Content))
}

func TestScanner_IncludeTests(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pkg/core.py":        "pass\n",
		"tests/test_core.py": "pass\n",
		"pkg/core_test.py":   "pass\n",
	})

	s, err := NewScanner(root, Options{IncludeTests: true})
	require.NoError(t, err)
	files, err := s.Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/core.py", "pkg/core_test.py", "tests/test_core.py"}, files)
}

func TestScanner_RelativePathPattern(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/vendor/six.py": "pass\n",
		"src/app.py":        "pass\n",
	})

	s, err := NewScanner(root, Options{ExcludeDirs: []string{"src/vendor"}})
	require.NoError(t, err)
	files, err := s.Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.py"}, files)
}

func TestScanner_MaxFileSize(t *testing.T) {
	root := writeTree(t, map[string]string{
		"small.py": "x = 1\n",
		"big.py":   "x = '" + string(make([]byte, 64)) + "'\n",
	})

	s, err := NewScanner(root, Options{MaxFileSize: 32})
	require.NoError(t, err)
	files, err := s.Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "small.py", files[0].Path)
}

func TestNewScanner_InvalidGlob(t *testing.T) {
	_, err := NewScanner(t.TempDir(), Options{ExcludeFiles: []string{"[broken"}})
	require.Error(t, err)
}

func TestScanner_Cancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": "pass\n"})
	s, err := NewScanner(root, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sources(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"test_models.py", true},
		{"models_test.py", true},
		{"conftest.py", true},
		{"tests/helpers.py", true},
		{"pkg/test/fixtures.py", true},
		{"pkg/testing.py", false},
		{"pkg/contest.py", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTestFile(tt.path), tt.path)
	}
}

func TestIsGeneratedFile(t *testing.T) {
	assert.True(t, IsGeneratedFile([]byte("# -*- coding: utf-8 -*-\n# Autogenerated by tool\n")))
	assert.False(t, IsGeneratedFile([]byte("import os\n\n\n\n\n\n# do not edit\n")))
}
