// Package source discovers the Python files of the project under analysis.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"upgradeimpact/internal/engine/symbols"
	"upgradeimpact/internal/shared/util"
)

const defaultMaxFileSize = 2 << 20

type Options struct {
	ExcludeDirs  []string
	ExcludeFiles []string
	IncludeTests bool
	// MaxFileSize skips larger files; zero uses 2 MiB.
	MaxFileSize int64
}

// Scanner walks a project root and returns its .py files. Exclusion
// patterns are gobwas globs matched against both the base name and the
// slash-separated path relative to the root.
type Scanner struct {
	root         string
	dirGlobs     []glob.Glob
	fileGlobs    []glob.Glob
	includeTests bool
	maxFileSize  int64
	logger       *slog.Logger
}

func NewScanner(root string, opts Options) (*Scanner, error) {
	dirGlobs, err := compileGlobs(opts.ExcludeDirs, "dir")
	if err != nil {
		return nil, err
	}
	fileGlobs, err := compileGlobs(opts.ExcludeFiles, "file")
	if err != nil {
		return nil, err
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}
	return &Scanner{
		root:         root,
		dirGlobs:     dirGlobs,
		fileGlobs:    fileGlobs,
		includeTests: opts.IncludeTests,
		maxFileSize:  maxSize,
		logger:       slog.Default(),
	}, nil
}

func compileGlobs(patterns []string, label string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude %s pattern %q: %w", label, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, values ...string) bool {
	for _, g := range globs {
		for _, v := range values {
			if v != "" && g.Match(v) {
				return true
			}
		}
	}
	return false
}

// Files returns the relative, slash-separated paths of every candidate file
// in lexical order.
func (s *Scanner) Files(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = util.NormalizePatternPath(filepath.ToSlash(rel))
		base := d.Name()

		if d.IsDir() {
			if rel == "" {
				return nil
			}
			if matchAny(s.dirGlobs, base, rel) {
				return filepath.SkipDir
			}
			if !s.includeTests && isTestDir(base) {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(base, ".py") {
			return nil
		}
		if !s.includeTests && IsTestFile(rel) {
			return nil
		}
		if matchAny(s.fileGlobs, base, rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Sources reads every candidate file. Oversized, generated and unreadable
// files are skipped with a log line.
func (s *Scanner) Sources(ctx context.Context) ([]symbols.SourceFile, error) {
	files, err := s.Files(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]symbols.SourceFile, 0, len(files))
	for _, rel := range files {
		abs := filepath.Join(s.root, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil {
			s.logger.Warn("failed to stat source file", "path", rel, "error", err)
			continue
		}
		if info.Size() > s.maxFileSize {
			s.logger.Debug("skipping oversized file", "path", rel, "size", info.Size())
			continue
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			s.logger.Warn("failed to read source file", "path", rel, "error", err)
			continue
		}
		if IsGeneratedFile(content) {
			s.logger.Debug("skipping generated file", "path", rel)
			continue
		}
		out = append(out, symbols.SourceFile{Path: rel, Content: content})
	}
	return out, nil
}

func isTestDir(name string) bool {
	return name == "tests" || name == "test"
}

// IsTestFile reports pytest-style test modules and files under a tests dir.
func IsTestFile(rel string) bool {
	base := strings.ToLower(filepath.Base(rel))
	if base == "conftest.py" || strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") {
		return true
	}
	for _, part := range strings.Split(util.NormalizePatternPath(rel), "/") {
		if isTestDir(part) {
			return true
		}
	}
	return false
}

var generatedMarkers = [][]byte{
	[]byte("do not edit"),
	[]byte("generated by the protocol buffer compiler"),
	[]byte("autogenerated"),
	[]byte("auto-generated"),
}

// IsGeneratedFile looks for a generator marker in the first five lines.
func IsGeneratedFile(content []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(content))
	for i := 0; i < 5 && sc.Scan(); i++ {
		line := bytes.ToLower(sc.Bytes())
		for _, m := range generatedMarkers {
			if bytes.Contains(line, m) {
				return true
			}
		}
	}
	return false
}
