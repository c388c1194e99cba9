package snapshot

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"upgradeimpact/internal/core/errors"
)

const (
	maxMemberSize   = 16 << 20
	maxExtractTotal = 256 << 20
	maxMembers      = 20000
)

// Extractor unpacks the Python sources of a distribution into dest.
type Extractor interface {
	Extract(archivePath, dest string) error
}

// extractors is tried in order; the first matching predicate wins.
var extractors = []struct {
	match        func(name string) bool
	newExtractor func() Extractor
}{
	{
		match:        hasAnySuffix(".whl", ".zip"),
		newExtractor: func() Extractor { return zipExtractor{} },
	},
	{
		match:        hasAnySuffix(".tar.gz", ".tgz"),
		newExtractor: func() Extractor { return tarGzExtractor{} },
	},
}

func hasAnySuffix(suffixes ...string) func(string) bool {
	return func(name string) bool {
		name = strings.ToLower(name)
		for _, s := range suffixes {
			if strings.HasSuffix(name, s) {
				return true
			}
		}
		return false
	}
}

func lookupExtractor(filename string) (Extractor, error) {
	for _, e := range extractors {
		if e.match(filename) {
			return e.newExtractor(), nil
		}
	}
	return nil, errors.AddContext(errors.New(errors.CodeNotSupported, "unsupported archive format"), errors.CtxPath, filename)
}

// budget enforces member count and total size across one extraction.
type budget struct {
	members int
	total   int64
}

func (b *budget) admit(size int64) error {
	b.members++
	if b.members > maxMembers {
		return errors.Newf(errors.CodeValidationError, "archive has more than %d members", maxMembers)
	}
	if size > maxMemberSize {
		return errors.Newf(errors.CodeValidationError, "archive member of %d bytes exceeds limit", size)
	}
	b.total += size
	if b.total > maxExtractTotal {
		return errors.New(errors.CodeValidationError, "archive expands beyond the extraction limit")
	}
	return nil
}

// safeJoin resolves an archive member name under dest, rejecting absolute
// paths and parent traversal.
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	clean := path.Clean("/" + name)
	if path.IsAbs(name) || strings.Contains(name, "../") || strings.HasPrefix(name, "..") || clean == "/" {
		return "", errors.AddContext(errors.New(errors.CodeValidationError, "unsafe archive member path"), errors.CtxPath, name)
	}
	return filepath.Join(dest, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func writeMember(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, maxMemberSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if n > maxMemberSize {
		return errors.AddContext(errors.New(errors.CodeValidationError, "archive member exceeds size limit"), errors.CtxPath, target)
	}
	return nil
}

type zipExtractor struct{}

func (zipExtractor) Extract(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if zr != nil {
			zr.Close()
		}
		return errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "open zip archive"), errors.CtxPath, archivePath)
	}
	defer zr.Close()

	var b budget
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".py") {
			continue
		}
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if err := b.admit(int64(f.UncompressedSize64)); err != nil {
			return errors.AddContext(err, errors.CtxPath, f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Name, err)
		}
		err = writeMember(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

type tarGzExtractor struct{}

func (tarGzExtractor) Extract(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "open gzip stream"), errors.CtxPath, archivePath)
	}
	defer gz.Close()

	var b budget
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "read tar archive"), errors.CtxPath, archivePath)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".py") {
			continue
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		if err := b.admit(hdr.Size); err != nil {
			return errors.AddContext(err, errors.CtxPath, hdr.Name)
		}
		if err := writeMember(target, tr); err != nil {
			return err
		}
	}
}

// ExtractArchive unpacks the .py members of archivePath into dest using the
// extractor registered for its file name.
func ExtractArchive(archivePath, filename, dest string) error {
	ex, err := lookupExtractor(filename)
	if err != nil {
		return err
	}
	return ex.Extract(archivePath, dest)
}

const maxLocateDepth = 3

// LocatePackage finds the import package directory, or a single-module
// file, for importName inside an extracted distribution rooted at root.
// The shallowest match wins.
func LocatePackage(root, importName string) (dir string, module string, err error) {
	parts := strings.Split(importName, ".")
	leaf := parts[len(parts)-1]

	var bestDir, bestFile string
	bestDirDepth, bestFileDepth := maxLocateDepth+1, maxLocateDepth+1

	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		depth := 0
		if rel != "." {
			depth = strings.Count(filepath.ToSlash(rel), "/") + 1
		}
		if d.IsDir() {
			if depth > maxLocateDepth || (rel != "." && skippedDirs[d.Name()]) {
				return filepath.SkipDir
			}
			if d.Name() == leaf && depth < bestDirDepth && isDottedMatch(rel, parts) {
				if _, err := os.Stat(filepath.Join(p, "__init__.py")); err == nil {
					bestDir, bestDirDepth = p, depth
				}
			}
			return nil
		}
		if d.Name() == leaf+".py" && depth < bestFileDepth && len(parts) == 1 {
			bestFile, bestFileDepth = p, depth
		}
		return nil
	})
	if walkErr != nil {
		return "", "", fmt.Errorf("searching %s: %w", root, walkErr)
	}
	switch {
	case bestDir != "":
		return bestDir, "", nil
	case bestFile != "":
		return "", bestFile, nil
	}
	return "", "", errors.AddContext(errors.New(errors.CodeNotFound, "package source not found in distribution"), errors.CtxPackage, importName)
}

// isDottedMatch reports whether rel ends with the path segments of a dotted
// import name.
func isDottedMatch(rel string, parts []string) bool {
	segs := strings.Split(filepath.ToSlash(rel), "/")
	if len(segs) < len(parts) {
		return false
	}
	tail := segs[len(segs)-len(parts):]
	for i := range parts {
		if tail[i] != parts[i] {
			return false
		}
	}
	return true
}
