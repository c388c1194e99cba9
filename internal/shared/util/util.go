package util

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// NormalizePatternPath turns a user or walker path into the slash-separated,
// cleaned form glob patterns are matched against. "." becomes "".
func NormalizePatternPath(s string) string {
	p := path.Clean(strings.ReplaceAll(strings.TrimSpace(s), `\`, "/"))
	if p == "." {
		return ""
	}
	return strings.TrimPrefix(p, "./")
}

func SortedStringKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WriteFileWithDirs writes data to name through a sibling temp file, creating
// missing parent directories. Readers never observe a partial file.
func WriteFileWithDirs(name string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// HeapAllocMiB is the live heap in MiB, reported by the memory health check.
func HeapAllocMiB() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc >> 20
}
