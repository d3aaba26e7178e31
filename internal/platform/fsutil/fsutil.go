// Package fsutil writes harvester state and artifacts so that readers never
// observe a partially written file: data goes to a temp sibling, is synced,
// then renamed over the target
package fsutil

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	perr "kaggleharvest/internal/platform/errors"
)

// rename is a seam so tests can simulate a crash between write and rename
var rename = os.Rename

// WriteFileAtomic replaces path with data. Parent directories are created
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(path, bytes.NewReader(data), perm)
}

// WriteAtomic streams r into path through a temp file in the same directory
func WriteAtomic(path string, r io.Reader, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.IOf(err, "create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".part.*")
	if err != nil {
		return perr.IOf(err, "create temp file for %s", path)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return perr.IOf(err, "write %s", path)
	}
	if err := tmp.Chmod(perm); err != nil {
		return perr.IOf(err, "chmod %s", path)
	}
	if err := tmp.Sync(); err != nil {
		return perr.IOf(err, "sync %s", path)
	}
	if err := tmp.Close(); err != nil {
		return perr.IOf(err, "close %s", path)
	}
	if err := rename(tmpName, path); err != nil {
		return perr.IOf(err, "rename into %s", path)
	}
	committed = true

	// best effort: not every platform can fsync a directory
	_ = syncDir(dir)
	return nil
}

// WriteJSONAtomic marshals v with four-space indentation plus a trailing newline
// and writes it atomically. Output is deterministic for deterministic input
func WriteJSONAtomic(path string, v any) error {
	b, err := MarshalStable(v)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "encode %s", path)
	}
	return WriteFileAtomic(path, b, 0o644)
}

// MarshalStable renders v the way every catalog and state file is stored
func MarshalStable(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Sync()
}
