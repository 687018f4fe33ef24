package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Local stores files under a root directory of an afero filesystem.
// Use afero.NewOsFs() in production and afero.NewMemMapFs() in tests.
type Local struct {
	fs   afero.Fs
	root string
}

// NewLocal creates the root directory if needed and returns a Local store.
func NewLocal(fs afero.Fs, root string) (*Local, error) {
	root = filepath.Clean(root)
	if err := fs.MkdirAll(root, 0o750); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create file store dir %s", root).WithCause(err)
	}
	return &Local{fs: fs, root: root}, nil
}

// Write stores data atomically: a temp file in the same directory is
// renamed over the target so readers never see a partial file.
func (l *Local) Write(_ context.Context, name string, data []byte) (string, error) {
	n, err := cleanName(name)
	if err != nil {
		return "", err
	}
	target := filepath.Join(l.root, filepath.FromSlash(n))
	dir := filepath.Dir(target)
	if err := l.fs.MkdirAll(dir, 0o750); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeStore, "create dir %s", dir).WithCause(err)
	}

	tmp, err := afero.TempFile(l.fs, dir, ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return "", schema.NewError(schema.ErrCodeStore, "create temp file").WithCause(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = l.fs.Remove(tmpName)
		return "", schema.NewErrorf(schema.ErrCodeStore, "write %s", n).WithCause(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = l.fs.Remove(tmpName)
		return "", schema.NewErrorf(schema.ErrCodeStore, "sync %s", n).WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		_ = l.fs.Remove(tmpName)
		return "", schema.NewErrorf(schema.ErrCodeStore, "close %s", n).WithCause(err)
	}
	if err := l.fs.Rename(tmpName, target); err != nil {
		_ = l.fs.Remove(tmpName)
		return "", schema.NewErrorf(schema.ErrCodeStore, "rename %s", n).WithCause(err)
	}
	return target, nil
}

// Read returns the contents of p.
func (l *Local) Read(_ context.Context, p string) ([]byte, error) {
	full, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(l.fs, full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "file %s not found", filepath.Base(full)).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeStore, "read %s", filepath.Base(full)).WithCause(err)
	}
	return data, nil
}

// Exists reports whether p names a regular file in the store.
func (l *Local) Exists(_ context.Context, p string) (bool, error) {
	full, err := l.resolve(p)
	if err != nil {
		return false, err
	}
	info, err := l.fs.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, schema.NewErrorf(schema.ErrCodeStore, "stat %s", filepath.Base(full)).WithCause(err)
	}
	return !info.IsDir(), nil
}

// List returns the names of regular files directly under the root, sorted.
// In-flight temp files are skipped.
func (l *Local) List(_ context.Context) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, l.root)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list %s", l.root).WithCause(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// resolve accepts paths returned by Write or names relative to the root,
// and refuses anything outside the root.
func (l *Local) resolve(p string) (string, error) {
	if p == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "empty path")
	}
	full := filepath.Clean(p)
	if !filepath.IsAbs(full) && !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		full = filepath.Join(l.root, full)
	}
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "path %s is outside the file store", p)
	}
	return full, nil
}

var _ Store = (*Local)(nil)
