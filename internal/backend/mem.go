package backend

import (
	"bytes"
	"sort"

	"github.com/standardbeagle/dupview/internal/xerrors"
)

// MemBackend is an in-memory Backend used by this module's own tests
// to build fixture repositories without touching the filesystem.
type MemBackend struct {
	files map[string][]byte
}

// NewMemBackend builds a MemBackend from a name -> contents map.
func NewMemBackend(files map[string][]byte) *MemBackend {
	m := make(map[string][]byte, len(files))
	for k, v := range files {
		m[k] = v
	}
	return &MemBackend{files: m}
}

func (b *MemBackend) FileNames() ([]string, error) {
	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *MemBackend) OpenFile(name string) (ReadCloser, error) {
	data, ok := b.files[name]
	if !ok {
		return nil, xerrors.NotFound("MemBackend.OpenFile", name)
	}
	return nopCloser{bytes.NewReader(data)}, nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
