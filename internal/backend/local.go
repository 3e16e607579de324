package backend

import (
	"os"
	"path/filepath"

	"github.com/standardbeagle/dupview/internal/xerrors"
)

// LocalBackend reads a duplicity repository out of a single directory
// on the local filesystem. It is grounded on the teacher's
// RealFileSystem (internal/core/file_service.go), itself a thin
// wrapper over os.ReadDir/os.Open.
type LocalBackend struct {
	dir string
}

// NewLocalBackend opens dir as a repository root. dir must exist and
// be a directory.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, xerrors.Io("backend.NewLocalBackend", err)
	}
	if !info.IsDir() {
		return nil, xerrors.Parse("backend.NewLocalBackend", xerrors.KindFilename, dir+" is not a directory")
	}
	return &LocalBackend{dir: dir}, nil
}

func (b *LocalBackend) FileNames() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, xerrors.Io("LocalBackend.FileNames", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (b *LocalBackend) OpenFile(name string) (ReadCloser, error) {
	f, err := os.Open(filepath.Join(b.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.NotFound("LocalBackend.OpenFile", name)
		}
		return nil, xerrors.Io("LocalBackend.OpenFile", err)
	}
	return f, nil
}
