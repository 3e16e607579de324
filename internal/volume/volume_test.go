package volume

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"

	"github.com/standardbeagle/dupview/internal/backend"
	"github.com/standardbeagle/dupview/internal/blockcache"
	"github.com/standardbeagle/dupview/internal/sigchain"
)

// fakeResources implements Resources over a single in-memory tar,
// treating all blocks as living in "volume 1".
type fakeResources struct {
	cache *blockcache.Cache
	data  []byte
}

func (f *fakeResources) Cache() *blockcache.Cache { return f.cache }

func (f *fakeResources) VolumeOfBlock(path backend.RawPath, block int) (int, bool) {
	return 1, true
}

func (f *fakeResources) OpenVolume(volNum int) (io.Reader, error) {
	return bytes.NewReader(f.data), nil
}

func buildVolumeTar(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	names := make([]string, 0, len(members))
	for n := range members {
		names = append(names, n)
	}
	// members must be written in path order for the stream's
	// forward-only scan to find them.
	sortStrings(names)
	for _, name := range names {
		body := members[name]
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func TestStreamReadsSingleBlock(t *testing.T) {
	data := buildVolumeTar(t, map[string]string{
		"docs/a.txt/0": "block-zero",
	})
	res := &fakeResources{cache: blockcache.New(16), data: data}
	s := New(res, backend.RawPath("docs/a.txt"), sigchain.EntryId{PathIndex: 0, SnapshotIndex: 0}, 0, ReadAheadSnapshot)

	buf := make([]byte, blockcache.BlockSize)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "block-zero" {
		t.Fatalf("got %q", buf[:n])
	}

	n, err = s.Read(buf)
	if err != io.EOF || n != 0 {
		t.Fatalf("expected EOF after last block, got n=%d err=%v", n, err)
	}
}

func TestStreamReadAheadPopulatesCache(t *testing.T) {
	data := buildVolumeTar(t, map[string]string{
		"docs/a.txt/0": "b0",
		"docs/a.txt/1": "b1",
		"docs/a.txt/2": "b2",
	})
	res := &fakeResources{cache: blockcache.New(16), data: data}
	s := New(res, backend.RawPath("docs/a.txt"), sigchain.EntryId{PathIndex: 0, SnapshotIndex: 0}, 2, ReadAheadSnapshot)

	buf := make([]byte, blockcache.BlockSize)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "b0" {
		t.Fatalf("got %q", buf[:n])
	}

	// Blocks 1 and 2 should already be cached from read-ahead.
	id1 := blockcache.Id{EntryId: sigchain.EntryId{PathIndex: 0, SnapshotIndex: 0}, BlockIndex: 1}
	id2 := blockcache.Id{EntryId: sigchain.EntryId{PathIndex: 0, SnapshotIndex: 0}, BlockIndex: 2}
	if !res.cache.Cached(id1) || !res.cache.Cached(id2) {
		t.Fatal("expected read-ahead to populate blocks 1 and 2")
	}
}

func TestStreamMissingBlockIsNotFound(t *testing.T) {
	data := buildVolumeTar(t, map[string]string{
		"docs/a.txt/0": "b0",
		"docs/z.txt/0": "zz",
	})
	res := &fakeResources{cache: blockcache.New(16), data: data}
	// block 1 of docs/a.txt doesn't exist in this volume at all; the
	// scan should sort past it to docs/z.txt and report not-found.
	s := New(res, backend.RawPath("docs/a.txt"), sigchain.EntryId{PathIndex: 0, SnapshotIndex: 0}, 1, ReadAheadSnapshot)

	buf := make([]byte, blockcache.BlockSize)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("Read block 0: %v", err)
	}
	if _, err := s.Read(buf); err == nil {
		t.Fatal("expected not-found error for missing block 1")
	}
}
