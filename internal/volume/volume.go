// Package volume implements the streaming reader that walks a
// snapshot's volume tars to serve an entry's blocks, populating the
// block cache along the way. Grounded on
// original_source/src/read/stream.rs's SnapshotStream.
package volume

import (
	"archive/tar"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/standardbeagle/dupview/internal/backend"
	"github.com/standardbeagle/dupview/internal/blockcache"
	"github.com/standardbeagle/dupview/internal/sigchain"
	"github.com/standardbeagle/dupview/internal/xerrors"
)

// ReadAheadSnapshot and ReadAheadSignatureDiff are the read-ahead
// block counts for full-snapshot and signature-diff streams
// respectively, per spec.md §4.H.
const (
	ReadAheadSnapshot      = 10
	ReadAheadSignatureDiff = 6
)

// Resources is everything a Stream needs beyond its own state: the
// shared block cache, the manifest-backed block-to-volume lookup,
// and a way to open a given volume number's tar contents (already
// gunzipped if the volume file is compressed). OpenVolume returns an
// xerrors.NotFound error for a volume number with no backing file.
type Resources interface {
	Cache() *blockcache.Cache
	VolumeOfBlock(path backend.RawPath, block int) (int, bool)
	OpenVolume(volNum int) (io.Reader, error)
}

// Stream is a readable byte stream over one entry's blocks within a
// single snapshot. Reads must be made with a buffer of at least
// blockcache.BlockSize bytes; each successful Read returns exactly
// one block, or 0 at end of stream.
type Stream struct {
	res       Resources
	path      backend.RawPath
	entryID   sigchain.EntryId
	maxBlock  int
	currBlock int
	readAhead int
}

// New constructs a Stream for path's blocks 0..=maxBlock (inclusive),
// reading ahead up to readAhead additional blocks per volume visit.
func New(res Resources, path backend.RawPath, entryID sigchain.EntryId, maxBlock, readAhead int) *Stream {
	return &Stream{res: res, path: path, entryID: entryID, maxBlock: maxBlock, readAhead: readAhead}
}

// Read implements io.Reader. buf must be at least blockcache.BlockSize
// bytes; no internal buffering is performed to relax that.
func (s *Stream) Read(buf []byte) (int, error) {
	if len(buf) < blockcache.BlockSize {
		return 0, xerrors.Parse("volume.Stream.Read", xerrors.KindFilename, "buffer smaller than block size")
	}
	if s.currBlock > s.maxBlock {
		return 0, io.EOF
	}

	cache := s.res.Cache()
	blockID := blockcache.Id{EntryId: s.entryID, BlockIndex: s.currBlock}
	if n, ok := cache.Read(blockID, buf); ok {
		s.currBlock++
		return n, nil
	}

	volNum, ok := s.res.VolumeOfBlock(s.path, s.currBlock)
	if !ok {
		return 0, xerrors.NotFound("volume.Stream.Read", fmt.Sprintf("volume for block #%d", s.currBlock))
	}
	r, err := s.res.OpenVolume(volNum)
	if err != nil {
		return 0, err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	return s.scanFrom(r, buf)
}

// scanFrom walks r's tar entries in order looking for the target
// member for s.currBlock, then greedily caches up to s.readAhead
// subsequent blocks of the same path while they remain present. Only
// the target block advances s.currBlock; read-ahead blocks are cached
// under their own block index for a later Read to pick up from cache.
func (s *Stream) scanFrom(r io.Reader, buf []byte) (int, error) {
	tr := tar.NewReader(r)
	cache := s.res.Cache()

	block := s.currBlock
	target := memberName(s.path, block)
	nFound := 0
	n := 0
	consecutiveErrors := 0

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if nFound > 0 {
				break
			}
			consecutiveErrors++
			if consecutiveErrors > 16 {
				break
			}
			continue
		}
		consecutiveErrors = 0

		if nFound > s.readAhead {
			break
		}
		if nFound == 0 {
			switch strings.Compare(hdr.Name, target) {
			case -1:
				continue // behind the target; tar.Reader skips the unread body for us
			case 1:
				return 0, xerrors.NotFound("volume.Stream.Read", fmt.Sprintf("block #%d not found", block))
			}
		} else if hdr.Name != target {
			break
		}

		blockID := blockcache.Id{EntryId: s.entryID, BlockIndex: block}
		body := make([]byte, hdr.Size)
		if nFound == 0 {
			if _, err := io.ReadFull(tr, body); err != nil {
				return 0, xerrors.Io("volume.Stream.Read", err)
			}
			n = copy(buf, body)
			cache.Write(blockID, body)
		} else if !cache.Cached(blockID) {
			if _, err := io.ReadFull(tr, body); err != nil {
				break // already have what we need; read-ahead best-effort
			}
			cache.Write(blockID, body)
		}

		block++
		nFound++
		target = memberName(s.path, block)
	}

	if nFound > 0 {
		s.currBlock++
		return n, nil
	}
	return 0, xerrors.NotFound("volume.Stream.Read", fmt.Sprintf("block #%d not found", block))
}

func memberName(path backend.RawPath, block int) string {
	return string(path) + "/" + strconv.Itoa(block)
}
