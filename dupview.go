// Package dupview wires a backend to the on-demand collections,
// signature chain, and manifest readers to expose a duplicity
// repository as an ordered list of snapshots. Grounded on
// original_source/src/lib.rs's Backup/Snapshot shape, generalized from
// its RefCell-per-slot caching to a singleflight.Group-backed lazy
// load per the teacher's own use of golang.org/x/sync.
package dupview

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/singleflight"

	"github.com/standardbeagle/dupview/internal/backend"
	"github.com/standardbeagle/dupview/internal/blockcache"
	"github.com/standardbeagle/dupview/internal/collections"
	"github.com/standardbeagle/dupview/internal/config"
	"github.com/standardbeagle/dupview/internal/manifest"
	"github.com/standardbeagle/dupview/internal/sigchain"
	"github.com/standardbeagle/dupview/internal/volume"
	"github.com/standardbeagle/dupview/internal/xerrors"
)

// Repository is a top-level, read-only view of a duplicity backup: its
// collections are built eagerly on Open, while signature chains and
// manifests are parsed lazily on first access and cached for the
// Repository's lifetime.
type Repository struct {
	be        backend.Backend
	cfg       *config.Config
	cols      *collections.Collections
	cache     *blockcache.Cache
	snapshots []*Snapshot

	sfGroup   singleflight.Group
	mu        sync.Mutex
	sigChains map[int]*sigchain.Chain
	manifests map[int]*manifest.Manifest
}

// Open builds a Repository over be using compiled-in defaults. See
// OpenWithConfig to override block size, cache budget, or read-ahead.
func Open(be backend.Backend) (*Repository, error) {
	return OpenWithConfig(be, config.Default())
}

// OpenWithConfig builds a Repository over be, listing its files once
// and grouping them into Collections. It does not load any signature
// chain or manifest; those are materialised on first use.
func OpenWithConfig(be backend.Backend, cfg *config.Config) (*Repository, error) {
	names, err := be.FileNames()
	if err != nil {
		return nil, xerrors.Io("dupview.Open", err)
	}

	r := &Repository{
		be:        be,
		cfg:       cfg,
		cols:      collections.FromFileNames(names),
		cache:     blockcache.New(cfg.CacheCapacityBlocks()),
		sigChains: make(map[int]*sigchain.Chain),
		manifests: make(map[int]*manifest.Manifest),
	}

	slot := 0
	for chainIdx, chain := range r.cols.BackupChains {
		sigIdx := sigChainForFullTime(r.cols.SignatureChains, chain.FullSet.Time)
		r.snapshots = append(r.snapshots, &Snapshot{
			repo: r, chainIndex: chainIdx, sigChainIndex: sigIdx, sigIndex: 0, manifestSlot: slot, set: chain.FullSet,
		})
		slot++
		for incIdx, inc := range chain.IncSets {
			r.snapshots = append(r.snapshots, &Snapshot{
				repo: r, chainIndex: chainIdx, sigChainIndex: sigIdx, sigIndex: incIdx + 1, manifestSlot: slot, set: inc,
			})
			slot++
		}
	}

	return r, nil
}

// sigChainForFullTime finds the signature chain whose full signature
// time equals fullTime, per spec.md §4.D: a backup chain's signature
// chain is the one matching on that time, not on array position
// (BackupChains is sorted by end time while SignatureChains keeps the
// backend's file-list order, so the two slices need not agree in order).
// It returns -1 if no signature chain matches.
func sigChainForFullTime(chains []*collections.SignatureChain, fullTime time.Time) int {
	for i, c := range chains {
		if c.StartTime().Equal(fullTime) {
			return i
		}
	}
	return -1
}

// Collections returns the repository's grouped-but-unparsed view:
// backup chains, signature chains, and anything that didn't belong to
// either. It is immutable and safe for concurrent reads.
func (r *Repository) Collections() *collections.Collections { return r.cols }

// Snapshots returns every snapshot across every chain, in chain order
// with each chain's full set first followed by its incrementals in
// temporal order.
func (r *Repository) Snapshots() []*Snapshot { return r.snapshots }

// signatureChain lazily loads and caches the idx'th signature chain.
// Concurrent callers for the same idx share one load (singleflight);
// callers for an already-loaded idx return immediately.
func (r *Repository) signatureChain(idx int) (*sigchain.Chain, error) {
	if idx < 0 || idx >= len(r.cols.SignatureChains) {
		return nil, xerrors.NotFound("dupview.signatureChain", fmt.Sprintf("signature chain #%d", idx))
	}

	v, err, _ := r.sfGroup.Do(fmt.Sprintf("sig:%d", idx), func() (interface{}, error) {
		r.mu.Lock()
		if c, ok := r.sigChains[idx]; ok {
			r.mu.Unlock()
			return c, nil
		}
		r.mu.Unlock()

		c, err := sigchain.Load(r.cols.SignatureChains[idx], r.be)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.sigChains[idx] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sigchain.Chain), nil
}

// manifestFor lazily loads and caches the manifest at path, keyed by
// slot (the snapshot's position in the flattened snapshot list).
func (r *Repository) manifestFor(slot int, path string) (*manifest.Manifest, error) {
	v, err, _ := r.sfGroup.Do(fmt.Sprintf("man:%d", slot), func() (interface{}, error) {
		r.mu.Lock()
		if m, ok := r.manifests[slot]; ok {
			r.mu.Unlock()
			return m, nil
		}
		r.mu.Unlock()

		rc, err := r.be.OpenFile(path)
		if err != nil {
			return nil, xerrors.Io("dupview.manifest", err)
		}
		defer rc.Close()

		m, err := manifest.Parse(rc)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.manifests[slot] = m
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*manifest.Manifest), nil
}

// Snapshot is the state of the backup at one point in time, either a
// full backup set or one incremental in a chain.
type Snapshot struct {
	repo          *Repository
	chainIndex    int // index into repo.cols.BackupChains
	sigChainIndex int // index into repo.cols.SignatureChains matching this chain's full time, or -1
	sigIndex      int // 0 for the full set, 1..n for the nth incremental
	manifestSlot  int // position in the flattened cross-chain snapshot list
	set           *collections.BackupSet
}

// Time is the snapshot's effective time (the full set's time, or an
// incremental's end time).
func (s *Snapshot) Time() time.Time { return s.set.EffectiveTime() }

// IsFull reports whether this snapshot is a full backup.
func (s *Snapshot) IsFull() bool { return s.set.Kind == collections.Full }

// IsIncremental reports whether this snapshot depends on a prior full
// snapshot and, possibly, earlier incrementals in the same chain.
func (s *Snapshot) IsIncremental() bool { return !s.IsFull() }

// NumVolumes is the number of volume files belonging to this snapshot.
func (s *Snapshot) NumVolumes() int { return len(s.set.VolumePaths) }

// Entries returns this snapshot's signature entries, loading the
// owning signature chain on first call. It returns a NotFound error if
// the chain has no corresponding signature snapshot (an incomplete
// signature chain, missing its tail incrementals).
func (s *Snapshot) Entries() ([]sigchain.Entry, error) {
	chain, err := s.repo.signatureChain(s.sigChainIndex)
	if err != nil {
		return nil, err
	}
	if s.sigIndex >= len(chain.Snapshots) {
		return nil, xerrors.NotFound("dupview.Snapshot.Entries", "signature snapshot for this backup set")
	}
	return chain.Snapshots[s.sigIndex].Entries, nil
}

// Manifest returns this snapshot's manifest, parsing it on first call
// and caching the result for the Repository's lifetime.
func (s *Snapshot) Manifest() (*manifest.Manifest, error) {
	if !s.set.IsComplete() {
		return nil, xerrors.NotFound("dupview.Snapshot.Manifest", "manifest path")
	}
	return s.repo.manifestFor(s.manifestSlot, s.set.ManifestPath)
}

// Open returns a readable byte stream over rawPath's contents as
// recorded in this snapshot, consulting the signature chain for the
// entry's size and the shared block cache for its data. It returns a
// NotFound error if rawPath has no live (non-deleted) entry in this
// snapshot.
func (s *Snapshot) Open(rawPath backend.RawPath) (io.Reader, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}

	var found *sigchain.Entry
	for i := range entries {
		if entries[i].DiffType != sigchain.Deleted && entries[i].RawPath.Equal(rawPath) {
			found = &entries[i]
			break
		}
	}
	if found == nil {
		return nil, xerrors.NotFound("dupview.Snapshot.Open", rawPath.String())
	}

	m, err := s.Manifest()
	if err != nil {
		return nil, err
	}
	chain, err := s.repo.signatureChain(s.sigChainIndex)
	if err != nil {
		return nil, err
	}

	readAhead := s.repo.cfg.ReadAheadSnapshot
	if s.IsIncremental() {
		readAhead = s.repo.cfg.ReadAheadSignatureDiff
	}

	entryID := sigchain.EntryId{PathIndex: chain.PathIndex(rawPath), SnapshotIndex: s.sigIndex}
	res := &snapshotResources{repo: s.repo, set: s.set, manifest: m}
	return volume.New(res, rawPath, entryID, blockBound(found.Size, s.repo.cfg.BlockSize), readAhead), nil
}

// blockBound converts a byte size to the highest 0-based block index
// it occupies at the given block size, or -1 for a zero-length file
// (an empty stream with no blocks to read).
func blockBound(size int64, blockSize int) int {
	if size <= 0 {
		return -1
	}
	n := size / int64(blockSize)
	if size%int64(blockSize) != 0 {
		n++
	}
	return int(n) - 1
}

// snapshotResources adapts one snapshot's backup set and manifest to
// volume.Resources.
type snapshotResources struct {
	repo     *Repository
	set      *collections.BackupSet
	manifest *manifest.Manifest
}

func (r *snapshotResources) Cache() *blockcache.Cache { return r.repo.cache }

func (r *snapshotResources) VolumeOfBlock(path backend.RawPath, block int) (int, bool) {
	v := r.manifest.VolumeOfBlock(path, int64(block)*int64(r.repo.cfg.BlockSize))
	if v == 0 {
		return 0, false
	}
	return v, true
}

func (r *snapshotResources) OpenVolume(volNum int) (io.Reader, error) {
	path, ok := r.set.VolumePaths[volNum]
	if !ok {
		return nil, xerrors.NotFound("dupview.OpenVolume", fmt.Sprintf("volume #%d", volNum))
	}

	rc, err := r.repo.be.OpenFile(path)
	if err != nil {
		return nil, xerrors.Io("dupview.OpenVolume", err)
	}
	if !r.set.Compressed {
		return rc, nil
	}

	gz, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, xerrors.Io("dupview.OpenVolume", err)
	}
	return &gzipThenFile{Reader: gz, gz: gz, file: rc}, nil
}

// gzipThenFile closes the gzip reader before the file it wraps.
type gzipThenFile struct {
	io.Reader
	gz   io.Closer
	file io.Closer
}

func (c *gzipThenFile) Close() error {
	err := c.gz.Close()
	if fErr := c.file.Close(); err == nil {
		err = fErr
	}
	return err
}
