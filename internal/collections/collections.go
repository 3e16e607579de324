// Package collections groups a repository's flat file names into
// backup sets, links sets into chains, and assembles the parallel
// signature chains, grounded on
// original_source/src/collections/mod.rs.
package collections

import (
	"sort"
	"time"
	"unicode/utf8"

	"github.com/standardbeagle/dupview/internal/filename"
)

// SetKind distinguishes a BackupSet's family.
type SetKind int

const (
	Full SetKind = iota
	Incremental
)

// BackupSet is the aggregation of every file belonging to one
// snapshot: a manifest and zero or more numbered volumes. It is
// mutable while files are being grouped into it (see Add) and
// frozen once a BackupChain is built from it.
type BackupSet struct {
	Kind       SetKind
	Time       time.Time // Full sets
	StartTime  time.Time // Incremental sets
	EndTime    time.Time // Incremental sets
	Compressed bool
	Encrypted  bool
	Partial    bool

	ManifestPath string
	VolumePaths  map[int]string

	infoSet bool
}

// NewBackupSet returns an empty, un-seeded set. Call Add with the
// first member file before using it.
func NewBackupSet() *BackupSet {
	return &BackupSet{VolumePaths: make(map[int]string)}
}

// EffectiveTime is the set's time for sort and chain-matching
// purposes: Time for Full sets, EndTime for Incremental sets.
func (s *BackupSet) EffectiveTime() time.Time {
	if s.Kind == Full {
		return s.Time
	}
	return s.EndTime
}

// IsComplete reports whether the set has a manifest.
func (s *BackupSet) IsComplete() bool {
	return s.ManifestPath != ""
}

// Add offers name/info to the set. It returns true and applies the
// file if the set accepts it: either this is the set's first member
// (which seeds its kind/time/flags), or the file's kind and
// kind-specific times match the set exactly.
func (s *BackupSet) Add(name string, info filename.Info) bool {
	if !s.infoSet {
		s.seed(name, info)
		return true
	}

	k := info.Kind
	switch k.Tag {
	case filename.FullVolume:
		if s.Kind != Full || !s.Time.Equal(k.Time) {
			return false
		}
		s.VolumePaths[k.VolumeNumber] = name
	case filename.IncVolume:
		if s.Kind != Incremental || !s.StartTime.Equal(k.StartTime) || !s.EndTime.Equal(k.EndTime) {
			return false
		}
		s.VolumePaths[k.VolumeNumber] = name
	case filename.FullManifest:
		if s.Kind != Full || !s.Time.Equal(k.Time) {
			return false
		}
		s.ManifestPath = name
	case filename.IncManifest:
		if s.Kind != Incremental || !s.StartTime.Equal(k.StartTime) || !s.EndTime.Equal(k.EndTime) {
			return false
		}
		s.ManifestPath = name
	case filename.FullSignature:
		if s.Kind != Full || !s.Time.Equal(k.Time) {
			return false
		}
	case filename.NewSignature:
		if s.Kind != Incremental || !s.StartTime.Equal(k.StartTime) || !s.EndTime.Equal(k.EndTime) {
			return false
		}
	}

	// Sticky: once a non-partial member is encrypted, the set stays
	// encrypted; plain members never clear it.
	if info.Encrypted && !k.Partial {
		s.Encrypted = true
	}
	return true
}

func (s *BackupSet) seed(name string, info filename.Info) {
	k := info.Kind
	switch k.Tag {
	case filename.FullVolume:
		s.Kind, s.Time = Full, k.Time
	case filename.IncVolume:
		s.Kind, s.StartTime, s.EndTime = Incremental, k.StartTime, k.EndTime
	case filename.FullManifest:
		s.Kind, s.Time, s.Partial = Full, k.Time, k.Partial
	case filename.IncManifest:
		s.Kind, s.StartTime, s.EndTime, s.Partial = Incremental, k.StartTime, k.EndTime, k.Partial
	case filename.FullSignature:
		s.Kind, s.Time, s.Partial = Full, k.Time, k.Partial
	case filename.NewSignature:
		s.Kind, s.StartTime, s.EndTime, s.Partial = Incremental, k.StartTime, k.EndTime, k.Partial
	}

	s.Compressed = info.Compressed
	s.Encrypted = info.Encrypted
	s.infoSet = true

	switch k.Tag {
	case filename.FullVolume, filename.IncVolume:
		s.VolumePaths[k.VolumeNumber] = name
	case filename.FullManifest, filename.IncManifest:
		s.ManifestPath = name
	}
}

// BackupChain is a full set followed by zero or more incrementals,
// each starting where the previous one (or the full set) ended.
type BackupChain struct {
	FullSet   *BackupSet
	IncSets   []*BackupSet
	StartTime time.Time
	EndTime   time.Time
}

// NewBackupChain opens a chain from a Full set.
func NewBackupChain(full *BackupSet) *BackupChain {
	return &BackupChain{FullSet: full, StartTime: full.Time, EndTime: full.Time}
}

// AddInc offers an incremental set to the chain. It returns nil and
// absorbs inc if the chain accepts it (inc.StartTime == chain.EndTime,
// or inc replaces the chain's last incremental under the tie-break
// rule); otherwise it returns inc unchanged for the caller to offer
// elsewhere.
func (c *BackupChain) AddInc(inc *BackupSet) *BackupSet {
	if c.EndTime.Equal(inc.StartTime) {
		c.EndTime = inc.EndTime
		c.IncSets = append(c.IncSets, inc)
		return nil
	}

	if n := len(c.IncSets); n > 0 {
		last := c.IncSets[n-1]
		if last.StartTime.Equal(inc.StartTime) && inc.EndTime.After(last.EndTime) {
			c.EndTime = inc.EndTime
			c.IncSets[n-1] = inc
			return nil
		}
	}
	return inc
}

// SignatureFile is one member of a SignatureChain: the full
// signature or one incremental signature.
type SignatureFile struct {
	Path       string
	Time       time.Time
	Compressed bool
	Encrypted  bool
}

func signatureFileFrom(name string, info filename.Info) SignatureFile {
	_, end := info.Kind.TimeRange()
	return SignatureFile{Path: name, Time: end, Compressed: info.Compressed, Encrypted: info.Encrypted}
}

// SignatureChain is a full signature followed by ascending-start-time
// incremental signatures.
type SignatureChain struct {
	FullSig SignatureFile
	IncList []SignatureFile
}

// StartTime is the chain's full signature time.
func (c *SignatureChain) StartTime() time.Time { return c.FullSig.Time }

// EndTime is the last incremental's time, or StartTime if none.
func (c *SignatureChain) EndTime() time.Time {
	if n := len(c.IncList); n > 0 {
		return c.IncList[n-1].Time
	}
	return c.StartTime()
}

// Collections is the fully-grouped view of a repository's files.
type Collections struct {
	BackupChains       []*BackupChain
	SignatureChains    []*SignatureChain
	OrphanedSets       []*BackupSet
	OrphanedSignatures []SignatureFile
	Unrecognised       []string
}

type parsedFile struct {
	name string
	info filename.Info
}

// FromFileNames classifies names and assembles a Collections from
// them. Names that fail classification, or that are not valid UTF-8,
// are recorded in Unrecognised and otherwise ignored.
func FromFileNames(names []string) *Collections {
	classifier := filename.New()
	var parsed []parsedFile
	c := &Collections{}

	for _, name := range names {
		if !utf8.ValidString(name) {
			c.Unrecognised = append(c.Unrecognised, name)
			continue
		}
		info, ok := classifier.Parse(name)
		if !ok {
			c.Unrecognised = append(c.Unrecognised, name)
			continue
		}
		parsed = append(parsed, parsedFile{name: name, info: info})
	}

	c.buildBackupChains(parsed)
	c.buildSignatureChains(parsed)
	return c
}

func (c *Collections) buildBackupChains(parsed []parsedFile) {
	sets := computeBackupSets(parsed)
	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].EffectiveTime().Before(sets[j].EffectiveTime())
	})

	for _, set := range sets {
		switch set.Kind {
		case Full:
			c.BackupChains = append(c.BackupChains, NewBackupChain(set))
		case Incremental:
			rejected := set
			for _, chain := range c.BackupChains {
				rejected = chain.AddInc(rejected)
				if rejected == nil {
					break
				}
			}
			if rejected != nil {
				c.OrphanedSets = append(c.OrphanedSets, rejected)
			}
		}
	}

	sort.SliceStable(c.BackupChains, func(i, j int) bool {
		return c.BackupChains[i].EndTime.Before(c.BackupChains[j].EndTime)
	})
}

func computeBackupSets(parsed []parsedFile) []*BackupSet {
	var sets []*BackupSet
	for _, f := range parsed {
		inserted := false
		for _, set := range sets {
			if set.Add(f.name, f.info) {
				inserted = true
				break
			}
		}
		if !inserted {
			set := NewBackupSet()
			set.Add(f.name, f.info)
			sets = append(sets, set)
		}
	}
	return sets
}

func (c *Collections) buildSignatureChains(parsed []parsedFile) {
	for _, f := range parsed {
		if f.info.Kind.Tag == filename.FullSignature {
			c.SignatureChains = append(c.SignatureChains, &SignatureChain{
				FullSig: signatureFileFrom(f.name, f.info),
			})
		}
	}

	var newSigs []parsedFile
	for _, f := range parsed {
		if f.info.Kind.Tag == filename.NewSignature {
			newSigs = append(newSigs, f)
		}
	}
	sort.SliceStable(newSigs, func(i, j int) bool {
		si, _ := newSigs[i].info.Kind.TimeRange()
		sj, _ := newSigs[j].info.Kind.TimeRange()
		return si.Before(sj)
	})

	for _, f := range newSigs {
		start, _ := f.info.Kind.TimeRange()
		added := false
		for _, chain := range c.SignatureChains {
			if chain.EndTime().Equal(start) {
				chain.IncList = append(chain.IncList, signatureFileFrom(f.name, f.info))
				added = true
				break
			}
		}
		if !added {
			c.OrphanedSignatures = append(c.OrphanedSignatures, signatureFileFrom(f.name, f.info))
		}
	}
}
