// Package filename classifies duplicity's flat file names into the
// six kinds defined by spec.md §4.C, grounded on
// original_source/src/collections/file_naming.rs's FileNameParser.
package filename

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/standardbeagle/dupview/internal/timefmt"
)

// Tag discriminates the six filename kinds.
type Tag int

const (
	FullVolume Tag = iota
	FullManifest
	IncVolume
	IncManifest
	FullSignature
	NewSignature
)

func (t Tag) String() string {
	switch t {
	case FullVolume:
		return "FullVolume"
	case FullManifest:
		return "FullManifest"
	case IncVolume:
		return "IncVolume"
	case IncManifest:
		return "IncManifest"
	case FullSignature:
		return "FullSignature"
	case NewSignature:
		return "NewSignature"
	default:
		return "Unknown"
	}
}

// Kind is the parsed, tagged union described by spec.md's
// FilenameKind. Only the fields relevant to Tag are meaningful; see
// spec.md §3 for the per-variant field list.
type Kind struct {
	Tag          Tag
	Time         time.Time // FullVolume, FullManifest, FullSignature
	StartTime    time.Time // IncVolume, IncManifest, NewSignature
	EndTime      time.Time // IncVolume, IncManifest, NewSignature
	VolumeNumber int       // FullVolume, IncVolume
	Partial      bool      // FullManifest, IncManifest, FullSignature, NewSignature
}

// TimeRange returns the kind-specific time or time range, collapsed
// to a single (start, end) pair: (Time, Time) for the Full* variants,
// (StartTime, EndTime) for the Inc*/NewSignature variants.
func (k Kind) TimeRange() (time.Time, time.Time) {
	switch k.Tag {
	case FullVolume, FullManifest, FullSignature:
		return k.Time, k.Time
	default:
		return k.StartTime, k.EndTime
	}
}

// IsFull reports whether the kind belongs to a Full backup set
// (volume, manifest, or signature).
func (k Kind) IsFull() bool {
	return k.Tag == FullVolume || k.Tag == FullManifest || k.Tag == FullSignature
}

// Info is a classified filename: its kind plus the compression and
// encryption flags derived from the file's suffix.
type Info struct {
	Kind       Kind
	Compressed bool
	Encrypted  bool
}

// Classifier holds the six compiled patterns from spec.md §4.C.
type Classifier struct {
	fullVol      *regexp.Regexp
	fullManifest *regexp.Regexp
	incVol       *regexp.Regexp
	incManifest  *regexp.Regexp
	fullSig      *regexp.Regexp
	newSig       *regexp.Regexp
}

// New compiles the classifier's patterns once; reuse across calls.
func New() *Classifier {
	return &Classifier{
		fullVol:      regexp.MustCompile(`^duplicity-full\.(.*?)\.vol([0-9]+)\.difftar(\.part)?(\.|$)`),
		fullManifest: regexp.MustCompile(`^duplicity-full\.(.*?)\.manifest(\.part)?(\.|$)`),
		incVol:       regexp.MustCompile(`^duplicity-inc\.(.*?)\.to\.(.*?)\.vol([0-9]+)\.difftar(\.|$)`),
		incManifest:  regexp.MustCompile(`^duplicity-inc\.(.*?)\.to\.(.*?)\.manifest(\.part)?(\.|$)`),
		fullSig:      regexp.MustCompile(`^duplicity-full-signatures\.(.*?)\.sigtar(\.part)?(\.|$)`),
		newSig:       regexp.MustCompile(`^duplicity-new-signatures\.(.*?)\.to\.(.*?)\.sigtar(\.part)?(\.|$)`),
	}
}

// Parse classifies name, returning its Info and true on a match, or
// the zero Info and false if no pattern matches or a captured time
// field fails to parse.
func (c *Classifier) Parse(name string) (Info, bool) {
	lower := strings.ToLower(name)

	if k, ok := c.parseFull(lower); ok {
		return Info{Kind: k, Compressed: isCompressed(lower), Encrypted: isEncrypted(lower)}, true
	}
	if k, ok := c.parseInc(lower); ok {
		return Info{Kind: k, Compressed: isCompressed(lower), Encrypted: isEncrypted(lower)}, true
	}
	if k, ok := c.parseSig(lower); ok {
		return Info{Kind: k, Compressed: isCompressed(lower), Encrypted: isEncrypted(lower)}, true
	}
	return Info{}, false
}

func (c *Classifier) parseFull(lower string) (Kind, bool) {
	if m := c.fullVol.FindStringSubmatch(lower); m != nil {
		t, err := timefmt.Parse(m[1])
		if err != nil {
			return Kind{}, false
		}
		num, err := strconv.Atoi(m[2])
		if err != nil {
			return Kind{}, false
		}
		return Kind{Tag: FullVolume, Time: t, VolumeNumber: num}, true
	}
	if m := c.fullManifest.FindStringSubmatch(lower); m != nil {
		t, err := timefmt.Parse(m[1])
		if err != nil {
			return Kind{}, false
		}
		return Kind{Tag: FullManifest, Time: t, Partial: m[2] != ""}, true
	}
	return Kind{}, false
}

func (c *Classifier) parseInc(lower string) (Kind, bool) {
	if m := c.incVol.FindStringSubmatch(lower); m != nil {
		start, err := timefmt.Parse(m[1])
		if err != nil {
			return Kind{}, false
		}
		end, err := timefmt.Parse(m[2])
		if err != nil {
			return Kind{}, false
		}
		num, err := strconv.Atoi(m[3])
		if err != nil {
			return Kind{}, false
		}
		return Kind{Tag: IncVolume, StartTime: start, EndTime: end, VolumeNumber: num}, true
	}
	if m := c.incManifest.FindStringSubmatch(lower); m != nil {
		start, err := timefmt.Parse(m[1])
		if err != nil {
			return Kind{}, false
		}
		end, err := timefmt.Parse(m[2])
		if err != nil {
			return Kind{}, false
		}
		return Kind{Tag: IncManifest, StartTime: start, EndTime: end, Partial: m[3] != ""}, true
	}
	return Kind{}, false
}

func (c *Classifier) parseSig(lower string) (Kind, bool) {
	if m := c.fullSig.FindStringSubmatch(lower); m != nil {
		t, err := timefmt.Parse(m[1])
		if err != nil {
			return Kind{}, false
		}
		return Kind{Tag: FullSignature, Time: t, Partial: m[2] != ""}, true
	}
	if m := c.newSig.FindStringSubmatch(lower); m != nil {
		start, err := timefmt.Parse(m[1])
		if err != nil {
			return Kind{}, false
		}
		end, err := timefmt.Parse(m[2])
		if err != nil {
			return Kind{}, false
		}
		return Kind{Tag: NewSignature, StartTime: start, EndTime: end, Partial: m[3] != ""}, true
	}
	return Kind{}, false
}

func isCompressed(lower string) bool {
	return strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".z")
}

func isEncrypted(lower string) bool {
	return strings.HasSuffix(lower, ".gpg") || strings.HasSuffix(lower, ".g")
}
