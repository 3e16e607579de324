// Package manifest parses duplicity manifest files: the per-snapshot
// record of hostname, local directory, and per-volume path ranges and
// hashes. Grounded on original_source/src/manifest.rs, whose
// ManifestParser this extends past its unimplemented Volume-block
// handling per spec.md §4.E.
package manifest

import (
	"bufio"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/standardbeagle/dupview/internal/backend"
	"github.com/standardbeagle/dupview/internal/xerrors"
)

// Volume is one `Volume N:` block: the path range it covers and the
// hash duplicity recorded for its tar member.
type Volume struct {
	StartPath backend.RawPath
	EndPath   backend.RawPath
	HashType  string
	Hash      []byte
}

// Manifest is a parsed manifest file. Volumes is 0-based internally;
// wire volume N lives at Volumes[N-1]. A nil entry is a sparse gap
// (an index the manifest never mentioned).
type Manifest struct {
	Hostname string
	LocalDir backend.RawPath
	Volumes  []*Volume
}

// MaxVolNum is the highest 1-based volume number the manifest
// mentions, or 0 if it lists none.
func (m *Manifest) MaxVolNum() int {
	return len(m.Volumes)
}

// Volume returns the 1-based volume num's record, or nil if absent
// or out of range.
func (m *Manifest) Volume(num int) *Volume {
	if num < 1 || num > len(m.Volumes) {
		return nil
	}
	return m.Volumes[num-1]
}

// FirstVolumeOfPath returns the smallest 1-based volume index whose
// [StartPath, EndPath] range contains path (byte-lexicographic,
// inclusive), or 0 if none does.
func (m *Manifest) FirstVolumeOfPath(path backend.RawPath) int {
	for i, v := range m.Volumes {
		if v == nil {
			continue
		}
		if path.Compare(v.StartPath) >= 0 && path.Compare(v.EndPath) <= 0 {
			return i + 1
		}
	}
	return 0
}

// VolumeOfBlock locates the volume holding path's data at byte offset
// offset. It ignores offset and returns FirstVolumeOfPath(path), so
// every block of an entry that spans several volumes resolves to the
// first volume whose range contains the path.
func (m *Manifest) VolumeOfBlock(path backend.RawPath, offset int64) int {
	return m.FirstVolumeOfPath(path)
}

// Parse reads a full manifest from r.
func Parse(r io.Reader) (*Manifest, error) {
	p := &parser{r: bufio.NewReader(r)}
	return p.parse()
}

type parser struct {
	r *bufio.Reader
}

func (p *parser) parse() (*Manifest, error) {
	hostname, err := p.readParamStr("Hostname")
	if err != nil {
		return nil, err
	}
	localDir, err := p.readParamBytes("Localdir")
	if err != nil {
		return nil, err
	}

	m := &Manifest{Hostname: hostname, LocalDir: localDir}
	for {
		num, ok, err := p.consumeVolumeHeader()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		vol, err := p.parseVolumeBlock()
		if err != nil {
			return nil, err
		}
		for len(m.Volumes) < num {
			m.Volumes = append(m.Volumes, nil)
		}
		m.Volumes[num-1] = vol
	}

	return m, nil
}

// consumeVolumeHeader looks for a "Volume N:" header after skipping
// leading whitespace. Returns ok=false (having consumed nothing of
// substance) once the stream is exhausted.
func (p *parser) consumeVolumeHeader() (int, bool, error) {
	if err := p.consumeWhitespace(); err != nil {
		if err == io.EOF {
			return 0, false, nil
		}
		return 0, false, err
	}
	if _, err := p.r.Peek(1); err == io.EOF {
		return 0, false, nil
	}

	keyword, err := p.readUntil(' ')
	if err != nil && err != io.EOF {
		return 0, false, xerrors.Io("manifest.consumeVolumeHeader", err)
	}
	if strings.TrimSpace(keyword) != "Volume" {
		return 0, false, xerrors.Parse("manifest.consumeVolumeHeader", xerrors.KindManifest, "expected Volume block, got "+keyword)
	}

	numStr, err := p.readUntil(':')
	if err != nil && err != io.EOF {
		return 0, false, xerrors.Io("manifest.consumeVolumeHeader", err)
	}
	num, convErr := strconv.Atoi(strings.TrimSpace(numStr))
	if convErr != nil {
		return 0, false, xerrors.Parse("manifest.consumeVolumeHeader", xerrors.KindManifest, "bad volume number "+numStr)
	}
	return num, true, nil
}

// parseVolumeBlock reads StartingPath/EndingPath/Hash fields up to
// the block's terminating "End" keyword, in any order.
func (p *parser) parseVolumeBlock() (*Volume, error) {
	v := &Volume{}
	for {
		if err := p.consumeWhitespace(); err != nil {
			return nil, xerrors.Io("manifest.parseVolumeBlock", err)
		}
		key, err := p.readUntil(' ')
		if err != nil && err != io.EOF {
			return nil, xerrors.Io("manifest.parseVolumeBlock", err)
		}
		key = strings.TrimSpace(key)
		switch key {
		case "StartingPath":
			if err := p.consumeWhitespace(); err != nil {
				return nil, xerrors.Io("manifest.parseVolumeBlock", err)
			}
			b, err := p.readParamValue()
			if err != nil {
				return nil, err
			}
			v.StartPath = backend.RawPath(b)
		case "EndingPath":
			if err := p.consumeWhitespace(); err != nil {
				return nil, xerrors.Io("manifest.parseVolumeBlock", err)
			}
			b, err := p.readParamValue()
			if err != nil {
				return nil, err
			}
			v.EndPath = backend.RawPath(b)
		case "Hash":
			if err := p.consumeWhitespace(); err != nil {
				return nil, xerrors.Io("manifest.parseVolumeBlock", err)
			}
			htype, err := p.readUntil(' ')
			if err != nil && err != io.EOF {
				return nil, xerrors.Io("manifest.parseVolumeBlock", err)
			}
			v.HashType = strings.TrimSpace(htype)
			if err := p.consumeWhitespace(); err != nil {
				return nil, xerrors.Io("manifest.parseVolumeBlock", err)
			}
			hexBytes, err := p.readParamValue()
			if err != nil {
				return nil, err
			}
			decoded, derr := hex.DecodeString(strings.TrimSpace(string(hexBytes)))
			if derr != nil {
				return nil, xerrors.Parse("manifest.parseVolumeBlock", xerrors.KindManifest, "bad hash hex: "+derr.Error())
			}
			v.Hash = decoded
		case "End":
			// consume trailing "Volume" of the "End Volume" closer
			p.readUntil('\n')
			return v, nil
		default:
			return nil, xerrors.Parse("manifest.parseVolumeBlock", xerrors.KindManifest, "unexpected key "+key+" in Volume block")
		}
	}
}

func (p *parser) readParamBytes(key string) (backend.RawPath, error) {
	if err := p.consumeWhitespace(); err != nil {
		return nil, xerrors.Io("manifest."+key, err)
	}
	ok, err := p.consumeKeyword(key)
	if err != nil {
		return nil, xerrors.Io("manifest."+key, err)
	}
	if !ok {
		return nil, xerrors.Parse("manifest."+key, xerrors.KindManifest, "missing keyword "+key)
	}
	if err := p.consumeWhitespace(); err != nil {
		return nil, xerrors.Io("manifest."+key, err)
	}
	return p.readParamValue()
}

func (p *parser) readParamStr(key string) (string, error) {
	b, err := p.readParamBytes(key)
	if err != nil {
		return "", err
	}
	if !isValidUTF8(b) {
		return "", xerrors.Utf8("manifest."+key, errInvalidUTF8)
	}
	return string(b), nil
}

func (p *parser) consumeKeyword(key string) (bool, error) {
	word, err := p.readUntil(' ')
	if err != nil && err != io.EOF {
		return false, err
	}
	return strings.TrimSpace(word) == key, nil
}

func (p *parser) consumeWhitespace() error {
	for {
		b, err := p.r.Peek(1)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !isWhitespace(b[0]) {
			return nil
		}
		if _, err := p.r.Discard(1); err != nil {
			return err
		}
	}
}

// readParamValue reads a bare token up to the next newline, or, if
// the value is quoted, the bytes between the quotes, unescaping
// \xNN sequences (two hex digits, either case) to single bytes.
// Unrecognised backslash sequences are dropped.
func (p *parser) readParamValue() (backend.RawPath, error) {
	quoted, err := p.consumeByte('"')
	if err != nil {
		return nil, xerrors.Io("manifest.readParamValue", err)
	}

	var raw string
	if quoted {
		raw, err = p.readUntil('"')
	} else {
		raw, err = p.readUntil('\n')
	}
	if err != nil && err != io.EOF {
		return nil, xerrors.Io("manifest.readParamValue", err)
	}
	raw = strings.TrimRight(raw, "\"")

	return unescape(raw), nil
}

func (p *parser) consumeByte(expected byte) (bool, error) {
	b, err := p.r.Peek(1)
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	if b[0] != expected {
		return false, nil
	}
	_, err = p.r.Discard(1)
	return true, err
}

// readUntil reads bytes up to and including delim, returning
// everything read with the delimiter stripped. io.EOF is returned
// alongside any bytes collected before the stream ran out.
func (p *parser) readUntil(delim byte) (string, error) {
	s, err := p.r.ReadString(delim)
	if err != nil {
		return s, err
	}
	return s[:len(s)-1], nil
}

func isWhitespace(b byte) bool {
	switch b {
	case ' ', '\r', '\n', '\t':
		return true
	default:
		return false
	}
}

func unescape(s string) backend.RawPath {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			out = append(out, s[i])
			continue
		}
		if i+3 < len(s) && (s[i+1] == 'x' || s[i+1] == 'X') {
			if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
				out = append(out, byte(v))
				i += 3
				continue
			}
		}
		// unrecognised escape: drop the backslash, per spec.md §4.E.
	}
	return backend.RawPath(out)
}

func isValidUTF8(b []byte) bool {
	return strings.ToValidUTF8(string(b), "") == string(b)
}

var errInvalidUTF8 = errors.New("invalid utf-8")
