// Package timefmt parses and formats duplicity's compact UTC
// timestamps, of the form "YYYYMMDDtHHMMSSz" (case-insensitive on the
// "t"/"z" separators), and renders them in `ls -l`-style pretty form.
package timefmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/standardbeagle/dupview/internal/xerrors"
)

// EpochZero is the "unset" sentinel used while a BackupSet is still
// being constructed, before any filename has supplied a real time.
var EpochZero = time.Time{}

const layout = "20060102150405"

// Parse converts a duplicity timestamp string to an absolute instant
// in UTC, second precision. The "t" and "z" separators are matched
// case-insensitively; everything else must be decimal digits.
func Parse(s string) (time.Time, error) {
	lower := strings.ToLower(s)
	if len(lower) != 16 || lower[8] != 't' || lower[15] != 'z' {
		return time.Time{}, xerrors.Parse("timefmt.Parse", xerrors.KindFilename, "malformed timestamp "+strconv.Quote(s))
	}
	digits := lower[:8] + lower[9:15]
	t, err := time.ParseInLocation(layout, digits, time.UTC)
	if err != nil {
		return time.Time{}, xerrors.Parse("timefmt.Parse", xerrors.KindFilename, "malformed timestamp "+strconv.Quote(s))
	}
	return t, nil
}

// Format renders t in duplicity's canonical lowercase form. It is the
// left inverse of Parse: Format(Parse(s)) == strings.ToLower(s) for
// any well-formed s.
func Format(t time.Time) string {
	u := t.UTC()
	return u.Format(layout[:8]) + "t" + u.Format(layout[8:]) + "z"
}

// Display renders t the way `duplicity collection-status` does: hour
// and minute when t falls in the current year, otherwise the year
// with a two-space gap before it (deliberately mirroring `ls -l`).
func Display(t time.Time) string {
	return display(t, time.Now().UTC())
}

func display(t, now time.Time) string {
	u := t.UTC()
	if u.Year() == now.Year() {
		return fmt.Sprintf("%s %2d %02d:%02d", u.Month().String()[:3], u.Day(), u.Hour(), u.Minute())
	}
	return fmt.Sprintf("%s %2d  %d", u.Month().String()[:3], u.Day(), u.Year())
}
