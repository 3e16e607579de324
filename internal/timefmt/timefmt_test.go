package timefmt

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	got, err := Parse("19881211t152000z")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(1988, time.December, 11, 15, 20, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	got, err := Parse("20150617T182545Z")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(2015, time.June, 17, 18, 25, 45, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, s := range []string{"", "not-a-time", "20150617x182545z", "20150617t182545x"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"19881211t152000z",
		"20150617t182545z",
		"20150617T182545Z",
	}
	for _, s := range cases {
		tm, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		got := Format(tm)
		want := lowercase(s)
		if got != want {
			t.Errorf("Format(Parse(%q)) = %q, want %q", s, got, want)
		}
	}
}

func lowercase(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func TestDisplayCurrentYear(t *testing.T) {
	now := time.Date(1988, time.January, 1, 0, 0, 0, 0, time.UTC)
	tm := time.Date(1988, time.December, 11, 15, 20, 0, 0, time.UTC)
	got := display(tm, now)
	if got != "Dec 11 15:20" {
		t.Fatalf("got %q", got)
	}
}

func TestDisplayPastYear(t *testing.T) {
	now := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)
	tm := time.Date(1988, time.December, 11, 15, 20, 0, 0, time.UTC)
	got := display(tm, now)
	if got != "Dec 11  1988" {
		t.Fatalf("got %q", got)
	}
}
