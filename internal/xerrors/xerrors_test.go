package xerrors

import (
	"errors"
	"testing"
)

func TestNotFound(t *testing.T) {
	err := NotFound("Facade.Snapshot", "chain 3")
	if !IsNotFound(err) {
		t.Fatal("expected IsNotFound to be true")
	}
	if got := err.Error(); got == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestIoUnwrap(t *testing.T) {
	cause := errors.New("disk exploded")
	err := Io("Backend.OpenFile", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestParse(t *testing.T) {
	err := Parse("Manifest.parse", KindManifest, "missing keyword Hostname")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected errors.As to find *Error")
	}
	if e.Kind != KindManifest {
		t.Fatalf("expected kind %q, got %q", KindManifest, e.Kind)
	}
}
