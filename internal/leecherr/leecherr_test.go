package leecherr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	err := New(Handshake, "session.handshake", fmt.Errorf("info_hash mismatch"))
	if !Is(err, Handshake) {
		t.Error("Is(err, Handshake) = false, want true")
	}
	if Is(err, Codec) {
		t.Error("Is(err, Codec) = true, want false")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(fmt.Errorf("plain"), Codec) {
		t.Error("Is on a non-*Error should report false")
	}
}

func TestUnwrapExposesUnderlyingError(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := New(IOTransient, "session.dial", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through Unwrap to the wrapped cause")
	}
}

func TestErrorStringIncludesKindAndOp(t *testing.T) {
	err := New(Fatal, "metainfo.Parse", fmt.Errorf("multi-file torrents are not supported"))
	got := err.Error()
	want := "fatal: metainfo.Parse: multi-file torrents are not supported"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRecoverableKinds(t *testing.T) {
	recoverable := []Kind{Codec, Handshake, IOTransient}
	for _, k := range recoverable {
		if !Recoverable(New(k, "op", fmt.Errorf("x"))) {
			t.Errorf("Recoverable(%v) = false, want true", k)
		}
	}

	fatal := []Kind{TrackerFailure, IntegrityMismatch, Fatal}
	for _, k := range fatal {
		if Recoverable(New(k, "op", fmt.Errorf("x"))) {
			t.Errorf("Recoverable(%v) = true, want false", k)
		}
	}
}

func TestRecoverableFalseForPlainError(t *testing.T) {
	if Recoverable(fmt.Errorf("plain")) {
		t.Error("Recoverable on a non-*Error should report false")
	}
}
