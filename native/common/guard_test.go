package common

import (
	"errors"
	"testing"
)

func TestGuardStaticPauses(t *testing.T) {
	pauses := NewStaticPauses(" Lending ", "")
	if err := Guard(pauses, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(pauses, "bank"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("nil view must not pause: %v", err)
	}
}
