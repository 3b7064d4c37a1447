package common

import (
	"errors"
	"strings"
	"testing"
)

type pauses map[string]bool

func (p pauses) IsPaused(module string) bool { return p[module] }

func TestGuardNamesPausedModule(t *testing.T) {
	view := pauses{"mortgage": true}
	err := Guard(view, " mortgage ")
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if !strings.HasSuffix(err.Error(), ": mortgage") {
		t.Fatalf("error does not name the module: %q", err)
	}
	if err := Guard(view, "registry"); err != nil {
		t.Fatalf("unpaused module blocked: %v", err)
	}
	if err := Guard(nil, "mortgage"); err != nil {
		t.Fatalf("nil view blocked: %v", err)
	}
	if err := Guard(view, ""); err != nil {
		t.Fatalf("blank module blocked: %v", err)
	}
}
