package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatal(t *testing.T) {
	base := errors.New("boom")
	if IsFatal(base) {
		t.Fatalf("plain error must not be fatal")
	}
	if IsFatal(NewRecoverable("load", "bad archive", base)) {
		t.Fatalf("recoverable error reported as fatal")
	}
	fatal := NewFatal("template", "cannot build", base)
	if !IsFatal(fatal) {
		t.Fatalf("expected fatal")
	}
	if !IsFatal(fmt.Errorf("run: %w", fatal)) {
		t.Fatalf("wrapped fatal error lost its severity")
	}
	if !IsFatal(NewRecoverable("outer", "wrapping", fatal)) {
		t.Fatalf("fatal cause below a recoverable wrapper must still be fatal")
	}
	if !errors.Is(fatal, base) {
		t.Fatalf("unwrap chain broken")
	}
}

func TestAppErrorMessage(t *testing.T) {
	err := NewRecoverable("load", "missing", nil)
	if err.Error() != "load: missing" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	wrapped := NewFatal("template", "cannot build", errors.New("no bins"))
	if wrapped.Error() != "template: cannot build: no bins" {
		t.Fatalf("unexpected message %q", wrapped.Error())
	}
}
