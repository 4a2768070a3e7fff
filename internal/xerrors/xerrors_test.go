package xerrors

import (
	"errors"
	"testing"
)

func TestWrap_NilPassthrough(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
	if WithStack(nil) != nil {
		t.Error("WithStack(nil) should be nil")
	}
	if EnsureTrace(nil) != nil {
		t.Error("EnsureTrace(nil) should be nil")
	}
}

func TestWrap_MessageAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "loading config")
	if err.Error() != "loading config: boom" {
		t.Errorf("message: %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error lost its cause")
	}
	type hasPC interface{ PC() uintptr }
	var hp hasPC
	if !errors.As(err, &hp) || hp.PC() == 0 {
		t.Error("wrap site PC not captured")
	}
}

func TestNew_CapturesStack(t *testing.T) {
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if !errors.As(New("boom"), &hs) || len(hs.StackPCs()) == 0 {
		t.Error("New did not capture a stack")
	}
}

func TestEnsureTrace_NoDoubleCapture(t *testing.T) {
	first := New("boom")
	second := EnsureTrace(first)
	if first != second {
		t.Error("EnsureTrace re-wrapped an already stacked error")
	}

	plain := errors.New("plain")
	traced := EnsureTrace(plain)
	if traced == plain {
		t.Error("EnsureTrace did not stack a plain error")
	}
	if !errors.Is(traced, plain) {
		t.Error("EnsureTrace lost the cause")
	}
}
