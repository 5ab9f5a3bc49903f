package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "link mismatch",
			err: &Error{
				Phase:    PhaseLink,
				Kind:     KindLinkMismatch,
				Index:    2,
				Expected: "func (i32) -> (i32)",
				Actual:   "memory",
			},
			contains: []string{"[link]", "link_mismatch", "index 2", "func (i32) -> (i32)", "memory"},
		},
		{
			name: "unresolved import",
			err: &Error{
				Phase:  PhaseLink,
				Kind:   KindUnresolvedImport,
				Module: "env",
				Name:   "missing_fn",
				Index:  0,
			},
			contains: []string{"[link]", "unresolved_import", "env.missing_fn", "index 0"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseCall,
				Kind:  KindTrap,
				Index: -1,
			},
			contains: []string{"[call]", "trap"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindIO,
				Index:  -1,
				Detail: "read \"mod.wasmu\"",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "io", "mod.wasmu", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindFormat,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseLink,
		Kind:  KindLinkMismatch,
		Index: 1,
	}

	if !err.Is(&Error{Phase: PhaseLink, Kind: KindLinkMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseCall, Kind: KindLinkMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseLink, Kind: KindUnresolvedImport}) {
		t.Error("Is should not match different kind")
	}

	// Kind-only sentinel matches any phase.
	if !errors.Is(err, &Error{Kind: KindLinkMismatch}) {
		t.Error("kind-only sentinel should match")
	}
	// Phase-only sentinel matches any kind.
	if !errors.Is(err, &Error{Phase: PhaseLink}) {
		t.Error("phase-only sentinel should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLink, KindLinkMismatch).
		Module("wasi_snapshot_preview1").
		Name("fd_write").
		Index(3).
		Expected("func (i32, i32, i32, i32) -> (i32)").
		Actual("global i64").
		Cause(cause).
		Detail("slot %d rejected", 3).
		Build()

	if err.Phase != PhaseLink {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLink)
	}
	if err.Kind != KindLinkMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindLinkMismatch)
	}
	if err.Module != "wasi_snapshot_preview1" || err.Name != "fd_write" {
		t.Errorf("Module=%v Name=%v", err.Module, err.Name)
	}
	if err.Index != 3 {
		t.Errorf("Index = %d, want 3", err.Index)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "slot 3 rejected" {
		t.Errorf("Detail = %v, want 'slot 3 rejected'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("UnsupportedBackend", func(t *testing.T) {
		err := UnsupportedBackend("llvm")
		if err.Phase != PhaseConfig || err.Kind != KindUnsupportedBackend {
			t.Errorf("Phase=%v Kind=%v", err.Phase, err.Kind)
		}
		if !strings.Contains(err.Detail, "llvm") {
			t.Errorf("Detail = %v, should name the backend", err.Detail)
		}
	})

	t.Run("IO", func(t *testing.T) {
		cause := errors.New("no such file")
		err := IO("missing.wasmu", cause)
		if err.Kind != KindIO {
			t.Errorf("Kind = %v, want %v", err.Kind, KindIO)
		}
		if !errors.Is(err, cause) {
			t.Error("cause should unwrap")
		}
	})

	t.Run("UnresolvedImport", func(t *testing.T) {
		err := UnresolvedImport("env", "host_fn", 4)
		if err.Module != "env" || err.Name != "host_fn" || err.Index != 4 {
			t.Errorf("fields = %v/%v/%d", err.Module, err.Name, err.Index)
		}
	})

	t.Run("LinkLength", func(t *testing.T) {
		err := LinkLength(5, 3)
		if err.Index != -1 {
			t.Errorf("Index = %d, want -1", err.Index)
		}
		if !strings.Contains(err.Expected, "5") || !strings.Contains(err.Actual, "3") {
			t.Errorf("Expected=%v Actual=%v", err.Expected, err.Actual)
		}
	})

	t.Run("NotBound", func(t *testing.T) {
		err := NotBound("fd_write")
		if err.Phase != PhaseWASI || err.Kind != KindNotBound {
			t.Errorf("Phase=%v Kind=%v", err.Phase, err.Kind)
		}
	})

	t.Run("Exit", func(t *testing.T) {
		err := Exit(42)
		if err.ExitCode != 42 {
			t.Errorf("ExitCode = %d, want 42", err.ExitCode)
		}
		if !strings.Contains(err.Error(), "42") {
			t.Errorf("Error() = %v, should contain the code", err.Error())
		}
	})

	t.Run("AlreadyRunning", func(t *testing.T) {
		err := AlreadyRunning("_start")
		if err.Kind != KindAlreadyRunning || err.Name != "_start" {
			t.Errorf("Kind=%v Name=%v", err.Kind, err.Name)
		}
	})
}

func TestClassificationHelpers(t *testing.T) {
	t.Run("IsTrap", func(t *testing.T) {
		if !IsTrap(Trap("unreachable", nil)) {
			t.Error("Trap should classify as trap")
		}
		if !IsTrap(Canceled(nil)) {
			t.Error("Canceled should classify as trap")
		}
		if IsTrap(Exit(1)) {
			t.Error("Exit should not classify as trap")
		}
		if IsTrap(errors.New("plain")) {
			t.Error("plain error should not classify as trap")
		}
	})

	t.Run("IsCanceled", func(t *testing.T) {
		if !IsCanceled(Canceled(nil)) {
			t.Error("Canceled should classify as canceled")
		}
		if IsCanceled(Trap("unreachable", nil)) {
			t.Error("plain trap should not classify as canceled")
		}
	})

	t.Run("AsExit", func(t *testing.T) {
		code, ok := AsExit(Exit(7))
		if !ok || code != 7 {
			t.Errorf("AsExit = %d,%v, want 7,true", code, ok)
		}
		if _, ok := AsExit(Trap("boom", nil)); ok {
			t.Error("AsExit should not match a trap")
		}
	})

	t.Run("AsExit wrapped", func(t *testing.T) {
		wrapped := Wrap(PhaseCall, KindTrap, Exit(3), "call failed")
		// Wrapping an exit inside another error still exposes the code.
		code, ok := AsExit(wrapped)
		if !ok || code != 3 {
			t.Errorf("AsExit = %d,%v, want 3,true", code, ok)
		}
	})

	t.Run("AsLink", func(t *testing.T) {
		le, ok := AsLink(LinkMismatch(2, "func", "table"))
		if !ok || le.Index != 2 {
			t.Errorf("AsLink = %v,%v", le, ok)
		}
		if _, ok := AsLink(Trap("boom", nil)); ok {
			t.Error("AsLink should not match a trap")
		}
	})
}
