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
			name: "full error",
			err: &Error{
				Phase:      PhaseCall,
				Kind:       KindTypeMismatch,
				Path:       []string{"args", "1"},
				ScriptType: "string",
				NativeType: "u32",
				Detail:     "cannot convert",
			},
			contains: []string{"[call]", "type_mismatch", "args.1", "string", "u32", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseHook,
				Kind:  KindAlreadyHooked,
			},
			contains: []string{"[hook]", "already_hooked"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseMemory,
				Kind:   KindProtection,
				Detail: "mprotect",
				Cause:  errors.New("permission denied"),
			},
			contains: []string{"[memory]", "protection", "mprotect", "caused by", "permission denied"},
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
	err := Wrap(PhaseScript, KindScriptFault, cause, "raised")

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find cause in chain")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{Phase: PhaseCall, Kind: KindArity}

	if !err.Is(&Error{Phase: PhaseCall, Kind: KindArity}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseConstruct, Kind: KindArity}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseCall, Kind: KindCodegen}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrArity) {
		t.Error("kind-only sentinel should match any phase")
	}
	if errors.Is(err, ErrConstruction) {
		t.Error("sentinel of another kind should not match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseCall, KindTypeMismatch).
		Path("args", "0").
		ScriptType("bool").
		NativeType("f64").
		Value(true).
		Cause(cause).
		Detail("expected %s, got %s", "number", "bool").
		Build()

	if err.Phase != PhaseCall {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseCall)
	}
	if len(err.Path) != 2 || err.Path[0] != "args" {
		t.Errorf("Path = %v, want [args 0]", err.Path)
	}
	if err.ScriptType != "bool" || err.NativeType != "f64" {
		t.Errorf("ScriptType=%v NativeType=%v", err.ScriptType, err.NativeType)
	}
	if err.Value != true {
		t.Errorf("Value = %v, want true", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected number, got bool" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		kind  Kind
		phase Phase
	}{
		{"Construction", Construction("struct size %d", 0), KindConstruction, PhaseConstruct},
		{"Codegen", Codegen(errors.New("x"), "emit"), KindCodegen, PhaseCodegen},
		{"Arity", Arity(2, 3), KindArity, PhaseCall},
		{"Protection", Protection(0x1000, 5, errors.New("denied")), KindProtection, PhaseMemory},
		{"AlreadyHooked", AlreadyHooked(0x1000), KindAlreadyHooked, PhaseHook},
		{"ScriptFault", ScriptFault("cb", errors.New("boom")), KindScriptFault, PhaseScript},
		{"Overflow", Overflow(PhaseCall, nil, 300, "u8"), KindOverflow, PhaseCall},
		{"NotFound", NotFound(PhaseLocate, "puts"), KindNotFound, PhaseLocate},
		{"Closed", Closed(PhaseCall, "native call"), KindClosed, PhaseCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
		})
	}

	if d := Arity(2, 3).Detail; !strings.Contains(d, "2") || !strings.Contains(d, "3") {
		t.Errorf("Arity detail = %q", d)
	}
}
