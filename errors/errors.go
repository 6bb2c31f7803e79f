package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConstruct Phase = "construct" // signature and layout validation
	PhaseCodegen   Phase = "codegen"   // stub compilation
	PhaseCall      Phase = "call"      // argument marshaling and invocation
	PhaseMemory    Phase = "memory"    // allocation and protection changes
	PhaseHook      Phase = "hook"      // redirection install and restore
	PhaseScript    Phase = "script"    // script runtime execution
	PhaseLocate    Phase = "locate"    // module and import lookup
	PhaseLoad      Phase = "load"      // script module loading
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindConstruction   Kind = "construction"
	KindCodegen        Kind = "codegen"
	KindArity          Kind = "arity"
	KindProtection     Kind = "protection"
	KindAlreadyHooked  Kind = "already_hooked"
	KindScriptFault    Kind = "script_fault"
	KindTypeMismatch   Kind = "type_mismatch"
	KindOverflow       Kind = "overflow"
	KindInvalidData    Kind = "invalid_data"
	KindAllocation     Kind = "allocation"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindUnsupported    Kind = "unsupported"
	KindClosed         Kind = "closed"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	ScriptType string
	NativeType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	hasTypes := e.ScriptType != "" || e.NativeType != ""
	if hasTypes {
		b.WriteString(": ")
		switch {
		case e.ScriptType != "" && e.NativeType != "":
			b.WriteString("script value ")
			b.WriteString(e.ScriptType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		case e.ScriptType != "":
			b.WriteString("script value ")
			b.WriteString(e.ScriptType)
		default:
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Detail != "" {
		if hasTypes {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Sentinels for errors.Is checks against the failure taxonomy.
var (
	ErrConstruction  = &Error{Kind: KindConstruction}
	ErrCodegen       = &Error{Kind: KindCodegen}
	ErrArity         = &Error{Kind: KindArity}
	ErrProtection    = &Error{Kind: KindProtection}
	ErrAlreadyHooked = &Error{Kind: KindAlreadyHooked}
	ErrScriptFault   = &Error{Kind: KindScriptFault}
	ErrClosed        = &Error{Kind: KindClosed}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the argument path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// ScriptType sets the script value kind name
func (b *Builder) ScriptType(t string) *Builder {
	b.err.ScriptType = t
	return b
}

// NativeType sets the native value type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Construction creates a signature or layout validation error
func Construction(detail string, args ...any) *Error {
	return New(PhaseConstruct, KindConstruction).Detail(detail, args...).Build()
}

// Codegen creates a stub compilation error
func Codegen(cause error, detail string) *Error {
	return &Error{
		Phase:  PhaseCodegen,
		Kind:   KindCodegen,
		Detail: detail,
		Cause:  cause,
	}
}

// Arity creates an argument count mismatch error
func Arity(want, got int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindArity,
		Detail: fmt.Sprintf("expected %d arguments, got %d", want, got),
		Value:  got,
	}
}

// Protection creates a memory protection change failure
func Protection(addr uintptr, size int, cause error) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindProtection,
		Detail: fmt.Sprintf("change protection of %d bytes at %#x", size, addr),
		Cause:  cause,
		Value:  addr,
	}
}

// AlreadyHooked creates an error for a second install on a live site
func AlreadyHooked(site uintptr) *Error {
	return &Error{
		Phase:  PhaseHook,
		Kind:   KindAlreadyHooked,
		Detail: fmt.Sprintf("site %#x is already hooked", site),
		Value:  site,
	}
}

// ScriptFault creates an error for a script callable that raised
func ScriptFault(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseScript,
		Kind:   KindScriptFault,
		Path:   []string{name},
		Detail: "script callable raised",
		Cause:  cause,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, scriptType, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		ScriptType: scriptType,
		NativeType: nativeType,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Path:       path,
		NativeType: targetType,
		Detail:     fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:      value,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size int, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// NotFound creates a lookup failure error
func NotFound(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: what,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Closed creates an error for use after release
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
