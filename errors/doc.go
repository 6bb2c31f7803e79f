// Package errors provides structured error types for the native runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the argument path, script and native type names, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindTypeMismatch).
//		Path("arg1").
//		ScriptType("string").
//		NativeType("u32").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for the failure taxonomy:
//
//	err := errors.Construction("void is not a valid argument type")
//	err := errors.Arity(2, 3)
//	err := errors.AlreadyHooked(addr)
//
// Kind-only sentinels (ErrConstruction, ErrArity, ErrAlreadyHooked, ...) match
// any phase through errors.Is.
package errors
