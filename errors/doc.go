// Package errors provides structured error types for the native call bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries context: argument path, Go/native type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Path("args", "2").
//		GoType("string").
//		NativeType("int32").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseEncode, path, "string", "int32")
//	err := errors.Overflow(errors.PhaseEncode, path, int64(1)<<40, "int32")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
