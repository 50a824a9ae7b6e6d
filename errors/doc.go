// Package errors provides structured error types for the wasm-kernels library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the kernel name, the Type Signature being specialized, a
// position inside the kernel source and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSpecialize, errors.KindUnsupported).
//		Kernel("integrate").
//		Signature("(float64, float64, int64)").
//		Detail("print is not supported in compiled kernels").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Unsupported(errors.PhaseSpecialize, "uint8 arguments")
//	err := errors.SignatureMismatch("add", "(float64, float64)", "(int64, int64)")
//
// Sentinels match by Kind regardless of phase:
//
//	if errors.Is(err, errors.ErrUnsupportedSpecialization) {
//		// fall back to the interpreter
//	}
//
// Errors raised by a kernel body (panic("...")) are reported as *RaiseError and are
// never wrapped by the cache, so callers see the same value from both paths.
package errors
