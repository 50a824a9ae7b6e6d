// Package compiler specializes kernels to WebAssembly.
//
// A specialization covers a kernel and every kernel it calls, inferred for one
// Type Signature. Each kernel becomes one function of a single module whose
// entry is exported as "kernel" together with its linear memory.
//
// Calling convention:
//
//	scalar parameter   one value: bool and int32 as i32, int64 as i64,
//	                   float32 as f32, float64 as f64
//	array parameter    base address (i32) followed by one i32 per dimension
//	trailing i32       call depth, 0 from the host
//
// Arrays are C-contiguous; bool elements take one byte. Every index is
// checked against its dimension. Runtime errors call the host import
// kernel.raise with a message code and trap, so compiled code raises the
// same errors as the interpreter.
//
// Compiled code supports bool, int32, int64, float32 and float64 values and
// arrays of them. Other kinds, print and println, panics with computed
// messages, and array-valued locals or results are rejected with
// errors.ErrUnsupportedSpecialization.
package compiler
