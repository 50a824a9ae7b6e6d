// Package wasmkernels compiles numeric Go kernels to WebAssembly once per
// argument type signature and caches the result.
//
// A kernel is a plain Go function written in a small subset of the language.
// Calling it through the cache derives a type signature from the arguments,
// compiles a specialization for that signature on first use and reuses it
// afterwards. Kernels the compiler cannot handle run in the interpreter.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmkernels/         Root package with core Memory and Allocator interfaces
//	├── runtime/         High-level API: configuration, loading, invocation
//	├── jit/             Specializing kernel cache, registration handles
//	├── compiler/        Lowering of typed kernels to WebAssembly modules
//	├── interp/          Tree-walking interpreter for any kernel
//	├── typing/          Type inference for a kernel and a signature
//	├── kernel/          Parsing of kernel libraries
//	├── types/           Kinds, types, signatures, promotion and casts
//	├── array/           N-dimensional array operands
//	├── engine/          wazero integration, host module, linear memory
//	├── wasm/            WASM binary encoding primitives
//	├── native/          Host routines calling compiled callbacks
//	├── vectorize/       Element-wise functions built from scalar kernels
//	├── numexpr/         Bulk expression evaluation over arrays
//	├── metrics/         Prometheus collector for the cache
//	├── config/          YAML configuration and logger setup
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	_, err = rt.LoadSource(ctx, `func add(a, b any) any { return a + b }`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := rt.Invoke(ctx, "add", 2, 3)     // compiles add(int64, int64)
//	res, err = rt.Invoke(ctx, "add", 2.5, 0.5)  // compiles add(float64, float64)
//	res, err = rt.Invoke(ctx, "add", 7, 8)      // cache hit
//
// # Errors
//
// Errors are *errors.Error values matched with errors.Is:
//
//   - ErrUnsupportedSpecialization: the kernel cannot be compiled for the
//     argument types; the interpreted path still works
//   - ErrSignatureMismatch: a specialization was called with arguments of
//     other types
//   - ErrNativeContract: a callback does not have the signature a host
//     routine requires
//
// Errors raised by a kernel body with panic are *errors.RaiseError on both
// paths.
//
// # Thread Safety
//
// The cache, the runtime and handles are safe for concurrent use. Concurrent
// first calls with one signature compile once. A specialization serializes
// its own calls.
//
// # Memory Model
//
// Every specialization owns one instance and its linear memory. Array
// arguments are copied into an arena before a call and arrays the kernel
// writes are copied back. The arena is reset at the start of each call.
package wasmkernels
