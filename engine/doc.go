// Package engine runs compiled kernels on wazero.
//
// # Architecture
//
// The engine package provides three main types:
//
//	Engine   - Owns a wazero runtime and the host module
//	Module   - A compiled WebAssembly module, can create instances
//	Instance - An instantiated module with exports and linear memory
//
// # Host Module
//
// Every engine instantiates one host module named "kernel" that compiled
// code imports from:
//
//	raise(code i32)            records a message code, then the caller traps
//	math_<Name>(f64...) f64    math functions without a WebAssembly instruction
//
// The raise code travels in the call context, so concurrent calls on
// different instances never observe each other's codes.
//
// # Traps
//
// Instance.Call reports every trap as *Trap. Code is the raise code when the
// kernel raised explicitly; otherwise Message carries the kernel runtime
// error matching the trap, if any:
//
//	wazero trap                   Message
//	─────────────────────────────────────────────────
//	integer divide by zero        integer divide by zero
//	integer overflow              integer overflow
//	out of bounds memory access   index out of range
//	stack overflow                stack overflow
//
// # Memory
//
// Memory implements wasmkernels.Memory over the exported linear memory.
// Arena implements wasmkernels.Allocator as a bump allocator that grows the
// memory on demand; operands of one call are released together with Reset.
//
// # Configuration
//
//	cfg := &engine.Config{
//	    MemoryLimitPages:    1024,             // 64MB per instance
//	    CompilationCacheDir: "/tmp/kernels",   // reuse native code across runs
//	    CloseOnContextDone:  true,             // interrupt on cancellation
//	}
//	e, err := engine.New(ctx, cfg)
package engine
