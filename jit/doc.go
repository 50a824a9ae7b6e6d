// Package jit is the specializing kernel cache.
//
// A Cache maps (kernel, Type Signature) to a compiled specialization. The
// first call of a kernel with a new signature compiles it through a Backend;
// later calls with the same argument types reuse the stored result:
//
//	e, _ := engine.New(ctx, nil)
//	cache := jit.New(jit.Wasm(compiler.New(e)))
//	k, _ := lib.Kernel("add")
//	cache.Invoke(ctx, k, 2, 3)     // compiles add(int64, int64)
//	cache.Invoke(ctx, k, 4, 5)     // reuses it
//	cache.Invoke(ctx, k, 2.5, 0.5) // compiles add(float64, float64)
//
// Compilation runs outside any lock. Concurrent misses on one key share a
// single compilation unless WithSingleflight(false) is given, in which case
// redundant results are discarded and the first stored entry wins.
//
// A kernel the backend cannot compile for a signature yields an error
// matching errors.ErrUnsupportedSpecialization and is not cached. The caller
// may then run the interpreted form with InvokeInterpreted, or use
// InvokeWithFallback. Errors raised by the kernel body pass through both
// paths unchanged and never evict entries.
//
// Register compiles declared signatures eagerly and returns a sealed Handle
// that accepts only arguments convertible to one of them. A fully declared
// kernel the backend rejects is registered unsealed instead.
//
// NewObject binds an instance of a kernel class to its method kernels.
package jit
