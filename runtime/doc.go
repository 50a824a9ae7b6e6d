// Package runtime wires the kernel cache, the WebAssembly engine, the
// interpreter and the expression evaluator from one configuration.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	_, err = rt.LoadSource(ctx, `
//	func dot(a, b []float64) float64 {
//		s := 0.0
//		for i := range a {
//			s += a[i] * b[i]
//		}
//		return s
//	}`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	x := array.MustFromSlice([]float64{1, 2, 3})
//	res, err := rt.Invoke(ctx, "dot", x, x)
//	fmt.Println(res) // 14
//
// # Backends
//
// With cache.backend set to "wasm" (the default) kernels are compiled to
// WebAssembly and run on wazero. With "interp" every specialization is the
// type-inferred kernel run by the interpreter; nothing is compiled, but
// signatures are still checked and cached the same way.
//
// # Loading Kernels
//
// Libraries listed in the configuration are loaded by New. Each kernel
// becomes a jit.Handle:
//
//	kernels:
//	  - path: stats.go
//	    signatures:
//	      mean: ["float64(float64[:])", "float32(float32[:])"]
//
// A kernel with listed signatures is compiled for each of them at load and
// sealed: calls whose arguments match none of them fail with
// errors.ErrUnsupportedSpecialization. A kernel whose parameters are all
// typed is compiled for that signature. Other kernels compile on first call,
// once per distinct argument signature.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use.
package runtime
