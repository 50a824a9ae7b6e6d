// Package kernel parses numeric kernels written in a small subset of Go.
//
// A kernel source file holds one or more function declarations:
//
//	import "math"
//
//	func f(x float64) float64 {
//		return (x*x*x - 3) * x
//	}
//
//	func integrate(a, b float64, n int) float64 {
//		dx := (b - a) / float64(n)
//		s := f(a) * dx / 2
//		for i := 1; i < n; i++ {
//			s += f(a+float64(i)*dx) * dx
//		}
//		return s + f(b)*dx/2
//	}
//
// Parameters declared as any take their type from the call site; a kernel
// whose parameters are all concrete has a declared signature and can be
// specialized eagerly. Slices ([]float64, [][]int32, ...) denote C-contiguous
// arrays. Variables are scoped to the whole function.
//
// Struct types declare classes. A method becomes a kernel named Type.method
// whose leading parameters are the fields:
//
//	type Bag struct {
//		value int32
//		array []float32
//	}
//
//	func (b *Bag) increment(val float32) int32 {
//		for i := range b.array {
//			b.array[i] += val
//		}
//		return b.value
//	}
//
// The package clause is optional. The only permitted import is math.
package kernel
