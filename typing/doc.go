// Package typing infers the types of a kernel's variables and expressions for
// one argument Type Signature.
//
// Variables are scoped to the whole kernel and may be assigned values of
// different numeric types; their type is the promotion of everything assigned
// to them, computed as a fixed point:
//
//	s := 0          // int64 alone
//	s += x[i]       // float64 when x is []float64, so s is float64
//
// Parameters and variables declared with var keep their declared type and
// assignments convert to it. Literal constants adopt the type of the operand
// they meet. The interpreter and the compiler both execute from the same Info,
// so they agree on every intermediate type.
package typing
