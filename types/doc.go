// Package types defines the value kinds, types and Type Signatures kernels are
// specialized for.
//
// A Signature is derived deterministically from call arguments with SignatureOf
// and used as a cache key through Signature.Key. Two signatures that list the
// same types always produce the same key; array types include their rank and
// memory layout so specializations for different shapes never collide.
//
// Promote implements the binary promotion rules shared by the interpreter and the
// compiler, so both paths agree on the type of every intermediate value.
package types
