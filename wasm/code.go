package wasm

import (
	"github.com/wippyai/wasm-kernels/wasm/internal/binary"
)

// Code accumulates the instructions of one function body. It tracks the
// nesting of structured control so branch targets can be given as labels.
type Code struct {
	w      *binary.Writer
	labels []int
	next   int
}

// NewCode creates an empty instruction sequence.
func NewCode() *Code {
	return &Code{w: binary.NewWriter()}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte { return c.w.Bytes() }

// Len returns the number of bytes written.
func (c *Code) Len() int { return c.w.Len() }

// Depth returns the number of open blocks.
func (c *Code) Depth() int { return len(c.labels) }

// Op writes opcodes without immediates.
func (c *Code) Op(ops ...byte) {
	for _, op := range ops {
		c.w.Byte(op)
	}
}

// Label identifies an open block, loop or if for branching.
type Label int

func (c *Code) open(op byte, bt byte) Label {
	c.w.Byte(op)
	c.w.Byte(bt)
	c.next++
	c.labels = append(c.labels, c.next)
	return Label(c.next)
}

// Block opens a block with the given block type.
func (c *Code) Block(bt byte) Label { return c.open(OpBlock, bt) }

// Loop opens a loop with the given block type.
func (c *Code) Loop(bt byte) Label { return c.open(OpLoop, bt) }

// If opens an if with the given block type, consuming an i32 condition.
func (c *Code) If(bt byte) Label { return c.open(OpIf, bt) }

// Else starts the else arm of the innermost if.
func (c *Code) Else() { c.w.Byte(OpElse) }

// End closes the innermost block. With no open block it ends the function.
func (c *Code) End() {
	if n := len(c.labels); n > 0 {
		c.labels = c.labels[:n-1]
	}
	c.w.Byte(OpEnd)
}

func (c *Code) depth(l Label) uint32 {
	for i := len(c.labels) - 1; i >= 0; i-- {
		if c.labels[i] == int(l) {
			return uint32(len(c.labels) - 1 - i)
		}
	}
	panic("wasm: branch to closed label")
}

// Br branches to l.
func (c *Code) Br(l Label) {
	c.w.Byte(OpBr)
	c.w.WriteU32(c.depth(l))
}

// BrIf branches to l if the i32 on the stack is non-zero.
func (c *Code) BrIf(l Label) {
	c.w.Byte(OpBrIf)
	c.w.WriteU32(c.depth(l))
}

// Call calls the function with index fn.
func (c *Code) Call(fn uint32) {
	c.w.Byte(OpCall)
	c.w.WriteU32(fn)
}

// LocalGet pushes local i.
func (c *Code) LocalGet(i uint32) {
	c.w.Byte(OpLocalGet)
	c.w.WriteU32(i)
}

// LocalSet pops into local i.
func (c *Code) LocalSet(i uint32) {
	c.w.Byte(OpLocalSet)
	c.w.WriteU32(i)
}

// LocalTee stores into local i and keeps the value.
func (c *Code) LocalTee(i uint32) {
	c.w.Byte(OpLocalTee)
	c.w.WriteU32(i)
}

// GlobalGet pushes global i.
func (c *Code) GlobalGet(i uint32) {
	c.w.Byte(OpGlobalGet)
	c.w.WriteU32(i)
}

// GlobalSet pops into global i.
func (c *Code) GlobalSet(i uint32) {
	c.w.Byte(OpGlobalSet)
	c.w.WriteU32(i)
}

// I32Const pushes an i32 constant.
func (c *Code) I32Const(v int32) {
	c.w.Byte(OpI32Const)
	c.w.WriteS64(int64(v))
}

// I64Const pushes an i64 constant.
func (c *Code) I64Const(v int64) {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
}

// F32Const pushes an f32 constant.
func (c *Code) F32Const(v float32) {
	c.w.Byte(OpF32Const)
	c.w.WriteF32(v)
}

// F64Const pushes an f64 constant.
func (c *Code) F64Const(v float64) {
	c.w.Byte(OpF64Const)
	c.w.WriteF64(v)
}

// Mem writes a load or store with the given alignment exponent and offset.
func (c *Code) Mem(op byte, align, offset uint32) {
	c.w.Byte(op)
	c.w.WriteU32(align)
	c.w.WriteU32(offset)
}

// Misc writes a 0xFC-prefixed instruction.
func (c *Code) Misc(sub uint32) {
	c.w.Byte(OpPrefixMisc)
	c.w.WriteU32(sub)
}

// ConstExpr returns a constant initializer expression for a global.
func ConstExpr(t ValType, bits int64) []byte {
	c := NewCode()
	switch t {
	case ValI32:
		c.I32Const(int32(bits))
	default:
		c.I64Const(bits)
	}
	c.End()
	return c.Bytes()
}
