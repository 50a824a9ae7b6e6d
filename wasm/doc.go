// Package wasm builds WebAssembly binary modules.
//
// It covers the subset of the WebAssembly 2.0 core format that compiled
// kernels need: numeric value types, imported and declared functions, one
// linear memory, mutable globals and structured control flow, plus the
// saturating float to integer conversions of the non-trapping conversion
// proposal.
//
// # Building
//
// A Module collects types, imports and functions. Function indices count
// imports first:
//
//	m := &wasm.Module{}
//	sig := wasm.FuncType{Params: []wasm.ValType{wasm.ValF64, wasm.ValF64}, Results: []wasm.ValType{wasm.ValF64}}
//
//	code := wasm.NewCode()
//	code.LocalGet(0)
//	code.LocalGet(1)
//	code.Op(wasm.OpF64Add)
//	code.End()
//
//	fn := m.AddFunc(sig, wasm.FuncBody{Code: code.Bytes()})
//	m.Exports = append(m.Exports, wasm.Export{Name: "add", Kind: wasm.KindFunc, Idx: fn})
//	bin := m.Encode()
//
// # Control Flow
//
// Block, Loop and If return a Label. Br and BrIf take labels rather than
// relative depths; Code converts them using the current nesting:
//
//	done := code.Block(wasm.BlockVoid)
//	loop := code.Loop(wasm.BlockVoid)
//	...
//	code.BrIf(done)
//	code.Br(loop)
//	code.End()
//	code.End()
package wasm
