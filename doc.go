// Package nativeruntime lets script code work with native code in the same
// process: call native functions through declared signatures, expose
// script functions as native callbacks, and redirect native control flow.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	nativeruntime/     Root package (documentation only)
//	├── abi/           Native type set, calling conventions, argument layout
//	├── marshal/       Script value <-> native bytes conversion
//	├── asm/           x86-64 emitter, jump encoding, instruction lengths
//	├── memory/        Page allocation, protection and patching
//	├── jit/           Outbound call stubs and inbound callback stubs
//	├── hook/          Jump patches, import cells, vtable slots
//	├── imports/       Loaded modules and their import tables
//	├── script/        Script runtime interfaces; script/wasm backs them with wazero
//	├── engine/        Owner of calls, callbacks, hooks and allocations
//	├── host/          The "nms" host module for WebAssembly guests
//	├── config/        nms.yaml loading
//	├── logging/       zap logger construction
//	├── errors/        Structured error types
//	└── cmd/nms/       Command line runner
//
// # Quick Start
//
// Call a native function:
//
//	eng := engine.New(engine.Options{})
//	defer eng.Close()
//
//	sig, _ := eng.Signature("(cstr) -> u64")
//	strlen, _ := eng.NewNativeCall(addr, sig)
//	n, err := strlen.Call(script.String("hello\x00"))
//
// Hook it with a script function:
//
//	cb, _ := eng.NewCallback(fn, rt, sig)
//	orig, _ := cb.Hook(addr)
//	defer cb.Unhook()
//
// # Platforms
//
// Stubs are generated for x86-64 with the Win64 or System V convention.
// Executing them needs linux/amd64 or windows/amd64 with cgo enabled.
package nativeruntime
