// Package corelib is the standard native-function library every Ace
// program gets for free: array/string helpers, thread spawning, and
// dynamic native-library loading, all wired to the vm.NativeFunc ABI
// described by vm.Params.
package corelib

import (
	"fmt"

	"ace/vm"
)

// Install registers every built-in native into state's registry.
// program is the bytecode buffer spawn_thread launches new threads
// against - every spawned thread runs the same program, just starting
// from a different entry Function value.
func Install(state *vm.VMState, program []byte) {
	r := state.Natives
	r.Register("len", nativeLen(state))
	r.Register("array_push", nativeArrayPush(state))
	r.Register("array_pop", nativeArrayPop(state))
	r.Register("to_string", nativeToString(state))
	r.Register("prompt", nativePrompt(state))
	r.Register("spawn_thread", nativeSpawnThread(state, program))
	r.Register("load_library", nativeLoadLibrary(state))
	r.Register("load_function", nativeLoadFunction(state))
}

func argAt(p *vm.Params, i int) vm.Value {
	if i < 0 || i >= len(p.Args) {
		return vm.Null()
	}
	return *p.Args[i]
}

func nativeLen(state *vm.VMState) vm.NativeFunc {
	return func(p *vm.Params) (vm.Value, error) {
		v := argAt(p, 0)
		if v.Kind() != vm.KindHeapPointer || v.IsNull() {
			return vm.Value{}, fmt.Errorf("len: argument is null")
		}
		node := state.Heap.Get(v.HeapIndex())
		if node == nil {
			return vm.Value{}, fmt.Errorf("len: dangling heap reference")
		}
		switch node.Kind() {
		case vm.HeapArray:
			return vm.I32(int32(len(node.Array().Elems))), nil
		case vm.HeapString:
			return vm.I32(int32(len(node.String()))), nil
		default:
			return vm.Value{}, fmt.Errorf("len: argument has no length")
		}
	}
}

func nativeArrayPush(state *vm.VMState) vm.NativeFunc {
	return func(p *vm.Params) (vm.Value, error) {
		arr := argAt(p, 0)
		val := argAt(p, 1)
		if arr.Kind() != vm.KindHeapPointer || arr.IsNull() {
			return vm.Value{}, fmt.Errorf("array_push: argument is null")
		}
		node := state.Heap.Get(arr.HeapIndex())
		if node == nil || node.Kind() != vm.HeapArray {
			return vm.Value{}, fmt.Errorf("array_push: argument is not an array")
		}
		node.Array().Elems = append(node.Array().Elems, val)
		return arr, nil
	}
}

func nativeArrayPop(state *vm.VMState) vm.NativeFunc {
	return func(p *vm.Params) (vm.Value, error) {
		arr := argAt(p, 0)
		if arr.Kind() != vm.KindHeapPointer || arr.IsNull() {
			return vm.Value{}, fmt.Errorf("array_pop: argument is null")
		}
		node := state.Heap.Get(arr.HeapIndex())
		if node == nil || node.Kind() != vm.HeapArray {
			return vm.Value{}, fmt.Errorf("array_pop: argument is not an array")
		}
		elems := node.Array().Elems
		if len(elems) == 0 {
			return vm.Null(), nil
		}
		last := elems[len(elems)-1]
		node.Array().Elems = elems[:len(elems)-1]
		return last, nil
	}
}

func nativeToString(state *vm.VMState) vm.NativeFunc {
	return func(p *vm.Params) (vm.Value, error) {
		v := argAt(p, 0)
		s := v.String(state.Heap)
		idx, ok := state.AllocString(p.Handler.Thread, s)
		if !ok {
			return vm.Value{}, fmt.Errorf("to_string: heap allocation failed")
		}
		return vm.HeapPointer(idx), nil
	}
}

// nativePrompt is a suspension point: it blocks on a line of stdin,
// the only form of I/O wait the dispatch loop ever performs (see
// the concurrency notes in vm.Dispatcher).
func nativePrompt(state *vm.VMState) vm.NativeFunc {
	return func(p *vm.Params) (vm.Value, error) {
		line, err := state.Stdin.ReadString('\n')
		if err != nil && line == "" {
			return vm.Value{}, fmt.Errorf("prompt: %w", err)
		}
		for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
			line = line[:len(line)-1]
		}
		idx, ok := state.AllocString(p.Handler.Thread, line)
		if !ok {
			return vm.Value{}, fmt.Errorf("prompt: heap allocation failed")
		}
		return vm.HeapPointer(idx), nil
	}
}

func nativeSpawnThread(state *vm.VMState, program []byte) vm.NativeFunc {
	return func(p *vm.Params) (vm.Value, error) {
		if len(p.Args) == 0 {
			return vm.Value{}, fmt.Errorf("spawn_thread: expected a function as the first argument")
		}
		entry := argAt(p, 0)
		if entry.Kind() != vm.KindFunction {
			return vm.Value{}, fmt.Errorf("spawn_thread: first argument must be a function")
		}
		args := make([]vm.Value, 0, len(p.Args)-1)
		for i := 1; i < len(p.Args); i++ {
			args = append(args, argAt(p, i))
		}
		id, err := state.SpawnThread(program, entry, args)
		if err != nil {
			return vm.Value{}, fmt.Errorf("spawn_thread: %w", err)
		}
		return vm.I32(int32(id)), nil
	}
}

func nativeLoadLibrary(state *vm.VMState) vm.NativeFunc {
	return func(p *vm.Params) (vm.Value, error) {
		pathVal := argAt(p, 0)
		if pathVal.Kind() != vm.KindHeapPointer || pathVal.IsNull() {
			return vm.Value{}, fmt.Errorf("load_library: path is null")
		}
		pathNode := state.Heap.Get(pathVal.HeapIndex())
		if pathNode == nil || pathNode.Kind() != vm.HeapString {
			return vm.Value{}, fmt.Errorf("load_library: path must be a string")
		}
		lib, err := vm.LoadLibrary(pathNode.String())
		if err != nil {
			return vm.Value{}, err
		}
		idx, ok := state.AllocNativeLibrary(p.Handler.Thread, lib)
		if !ok {
			return vm.Value{}, fmt.Errorf("load_library: heap allocation failed")
		}
		return vm.HeapPointer(idx), nil
	}
}

func nativeLoadFunction(state *vm.VMState) vm.NativeFunc {
	return func(p *vm.Params) (vm.Value, error) {
		libVal := argAt(p, 0)
		nameVal := argAt(p, 1)
		if libVal.Kind() != vm.KindHeapPointer || libVal.IsNull() {
			return vm.Value{}, fmt.Errorf("load_function: library handle is null")
		}
		libNode := state.Heap.Get(libVal.HeapIndex())
		if libNode == nil || libNode.Kind() != vm.HeapNativeLibrary {
			return vm.Value{}, fmt.Errorf("load_function: first argument is not a library handle")
		}
		if nameVal.Kind() != vm.KindHeapPointer || nameVal.IsNull() {
			return vm.Value{}, fmt.Errorf("load_function: name is null")
		}
		nameNode := state.Heap.Get(nameVal.HeapIndex())
		if nameNode == nil || nameNode.Kind() != vm.HeapString {
			return vm.Value{}, fmt.Errorf("load_function: name must be a string")
		}
		fn, err := vm.LoadFunction(libNode.NativeLibrary(), nameNode.String())
		if err != nil {
			return vm.Value{}, err
		}
		return vm.Native(fn), nil
	}
}
