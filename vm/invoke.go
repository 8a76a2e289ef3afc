package vm

import "fmt"

var invokeMemberHash = FNV1("$invoke")

// Invoke is the unified call protocol every CALL opcode and every
// spawn_thread launch goes through. args are expected to already be
// pushed onto thread's stack, in call order, nargs deep. VM-level
// failures (bad arity, uncallable target) are reported by raising on
// thread.Exception, not by the returned error; the error return is
// reserved for invariants a malformed call site can't express as an
// ordinary exception (e.g. popping more arguments than are present).
func Invoke(s *VMState, thread *ExecutionThread, stream *BytecodeStream, target Value, nargs uint32) error {
	switch target.Kind() {
	case KindNativeFunction:
		return invokeNative(s, thread, target, nargs)

	case KindHeapPointer:
		if target.IsNull() {
			thread.Exception.Raise(ExcNotCallable, "call on null")
			return nil
		}
		node := s.Heap.Get(target.HeapIndex())
		if node == nil || node.Kind() != HeapObject {
			thread.Exception.Raise(ExcNotCallable, "value is not callable")
			return nil
		}
		idx, ok := resolveMemberIndexByHash(s, node, invokeMemberHash)
		if !ok {
			thread.Exception.Raise(ExcNotCallable, "object has no $invoke member")
			return nil
		}
		invokeTarget := node.Object().Members[idx].Value
		args, err := thread.Stack.PopN(int(nargs))
		if err != nil {
			return fmt.Errorf("invoke: shifting args for $invoke: %w", err)
		}
		if err := thread.Stack.Push(target); err != nil {
			return err
		}
		for _, a := range args {
			if err := thread.Stack.Push(a); err != nil {
				return err
			}
		}
		return Invoke(s, thread, stream, invokeTarget, nargs+1)

	case KindFunction:
		return invokeFunction(s, thread, stream, target, nargs)

	default:
		thread.Exception.Raise(ExcNotCallable, fmt.Sprintf("%s is not callable", target.TypeString()))
		return nil
	}
}

func resolveMemberIndexByHash(s *VMState, node *HeapValue, hash uint32) (int, bool) {
	typeNode := s.Heap.Get(node.Object().TypeIdx)
	if typeNode != nil && typeNode.TypeInfo() != nil {
		return typeNode.TypeInfo().indexForHash(hash)
	}
	for i, m := range node.Object().Members {
		if m.NameHash == hash {
			return i, true
		}
	}
	return 0, false
}

func invokeNative(s *VMState, thread *ExecutionThread, target Value, nargs uint32) error {
	argPtrs, err := thread.Stack.ArgPointers(int(nargs))
	if err != nil {
		return fmt.Errorf("invoke: native call arity: %w", err)
	}
	handler := &InstructionHandler{State: s, Thread: thread}
	params := &Params{Handler: handler, Args: argPtrs, NArgs: nargs}

	result, callErr := target.Native()(params)

	if _, err := thread.Stack.PopN(int(nargs)); err != nil {
		return fmt.Errorf("invoke: popping native call args: %w", err)
	}

	if callErr != nil {
		thread.Exception.Raise(ExcTypeError, callErr.Error())
		return nil
	}
	return thread.Stack.Push(result)
}

func invokeFunction(s *VMState, thread *ExecutionThread, stream *BytecodeStream, target Value, nargs uint32) error {
	fd := target.Function()
	declared := uint32(fd.NArgs)

	if fd.IsVariadic() {
		if declared == 0 || nargs < declared-1 {
			thread.Exception.Raise(ExcInvalidArgs, fmt.Sprintf("expected at least %d args, got %d", declared-1, nargs))
			return nil
		}
	} else if nargs != declared {
		thread.Exception.Raise(ExcInvalidArgs, fmt.Sprintf("expected %d args, got %d", declared, nargs))
		return nil
	}

	varargsPush := int32(0)
	if fd.IsVariadic() {
		extra := int(nargs - (declared - 1))
		elems, err := thread.Stack.PopN(extra)
		if err != nil {
			return fmt.Errorf("invoke: packing variadic args: %w", err)
		}
		idx, ok := s.AllocArray(thread, elems)
		if !ok {
			return nil
		}
		if err := thread.Stack.Push(HeapPointer(idx)); err != nil {
			return err
		}
		varargsPush = int32(extra) - 1
	}

	if err := thread.Stack.Push(FunctionCallMarker(stream.Position(), varargsPush)); err != nil {
		return err
	}
	stream.Seek(fd.Addr)
	thread.FuncDepth++
	return nil
}
