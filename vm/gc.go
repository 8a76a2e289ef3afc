package vm

// collectGarbage runs one stop-the-world mark-and-sweep pass. Called
// only from VMState.alloc, which already holds the dispatch mutex, so
// no thread can be mutating its stack or registers concurrently.
func collectGarbage(s *VMState) {
	s.Heap.clearMarks()

	for _, t := range s.allThreads() {
		for i := 0; i < t.Stack.Len(); i++ {
			v, err := t.Stack.At(i)
			if err != nil {
				continue
			}
			markValue(s.Heap, v)
		}
		for r := uint8(0); r < NumGeneralRegisters; r++ {
			v, _ := t.Registers.Get(r)
			markValue(s.Heap, v)
		}
	}

	for _, v := range s.Static.All() {
		markValue(s.Heap, v)
	}

	s.Heap.sweep()
}

// markValue marks the heap node a Value points at (if any) and follows
// it transitively through Array elements and Object members.
// FunctionCall/TryCatchInfo markers hold no heap pointers and are
// skipped, as are every other scalar kind.
func markValue(h *Heap, v Value) {
	if v.Kind() != KindHeapPointer || v.IsNull() {
		return
	}
	markIndex(h, v.HeapIndex())
}

func markIndex(h *Heap, idx int32) {
	node := h.Get(idx)
	if node == nil || node.marked {
		return
	}
	node.marked = true

	switch node.kind {
	case HeapArray:
		for _, elem := range node.arr.Elems {
			markValue(h, elem)
		}
	case HeapObject:
		markIndex(h, node.obj.TypeIdx)
		for _, m := range node.obj.Members {
			markValue(h, m.Value)
		}
	}
}
