package vm

import (
	"strings"
)

// InstructionHandler is the per-opcode implementation surface: it binds
// one VMState, one ExecutionThread, and the BytecodeStream currently
// driving that thread. A fresh InstructionHandler is built by the
// Dispatcher for every opcode it decodes; it carries no state of its
// own across calls.
type InstructionHandler struct {
	State  *VMState
	Thread *ExecutionThread
	Stream *BytecodeStream
}

func (h *InstructionHandler) raise(kind ExceptionKind, detail string) {
	h.Thread.Exception.Raise(kind, detail)
}

func (h *InstructionHandler) getReg(idx uint8) Value {
	v, err := h.Thread.Registers.Get(idx)
	if err != nil {
		return Null()
	}
	return v
}

func (h *InstructionHandler) setReg(idx uint8, v Value) {
	_ = h.Thread.Registers.Set(idx, v)
}

// regs reads n consecutive single-byte register operands.
func (h *InstructionHandler) regs(n int) ([]uint8, bool) {
	out := make([]uint8, n)
	for i := range out {
		b, err := h.Stream.ReadU8()
		if err != nil {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

// fail aborts this thread's stream on malformed bytecode - a short
// operand read, an out-of-table opcode - without touching state.Good,
// mirroring the "unknown opcode is not fatal to the process" rule.
func (h *InstructionHandler) fail() bool {
	h.Stream.Seek(h.Stream.Len())
	return false
}

// objectNode resolves obj's heap node and reports NullReference /
// NotAnObject the way every member-access opcode needs to.
func (h *InstructionHandler) objectNode(obj Value) (*HeapValue, bool) {
	if obj.Kind() != KindHeapPointer || obj.IsNull() {
		h.raise(ExcNullReference, "member access on null")
		return nil, false
	}
	node := h.State.Heap.Get(obj.HeapIndex())
	if node == nil || node.Kind() != HeapObject {
		h.raise(ExcNotAnObject, "member access on non-object")
		return nil, false
	}
	return node, true
}

func (h *InstructionHandler) arrayNode(arr Value) (*HeapValue, bool) {
	if arr.Kind() != KindHeapPointer || arr.IsNull() {
		h.raise(ExcNullReference, "index access on null")
		return nil, false
	}
	node := h.State.Heap.Get(arr.HeapIndex())
	if node == nil || node.Kind() != HeapArray {
		h.raise(ExcNotAnArray, "index access on non-array")
		return nil, false
	}
	return node, true
}

func wrapArrayIndex(n int64, length int) (int, bool) {
	idx := n
	if idx < 0 {
		idx += int64(length)
	}
	if idx < 0 || idx >= int64(length) {
		return 0, false
	}
	return int(idx), true
}

// Handle decodes and executes exactly one opcode. It returns false when
// the dispatcher loop driving this thread should stop: EXIT, an unknown
// opcode, or malformed/truncated operands.
func (h *InstructionHandler) Handle(op Opcode) bool {
	switch op {
	case Nop:
		return true

	case StoreStaticString:
		s, err := h.Stream.ReadString()
		if err != nil {
			return h.fail()
		}
		idx, ok := h.State.AllocString(h.Thread, s)
		if !ok {
			return true
		}
		h.State.Static.Append(HeapPointer(idx))
		return true

	case StoreStaticAddress:
		addr, err := h.Stream.ReadU32()
		if err != nil {
			return h.fail()
		}
		h.State.Static.Append(Address(addr))
		return true

	case StoreStaticFunction:
		addr, err := h.Stream.ReadU32()
		if err != nil {
			return h.fail()
		}
		nargs, err := h.Stream.ReadU8()
		if err != nil {
			return h.fail()
		}
		flags, err := h.Stream.ReadU8()
		if err != nil {
			return h.fail()
		}
		h.State.Static.Append(Function(addr, nargs, flags))
		return true

	case StoreStaticType:
		typ, ok := h.readTypeInfo()
		if !ok {
			return h.fail()
		}
		idx, ok := h.State.AllocTypeInfo(h.Thread, typ.Name, typ.FieldNames)
		if !ok {
			return true
		}
		h.State.Static.Append(HeapPointer(idx))
		return true

	case LoadI32:
		r, err1 := h.Stream.ReadU8()
		imm, err2 := h.Stream.ReadI32()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		h.setReg(r, I32(imm))
		return true

	case LoadI64:
		r, err1 := h.Stream.ReadU8()
		imm, err2 := h.Stream.ReadI64()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		h.setReg(r, I64(imm))
		return true

	case LoadF32:
		r, err1 := h.Stream.ReadU8()
		imm, err2 := h.Stream.ReadF32()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		h.setReg(r, F32(imm))
		return true

	case LoadF64:
		r, err1 := h.Stream.ReadU8()
		imm, err2 := h.Stream.ReadF64()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		h.setReg(r, F64(imm))
		return true

	case LoadOffset:
		r, err1 := h.Stream.ReadU8()
		k, err2 := h.Stream.ReadU16()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		v, err := h.Thread.Stack.LoadOffset(int(k))
		if err != nil {
			h.raise(ExcTypeError, err.Error())
			return true
		}
		h.setReg(r, v)
		return true

	case LoadIndex:
		r, err1 := h.Stream.ReadU8()
		k, err2 := h.Stream.ReadU16()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		v, err := h.State.MainThread().Stack.At(int(k))
		if err != nil {
			h.raise(ExcTypeError, err.Error())
			return true
		}
		h.setReg(r, v)
		return true

	case LoadStatic:
		r, err1 := h.Stream.ReadU8()
		k, err2 := h.Stream.ReadU16()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		v, ok := h.State.Static.Get(k)
		if !ok {
			h.raise(ExcIndexOutOfBounds, "static memory index out of bounds")
			return true
		}
		h.setReg(r, v)
		return true

	case LoadString:
		r, err1 := h.Stream.ReadU8()
		s, err2 := h.Stream.ReadString()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		idx, ok := h.State.AllocString(h.Thread, s)
		if !ok {
			return true
		}
		h.setReg(r, HeapPointer(idx))
		return true

	case LoadAddr:
		r, err1 := h.Stream.ReadU8()
		addr, err2 := h.Stream.ReadU32()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		h.setReg(r, Address(addr))
		return true

	case LoadFunc:
		r, err1 := h.Stream.ReadU8()
		addr, err2 := h.Stream.ReadU32()
		nargs, err3 := h.Stream.ReadU8()
		flags, err4 := h.Stream.ReadU8()
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return h.fail()
		}
		h.setReg(r, Function(addr, nargs, flags))
		return true

	case LoadType:
		r, err1 := h.Stream.ReadU8()
		if err1 != nil {
			return h.fail()
		}
		typ, ok := h.readTypeInfo()
		if !ok {
			return h.fail()
		}
		idx, ok := h.State.AllocTypeInfo(h.Thread, typ.Name, typ.FieldNames)
		if !ok {
			return true
		}
		h.setReg(r, HeapPointer(idx))
		return true

	case LoadMem:
		rs, ok := h.regs(3)
		if !ok {
			return h.fail()
		}
		dst, src, idx := rs[0], rs[1], rs[2]
		node, ok := h.objectNode(h.getReg(src))
		if !ok {
			return true
		}
		if int(idx) >= len(node.Object().Members) {
			h.raise(ExcIndexOutOfBounds, "member index out of bounds")
			return true
		}
		h.setReg(dst, node.Object().Members[idx].Value)
		return true

	case LoadMemHash:
		rs, ok := h.regs(2)
		if !ok {
			return h.fail()
		}
		dst, src := rs[0], rs[1]
		hash, err := h.Stream.ReadU32()
		if err != nil {
			return h.fail()
		}
		node, ok := h.objectNode(h.getReg(src))
		if !ok {
			return true
		}
		idx, ok := h.resolveMemberIndex(node, hash)
		if !ok {
			h.raise(ExcMemberNotFound, "no member with that name")
			return true
		}
		h.setReg(dst, node.Object().Members[idx].Value)
		return true

	case LoadArrayIdx:
		rs, ok := h.regs(3)
		if !ok {
			return h.fail()
		}
		dst, src, idxReg := rs[0], rs[1], rs[2]
		node, ok := h.arrayNode(h.getReg(src))
		if !ok {
			return true
		}
		n, ok := h.getReg(idxReg).GetInteger()
		if !ok {
			if h.getReg(idxReg).Kind() == KindHeapPointer {
				h.raise(ExcNotImplemented, "string array indices are not implemented")
			} else {
				h.raise(ExcBadIndexType, "array index must be an integer")
			}
			return true
		}
		idx, ok := wrapArrayIndex(n, len(node.Array().Elems))
		if !ok {
			h.raise(ExcIndexOutOfBounds, "array index out of bounds")
			return true
		}
		h.setReg(dst, node.Array().Elems[idx])
		return true

	case LoadNull:
		r, err := h.Stream.ReadU8()
		if err != nil {
			return h.fail()
		}
		h.setReg(r, Null())
		return true

	case LoadTrue:
		r, err := h.Stream.ReadU8()
		if err != nil {
			return h.fail()
		}
		h.setReg(r, Bool(true))
		return true

	case LoadFalse:
		r, err := h.Stream.ReadU8()
		if err != nil {
			return h.fail()
		}
		h.setReg(r, Bool(false))
		return true

	case MovOffset:
		k, err1 := h.Stream.ReadU16()
		src, err2 := h.Stream.ReadU8()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		if err := h.Thread.Stack.StoreOffset(int(k), h.getReg(src)); err != nil {
			h.raise(ExcTypeError, err.Error())
		}
		return true

	case MovIndex:
		k, err1 := h.Stream.ReadU16()
		src, err2 := h.Stream.ReadU8()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		if err := h.State.MainThread().Stack.SetAt(int(k), h.getReg(src)); err != nil {
			h.raise(ExcTypeError, err.Error())
		}
		return true

	case MovMem:
		rs, ok := h.regs(3)
		if !ok {
			return h.fail()
		}
		dst, idx, src := rs[0], rs[1], rs[2]
		node, ok := h.objectNode(h.getReg(dst))
		if !ok {
			return true
		}
		if int(idx) >= len(node.Object().Members) {
			h.raise(ExcIndexOutOfBounds, "member index out of bounds")
			return true
		}
		node.Object().Members[idx].Value = h.getReg(src)
		return true

	case MovMemHash:
		rs, ok := h.regs(2)
		if !ok {
			return h.fail()
		}
		dst := rs[0]
		hash, err := h.Stream.ReadU32()
		if err != nil {
			return h.fail()
		}
		src := rs[1]
		node, ok := h.objectNode(h.getReg(dst))
		if !ok {
			return true
		}
		idx, ok := h.resolveMemberIndex(node, hash)
		if !ok {
			h.raise(ExcMemberNotFound, "no member with that name")
			return true
		}
		node.Object().Members[idx].Value = h.getReg(src)
		return true

	case MovArrayIdx:
		rs, ok := h.regs(3)
		if !ok {
			return h.fail()
		}
		dst, idxReg, src := rs[0], rs[1], rs[2]
		node, ok := h.arrayNode(h.getReg(dst))
		if !ok {
			return true
		}
		n, ok := h.getReg(idxReg).GetInteger()
		if !ok {
			h.raise(ExcBadIndexType, "array index must be an integer")
			return true
		}
		idx, ok := wrapArrayIndex(n, len(node.Array().Elems))
		if !ok {
			h.raise(ExcIndexOutOfBounds, "array index out of bounds")
			return true
		}
		node.Array().Elems[idx] = h.getReg(src)
		return true

	case MovReg:
		rs, ok := h.regs(2)
		if !ok {
			return h.fail()
		}
		h.setReg(rs[0], h.getReg(rs[1]))
		return true

	case HasMemHash:
		rs, ok := h.regs(2)
		if !ok {
			return h.fail()
		}
		dst, src := rs[0], rs[1]
		hash, err := h.Stream.ReadU32()
		if err != nil {
			return h.fail()
		}
		srcv := h.getReg(src)
		if srcv.Kind() != KindHeapPointer || srcv.IsNull() {
			h.setReg(dst, Bool(false))
			return true
		}
		node := h.State.Heap.Get(srcv.HeapIndex())
		if node == nil || node.Kind() != HeapObject {
			h.setReg(dst, Bool(false))
			return true
		}
		_, ok = h.resolveMemberIndex(node, hash)
		h.setReg(dst, Bool(ok))
		return true

	case Push:
		r, err := h.Stream.ReadU8()
		if err != nil {
			return h.fail()
		}
		if err := h.Thread.Stack.Push(h.getReg(r)); err != nil {
			h.raise(ExcTypeError, err.Error())
		}
		return true

	case Pop:
		if _, err := h.Thread.Stack.Pop(); err != nil {
			h.raise(ExcTypeError, err.Error())
		}
		return true

	case PopN:
		n, err := h.Stream.ReadU8()
		if err != nil {
			return h.fail()
		}
		if _, err := h.Thread.Stack.PopN(int(n)); err != nil {
			h.raise(ExcTypeError, err.Error())
		}
		return true

	case PushArray:
		rs, ok := h.regs(2)
		if !ok {
			return h.fail()
		}
		dst, valReg := rs[0], rs[1]
		node, ok := h.arrayNode(h.getReg(dst))
		if !ok {
			return true
		}
		node.Array().Elems = append(node.Array().Elems, h.getReg(valReg))
		return true

	case Echo:
		r, err := h.Stream.ReadU8()
		if err != nil {
			return h.fail()
		}
		h.State.Printf("%s", h.getReg(r).String(h.State.Heap))
		return true

	case EchoNewline:
		h.State.Printf("\n")
		return true

	case Jmp:
		addr, ok := h.readAddrReg()
		if !ok {
			return true
		}
		h.Stream.Seek(addr)
		return true

	case Je:
		addr, ok := h.readAddrReg()
		if !ok {
			return true
		}
		if h.Thread.Registers.Flags() == FlagEqual {
			h.Stream.Seek(addr)
		}
		return true

	case Jne:
		addr, ok := h.readAddrReg()
		if !ok {
			return true
		}
		if h.Thread.Registers.Flags() != FlagEqual {
			h.Stream.Seek(addr)
		}
		return true

	case Jg:
		addr, ok := h.readAddrReg()
		if !ok {
			return true
		}
		if h.Thread.Registers.Flags() == FlagGreater {
			h.Stream.Seek(addr)
		}
		return true

	case Jge:
		addr, ok := h.readAddrReg()
		if !ok {
			return true
		}
		f := h.Thread.Registers.Flags()
		if f == FlagGreater || f == FlagEqual {
			h.Stream.Seek(addr)
		}
		return true

	case Call:
		rs, ok := h.regs(2)
		if !ok {
			return h.fail()
		}
		target := h.getReg(rs[0])
		nargs := uint32(rs[1])
		if err := Invoke(h.State, h.Thread, h.Stream, target, nargs); err != nil {
			h.raise(ExcTypeError, err.Error())
		}
		return true

	case Ret:
		return h.ret()

	case BeginTry:
		addr, ok := h.readAddrReg()
		if !ok {
			return true
		}
		h.Thread.Exception.BeginTry()
		if err := h.Thread.Stack.Push(TryCatchMarker(addr)); err != nil {
			h.raise(ExcTypeError, err.Error())
		}
		return true

	case EndTry:
		v, err := h.Thread.Stack.Pop()
		if err != nil || v.Kind() != KindTryCatchInfo {
			h.raise(ExcTypeError, "end_try without a matching begin_try")
			return true
		}
		h.Thread.Exception.EndTry()
		return true

	case New:
		rs, ok := h.regs(2)
		if !ok {
			return h.fail()
		}
		dst, typeReg := rs[0], rs[1]
		typev := h.getReg(typeReg)
		if typev.Kind() != KindHeapPointer || typev.IsNull() {
			h.raise(ExcTypeError, "new target is not a type")
			return true
		}
		idx, ok := h.State.AllocObject(h.Thread, typev.HeapIndex())
		if !ok {
			return true
		}
		h.setReg(dst, HeapPointer(idx))
		return true

	case NewArray:
		r, err1 := h.Stream.ReadU8()
		size, err2 := h.Stream.ReadU32()
		if err1 != nil || err2 != nil {
			return h.fail()
		}
		elems := make([]Value, size)
		for i := range elems {
			elems[i] = Null()
		}
		idx, ok := h.State.AllocArray(h.Thread, elems)
		if !ok {
			return true
		}
		h.setReg(r, HeapPointer(idx))
		return true

	case Cmp:
		rs, ok := h.regs(2)
		if !ok {
			return h.fail()
		}
		h.doCmp(rs[0], rs[1])
		return true

	case Cmpz:
		r, err := h.Stream.ReadU8()
		if err != nil {
			return h.fail()
		}
		h.doCmpz(r)
		return true

	case Add, Sub, Mul, Div, Mod:
		rs, ok := h.regs(3)
		if !ok {
			return h.fail()
		}
		h.doArith(op, rs[0], rs[1], rs[2])
		return true

	case Neg:
		rs, ok := h.regs(2)
		if !ok {
			return h.fail()
		}
		h.doNeg(rs[0], rs[1])
		return true

	case And, Or, Xor, Shl, Shr:
		rs, ok := h.regs(3)
		if !ok {
			return h.fail()
		}
		h.doBitwise(op, rs[0], rs[1], rs[2])
		return true

	case Exit:
		h.Stream.Seek(h.Stream.Len())
		return false

	default:
		h.State.Printf("unknown opcode %#x at %#x\n", byte(op), h.Stream.Position()-1)
		return h.fail()
	}
}

func (h *InstructionHandler) readAddrReg() (uint32, bool) {
	r, err := h.Stream.ReadU8()
	if err != nil {
		return 0, false
	}
	v := h.getReg(r)
	if v.Kind() != KindAddress {
		h.raise(ExcTypeError, "jump target register does not hold an address")
		return 0, false
	}
	return v.Address(), true
}

func (h *InstructionHandler) resolveMemberIndex(node *HeapValue, hash uint32) (int, bool) {
	typeNode := h.State.Heap.Get(node.Object().TypeIdx)
	if typeNode == nil || typeNode.TypeInfo() == nil {
		for i, m := range node.Object().Members {
			if m.NameHash == hash {
				return i, true
			}
		}
		return 0, false
	}
	return typeNode.TypeInfo().indexForHash(hash)
}

func (h *InstructionHandler) readTypeInfo() (*TypeInfo, bool) {
	name, err := h.Stream.ReadShortString()
	if err != nil {
		return nil, false
	}
	size, err := h.Stream.ReadU16()
	if err != nil {
		return nil, false
	}
	fields := make([]string, size)
	for i := range fields {
		f, err := h.Stream.ReadShortString()
		if err != nil {
			return nil, false
		}
		fields[i] = f
	}
	return newTypeInfo(name, fields), true
}

func (h *InstructionHandler) ret() bool {
	marker, err := h.Thread.Stack.Top()
	if err != nil || marker.Kind() != KindFunctionCall {
		h.raise(ExcTypeError, "ret without a matching call frame")
		return true
	}
	cf := marker.CallFrame()
	newSP := h.Thread.Stack.SP() - 1 + int(cf.VarargsPush)
	if err := h.Thread.Stack.SetSP(newSP); err != nil {
		h.raise(ExcTypeError, err.Error())
		return true
	}
	h.Stream.Seek(cf.ReturnAddr)
	h.Thread.FuncDepth--
	return true
}

// compareValues implements the CMP contract described in component
// design: integer/integer in i64, any numeric pair widened to f64,
// booleans as 0/1, equal heap pointers or two nulls as EQUAL, distinct
// non-null strings lexicographically, anything else mixed as
// InvalidComparison. Returns (flag, ok).
func (h *InstructionHandler) compareValues(a, b Value) (Flag, bool) {
	if a.Kind() == KindHeapPointer && b.Kind() == KindHeapPointer {
		if a.HeapIndex() == b.HeapIndex() {
			return FlagEqual, true
		}
		if a.IsNull() || b.IsNull() {
			return 0, false
		}
		na, na_ := h.State.Heap.Get(a.HeapIndex()), h.State.Heap.Get(b.HeapIndex())
		if na != nil && na_ != nil && na.Kind() == HeapString && na_.Kind() == HeapString {
			switch strings.Compare(na.String(), na_.String()) {
			case 0:
				return FlagEqual, true
			case 1:
				return FlagGreater, true
			default:
				return FlagNone, true
			}
		}
		return 0, false
	}

	if a.Kind() == KindBool && b.Kind() == KindBool {
		return numericFlag(float64(a.num), float64(b.num)), true
	}

	an, aok := a.GetNumber()
	bn, bok := b.GetNumber()
	if aok && bok {
		if ai, aIsInt := a.GetInteger(); aIsInt {
			if bi, bIsInt := b.GetInteger(); bIsInt {
				switch {
				case ai == bi:
					return FlagEqual, true
				case ai > bi:
					return FlagGreater, true
				default:
					return FlagNone, true
				}
			}
		}
		return numericFlag(an, bn), true
	}

	if a.Kind() == KindAddress && b.Kind() == KindAddress {
		return numericFlag(float64(a.Address()), float64(b.Address())), true
	}

	return 0, false
}

func numericFlag(a, b float64) Flag {
	switch {
	case a == b:
		return FlagEqual
	case a > b:
		return FlagGreater
	default:
		return FlagNone
	}
}

func (h *InstructionHandler) doCmp(aReg, bReg uint8) {
	if aReg == bReg {
		h.Thread.Registers.SetFlags(FlagEqual)
		return
	}
	flag, ok := h.compareValues(h.getReg(aReg), h.getReg(bReg))
	if !ok {
		h.raise(ExcInvalidComparison, "values are not comparable")
		return
	}
	h.Thread.Registers.SetFlags(flag)
}

func (h *InstructionHandler) doCmpz(reg uint8) {
	v := h.getReg(reg)
	switch v.Kind() {
	case KindI32, KindI64, KindF32, KindF64:
		n, _ := v.GetNumber()
		h.Thread.Registers.SetFlags(numericFlag(n, 0))
	case KindBool:
		h.Thread.Registers.SetFlags(numericFlag(float64(v.num), 0))
	case KindHeapPointer:
		if v.IsNull() {
			h.Thread.Registers.SetFlags(FlagEqual)
		} else {
			h.Thread.Registers.SetFlags(FlagGreater)
		}
	case KindFunction:
		h.Thread.Registers.SetFlags(FlagGreater)
	default:
		h.raise(ExcInvalidComparison, "value is not comparable against zero")
	}
}

// promote computes the numeric-promotion join kind: the wider of the
// two operand kinds, integers joining to the wider integer and any
// float operand pulling the result to float.
func promote(a, b Kind) Kind {
	isFloat := func(k Kind) bool { return k == KindF32 || k == KindF64 }
	if isFloat(a) || isFloat(b) {
		if a == KindF64 || b == KindF64 {
			return KindF64
		}
		return KindF32
	}
	if a == KindI64 || b == KindI64 {
		return KindI64
	}
	return KindI32
}

func (h *InstructionHandler) doArith(op Opcode, aReg, bReg, dstReg uint8) {
	a, b := h.getReg(aReg), h.getReg(bReg)
	an, aok := a.GetNumber()
	bn, bok := b.GetNumber()
	if !aok || !bok {
		h.raise(ExcTypeError, "arithmetic operand is not numeric")
		return
	}

	result := promote(a.Kind(), b.Kind())
	if (op == Div || op == Mod) && bn == 0 {
		h.raise(ExcDivisionByZero, "division by zero")
		return
	}

	var out Value
	switch op {
	case Add:
		out = makeNumeric(result, an+bn)
	case Sub:
		out = makeNumeric(result, an-bn)
	case Mul:
		out = makeNumeric(result, an*bn)
	case Div:
		out = makeNumeric(result, an/bn)
	case Mod:
		if result == KindI32 || result == KindI64 {
			ai, _ := a.GetInteger()
			bi, _ := b.GetInteger()
			out = makeNumeric(result, float64(ai%bi))
		} else {
			out = makeNumeric(result, modFloat(an, bn))
		}
	}
	h.setReg(dstReg, out)
}

func modFloat(a, b float64) float64 {
	q := int64(a / b)
	return a - float64(q)*b
}

func makeNumeric(kind Kind, v float64) Value {
	switch kind {
	case KindI32:
		return I32(int32(v))
	case KindI64:
		return I64(int64(v))
	case KindF32:
		return F32(float32(v))
	default:
		return F64(v)
	}
}

func (h *InstructionHandler) doNeg(srcReg, dstReg uint8) {
	v := h.getReg(srcReg)
	n, ok := v.GetNumber()
	if !ok {
		h.raise(ExcTypeError, "neg operand is not numeric")
		return
	}
	h.setReg(dstReg, makeNumeric(v.Kind(), -n))
}

func (h *InstructionHandler) doBitwise(op Opcode, aReg, bReg, dstReg uint8) {
	a, aok := h.getReg(aReg).GetInteger()
	b, bok := h.getReg(bReg).GetInteger()
	if !aok || !bok {
		h.raise(ExcTypeError, "bitwise operand is not an integer")
		return
	}
	var out int64
	switch op {
	case And:
		out = a & b
	case Or:
		out = a | b
	case Xor:
		out = a ^ b
	case Shl:
		out = a << uint(b)
	case Shr:
		out = a >> uint(b)
	}
	if h.getReg(aReg).Kind() == KindI32 {
		h.setReg(dstReg, I32(int32(out)))
	} else {
		h.setReg(dstReg, I64(out))
	}
}
