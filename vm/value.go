package vm

import (
	"fmt"
	"strings"
)

// Kind tags the variant currently held by a Value. Every Value carries
// exactly one of these at a time; the rest of the payload fields are
// meaningless for the other kinds.
type Kind uint8

const (
	KindI32 Kind = iota
	KindI64
	KindF32
	KindF64
	KindBool
	// KindHeapPointer is a weak index into the owning VMState's Heap, or
	// -1 for the language's null.
	KindHeapPointer
	KindAddress
	KindFunction
	KindNativeFunction
	// KindFunctionCall and KindTryCatchInfo only ever live on a Stack;
	// the compiler never emits them into a register or StaticMemory slot.
	KindFunctionCall
	KindTryCatchInfo
)

func (k Kind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindBool:
		return "bool"
	case KindHeapPointer:
		return "heap-pointer"
	case KindAddress:
		return "address"
	case KindFunction:
		return "function"
	case KindNativeFunction:
		return "native-function"
	case KindFunctionCall:
		return "function-call-marker"
	case KindTryCatchInfo:
		return "try-catch-marker"
	default:
		return "?unknown?"
	}
}

// Function flag bits, packed into FunctionDescriptor.Flags.
const (
	FuncVariadic  uint8 = 1 << 0
	FuncGenerator uint8 = 1 << 1
)

// FunctionDescriptor describes a user-defined Ace function: where its
// code starts, how many declared parameters it has, and its flag bits.
type FunctionDescriptor struct {
	Addr  uint32
	NArgs uint8
	Flags uint8
}

func (f FunctionDescriptor) IsVariadic() bool  { return f.Flags&FuncVariadic != 0 }
func (f FunctionDescriptor) IsGenerator() bool { return f.Flags&FuncGenerator != 0 }

// CallFrame is the transient marker CALL pushes onto the stack; RET pops
// it to know where to resume and how to rebalance the stack for a
// variadic call.
type CallFrame struct {
	ReturnAddr  uint32
	VarargsPush int32
}

// TryFrame is the transient marker BEGIN_TRY pushes onto the stack.
type TryFrame struct {
	CatchAddr uint32
}

// Params is the view a native function gets over the calling convention:
// the top nargs stack slots (in call order) plus a handle back into the
// thread and VM state it was called from.
type Params struct {
	Handler *InstructionHandler
	Args    []*Value
	NArgs   uint32
}

// NativeFunc is the Go-side shape every native callable must have. It
// returns a value, which the Invoker pushes onto the caller's stack
// after popping the arguments, or an error, which the Invoker turns
// into a raised exception of kind TypeError.
type NativeFunc func(p *Params) (Value, error)

// Value is a tagged union carrying one runtime datum. It is deliberately
// not the tightest possible encoding (Go has no true union) but keeps
// the hot numeric path (kind + num + flt) cache-friendly; the rarer
// variants are carried as pointers so the common case stays small.
type Value struct {
	kind Kind

	num int64   // I32/I64 (sign-extended), Address, Bool (0/1), HeapPointer index (-1 = null)
	flt float64 // F32/F64, widened

	fn     *FunctionDescriptor
	native NativeFunc
	call   *CallFrame
	try    *TryFrame
}

func I32(v int32) Value  { return Value{kind: KindI32, num: int64(v)} }
func I64(v int64) Value  { return Value{kind: KindI64, num: v} }
func F32(v float32) Value { return Value{kind: KindF32, flt: float64(v)} }
func F64(v float64) Value { return Value{kind: KindF64, flt: v} }
func Bool(v bool) Value {
	n := int64(0)
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}
func Null() Value { return Value{kind: KindHeapPointer, num: -1} }
func HeapPointer(idx int32) Value {
	return Value{kind: KindHeapPointer, num: int64(idx)}
}
func Address(addr uint32) Value { return Value{kind: KindAddress, num: int64(addr)} }
func Function(addr uint32, nargs, flags uint8) Value {
	return Value{kind: KindFunction, fn: &FunctionDescriptor{Addr: addr, NArgs: nargs, Flags: flags}}
}
func Native(fn NativeFunc) Value { return Value{kind: KindNativeFunction, native: fn} }
func FunctionCallMarker(returnAddr uint32, varargsPush int32) Value {
	return Value{kind: KindFunctionCall, call: &CallFrame{ReturnAddr: returnAddr, VarargsPush: varargsPush}}
}
func TryCatchMarker(catchAddr uint32) Value {
	return Value{kind: KindTryCatchInfo, try: &TryFrame{CatchAddr: catchAddr}}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool {
	return v.kind == KindHeapPointer && v.num < 0
}

// HeapIndex returns the heap slot this value points at. Only valid when
// Kind() == KindHeapPointer and !IsNull().
func (v Value) HeapIndex() int32 { return int32(v.num) }

func (v Value) Bool() bool { return v.num != 0 }

func (v Value) Address() uint32 { return uint32(v.num) }

func (v Value) Function() FunctionDescriptor { return *v.fn }

func (v Value) Native() NativeFunc { return v.native }

func (v Value) CallFrame() CallFrame { return *v.call }

func (v Value) TryFrame() TryFrame { return *v.try }

// GetInteger widens I32/I64 to int64. Every other kind returns false.
func (v Value) GetInteger() (int64, bool) {
	switch v.kind {
	case KindI32, KindI64:
		return v.num, true
	default:
		return 0, false
	}
}

// GetNumber widens any numeric kind (integer or float) to float64.
func (v Value) GetNumber() (float64, bool) {
	switch v.kind {
	case KindI32, KindI64:
		return float64(v.num), true
	case KindF32, KindF64:
		return v.flt, true
	default:
		return 0, false
	}
}

// TypeString is the stable short name used in exception messages.
func (v Value) TypeString() string {
	switch v.kind {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindBool:
		return "bool"
	case KindHeapPointer:
		if v.IsNull() {
			return "null"
		}
		return "object"
	case KindAddress:
		return "address"
	case KindFunction:
		return "function"
	case KindNativeFunction:
		return "native-function"
	default:
		return "?unknown?"
	}
}

const reprMaxLen = 256

// String is the user-facing rendering used by ECHO. Heap-backed values
// delegate to the heap for their contents; the heap can be nil only when
// rendering a value that is statically known not to be a heap pointer.
func (v Value) String(heap *Heap) string {
	switch v.kind {
	case KindI32:
		return fmt.Sprintf("%d", int32(v.num))
	case KindI64:
		return fmt.Sprintf("%d", v.num)
	case KindF32, KindF64:
		return fmt.Sprintf("%g", v.flt)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case KindHeapPointer:
		if v.IsNull() {
			return "null"
		}
		return heap.render(v.HeapIndex(), false)
	case KindAddress:
		return fmt.Sprintf("0x%x", v.num)
	case KindFunction:
		return fmt.Sprintf("<function %#x>", v.fn.Addr)
	case KindNativeFunction:
		return "<native function>"
	default:
		return "?unknown?"
	}
}

// Repr is a JSON-ish serialization, used when rendering Array elements
// and Object members; with json=true it quotes strings, with json=false
// it renders them bare as String does.
func (v Value) Repr(heap *Heap, json bool) string {
	if v.kind == KindHeapPointer && !v.IsNull() {
		return heap.render(v.HeapIndex(), json)
	}
	if v.kind != KindHeapPointer {
		return v.String(heap)
	}
	return "null"
}

// truncateRepr bounds an accumulating buffer the way Array/Object
// rendering does, spilling to "..." once the budget is exhausted.
func truncateRepr(b *strings.Builder, max int) bool {
	return b.Len() >= max
}
