package vm

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// assembleForTest is a small subset of the asm package's textual
// assembler, duplicated here rather than imported to avoid a package
// cycle (asm imports vm for its opcode table). It covers exactly the
// instruction shapes these scenario tests use.
func assembleForTest(t *testing.T, source string) []byte {
	t.Helper()
	lines := strings.Split(source, "\n")
	labels := make(map[string]uint32)
	type instr struct {
		op       Opcode
		operands []string
		str      string
		typeName string
		fields   []string
	}
	var instrs []instr
	var offset uint32

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			labels[strings.TrimSuffix(line, ":")] = offset
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		op, ok := OpcodeByName(strings.ToLower(fields[0]))
		require.True(t, ok, "unknown mnemonic %q", fields[0])
		var rest string
		if len(fields) > 1 {
			rest = fields[1]
		}

		switch {
		case VariadicStringOpcodes[op]:
			reg, str := splitRegAndStringForTest(t, rest, op)
			il := instr{op: op, str: str}
			size := uint32(1) + 4 + uint32(len(str))
			if op == LoadString {
				il.operands = []string{reg}
				size++
			}
			instrs = append(instrs, il)
			offset += size

		case VariadicTypeOpcodes[op]:
			reg, name, typeFields := splitTypeDeclForTest(t, rest)
			il := instr{op: op, typeName: name, fields: typeFields}
			size := uint32(1) + 2 + uint32(len(name)) + 2
			for _, f := range typeFields {
				size += 2 + uint32(len(f))
			}
			if op == LoadType {
				il.operands = []string{reg}
				size++
			}
			instrs = append(instrs, il)
			offset += size

		default:
			layout := OperandLayouts[op]
			var operands []string
			if strings.TrimSpace(rest) != "" {
				for _, p := range strings.Split(rest, ",") {
					operands = append(operands, strings.TrimSpace(p))
				}
			}
			require.Len(t, operands, len(layout), "opcode %v operand count", op)
			size := uint32(1)
			for _, k := range layout {
				size += operandWidthForTest(k)
			}
			instrs = append(instrs, instr{op: op, operands: operands})
			offset += size
		}
	}

	var buf bytes.Buffer
	for _, il := range instrs {
		buf.WriteByte(byte(il.op))
		switch {
		case VariadicStringOpcodes[il.op]:
			if il.op == LoadString {
				r, err := strconv.ParseUint(strings.TrimPrefix(il.operands[0], "r"), 10, 8)
				require.NoError(t, err)
				buf.WriteByte(byte(r))
			}
			binary.Write(&buf, binary.LittleEndian, uint32(len(il.str)))
			buf.WriteString(il.str)

		case VariadicTypeOpcodes[il.op]:
			if il.op == LoadType {
				r, err := strconv.ParseUint(strings.TrimPrefix(il.operands[0], "r"), 10, 8)
				require.NoError(t, err)
				buf.WriteByte(byte(r))
			}
			binary.Write(&buf, binary.LittleEndian, uint16(len(il.typeName)))
			buf.WriteString(il.typeName)
			binary.Write(&buf, binary.LittleEndian, uint16(len(il.fields)))
			for _, f := range il.fields {
				binary.Write(&buf, binary.LittleEndian, uint16(len(f)))
				buf.WriteString(f)
			}

		default:
			layout := OperandLayouts[il.op]
			for i, k := range layout {
				emitOperandForTest(t, &buf, k, il.operands[i], labels)
			}
		}
	}
	return buf.Bytes()
}

func splitRegAndStringForTest(t *testing.T, rest string, op Opcode) (reg, str string) {
	t.Helper()
	rest = strings.TrimSpace(rest)
	first := strings.Index(rest, "\"")
	last := strings.LastIndex(rest, "\"")
	require.True(t, first >= 0 && last > first, "expected a quoted string operand")
	if op == LoadString && first > 0 {
		reg = strings.TrimSpace(strings.TrimSuffix(rest[:first], ","))
	}
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`)
	str = r.Replace(rest[first+1 : last])
	return reg, str
}

func splitTypeDeclForTest(t *testing.T, rest string) (reg, name string, fields []string) {
	t.Helper()
	rest = strings.TrimSpace(rest)
	colon := strings.Index(rest, ":")
	require.GreaterOrEqual(t, colon, 0, "expected Name: field, field")
	head := strings.TrimSpace(rest[:colon])
	if strings.Contains(head, ",") {
		parts := strings.SplitN(head, ",", 2)
		reg = strings.TrimSpace(parts[0])
		name = strings.TrimSpace(parts[1])
	} else {
		name = head
	}
	for _, f := range strings.Split(rest[colon+1:], ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			fields = append(fields, f)
		}
	}
	return reg, name, fields
}

func operandWidthForTest(k OperandKind) uint32 {
	switch k {
	case OperandReg, OperandU8:
		return 1
	case OperandU16:
		return 2
	case OperandU32, OperandI32, OperandF32:
		return 4
	case OperandI64, OperandF64:
		return 8
	default:
		return 0
	}
}

func emitOperandForTest(t *testing.T, buf *bytes.Buffer, k OperandKind, tok string, labels map[string]uint32) {
	t.Helper()
	switch k {
	case OperandReg:
		n, err := strconv.ParseUint(strings.TrimPrefix(tok, "r"), 10, 8)
		require.NoError(t, err)
		buf.WriteByte(byte(n))
	case OperandU8:
		n, err := strconv.ParseUint(tok, 0, 8)
		require.NoError(t, err)
		buf.WriteByte(byte(n))
	case OperandU16:
		n, err := strconv.ParseUint(tok, 0, 16)
		require.NoError(t, err)
		binary.Write(buf, binary.LittleEndian, uint16(n))
	case OperandU32:
		if addr, ok := labels[tok]; ok {
			binary.Write(buf, binary.LittleEndian, addr)
			return
		}
		n, err := strconv.ParseUint(tok, 0, 32)
		require.NoError(t, err, "unresolved label or bad address %q", tok)
		binary.Write(buf, binary.LittleEndian, uint32(n))
	case OperandI32:
		n, err := strconv.ParseInt(tok, 0, 32)
		require.NoError(t, err)
		binary.Write(buf, binary.LittleEndian, int32(n))
	case OperandI64:
		n, err := strconv.ParseInt(tok, 0, 64)
		require.NoError(t, err)
		binary.Write(buf, binary.LittleEndian, n)
	case OperandF32:
		f, err := strconv.ParseFloat(tok, 32)
		require.NoError(t, err)
		binary.Write(buf, binary.LittleEndian, math.Float32bits(float32(f)))
	case OperandF64:
		f, err := strconv.ParseFloat(tok, 64)
		require.NoError(t, err)
		binary.Write(buf, binary.LittleEndian, math.Float64bits(f))
	default:
		t.Fatalf("unhandled operand kind %v for token %q", k, tok)
	}
}

// runSource drives an already assembled program (see assembleForTest)
// to completion on a fresh VMState's main thread, returning the state
// and the captured stdout.
func runSource(t *testing.T, program []byte) (*VMState, string) {
	t.Helper()
	var out bytes.Buffer
	state := NewVMState(DefaultConfig(), &out, strings.NewReader(""))
	stream := NewBytecodeStream(program)
	d := NewDispatcher(state)
	d.Run(state.MainThread(), stream)
	require.NoError(t, state.Stdout.Flush())
	return state, out.String()
}

func TestArithmeticPromotionPrintsFloat(t *testing.T) {
	program := assembleForTest(t, `
		load_i32 r0, 3
		load_f32 r1, 2.5
		add r0, r1, r2
		echo r2
		echo_newline
		exit
	`)
	_, out := runSource(t, program)
	require.Equal(t, "5.5\n", out)
}

func TestCatchableDivisionByZero(t *testing.T) {
	program := assembleForTest(t, `
		load_addr r0, catch
		begin_try r0
		load_i32 r1, 10
		load_i32 r2, 0
		div r1, r2, r3
		exit
	catch:
		load_string r4, "caught\n"
		echo r4
		exit
	`)
	state, out := runSource(t, program)
	require.Equal(t, "caught\n", out)
	require.True(t, state.Good, "a caught exception must not halt the VM")
}

func TestVariadicArgumentPacking(t *testing.T) {
	// func is declared with NArgs=1 and the variadic flag, so its single
	// declared parameter is the rest-array: every argument pushed by the
	// caller lands in it, none are named positionally.
	program := assembleForTest(t, `
		load_func r1, func, 1, 1
		load_i32 r2, 10
		load_i32 r3, 20
		push r2
		push r3
		call r1, 2
		pop_n 2
		load_i32 r2, 1
		load_i32 r3, 2
		load_i32 r4, 3
		load_i32 r5, 4
		push r2
		push r3
		push r4
		push r5
		call r1, 4
		pop_n 4
		exit
	func:
		load_offset r0, 2
		load_static r6, 0
		push r0
		call r6, 1
		load_offset r7, 1
		pop
		echo r7
		echo_newline
		ret
	`)
	var out bytes.Buffer
	state := NewVMState(DefaultConfig(), &out, strings.NewReader(""))
	state.Static.Append(Native(func(p *Params) (Value, error) {
		v := *p.Args[0]
		node := state.Heap.Get(v.HeapIndex())
		return I32(int32(len(node.Array().Elems))), nil
	}))
	d := NewDispatcher(state)
	d.Run(state.MainThread(), NewBytecodeStream(program))
	require.NoError(t, state.Stdout.Flush())
	require.Equal(t, "2\n4\n", out.String())
}

func TestObjectMemberByHash(t *testing.T) {
	xHash := FNV1("x")
	program := assembleForTest(t, `
		load_type r0, Point: x, y
		new r1, r0
		load_i32 r2, 7
		mov_mem_hash r1, r2, `+uintToStr(xHash)+`
		load_mem_hash r3, r1, `+uintToStr(xHash)+`
		echo r3
		echo_newline
		exit
	`)
	_, out := runSource(t, program)
	require.Equal(t, "7\n", out)
}

func TestCrossThreadSharingViaMainStack(t *testing.T) {
	// the spawned routine lives at address 0; it stores 42 into main
	// thread #0's stack slot 7 via MOV_INDEX, which always targets
	// MainThread() regardless of which thread executes it.
	program := assembleForTest(t, `
		load_i32 r0, 42
		mov_index 7, r0
		exit
	`)
	var out bytes.Buffer
	state := NewVMState(DefaultConfig(), &out, strings.NewReader(""))

	id, err := state.SpawnThread(program, Function(0, 0, 0), nil)
	require.NoError(t, err)
	require.NoError(t, state.Wait())

	v, err := state.MainThread().Stack.At(7)
	require.NoError(t, err)
	n, ok := v.GetInteger()
	require.True(t, ok)
	require.Equal(t, int64(42), n)
	require.NotZero(t, id)
}

func TestUnhandledNullReferenceHaltsMainThread(t *testing.T) {
	program := assembleForTest(t, `
		load_null r0
		load_mem_hash r1, r0, 1
		exit
	`)
	state, out := runSource(t, program)
	require.False(t, state.Good)
	require.Contains(t, out, "unhandled exception: NullReference")
}

func TestCallRetBalancesStackPointer(t *testing.T) {
	program := assembleForTest(t, `
		load_func r0, func, 0, 0
		call r0, 0
		exit
	func:
		load_i32 r1, 1
		ret
	`)
	var out bytes.Buffer
	state := NewVMState(DefaultConfig(), &out, strings.NewReader(""))
	thread := state.MainThread()
	before := thread.Stack.SP()
	d := NewDispatcher(state)
	d.Run(thread, NewBytecodeStream(program))
	require.Equal(t, before, thread.Stack.SP(), "a balanced call must leave sp unchanged")
}

func TestArrayNegativeIndexWraps(t *testing.T) {
	program := assembleForTest(t, `
		new_array r0, 3
		load_i32 r1, 7
		load_i32 r2, 2
		mov_arrayidx r0, r2, r1
		load_i32 r3, -1
		load_arrayidx r4, r0, r3
		echo r4
		exit
	`)
	_, out := runSource(t, program)
	require.Equal(t, "7", out)
}

func TestGCRetainsReachableValues(t *testing.T) {
	var out bytes.Buffer
	state := NewVMState(DefaultConfig(), &out, strings.NewReader(""))
	idx, ok := state.AllocString(state.MainThread(), "reachable")
	require.True(t, ok)
	require.NoError(t, state.MainThread().Stack.Push(HeapPointer(idx)))

	collectGarbage(state)

	node := state.Heap.Get(idx)
	require.NotNil(t, node, "a value reachable from the stack must survive a collection")
	require.Equal(t, "reachable", node.String())
}

func TestCompareSameRegisterAlwaysEqual(t *testing.T) {
	program := assembleForTest(t, `
		load_i32 r0, 5
		cmp r0, r0
		load_addr r1, yes
		je r1
		load_string r2, "no\n"
		echo r2
		exit
	yes:
		load_string r2, "yes\n"
		echo r2
		exit
	`)
	_, out := runSource(t, program)
	require.Equal(t, "yes\n", out, "CMP r r must always yield FlagEqual by register identity")
}

func uintToStr(n uint32) string {
	digits := [10]byte{}
	i := len(digits)
	if n == 0 {
		return "0"
	}
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
