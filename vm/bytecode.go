package vm

/*
	Ace bytecode is a little-endian, unaligned stream of opcodes. Every
	opcode begins with a single byte; its operand layout is fixed by the
	table below and documented opcode-by-opcode in handler.go. There is
	no alignment padding anywhere in the format.

	The machine model behind the opcodes:
		- 8 general-purpose registers per thread, plus a 3-state
		  comparison flag (EQUAL, GREATER, NONE)
		- one Value stack per thread, addressed by load-offset/mov-offset
		  relative to the thread's own stack pointer
		- LOAD_INDEX/MOV_INDEX always target thread #0's stack by
		  absolute index, the one sanctioned channel for cross-thread
		  communication
		- a managed heap of Strings, Arrays, Objects, TypeInfos and
		  NativeLibrary handles, collected by a stop-the-world
		  mark-and-sweep triggered from Heap allocation
		- an append-only StaticMemory pool populated once while
		  STORE_STATIC_* opcodes run at load time

	This bytecode identifier table is fixed; the compiler and the VM must
	agree on it bit-for-bit.
*/

type Opcode byte

const (
	Nop Opcode = 0x00

	StoreStaticString   Opcode = 0x01
	StoreStaticAddress  Opcode = 0x02
	StoreStaticFunction Opcode = 0x03
	StoreStaticType     Opcode = 0x04

	LoadI32 Opcode = 0x10
	LoadI64 Opcode = 0x11
	LoadF32 Opcode = 0x12
	LoadF64 Opcode = 0x13

	LoadOffset Opcode = 0x20
	LoadIndex  Opcode = 0x21
	LoadStatic Opcode = 0x22
	LoadString Opcode = 0x23
	LoadAddr   Opcode = 0x24
	LoadFunc   Opcode = 0x25
	LoadType   Opcode = 0x26

	LoadMem      Opcode = 0x30
	LoadMemHash  Opcode = 0x31
	LoadArrayIdx Opcode = 0x32
	LoadNull     Opcode = 0x33
	LoadTrue     Opcode = 0x34
	LoadFalse    Opcode = 0x35

	MovOffset   Opcode = 0x40
	MovIndex    Opcode = 0x41
	MovMem      Opcode = 0x42
	MovMemHash  Opcode = 0x43
	MovArrayIdx Opcode = 0x44
	MovReg      Opcode = 0x45

	HasMemHash Opcode = 0x4A

	Push      Opcode = 0x50
	Pop       Opcode = 0x51
	PopN      Opcode = 0x52
	PushArray Opcode = 0x53

	Echo        Opcode = 0x60
	EchoNewline Opcode = 0x61

	Jmp Opcode = 0x70
	Je  Opcode = 0x71
	Jne Opcode = 0x72
	Jg  Opcode = 0x73
	Jge Opcode = 0x74

	Call Opcode = 0x80
	Ret  Opcode = 0x81

	BeginTry Opcode = 0x90
	EndTry   Opcode = 0x91

	New      Opcode = 0xA0
	NewArray Opcode = 0xA1

	Cmp  Opcode = 0xB0
	Cmpz Opcode = 0xB1

	Add Opcode = 0xC0
	Sub Opcode = 0xC1
	Mul Opcode = 0xC2
	Div Opcode = 0xC3
	Mod Opcode = 0xC4
	Neg Opcode = 0xC5

	And Opcode = 0xD0
	Or  Opcode = 0xD1
	Xor Opcode = 0xD2
	Shl Opcode = 0xD3
	Shr Opcode = 0xD4

	Exit Opcode = 0xFF
)

var opcodeNames = map[Opcode]string{
	Nop:                 "nop",
	StoreStaticString:   "store_static_string",
	StoreStaticAddress:  "store_static_address",
	StoreStaticFunction: "store_static_function",
	StoreStaticType:     "store_static_type",
	LoadI32:             "load_i32",
	LoadI64:             "load_i64",
	LoadF32:             "load_f32",
	LoadF64:             "load_f64",
	LoadOffset:          "load_offset",
	LoadIndex:           "load_index",
	LoadStatic:          "load_static",
	LoadString:          "load_string",
	LoadAddr:            "load_addr",
	LoadFunc:            "load_func",
	LoadType:            "load_type",
	LoadMem:             "load_mem",
	LoadMemHash:         "load_mem_hash",
	LoadArrayIdx:        "load_arrayidx",
	LoadNull:            "load_null",
	LoadTrue:            "load_true",
	LoadFalse:           "load_false",
	MovOffset:           "mov_offset",
	MovIndex:            "mov_index",
	MovMem:              "mov_mem",
	MovMemHash:          "mov_mem_hash",
	MovArrayIdx:         "mov_arrayidx",
	MovReg:              "mov_reg",
	HasMemHash:          "has_mem_hash",
	Push:                "push",
	Pop:                 "pop",
	PopN:                "pop_n",
	PushArray:           "push_array",
	Echo:                "echo",
	EchoNewline:         "echo_newline",
	Jmp:                 "jmp",
	Je:                  "je",
	Jne:                 "jne",
	Jg:                  "jg",
	Jge:                 "jge",
	Call:                "call",
	Ret:                 "ret",
	BeginTry:            "begin_try",
	EndTry:              "end_try",
	New:                 "new",
	NewArray:            "new_array",
	Cmp:                 "cmp",
	Cmpz:                "cmpz",
	Add:                 "add",
	Sub:                 "sub",
	Mul:                 "mul",
	Div:                 "div",
	Mod:                 "mod",
	Neg:                 "neg",
	And:                 "and",
	Or:                  "or",
	Xor:                 "xor",
	Shl:                 "shl",
	Shr:                 "shr",
	Exit:                "exit",
}

var nameToOpcode map[string]Opcode

func init() {
	nameToOpcode = make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		nameToOpcode[name] = op
	}
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "?unknown?"
}

// OpcodeByName looks up an opcode by its mnemonic, used by the
// assembler.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := nameToOpcode[name]
	return op, ok
}
