package vm

// OperandKind tags one operand slot in an opcode's fixed encoding, for
// the benefit of the assembler and disassembler - the dispatcher itself
// never consults this table, it just reads the bytes handler.go expects.
type OperandKind uint8

const (
	OperandReg  OperandKind = iota // single register index, u8
	OperandU8                     // raw byte (POP_N count, nargs, flags)
	OperandU16                     // stack/static offset
	OperandU32                     // bytecode address
	OperandI32
	OperandI64
	OperandF32
	OperandF64
	OperandVarString // StoreStaticString/LoadString: u32-len-prefixed bytes
	OperandVarType   // StoreStaticType/LoadType: name + field list
)

// OperandLayouts describes the fixed-shape opcodes' operand sequence in
// encoding order; StoreStaticString, LoadString, StoreStaticType and
// LoadType are variable-length and handled specially by the assembler
// and disassembler instead of through this table.
var OperandLayouts = map[Opcode][]OperandKind{
	Nop: {},

	StoreStaticAddress:  {OperandU32},
	StoreStaticFunction: {OperandU32, OperandU8, OperandU8},

	LoadI32: {OperandReg, OperandI32},
	LoadI64: {OperandReg, OperandI64},
	LoadF32: {OperandReg, OperandF32},
	LoadF64: {OperandReg, OperandF64},

	LoadOffset: {OperandReg, OperandU16},
	LoadIndex:  {OperandReg, OperandU16},
	LoadStatic: {OperandReg, OperandU16},
	LoadAddr:   {OperandReg, OperandU32},
	LoadFunc:   {OperandReg, OperandU32, OperandU8, OperandU8},

	LoadMem:      {OperandReg, OperandReg, OperandU8},
	LoadMemHash:  {OperandReg, OperandReg, OperandU32},
	LoadArrayIdx: {OperandReg, OperandReg, OperandReg},
	LoadNull:     {OperandReg},
	LoadTrue:     {OperandReg},
	LoadFalse:    {OperandReg},

	MovOffset:   {OperandU16, OperandReg},
	MovIndex:    {OperandU16, OperandReg},
	MovMem:      {OperandReg, OperandU8, OperandReg},
	MovMemHash:  {OperandReg, OperandReg, OperandU32},
	MovArrayIdx: {OperandReg, OperandReg, OperandReg},
	MovReg:      {OperandReg, OperandReg},

	HasMemHash: {OperandReg, OperandReg, OperandU32},

	Push:      {OperandReg},
	Pop:       {},
	PopN:      {OperandU8},
	PushArray: {OperandReg, OperandReg},

	Echo:        {OperandReg},
	EchoNewline: {},

	Jmp: {OperandReg},
	Je:  {OperandReg},
	Jne: {OperandReg},
	Jg:  {OperandReg},
	Jge: {OperandReg},

	Call: {OperandReg, OperandU8},
	Ret:  {},

	BeginTry: {OperandReg},
	EndTry:   {},

	New:      {OperandReg, OperandReg},
	NewArray: {OperandReg, OperandU32},

	Cmp:  {OperandReg, OperandReg},
	Cmpz: {OperandReg},

	Add: {OperandReg, OperandReg, OperandReg},
	Sub: {OperandReg, OperandReg, OperandReg},
	Mul: {OperandReg, OperandReg, OperandReg},
	Div: {OperandReg, OperandReg, OperandReg},
	Mod: {OperandReg, OperandReg, OperandReg},
	Neg: {OperandReg, OperandReg},

	And: {OperandReg, OperandReg, OperandReg},
	Or:  {OperandReg, OperandReg, OperandReg},
	Xor: {OperandReg, OperandReg, OperandReg},
	Shl: {OperandReg, OperandReg, OperandReg},
	Shr: {OperandReg, OperandReg, OperandReg},

	Exit: {},
}

// VariadicStringOpcodes and VariadicTypeOpcodes list the opcodes the
// assembler/disassembler must special-case outside OperandLayouts.
var (
	VariadicStringOpcodes = map[Opcode]bool{StoreStaticString: true, LoadString: true}
	VariadicTypeOpcodes   = map[Opcode]bool{StoreStaticType: true, LoadType: true}
)
