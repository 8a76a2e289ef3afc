package asm

import (
	"fmt"
	"strconv"
	"strings"

	"ace/vm"
)

// Disassemble renders a bytecode buffer back to the textual form
// Assemble accepts. Addresses are rendered as bare numeric literals
// rather than synthesized labels, which keeps assemble(disassemble(b))
// byte-identical to b without needing a control-flow analysis pass to
// decide which numeric operands are jump targets worth naming.
func Disassemble(program []byte) (string, error) {
	stream := vm.NewBytecodeStream(program)
	var b strings.Builder

	for !stream.Eof() {
		code, err := stream.ReadU8()
		if err != nil {
			break
		}
		op := vm.Opcode(code)

		line, err := disassembleOne(op, stream)
		if err != nil {
			return "", fmt.Errorf("at offset %d: %w", stream.Position(), err)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func disassembleOne(op vm.Opcode, stream *vm.BytecodeStream) (string, error) {
	mnemonic := op.String()

	if vm.VariadicStringOpcodes[op] {
		var regPart string
		if op == vm.LoadString {
			r, err := stream.ReadU8()
			if err != nil {
				return "", err
			}
			regPart = fmt.Sprintf("r%d, ", r)
		}
		s, err := stream.ReadString()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s%q", mnemonic, regPart, s), nil
	}

	if vm.VariadicTypeOpcodes[op] {
		var regPart string
		if op == vm.LoadType {
			r, err := stream.ReadU8()
			if err != nil {
				return "", err
			}
			regPart = fmt.Sprintf("r%d, ", r)
		}
		name, err := stream.ReadShortString()
		if err != nil {
			return "", err
		}
		n, err := stream.ReadU16()
		if err != nil {
			return "", err
		}
		fields := make([]string, n)
		for i := range fields {
			f, err := stream.ReadShortString()
			if err != nil {
				return "", err
			}
			fields[i] = f
		}
		return fmt.Sprintf("%s %s%s: %s", mnemonic, regPart, name, strings.Join(fields, ", ")), nil
	}

	layout, ok := vm.OperandLayouts[op]
	if !ok {
		return "", fmt.Errorf("unknown opcode %#x", byte(op))
	}

	operands := make([]string, 0, len(layout))
	for _, k := range layout {
		s, err := disassembleOperand(stream, k)
		if err != nil {
			return "", err
		}
		operands = append(operands, s)
	}

	if len(operands) == 0 {
		return mnemonic, nil
	}
	return fmt.Sprintf("%s %s", mnemonic, strings.Join(operands, ", ")), nil
}

func disassembleOperand(stream *vm.BytecodeStream, k vm.OperandKind) (string, error) {
	switch k {
	case vm.OperandReg:
		r, err := stream.ReadU8()
		return fmt.Sprintf("r%d", r), err
	case vm.OperandU8:
		n, err := stream.ReadU8()
		return strconv.Itoa(int(n)), err
	case vm.OperandU16:
		n, err := stream.ReadU16()
		return strconv.Itoa(int(n)), err
	case vm.OperandU32:
		n, err := stream.ReadU32()
		return strconv.FormatUint(uint64(n), 10), err
	case vm.OperandI32:
		n, err := stream.ReadI32()
		return strconv.Itoa(int(n)), err
	case vm.OperandI64:
		n, err := stream.ReadI64()
		return strconv.FormatInt(n, 10), err
	case vm.OperandF32:
		f, err := stream.ReadF32()
		return strconv.FormatFloat(float64(f), 'g', -1, 32), err
	case vm.OperandF64:
		f, err := stream.ReadF64()
		return strconv.FormatFloat(f, 'g', -1, 64), err
	default:
		return "", fmt.Errorf("unhandled operand kind %d", k)
	}
}
