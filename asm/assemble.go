// Package asm is a minimal textual assembler/disassembler for the Ace
// bytecode format described in the vm package: mnemonic per opcode,
// comma-separated operands, `name:` labels resolved to byte offsets in
// a single structural pass (operand encoding widths never depend on a
// label's resolved value, so sizes and label offsets can be computed
// together before any address is substituted).
package asm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"ace/vm"
)

// commentPattern matches a `#` or `;` comment running to end of line,
// but only where the rest of the line holds an even number of unescaped
// double quotes, so the same characters inside a string literal are kept.
var commentPattern = regexp2.MustCompile(`[#;](?=(?:[^"\\]|\\.)*(?:"(?:[^"\\]|\\.)*"(?:[^"\\]|\\.)*)*$).*$`, regexp2.None)

func stripComment(line string) string {
	out, err := commentPattern.Replace(line, "", -1, -1)
	if err != nil {
		return line
	}
	return out
}

type instrLine struct {
	lineNo   int
	op       vm.Opcode
	operands []string
	str      string   // for StoreStaticString/LoadString
	typeName string   // for StoreStaticType/LoadType
	fields   []string // for StoreStaticType/LoadType
}

// Assemble compiles source text into a flat bytecode buffer. Labels are
// resolved to absolute byte offsets from the start of the buffer.
func Assemble(source string) ([]byte, error) {
	lines := strings.Split(source, "\n")

	labels := make(map[string]uint32)
	instrs := make([]instrLine, 0, len(lines))
	var offset uint32

	for i, raw := range lines {
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " \t") {
			name := strings.TrimSuffix(line, ":")
			if _, dup := labels[name]; dup {
				return nil, fmt.Errorf("line %d: duplicate label %q", i+1, name)
			}
			labels[name] = offset
			continue
		}

		il, size, err := parseLine(i+1, line)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, il)
		offset += size
	}

	var buf bytes.Buffer
	for _, il := range instrs {
		if err := emit(&buf, il, labels); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func parseLine(lineNo int, line string) (instrLine, uint32, error) {
	fields := strings.SplitN(line, " ", 2)
	mnemonic := strings.ToLower(fields[0])
	op, ok := vm.OpcodeByName(mnemonic)
	if !ok {
		return instrLine{}, 0, fmt.Errorf("line %d: unknown mnemonic %q", lineNo, mnemonic)
	}

	var rest string
	if len(fields) > 1 {
		rest = fields[1]
	}

	if vm.VariadicStringOpcodes[op] {
		reg, str, err := splitRegAndString(rest)
		if err != nil {
			return instrLine{}, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		il := instrLine{lineNo: lineNo, op: op, str: str}
		size := uint32(1)
		if op == vm.LoadString {
			il.operands = []string{reg}
			size += 1
		}
		size += 4 + uint32(len(str))
		return il, size, nil
	}

	if vm.VariadicTypeOpcodes[op] {
		reg, name, types, err := splitTypeDecl(rest)
		if err != nil {
			return instrLine{}, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		il := instrLine{lineNo: lineNo, op: op, typeName: name, fields: types}
		size := uint32(1)
		if op == vm.LoadType {
			il.operands = []string{reg}
			size += 1
		}
		size += 2 + uint32(len(name))
		size += 2
		for _, f := range types {
			size += 2 + uint32(len(f))
		}
		return il, size, nil
	}

	layout := vm.OperandLayouts[op]
	operands := splitOperands(rest)
	if len(operands) != len(layout) {
		return instrLine{}, 0, fmt.Errorf("line %d: %s expects %d operands, got %d", lineNo, mnemonic, len(layout), len(operands))
	}

	size := uint32(1)
	for _, k := range layout {
		size += operandWidth(k)
	}
	return instrLine{lineNo: lineNo, op: op, operands: operands}, size, nil
}

func operandWidth(k vm.OperandKind) uint32 {
	switch k {
	case vm.OperandReg, vm.OperandU8:
		return 1
	case vm.OperandU16:
		return 2
	case vm.OperandU32, vm.OperandI32, vm.OperandF32:
		return 4
	case vm.OperandI64, vm.OperandF64:
		return 8
	default:
		return 0
	}
}

func splitOperands(rest string) []string {
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	parts := strings.Split(rest, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// splitRegAndString parses `r0, "hello\n"` (LOAD_STRING) or `"hello\n"`
// (STORE_STATIC_STRING).
func splitRegAndString(rest string) (reg string, str string, err error) {
	rest = strings.TrimSpace(rest)
	if idx := strings.Index(rest, "\""); idx > 0 {
		reg = strings.TrimSpace(strings.TrimSuffix(rest[:idx], ","))
	}
	first := strings.Index(rest, "\"")
	last := strings.LastIndex(rest, "\"")
	if first < 0 || last <= first {
		return "", "", fmt.Errorf("expected a quoted string operand")
	}
	if unquoted, uerr := strconv.Unquote(rest[first : last+1]); uerr == nil {
		str = unquoted
	} else {
		str = unescape(rest[first+1 : last])
	}
	return reg, str, nil
}

// splitTypeDecl parses `Point: x, y` or `r0, Point: x, y`.
func splitTypeDecl(rest string) (reg, name string, fields []string, err error) {
	rest = strings.TrimSpace(rest)
	if colon := strings.Index(rest, ":"); colon >= 0 {
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
		return reg, name, fields, nil
	}
	return "", "", nil, fmt.Errorf("expected a type declaration of the form Name: field, field")
}

func unescape(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`)
	return r.Replace(s)
}

func parseReg(tok string) (uint8, error) {
	tok = strings.TrimSpace(tok)
	if !strings.HasPrefix(tok, "r") {
		return 0, fmt.Errorf("expected a register like r0, got %q", tok)
	}
	n, err := strconv.ParseUint(tok[1:], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("bad register %q: %w", tok, err)
	}
	return uint8(n), nil
}

func emit(buf *bytes.Buffer, il instrLine, labels map[string]uint32) error {
	buf.WriteByte(byte(il.op))

	switch {
	case vm.VariadicStringOpcodes[il.op]:
		if il.op == vm.LoadString {
			r, err := parseReg(il.operands[0])
			if err != nil {
				return err
			}
			buf.WriteByte(r)
		}
		binary.Write(buf, binary.LittleEndian, uint32(len(il.str)))
		buf.WriteString(il.str)
		return nil

	case vm.VariadicTypeOpcodes[il.op]:
		if il.op == vm.LoadType {
			r, err := parseReg(il.operands[0])
			if err != nil {
				return err
			}
			buf.WriteByte(r)
		}
		binary.Write(buf, binary.LittleEndian, uint16(len(il.typeName)))
		buf.WriteString(il.typeName)
		binary.Write(buf, binary.LittleEndian, uint16(len(il.fields)))
		for _, f := range il.fields {
			binary.Write(buf, binary.LittleEndian, uint16(len(f)))
			buf.WriteString(f)
		}
		return nil
	}

	layout := vm.OperandLayouts[il.op]
	for i, k := range layout {
		tok := il.operands[i]
		if err := emitOperand(buf, k, tok, labels, il.lineNo); err != nil {
			return err
		}
	}
	return nil
}

func emitOperand(buf *bytes.Buffer, k vm.OperandKind, tok string, labels map[string]uint32, lineNo int) error {
	switch k {
	case vm.OperandReg:
		r, err := parseReg(tok)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		buf.WriteByte(r)
	case vm.OperandU8:
		n, err := strconv.ParseUint(tok, 0, 8)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		buf.WriteByte(byte(n))
	case vm.OperandU16:
		n, err := strconv.ParseUint(tok, 0, 16)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		binary.Write(buf, binary.LittleEndian, uint16(n))
	case vm.OperandU32:
		n, err := resolveU32(tok, labels)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		binary.Write(buf, binary.LittleEndian, n)
	case vm.OperandI32:
		n, err := strconv.ParseInt(tok, 0, 32)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		binary.Write(buf, binary.LittleEndian, int32(n))
	case vm.OperandI64:
		n, err := strconv.ParseInt(tok, 0, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		binary.Write(buf, binary.LittleEndian, n)
	case vm.OperandF32:
		f, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		binary.Write(buf, binary.LittleEndian, math.Float32bits(float32(f)))
	case vm.OperandF64:
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		binary.Write(buf, binary.LittleEndian, math.Float64bits(f))
	}
	return nil
}

func resolveU32(tok string, labels map[string]uint32) (uint32, error) {
	if addr, ok := labels[tok]; ok {
		return addr, nil
	}
	n, err := strconv.ParseUint(tok, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unresolved label or bad address %q", tok)
	}
	return uint32(n), nil
}
