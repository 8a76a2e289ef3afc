package asm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestAssembleArithmeticPromotion(t *testing.T) {
	src := `
		load_i32 r0, 3
		load_f32 r1, 2.5
		add r0, r1, r2
		echo r2
		echo_newline
		exit
	`
	program, err := Assemble(src)
	require.NoError(t, err)
	require.NotEmpty(t, program)
}

func TestAssembleLabelResolution(t *testing.T) {
	src := `
		load_addr r0, target
		jmp r0
		load_i32 r1, 1
	target:
		load_i32 r1, 2
		exit
	`
	program, err := Assemble(src)
	require.NoError(t, err)

	text, err := Disassemble(program)
	require.NoError(t, err)
	require.Contains(t, text, "jmp r0")
	require.Contains(t, text, "load_i32 r1, 2")
}

func TestAssembleTypeDeclaration(t *testing.T) {
	src := `load_type r0, Point: x, y
exit`
	program, err := Assemble(src)
	require.NoError(t, err)

	text, err := Disassemble(program)
	require.NoError(t, err)
	require.Contains(t, text, "Point: x, y")
}

func TestRoundTripAssembleDisassemble(t *testing.T) {
	src := `
		load_i32 r0, 10
		load_i32 r1, 0
		div r0, r1, r2
		echo r2
		exit
	`
	program, err := Assemble(src)
	require.NoError(t, err)

	text, err := Disassemble(program)
	require.NoError(t, err)

	again, err := Assemble(text)
	require.NoError(t, err)
	if diff := cmp.Diff(program, again); diff != "" {
		t.Fatalf("re-assembling a disassembly must reproduce the same bytes (-want +got):\n%s", diff)
	}
}

func TestAssembleUnknownMnemonic(t *testing.T) {
	_, err := Assemble("definitely_not_an_opcode r0")
	require.Error(t, err)
}

func TestAssembleStoreStaticString(t *testing.T) {
	src := `store_static_string "hello\n"
exit`
	program, err := Assemble(src)
	require.NoError(t, err)

	text, err := Disassemble(program)
	require.NoError(t, err)
	require.Contains(t, text, "store_static_string")
}
