package corelib

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ace/vm"
)

func newTestState(t *testing.T, stdin string) (*vm.VMState, *vm.Params) {
	t.Helper()
	var out bytes.Buffer
	state := vm.NewVMState(vm.DefaultConfig(), &out, strings.NewReader(stdin))
	Install(state, nil)

	handler := &vm.InstructionHandler{State: state, Thread: state.MainThread()}
	return state, &vm.Params{Handler: handler}
}

func TestLenOnArray(t *testing.T) {
	state, p := newTestState(t, "")
	idx, ok := state.AllocArray(state.MainThread(), []vm.Value{vm.I32(1), vm.I32(2), vm.I32(3)})
	require.True(t, ok)

	fn, ok := state.Natives.Lookup("len")
	require.True(t, ok)

	p.Args = []*vm.Value{ptr(vm.HeapPointer(idx))}
	p.NArgs = 1
	result, err := fn(p)
	require.NoError(t, err)
	require.Equal(t, int64(3), mustInt(result))
}

func TestArrayPushAndPop(t *testing.T) {
	state, p := newTestState(t, "")
	idx, ok := state.AllocArray(state.MainThread(), nil)
	require.True(t, ok)

	push, _ := state.Natives.Lookup("array_push")
	p.Args = []*vm.Value{ptr(vm.HeapPointer(idx)), ptr(vm.I32(42))}
	p.NArgs = 2
	_, err := push(p)
	require.NoError(t, err)

	node := state.Heap.Get(idx)
	require.Len(t, node.Array().Elems, 1)

	pop, _ := state.Natives.Lookup("array_pop")
	result, err := pop(p)
	require.NoError(t, err)
	require.Equal(t, int64(42), mustInt(result))
	require.Len(t, node.Array().Elems, 0)
}

func TestPromptReadsOneLine(t *testing.T) {
	state, p := newTestState(t, "hello there\nsecond line\n")
	prompt, _ := state.Natives.Lookup("prompt")

	result, err := prompt(p)
	require.NoError(t, err)
	require.True(t, result.Kind() == vm.KindHeapPointer && !result.IsNull())

	node := state.Heap.Get(result.HeapIndex())
	require.Equal(t, "hello there", node.String())
}

func TestToString(t *testing.T) {
	state, p := newTestState(t, "")
	toString, _ := state.Natives.Lookup("to_string")

	p.Args = []*vm.Value{ptr(vm.I32(7))}
	p.NArgs = 1
	result, err := toString(p)
	require.NoError(t, err)

	node := state.Heap.Get(result.HeapIndex())
	require.Equal(t, "7", node.String())
}

func ptr(v vm.Value) *vm.Value { return &v }

func mustInt(v vm.Value) int64 {
	n, _ := v.GetInteger()
	return n
}
