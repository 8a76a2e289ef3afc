package vm

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MainThreadID is the reserved id of the thread created alongside the
// VM; it is the only valid target of LOAD_INDEX/MOV_INDEX and is never
// destroyed.
const MainThreadID uint32 = 0

// Config tunes the knobs a host embedding the VM usually wants to set;
// see config.go for the on-disk (toml) form.
type Config struct {
	StackCapacity   int
	InitialMaxHeap  int
	HardHeapCeiling int
}

func DefaultConfig() Config {
	return Config{
		StackCapacity:   DefaultStackCapacity,
		InitialMaxHeap:  defaultMaxObjects,
		HardHeapCeiling: defaultHardCeiling,
	}
}

// VMState owns every piece of shared mutable state: the heap, static
// memory, and the thread table. A single mutex ("the dispatch mutex")
// is held for the duration of handling exactly one opcode across every
// thread - the only ordering guarantee the concurrency model makes (see
// Dispatcher.Step).
type VMState struct {
	mu sync.Mutex

	// id tags this VM instance for diagnostic correlation - it has no
	// bearing on program semantics and never reaches program stdout.
	id uuid.UUID

	Heap   *Heap
	Static *StaticMemory

	threads      map[uint32]*ExecutionThread
	nextThreadID uint32

	// Good is a sticky, VM-wide halt switch distinct from any one
	// thread's exception latch. Once false, every dispatcher loop
	// (main or spawned) stops cooperatively.
	Good bool

	Stdout *bufio.Writer
	Stdin  *bufio.Reader

	Natives *NativeRegistry
	cfg     Config

	group *errgroup.Group
}

// NewVMState creates a VM with thread #0 (the main thread) already
// present.
func NewVMState(cfg Config, stdout io.Writer, stdin io.Reader) *VMState {
	s := &VMState{
		id:      uuid.New(),
		Heap:    NewHeap(),
		Static:  NewStaticMemory(),
		threads: make(map[uint32]*ExecutionThread),
		Good:    true,
		Stdout:  bufio.NewWriter(stdout),
		Stdin:   bufio.NewReader(stdin),
		Natives: NewNativeRegistry(),
		cfg:     cfg,
		group:   &errgroup.Group{},
	}
	s.Heap.maxObjects = cfg.InitialMaxHeap
	s.Heap.hardCeiling = cfg.HardHeapCeiling

	main := NewExecutionThread(MainThreadID, cfg.StackCapacity)
	s.threads[MainThreadID] = main
	s.nextThreadID = 1
	return s
}

// InstanceID identifies this VM for log correlation when a host embeds
// more than one (e.g. a test suite running several in parallel).
func (s *VMState) InstanceID() string { return s.id.String() }

func (s *VMState) MainThread() *ExecutionThread { return s.threads[MainThreadID] }

func (s *VMState) Thread(id uint32) (*ExecutionThread, bool) {
	t, ok := s.threads[id]
	return t, ok
}

// CreateThread allocates a fresh ExecutionThread under the next free id
// and returns it.
// Must be called with the dispatch mutex held.
func (s *VMState) CreateThread() *ExecutionThread {
	id := s.nextThreadID
	s.nextThreadID++
	t := NewExecutionThread(id, s.cfg.StackCapacity)
	s.threads[id] = t
	return t
}

// DestroyThread releases a non-main thread's slot. Must be called with
// the dispatch mutex held.
func (s *VMState) DestroyThread(id uint32) {
	if id == MainThreadID {
		return
	}
	delete(s.threads, id)
}

// Lock/Unlock expose the single process-wide dispatch mutex. Every
// opcode handled by the Dispatcher runs with this held, which is the
// only cross-thread ordering guarantee the VM makes.
func (s *VMState) Lock()   { s.mu.Lock() }
func (s *VMState) Unlock() { s.mu.Unlock() }

// allThreads is used by the garbage collector's root-marking pass and
// must be called with the dispatch mutex already held.
func (s *VMState) allThreads() []*ExecutionThread {
	out := make([]*ExecutionThread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	return out
}

// alloc reserves a heap slot for node, running a GC pass first if the
// soft threshold has been crossed, and raising HeapOverflow on the
// calling thread if the hard ceiling is still exceeded afterwards.
// Must be called with the dispatch mutex held (i.e. from inside opcode
// handling).
func (s *VMState) alloc(thread *ExecutionThread, node *HeapValue) (int32, bool) {
	if s.Heap.count >= s.Heap.maxObjects {
		collectGarbage(s)
		if s.Heap.count >= s.Heap.maxObjects {
			if s.Heap.maxObjects*heapGrowthFactor > s.Heap.hardCeiling {
				s.Heap.maxObjects = s.Heap.hardCeiling
			} else {
				s.Heap.maxObjects *= heapGrowthFactor
			}
		}
	}
	if s.Heap.count >= s.Heap.hardCeiling {
		thread.Exception.Raise(ExcHeapOverflow, "heap exhausted after collection")
		return 0, false
	}
	return s.Heap.link(node), true
}

func (s *VMState) AllocString(thread *ExecutionThread, str string) (int32, bool) {
	return s.alloc(thread, &HeapValue{kind: HeapString, typeID: s.Heap.allocTypeID(), str: str})
}

func (s *VMState) AllocArray(thread *ExecutionThread, elems []Value) (int32, bool) {
	return s.alloc(thread, &HeapValue{kind: HeapArray, typeID: s.Heap.allocTypeID(), arr: &Array{Elems: elems}})
}

func (s *VMState) AllocTypeInfo(thread *ExecutionThread, name string, fields []string) (int32, bool) {
	return s.alloc(thread, &HeapValue{kind: HeapTypeInfo, typeID: s.Heap.allocTypeID(), typ: newTypeInfo(name, fields)})
}

func (s *VMState) AllocObject(thread *ExecutionThread, typeIdx int32) (int32, bool) {
	typeNode := s.Heap.Get(typeIdx)
	if typeNode == nil || typeNode.kind != HeapTypeInfo {
		thread.Exception.Raise(ExcTypeError, "NEW target is not a TypeInfo")
		return 0, false
	}
	members := make([]Member, len(typeNode.typ.FieldNames))
	for i, name := range typeNode.typ.FieldNames {
		members[i] = Member{NameHash: FNV1(name), Value: Null()}
	}
	return s.alloc(thread, &HeapValue{
		kind:   HeapObject,
		typeID: typeNode.typeID,
		obj:    &Object{TypeIdx: typeIdx, Members: members},
	})
}

func (s *VMState) AllocNativeLibrary(thread *ExecutionThread, lib *NativeLibrary) (int32, bool) {
	return s.alloc(thread, &HeapValue{kind: HeapNativeLibrary, typeID: s.Heap.allocTypeID(), lib: lib})
}

// SpawnThread implements the spawn_thread native primitive: it creates
// a fresh ExecutionThread, pushes args onto its stack, and launches an
// OS-backed goroutine that opens its own BytecodeStream over program,
// invokes entry on it and drives its own Dispatcher loop until the
// spawned function's FuncDepth returns to its launch value. The new
// stream starts at offset 0, not at the calling thread's cursor, so the
// call frame entry pushes records a return address of 0. The spawned thread
// is torn down from the thread table once that goroutine returns.
func (s *VMState) SpawnThread(program []byte, entry Value, args []Value) (uint32, error) {
	s.Lock()
	thread := s.CreateThread()
	for _, a := range args {
		if err := thread.Stack.Push(a); err != nil {
			s.DestroyThread(thread.ID)
			s.Unlock()
			return 0, err
		}
	}
	id := thread.ID
	s.Unlock()

	s.group.Go(func() error {
		stream := NewBytecodeStream(program)
		launchDepth := thread.FuncDepth

		s.Lock()
		if err := Invoke(s, thread, stream, entry, uint32(len(args))); err != nil {
			thread.Exception.Raise(ExcTypeError, err.Error())
		}
		s.Unlock()

		d := NewDispatcher(s)
		for thread.FuncDepth > launchDepth {
			if !d.Step(thread, stream) {
				break
			}
		}

		s.Lock()
		s.DestroyThread(id)
		s.Unlock()
		return nil
	})

	return id, nil
}

// Wait blocks until every spawned thread launched via SpawnThread has
// finished, used by the driver on orderly shutdown.
func (s *VMState) Wait() error { return s.group.Wait() }

func (s *VMState) Printf(format string, args ...any) {
	fmt.Fprintf(s.Stdout, format, args...)
}
