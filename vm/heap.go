package vm

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	lru "github.com/hashicorp/golang-lru"
)

// HeapKind identifies which variant a HeapValue is currently boxing.
type HeapKind uint8

const (
	HeapString HeapKind = iota
	HeapArray
	HeapObject
	HeapTypeInfo
	HeapNativeLibrary
)

// Array is a growable ordered sequence of Values.
type Array struct {
	Elems []Value
}

// Member is one field slot inside an Object: a name hash for O(1)
// dynamic lookup, plus the value itself.
type Member struct {
	NameHash uint32
	Value    Value
}

// TypeInfo is the heap-resident blueprint NEW copies from: a type name
// plus its ordered member names. The member-by-hash cache is populated
// lazily and shared by every Object instantiated from this TypeInfo.
type TypeInfo struct {
	Name        string
	FieldNames  []string
	hashToIndex *lru.Cache // uint32 name-hash -> int field index
}

func newTypeInfo(name string, fields []string) *TypeInfo {
	cache, _ := lru.New(len(fields) + 8)
	return &TypeInfo{Name: name, FieldNames: fields, hashToIndex: cache}
}

func (t *TypeInfo) Size() int { return len(t.FieldNames) }

// indexForHash resolves a member-name hash to its declared field index,
// memoizing the (rare, emitter-guaranteed collision-free) linear scan.
func (t *TypeInfo) indexForHash(hash uint32) (int, bool) {
	if v, ok := t.hashToIndex.Get(hash); ok {
		return v.(int), true
	}
	for i, name := range t.FieldNames {
		if FNV1(name) == hash {
			t.hashToIndex.Add(hash, i)
			return i, true
		}
	}
	return 0, false
}

// Object is a record: a weak reference to the TypeInfo that shapes it,
// plus a parallel vector of members addressable by declared index or by
// FNV-1 hash of the field name.
type Object struct {
	TypeIdx int32 // heap index of the owning TypeInfo
	Members []Member
}

// NativeLibrary is a bound handle to a dynamically loaded native
// library (see library.go).
type NativeLibrary struct {
	Path   string
	loader *loadedLibrary
}

// HeapValue is an owned box on the managed heap. It carries a dynamic
// type id, a GC mark bit, and exactly one of the five payload variants.
// The heap links these intrusively so sweep can walk every node in one
// pass; freeing a node also clears its entry in the heap's slot table.
type HeapValue struct {
	kind   HeapKind
	typeID int32
	marked bool

	next *HeapValue
	prev *HeapValue

	str string
	arr *Array
	obj *Object
	typ *TypeInfo
	lib *NativeLibrary
}

func (h *HeapValue) Kind() HeapKind { return h.kind }
func (h *HeapValue) TypeID() int32  { return h.typeID }
func (h *HeapValue) String() string { return h.str }
func (h *HeapValue) Array() *Array  { return h.arr }
func (h *HeapValue) Object() *Object { return h.obj }
func (h *HeapValue) TypeInfo() *TypeInfo { return h.typ }
func (h *HeapValue) NativeLibrary() *NativeLibrary { return h.lib }

// Heap is an intrusive singly(-ish, doubly for O(1) unlink)-linked list
// of HeapValue nodes. Allocation is O(1) at the head; sweep walks the
// whole list once, unlinking anything left unmarked.
type Heap struct {
	head *HeapValue
	tail *HeapValue
	// nodes is indexed by the stable slot id every HeapPointer carries;
	// a freed slot is nilled out and its index recycled via freeList so
	// that HeapPointer stays a small integer instead of a raw pointer.
	nodes    []*HeapValue
	freeList []int32

	count       int
	maxObjects  int
	hardCeiling int

	nextTypeID int32
}

const (
	defaultMaxObjects  = 64
	defaultHardCeiling = 1 << 20
	heapGrowthFactor   = 2
)

func NewHeap() *Heap {
	return &Heap{
		maxObjects:  defaultMaxObjects,
		hardCeiling: defaultHardCeiling,
	}
}

func (h *Heap) Count() int { return h.count }

// Dump renders every live heap slot via spew, for the driver's debug
// inspection command - never called from opcode handling itself.
func (h *Heap) Dump() string {
	var cfg spew.ConfigState
	cfg.DisableMethods = true
	cfg.Indent = "  "
	live := make(map[int32]*HeapValue, h.count)
	for idx, node := range h.nodes {
		if node != nil {
			live[int32(idx)] = node
		}
	}
	return cfg.Sdump(live)
}

func (h *Heap) Get(idx int32) *HeapValue {
	if idx < 0 || int(idx) >= len(h.nodes) {
		return nil
	}
	return h.nodes[idx]
}

// link allocates a slot for node and threads it onto the intrusive
// list. Called only from VMState.alloc, which has already decided
// whether a GC pass is due.
func (h *Heap) link(node *HeapValue) int32 {
	var idx int32
	if n := len(h.freeList); n > 0 {
		idx = h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
		h.nodes[idx] = node
	} else {
		idx = int32(len(h.nodes))
		h.nodes = append(h.nodes, node)
	}

	node.next = h.head
	if h.head != nil {
		h.head.prev = node
	}
	h.head = node
	if h.tail == nil {
		h.tail = node
	}

	h.count++
	return idx
}

func (h *Heap) allocTypeID() int32 {
	id := h.nextTypeID
	h.nextTypeID++
	return id
}

// clearMarks resets every live node ahead of a mark phase.
func (h *Heap) clearMarks() {
	for n := h.head; n != nil; n = n.next {
		n.marked = false
	}
}

// sweep frees every unmarked node, returning the number collected.
func (h *Heap) sweep() int {
	freed := 0
	n := h.head
	for n != nil {
		next := n.next
		if !n.marked {
			h.unlink(n)
			freed++
		}
		n = next
	}
	return freed
}

func (h *Heap) unlink(n *HeapValue) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		h.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		h.tail = n.prev
	}
	n.next, n.prev = nil, nil

	for idx, node := range h.nodes {
		if node == n {
			h.nodes[idx] = nil
			h.freeList = append(h.freeList, int32(idx))
			break
		}
	}
	h.count--
}

// FNV1 hashes raw UTF-8 bytes using the (non-"a") FNV-1 variant, as the
// bytecode's member-name hashing scheme requires.
func FNV1(s string) uint32 {
	hasher := fnv.New32()
	_, _ = hasher.Write([]byte(s))
	return hasher.Sum32()
}

// render produces the user-facing / JSON-ish string for the heap value
// at idx. json=true quotes strings and always uses braces/brackets;
// json=false matches String()'s bare rendering for top-level strings.
func (h *Heap) render(idx int32, json bool) string {
	node := h.Get(idx)
	if node == nil {
		return "null"
	}

	switch node.kind {
	case HeapString:
		if json {
			return fmt.Sprintf("%q", node.str)
		}
		return node.str
	case HeapArray:
		var b strings.Builder
		b.WriteByte('[')
		for i, elem := range node.arr.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			if truncateRepr(&b, reprMaxLen) {
				b.WriteString("...")
				break
			}
			b.WriteString(elem.Repr(h, true))
		}
		b.WriteByte(']')
		return b.String()
	case HeapObject:
		var b strings.Builder
		b.WriteByte('{')
		typ := h.Get(node.obj.TypeIdx)
		for i, m := range node.obj.Members {
			if i > 0 {
				b.WriteString(", ")
			}
			if truncateRepr(&b, reprMaxLen) {
				b.WriteString("...")
				break
			}
			name := fmt.Sprintf("#%d", m.NameHash)
			if typ != nil && typ.typ != nil && i < len(typ.typ.FieldNames) {
				name = typ.typ.FieldNames[i]
			}
			fmt.Fprintf(&b, "%s: %s", name, m.Value.Repr(h, true))
		}
		b.WriteByte('}')
		return b.String()
	case HeapTypeInfo:
		return fmt.Sprintf("<type %s>", node.typ.Name)
	case HeapNativeLibrary:
		return fmt.Sprintf("<native library %s>", node.lib.Path)
	default:
		return "?unknown?"
	}
}
