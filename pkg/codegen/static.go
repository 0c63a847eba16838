package codegen

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/xplshn/g65/pkg/ast"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/image"
)

// MaxJumps bounds the number of forward branches in one program.
const MaxJumps = 16

// Entry is a static area slot: one stack byte holding a variable or an
// intermediate result. Until back-patching its address is the placeholder
// T<ID>.
type Entry struct {
	ID       int
	Name     string
	ScopeID  int
	Type     ast.VarType
	Offset   int
	Usable   bool
	Resolved bool
	Addr     byte
}

func (e *Entry) Anonymous() bool { return e.Name == "" }

// Low and High are the operand cells of an absolute reference to e.
func (e *Entry) Low() image.Cell {
	if e.Resolved {
		return image.Byte(e.Addr)
	}
	return image.TempLow(e.ID)
}

func (e *Entry) High() image.Cell {
	if e.Resolved {
		return image.Byte(0)
	}
	return image.TempHigh(e.ID)
}

func (e *Entry) String() string {
	name := e.Name
	if e.Anonymous() {
		name = "_"
	}
	return fmt.Sprintf("%s@%d(T%d)", name, e.ScopeID, e.ID)
}

type entryKey struct {
	name  string
	scope int
}

// HeapString is an interned string literal.
type HeapString struct {
	Value string `cbor:"1,keyasint"`
	Addr  byte   `cbor:"2,keyasint"`
}

// StaticTable tracks every stack slot, heap string and forward jump of one
// program.
type StaticTable struct {
	idents  map[entryKey]*Entry
	all     []*Entry
	anon    []*Entry
	strings map[uint64][]HeapString
	heap    []HeapString
	jumps   []int
	intern  bool
	reuse   bool
}

func NewStaticTable(cfg *config.Config) *StaticTable {
	return &StaticTable{
		idents:  make(map[entryKey]*Entry),
		strings: make(map[uint64][]HeapString),
		intern:  cfg.IsFeatureEnabled(config.FeatInternStrings),
		reuse:   cfg.IsFeatureEnabled(config.FeatReuseTemps),
	}
}

func (st *StaticTable) newEntry(name string, scopeID int, typ ast.VarType) *Entry {
	e := &Entry{ID: len(st.all), Name: name, ScopeID: scopeID, Type: typ, Offset: len(st.all)}
	st.all = append(st.all, e)
	return e
}

// Put allocates the slot of a declared variable. It returns the existing
// entry and false if (name, scopeID) is already present.
func (st *StaticTable) Put(name string, scopeID int, typ ast.VarType) (*Entry, bool) {
	k := entryKey{name, scopeID}
	if e, ok := st.idents[k]; ok {
		return e, false
	}
	e := st.newEntry(name, scopeID, typ)
	st.idents[k] = e
	return e, true
}

func (st *StaticTable) Get(name string, scopeID int) (*Entry, bool) {
	e, ok := st.idents[entryKey{name, scopeID}]
	return e, ok
}

// Lookup resolves name from scope outward, the way a block sees it.
func (st *StaticTable) Lookup(name string, scope *ast.Scope) (*Entry, bool) {
	for s := scope; s != nil; s = s.Parent {
		if e, ok := st.Get(name, s.ID); ok {
			return e, true
		}
	}
	return nil, false
}

// GetOrAllocAnonymous hands out a free intermediate slot, reusing a released
// one when possible.
func (st *StaticTable) GetOrAllocAnonymous() *Entry {
	if st.reuse {
		for _, e := range st.anon {
			if e.Usable {
				e.Usable = false
				return e
			}
		}
	}
	e := st.newEntry("", -1, ast.TypeUnknown)
	st.anon = append(st.anon, e)
	return e
}

// Free releases an anonymous slot. Variables are never freed.
func (st *StaticTable) Free(e *Entry) {
	if e != nil && e.Anonymous() {
		e.Usable = true
	}
}

// InternString returns the heap address of value, writing it to img the
// first time it is seen.
func (st *StaticTable) InternString(img *image.Image, value string) (byte, error) {
	sum := xxhash.Sum64String(value)
	if st.intern {
		for _, hs := range st.strings[sum] {
			if hs.Value == value {
				return hs.Addr, nil
			}
		}
	}
	addr, err := img.WriteStringToHeap(value)
	if err != nil {
		return 0, fmt.Errorf("%w: string %q: %w", ErrCapacity, value, err)
	}
	hs := HeapString{Value: value, Addr: addr}
	st.strings[sum] = append(st.strings[sum], hs)
	st.heap = append(st.heap, hs)
	return addr, nil
}

// PutJump reserves a jump placeholder with an unknown distance.
func (st *StaticTable) PutJump() (int, error) {
	if len(st.jumps) >= MaxJumps {
		return 0, fmt.Errorf("%w: more than %d branches", ErrJumpTableFull, MaxJumps)
	}
	st.jumps = append(st.jumps, -1)
	return len(st.jumps) - 1, nil
}

func (st *StaticTable) SetJump(id, distance int) error {
	if id < 0 || id >= len(st.jumps) {
		return fmt.Errorf("%w: no jump J%d", ErrMalformedTree, id)
	}
	if distance < 0 || distance > 0xFF {
		return fmt.Errorf("%w: branch over %d bytes", ErrCapacity, distance)
	}
	st.jumps[id] = distance
	return nil
}

// GetJump returns the distance of J<id>, -1 while unresolved.
func (st *StaticTable) GetJump(id int) (int, bool) {
	if id < 0 || id >= len(st.jumps) {
		return 0, false
	}
	return st.jumps[id], true
}

// Size is the number of stack bytes the program needs.
func (st *StaticTable) Size() int           { return len(st.all) }
func (st *StaticTable) AnonymousCount() int { return len(st.anon) }

// Entries lists every slot in stack order.
func (st *StaticTable) Entries() []*Entry     { return st.all }
func (st *StaticTable) Strings() []HeapString { return st.heap }
func (st *StaticTable) Jumps() []int          { return st.jumps }

func (st *StaticTable) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-4s %-4s %-5s %-8s %-6s %s\n", "TEMP", "VAR", "SCOPE", "TYPE", "OFFSET", "ADDR")
	for _, e := range st.all {
		name, scope, typ := e.Name, fmt.Sprint(e.ScopeID), e.Type.String()
		if e.Anonymous() {
			name, scope, typ = "-", "-", "-"
		}
		fmt.Fprintf(&b, "T%-3d %-4s %-5s %-8s %-6d %s%s\n", e.ID, name, scope, typ, e.Offset, e.Low(), e.High())
	}
	for _, hs := range st.heap {
		fmt.Fprintf(&b, "heap %02X %q\n", hs.Addr, hs.Value)
	}
	for id, d := range st.jumps {
		fmt.Fprintf(&b, "J%d %d\n", id, d)
	}
	return b.String()
}
