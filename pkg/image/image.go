// Package image models the 256-byte memory of the target machine. Memory is
// split into a code region growing up from address 0, a stack region placed
// right after the code once generation is done, and a heap growing down from
// the last address.
package image

import (
	"errors"
	"fmt"
)

const (
	Size     = 256
	CodeBase = 0
	HeapBase = Size - 1
)

// Start addresses of the strings every image is seeded with.
const (
	NullAddr  byte = 0xFB
	FalseAddr byte = 0xF5
	TrueAddr  byte = 0xF0
)

var (
	ErrOutOfBounds   = errors.New("address out of bounds")
	ErrCollision     = errors.New("region collision")
	ErrNotContiguous = errors.New("non-contiguous write")
	ErrSelfModify    = errors.New("code write into initialized stack")
	ErrStackNotReady = errors.New("stack not initialized")
	ErrInvalidCell   = errors.New("invalid cell")
	ErrUnresolved    = errors.New("unresolved placeholder")
	ErrBadInvariant  = errors.New("region invariant violated")
)

type Image struct {
	mem        [Size]Cell
	codeLimit  int
	stackReady bool
	stackBase  int
	stackLimit int
	heapLimit  int
}

// New returns an empty image whose heap holds "null", "false" and "true".
func New() *Image {
	img := &Image{codeLimit: -1, stackBase: -1, stackLimit: -1, heapLimit: Size}
	for _, s := range []string{"null", "false", "true"} {
		if _, err := img.WriteStringToHeap(s); err != nil {
			panic(fmt.Sprintf("image: seeding heap: %v", err))
		}
	}
	return img
}

func (img *Image) CodeLimit() int   { return img.codeLimit }
func (img *Image) StackReady() bool { return img.stackReady }

// StackBase is -1 until InitializeStack is called.
func (img *Image) StackBase() int  { return img.stackBase }
func (img *Image) StackLimit() int { return img.stackLimit }
func (img *Image) HeapLimit() int  { return img.heapLimit }

// CodeSize is the number of bytes written to the code region.
func (img *Image) CodeSize() int { return img.codeLimit + 1 }

// StackSize is the number of bytes written to the stack region.
func (img *Image) StackSize() int {
	if !img.stackReady {
		return 0
	}
	return img.stackLimit - img.stackBase + 1
}

// lowWater is the highest address owned by the code or stack region.
func (img *Image) lowWater() int {
	if img.stackReady {
		return img.stackLimit
	}
	return img.codeLimit
}

func checkAddr(addr int) error {
	if addr < 0 || addr >= Size {
		return fmt.Errorf("%w: %d", ErrOutOfBounds, addr)
	}
	return nil
}

func checkCell(c Cell) error {
	if !c.valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidCell, c)
	}
	return nil
}

// WriteCode appends c at the end of the code region.
func (img *Image) WriteCode(c Cell) error {
	return img.WriteCodeAt(img.codeLimit+1, c)
}

// WriteCodeAt overwrites an already written code cell, or appends when addr
// is the next free code address.
func (img *Image) WriteCodeAt(addr int, c Cell) error {
	if err := checkCell(c); err != nil {
		return err
	}
	if err := checkAddr(addr); err != nil {
		return err
	}
	if img.stackReady && addr >= img.stackBase {
		return fmt.Errorf("%w: address %02X, stack starts at %02X", ErrSelfModify, addr, img.stackBase)
	}
	if addr >= img.heapLimit {
		return fmt.Errorf("%w: code address %02X reaches heap at %02X", ErrCollision, addr, img.heapLimit)
	}
	if addr > img.codeLimit+1 {
		return fmt.Errorf("%w: code address %02X, next free is %02X", ErrNotContiguous, addr, img.codeLimit+1)
	}
	img.mem[addr] = c
	if addr == img.codeLimit+1 {
		img.codeLimit = addr
	}
	return nil
}

// ReadCode returns a written code cell.
func (img *Image) ReadCode(addr int) (Cell, error) {
	if addr < CodeBase || addr > img.codeLimit {
		return Cell{}, fmt.Errorf("%w: code address %d, code ends at %d", ErrOutOfBounds, addr, img.codeLimit)
	}
	return img.mem[addr], nil
}

// Read returns any cell of the image.
func (img *Image) Read(addr int) (Cell, error) {
	if err := checkAddr(addr); err != nil {
		return Cell{}, err
	}
	return img.mem[addr], nil
}

// InitializeStack places the stack right after the code. No code can be
// appended afterwards.
func (img *Image) InitializeStack() error {
	if img.stackReady {
		return nil
	}
	base := img.codeLimit + 1
	if base >= img.heapLimit {
		return fmt.Errorf("%w: stack at %02X would start inside the heap at %02X", ErrCollision, base, img.heapLimit)
	}
	img.stackReady = true
	img.stackBase = base
	img.stackLimit = base - 1
	return nil
}

// WriteStack appends c to the stack region.
func (img *Image) WriteStack(c Cell) error {
	if !img.stackReady {
		return ErrStackNotReady
	}
	if err := checkCell(c); err != nil {
		return err
	}
	addr := img.stackLimit + 1
	if err := checkAddr(addr); err != nil {
		return err
	}
	if addr >= img.heapLimit {
		return fmt.Errorf("%w: stack address %02X reaches heap at %02X", ErrCollision, addr, img.heapLimit)
	}
	img.mem[addr] = c
	img.stackLimit = addr
	return nil
}

// WriteHeap grows the heap downward by one cell.
func (img *Image) WriteHeap(c Cell) error {
	return img.WriteHeapAt(img.heapLimit-1, c)
}

// WriteHeapAt overwrites a heap cell, or grows the heap when addr is the
// next free heap address.
func (img *Image) WriteHeapAt(addr int, c Cell) error {
	if err := checkCell(c); err != nil {
		return err
	}
	if err := checkAddr(addr); err != nil {
		return err
	}
	if addr <= img.lowWater() {
		return fmt.Errorf("%w: heap address %02X reaches %02X", ErrCollision, addr, img.lowWater())
	}
	if addr < img.heapLimit-1 {
		return fmt.Errorf("%w: heap address %02X, next free is %02X", ErrNotContiguous, addr, img.heapLimit-1)
	}
	img.mem[addr] = c
	if addr < img.heapLimit {
		img.heapLimit = addr
	}
	return nil
}

// WriteStringToHeap stores s followed by a zero terminator and returns the
// address of its first character. Nothing is written if s does not fit.
func (img *Image) WriteStringToHeap(s string) (byte, error) {
	need := len(s) + 1
	if img.heapLimit-need <= img.lowWater() {
		return 0, fmt.Errorf("%w: %d byte string does not fit above %02X", ErrCollision, need, img.lowWater())
	}
	if err := img.WriteHeap(Byte(0)); err != nil {
		return 0, err
	}
	for i := len(s) - 1; i >= 0; i-- {
		if err := img.WriteHeap(Byte(s[i])); err != nil {
			return 0, err
		}
	}
	return byte(img.heapLimit), nil
}

// ReadString returns the zero-terminated string starting at addr.
func (img *Image) ReadString(addr int) (string, error) {
	var buf []byte
	for a := addr; ; a++ {
		c, err := img.Read(a)
		if err != nil {
			return "", err
		}
		if c.Pending() {
			return "", fmt.Errorf("%w: %s at %02X", ErrUnresolved, c, a)
		}
		if c.Value == 0 {
			return string(buf), nil
		}
		buf = append(buf, c.Value)
	}
}

// Check verifies code_limit < stack_base <= stack_limit+1 and
// stack_limit < heap_limit <= heap_base.
func (img *Image) Check() error {
	if img.heapLimit > HeapBase {
		return fmt.Errorf("%w: empty heap", ErrBadInvariant)
	}
	if !img.stackReady {
		if img.codeLimit >= img.heapLimit {
			return fmt.Errorf("%w: code %02X overlaps heap %02X", ErrBadInvariant, img.codeLimit, img.heapLimit)
		}
		return nil
	}
	if img.codeLimit >= img.stackBase || img.stackBase > img.stackLimit+1 || img.stackLimit >= img.heapLimit {
		return fmt.Errorf("%w: code<=%02X stack=%02X..%02X heap>=%02X", ErrBadInvariant, img.codeLimit, img.stackBase, img.stackLimit, img.heapLimit)
	}
	return nil
}

// Pending lists the addresses of unresolved cells.
func (img *Image) Pending() []int {
	var out []int
	for addr, c := range img.mem {
		if c.Pending() {
			out = append(out, addr)
		}
	}
	return out
}

// Bytes returns the raw memory. It fails while placeholders remain.
func (img *Image) Bytes() ([Size]byte, error) {
	var out [Size]byte
	for addr, c := range img.mem {
		if c.Pending() {
			return out, fmt.Errorf("%w: %s at %02X", ErrUnresolved, c, addr)
		}
		out[addr] = c.Value
	}
	return out, nil
}
