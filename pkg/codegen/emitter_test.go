package codegen

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/g65/pkg/ast"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/image"
	"github.com/xplshn/g65/pkg/isa"
)

func newTestEmitter() (*Emitter, *image.Image, *StaticTable) {
	img := image.New()
	st := NewStaticTable(config.NewConfig())
	return NewEmitter(img, st, nil), img, st
}

func codeCells(img *image.Image) []string {
	var out []string
	for addr := 0; addr <= img.CodeLimit(); addr++ {
		c, _ := img.ReadCode(addr)
		out = append(out, c.String())
	}
	return out
}

func TestEmitterEncoding(t *testing.T) {
	e, img, st := newTestEmitter()
	a, _ := st.Put("a", 0, ast.TypeInt)
	tmp := st.GetOrAllocAnonymous()

	steps := []func() error{
		func() error { return e.LDAConst(7) },
		func() error { return e.STA(a) },
		func() error { return e.ADC(tmp) },
		func() error { return e.LDXMem(a) },
		func() error { return e.CPX(tmp) },
		func() error { return e.BNE(image.Jump(0)) },
		func() error { return e.LDYConst(image.TrueAddr) },
		func() error { return e.LDXConst(isa.SysPrintString) },
		func() error { return e.SYS() },
		func() error { return e.BRK() },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	want := []string{
		"A9", "07",
		"8D", "T0", "XX",
		"6D", "T1", "XX",
		"AE", "T0", "XX",
		"EC", "T1", "XX",
		"D0", "J0",
		"A0", "F0",
		"A2", "02",
		"FF",
		"00",
	}
	if diff := cmp.Diff(want, codeCells(img)); diff != "" {
		t.Errorf("emitted code mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitterResolvedEntry(t *testing.T) {
	e, img, st := newTestEmitter()
	a, _ := st.Put("a", 0, ast.TypeInt)
	a.Resolved, a.Addr = true, 0x20
	if err := e.LDAMem(a); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"AD", "20", "00"}, codeCells(img)); diff != "" {
		t.Errorf("resolved reference mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitterOperandCount(t *testing.T) {
	e, img, _ := newTestEmitter()
	if err := e.emit(isa.OpLDAConst); !errors.Is(err, ErrMalformedTree) {
		t.Errorf("LDA# without operand: got %v, want ErrMalformedTree", err)
	}
	if img.CodeSize() != 0 {
		t.Errorf("rejected instruction wrote %d bytes", img.CodeSize())
	}
}

func TestEmitterCapacity(t *testing.T) {
	e, img, st := newTestEmitter()
	// 240 free bytes between an empty code region and the seeded heap.
	for i := 0; i < 239; i++ {
		st.Put(fmt.Sprintf("v%d", i), 0, ast.TypeInt)
	}
	if err := e.BRK(); err != nil {
		t.Fatalf("BRK with 239 variables: %v", err)
	}
	st.Put("last", 0, ast.TypeInt)
	err := e.BRK()
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("BRK with 240 variables: got %v, want ErrCapacity", err)
	}
	if img.CodeSize() != 1 {
		t.Errorf("code size %d after failed emit; want 1", img.CodeSize())
	}

	// Anonymous slots do not count.
	e, _, st = newTestEmitter()
	for i := 0; i < 300; i++ {
		st.GetOrAllocAnonymous()
	}
	if err := e.BRK(); err != nil {
		t.Errorf("BRK with only temporaries: %v", err)
	}
}

func TestEmitterCodeFull(t *testing.T) {
	e, img, _ := newTestEmitter()
	var err error
	for i := 0; i < image.Size && err == nil; i++ {
		err = e.LDAConst(0)
	}
	if !errors.Is(err, ErrCapacity) {
		t.Errorf("filling the code region: got %v, want ErrCapacity", err)
	}
	if img.CodeLimit() >= img.HeapLimit() {
		t.Errorf("code reached the heap: %02X >= %02X", img.CodeLimit(), img.HeapLimit())
	}
}
