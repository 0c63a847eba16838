package codegen

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/g65/pkg/ast"
	"github.com/xplshn/g65/pkg/image"
)

// layoutStack places the stack after the code with one byte per entry.
func layoutStack(t *testing.T, img *image.Image, st *StaticTable) {
	t.Helper()
	if err := img.InitializeStack(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < st.Size(); i++ {
		if err := img.WriteStack(image.Byte(0)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBackpatch(t *testing.T) {
	e, img, st := newTestEmitter()
	a, _ := st.Put("a", 0, ast.TypeInt)
	b, _ := st.Put("b", 0, ast.TypeInt)
	j, _ := st.PutJump()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(e.LDAConst(1))
	must(e.STA(a))
	must(e.LDXMem(a))
	must(e.CPX(b))
	must(e.BNE(image.Jump(j)))
	must(e.STA(b))
	must(st.SetJump(j, 3))
	must(e.BRK())
	layoutStack(t, img, st)

	stats, err := Backpatch(img, st)
	if err != nil {
		t.Fatalf("Backpatch: %v", err)
	}
	if diff := cmp.Diff(PatchStats{Temps: map[int]int{0: 2, 1: 2}, Jumps: 1}, stats); diff != "" {
		t.Errorf("PatchStats mismatch (-want +got):\n%s", diff)
	}
	want := []string{
		"A9", "01",
		"8D", "11", "00",
		"AE", "11", "00",
		"EC", "12", "00",
		"D0", "03",
		"8D", "12", "00",
		"00",
	}
	if diff := cmp.Diff(want, codeCells(img)); diff != "" {
		t.Errorf("patched code mismatch (-want +got):\n%s", diff)
	}
	if !a.Resolved || a.Addr != 0x11 || b.Addr != 0x12 {
		t.Errorf("entries resolved to %v@%02X and %v@%02X", a.Resolved, a.Addr, b.Resolved, b.Addr)
	}
	if len(img.Pending()) != 0 {
		t.Errorf("pending cells remain at %v", img.Pending())
	}

	before := img.Hex()
	again, err := Backpatch(img, st)
	if err != nil {
		t.Fatalf("second Backpatch: %v", err)
	}
	if img.Hex() != before {
		t.Errorf("second Backpatch changed the image")
	}
	if again.Temps[0] != 0 || again.Jumps != 0 {
		t.Errorf("second Backpatch rewrote %v", again)
	}
}

func TestBackpatchErrors(t *testing.T) {
	e, img, st := newTestEmitter()
	a, _ := st.Put("a", 0, ast.TypeInt)
	if err := e.STA(a); err != nil {
		t.Fatal(err)
	}
	if _, err := Backpatch(img, st); !errors.Is(err, image.ErrStackNotReady) {
		t.Errorf("Backpatch before stack init: got %v, want ErrStackNotReady", err)
	}

	// Stack initialized but without a byte for a.
	if err := img.InitializeStack(); err != nil {
		t.Fatal(err)
	}
	if _, err := Backpatch(img, st); !errors.Is(err, ErrCapacity) {
		t.Errorf("Backpatch with a short stack: got %v, want ErrCapacity", err)
	}

	e, img, st = newTestEmitter()
	j, _ := st.PutJump()
	if err := e.BNE(image.Jump(j)); err != nil {
		t.Fatal(err)
	}
	layoutStack(t, img, st)
	if _, err := Backpatch(img, st); !errors.Is(err, image.ErrUnresolved) {
		t.Errorf("Backpatch with an unset jump: got %v, want ErrUnresolved", err)
	}
}
