package codegen

import (
	"fmt"

	"github.com/xplshn/g65/pkg/image"
)

// PatchStats counts the references rewritten by Backpatch, per temporary ID.
type PatchStats struct {
	Temps map[int]int
	Jumps int
}

// Backpatch replaces every temporary placeholder in the code region with the
// stack address of its entry and every jump placeholder with its distance.
// The stack must be initialized and hold one byte per entry. Running it again
// on a patched image changes nothing.
func Backpatch(img *image.Image, st *StaticTable) (PatchStats, error) {
	stats := PatchStats{Temps: make(map[int]int)}
	if !img.StackReady() {
		return stats, image.ErrStackNotReady
	}
	for _, e := range st.Entries() {
		n, err := patchTemp(img, e)
		if err != nil {
			return stats, err
		}
		stats.Temps[e.ID] = n
	}
	n, err := patchJumps(img, st)
	if err != nil {
		return stats, err
	}
	stats.Jumps = n

	for addr := 0; addr <= img.CodeLimit(); addr++ {
		if c, _ := img.ReadCode(addr); c.Pending() {
			return stats, fmt.Errorf("%w: %s at %02X", image.ErrUnresolved, c, addr)
		}
	}
	return stats, nil
}

func patchTemp(img *image.Image, e *Entry) (int, error) {
	addr := img.StackBase() + e.Offset
	if addr > img.StackLimit() {
		return 0, fmt.Errorf("%w: T%d at stack offset %d, stack ends at %02X", ErrCapacity, e.ID, e.Offset, img.StackLimit())
	}
	n := 0
	for pc := 0; pc < img.CodeLimit(); pc++ {
		low, _ := img.ReadCode(pc)
		if low.Kind != image.CellTempLow || low.ID != e.ID {
			continue
		}
		high, _ := img.ReadCode(pc + 1)
		if high.Kind != image.CellTempHigh || high.ID != e.ID {
			continue
		}
		if err := img.WriteCodeAt(pc, image.Byte(byte(addr))); err != nil {
			return n, err
		}
		if err := img.WriteCodeAt(pc+1, image.Byte(0)); err != nil {
			return n, err
		}
		n++
	}
	e.Resolved = true
	e.Addr = byte(addr)
	return n, nil
}

func patchJumps(img *image.Image, st *StaticTable) (int, error) {
	n := 0
	for pc := 0; pc <= img.CodeLimit(); pc++ {
		c, _ := img.ReadCode(pc)
		if c.Kind != image.CellJump {
			continue
		}
		d, ok := st.GetJump(c.ID)
		if !ok || d < 0 {
			return n, fmt.Errorf("%w: J%d has no distance", image.ErrUnresolved, c.ID)
		}
		if err := img.WriteCodeAt(pc, image.Byte(byte(d))); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
