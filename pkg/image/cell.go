package image

import "fmt"

// CellKind tags what a memory cell holds before back-patching.
type CellKind uint8

const (
	CellByte     CellKind = iota // a resolved byte
	CellTempLow                  // low byte of a pending temporary address
	CellTempHigh                 // high byte of a pending temporary address
	CellJump                     // a pending branch distance
)

// Cell is one byte of memory. Pending cells name the static table entry or
// jump they stand for in ID.
type Cell struct {
	Kind  CellKind
	Value byte
	ID    int
}

func Byte(b byte) Cell       { return Cell{Kind: CellByte, Value: b} }
func TempLow(id int) Cell    { return Cell{Kind: CellTempLow, ID: id} }
func TempHigh(id int) Cell   { return Cell{Kind: CellTempHigh, ID: id} }
func Jump(id int) Cell       { return Cell{Kind: CellJump, ID: id} }
func (c Cell) Pending() bool { return c.Kind != CellByte }

func (c Cell) valid() bool {
	return c.Kind <= CellJump && c.ID >= 0
}

// String renders the cell as two hex digits, or as the placeholder token of
// a pending cell: T<id> for a temporary's low byte, XX for its high byte and
// J<id> for a jump.
func (c Cell) String() string {
	switch c.Kind {
	case CellTempLow:
		return fmt.Sprintf("T%d", c.ID)
	case CellTempHigh:
		return "XX"
	case CellJump:
		return fmt.Sprintf("J%d", c.ID)
	}
	return fmt.Sprintf("%02X", c.Value)
}
