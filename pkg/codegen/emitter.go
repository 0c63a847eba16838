package codegen

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/xplshn/g65/pkg/image"
	"github.com/xplshn/g65/pkg/isa"
)

// Emitter writes instructions to an image, checking before each one that
// the variables of the static table still fit between code and heap.
type Emitter struct {
	img *image.Image
	st  *StaticTable
	log commonlog.Logger
}

func NewEmitter(img *image.Image, st *StaticTable, log commonlog.Logger) *Emitter {
	return &Emitter{img: img, st: st, log: log}
}

func (e *Emitter) checkCapacity() error {
	maxStatic := e.img.HeapLimit() - e.img.CodeLimit() - 1
	if used := e.st.Size() - e.st.AnonymousCount(); used >= maxStatic {
		return fmt.Errorf("%w: %d variables, %d bytes left between code and heap", ErrCapacity, used, maxStatic)
	}
	return nil
}

func (e *Emitter) emit(op isa.Op, operands ...image.Cell) error {
	if err := e.checkCapacity(); err != nil {
		return err
	}
	if len(operands) != op.Len()-1 {
		return fmt.Errorf("%w: %s takes %d operand bytes, got %d", ErrMalformedTree, op, op.Len()-1, len(operands))
	}
	addr := e.img.CodeSize()
	if err := e.img.WriteCode(image.Byte(op.Info().Opcode)); err != nil {
		return fmt.Errorf("%w: %w", ErrCapacity, err)
	}
	for _, c := range operands {
		if err := e.img.WriteCode(c); err != nil {
			return fmt.Errorf("%w: %w", ErrCapacity, err)
		}
	}
	if e.log != nil {
		e.log.Debugf("%02X: %s %v", addr, op, operands)
	}
	return nil
}

func (e *Emitter) LDAConst(v byte) error     { return e.emit(isa.OpLDAConst, image.Byte(v)) }
func (e *Emitter) LDAMem(m *Entry) error     { return e.emit(isa.OpLDAMem, m.Low(), m.High()) }
func (e *Emitter) STA(m *Entry) error        { return e.emit(isa.OpSTA, m.Low(), m.High()) }
func (e *Emitter) ADC(m *Entry) error        { return e.emit(isa.OpADC, m.Low(), m.High()) }
func (e *Emitter) LDXConst(v byte) error     { return e.emit(isa.OpLDXConst, image.Byte(v)) }
func (e *Emitter) LDXMem(m *Entry) error     { return e.emit(isa.OpLDXMem, m.Low(), m.High()) }
func (e *Emitter) LDYConst(v byte) error     { return e.emit(isa.OpLDYConst, image.Byte(v)) }
func (e *Emitter) LDYMem(m *Entry) error     { return e.emit(isa.OpLDYMem, m.Low(), m.High()) }
func (e *Emitter) CPX(m *Entry) error        { return e.emit(isa.OpCPX, m.Low(), m.High()) }
func (e *Emitter) BNE(dist image.Cell) error { return e.emit(isa.OpBNE, dist) }
func (e *Emitter) SYS() error                { return e.emit(isa.OpSYS) }
func (e *Emitter) BRK() error                { return e.emit(isa.OpBRK) }
