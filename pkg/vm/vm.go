// Package vm executes finished images. Its semantics are the ones the code
// generator targets: only CPX touches the zero flag, ADC adds without carry,
// and all arithmetic wraps at one byte.
package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/xplshn/g65/pkg/image"
	"github.com/xplshn/g65/pkg/isa"
)

var (
	ErrIllegalOpcode = errors.New("illegal opcode")
	ErrBadSyscall    = errors.New("bad system call")
	ErrStepLimit     = errors.New("step limit reached")
)

var log = commonlog.GetLogger("g65.vm")

type Options struct {
	// MaxSteps stops runaway programs; 0 means no limit.
	MaxSteps int
}

type CPU struct {
	Mem    [image.Size]byte
	PC     byte
	A      byte
	X      byte
	Y      byte
	Z      bool
	Halted bool
	Steps  int
	out    io.Writer
}

func NewCPU(mem [image.Size]byte, out io.Writer) *CPU {
	return &CPU{Mem: mem, out: out}
}

// Run loads img and executes it from address 0 until BRK.
func Run(ctx context.Context, img *image.Image, out io.Writer, opts Options) (*CPU, error) {
	mem, err := img.Bytes()
	if err != nil {
		return nil, err
	}
	c := NewCPU(mem, out)
	return c, c.Run(ctx, opts)
}

func (c *CPU) Run(ctx context.Context, opts Options) error {
	for !c.Halted {
		if opts.MaxSteps > 0 && c.Steps >= opts.MaxSteps {
			return fmt.Errorf("%w: %d steps, PC=%02X", ErrStepLimit, c.Steps, c.PC)
		}
		if c.Steps%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	log.Debugf("halted after %d steps", c.Steps)
	return nil
}

func (c *CPU) fetch() byte {
	b := c.Mem[c.PC]
	c.PC++
	return b
}

// fetchAddr reads a little-endian absolute operand. The high byte is
// ignored; there is only one page.
func (c *CPU) fetchAddr() byte {
	lo := c.fetch()
	c.fetch()
	return lo
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	at := c.PC
	op, ok := isa.Decode(c.fetch())
	if !ok {
		c.Halted = true
		return fmt.Errorf("%w: %02X at %02X", ErrIllegalOpcode, c.Mem[at], at)
	}
	c.Steps++

	switch op {
	case isa.OpLDAConst:
		c.A = c.fetch()
	case isa.OpLDAMem:
		c.A = c.Mem[c.fetchAddr()]
	case isa.OpSTA:
		c.Mem[c.fetchAddr()] = c.A
	case isa.OpADC:
		c.A += c.Mem[c.fetchAddr()]
	case isa.OpLDXConst:
		c.X = c.fetch()
	case isa.OpLDXMem:
		c.X = c.Mem[c.fetchAddr()]
	case isa.OpLDYConst:
		c.Y = c.fetch()
	case isa.OpLDYMem:
		c.Y = c.Mem[c.fetchAddr()]
	case isa.OpCPX:
		c.Z = c.X == c.Mem[c.fetchAddr()]
	case isa.OpBNE:
		d := c.fetch()
		if !c.Z {
			c.PC += d
		}
	case isa.OpINC:
		c.Mem[c.fetchAddr()]++
	case isa.OpNOP:
	case isa.OpBRK:
		c.Halted = true
	case isa.OpSYS:
		return c.syscall(at)
	}
	return nil
}

func (c *CPU) syscall(at byte) error {
	switch c.X {
	case isa.SysPrintInt:
		_, err := io.WriteString(c.out, strconv.Itoa(int(c.Y)))
		return err
	case isa.SysPrintString:
		var buf []byte
		for a := int(c.Y); a < image.Size && c.Mem[a] != 0; a++ {
			buf = append(buf, c.Mem[a])
		}
		_, err := c.out.Write(buf)
		return err
	}
	c.Halted = true
	return fmt.Errorf("%w: X=%02X at %02X", ErrBadSyscall, c.X, at)
}
