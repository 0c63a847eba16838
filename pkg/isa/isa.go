// Package isa describes the instruction set of the target: a single-page
// accumulator machine with A, X and Y registers and a zero flag, using a
// subset of 6502 opcodes.
package isa

import (
	"fmt"
	"strings"
)

type Op int

const (
	OpLDAConst Op = iota
	OpLDAMem
	OpSTA
	OpADC
	OpLDXConst
	OpLDXMem
	OpLDYConst
	OpLDYMem
	OpNOP
	OpBRK
	OpCPX
	OpBNE
	OpINC
	OpSYS
)

type Mode int

const (
	ModeImplied   Mode = iota // opcode only
	ModeImmediate             // opcode, constant
	ModeAbsolute              // opcode, low byte, high byte
	ModeRelative              // opcode, forward distance
)

type Info struct {
	Mnemonic string
	Opcode   byte
	Mode     Mode
}

var Table = map[Op]Info{
	OpLDAConst: {"LDA", 0xA9, ModeImmediate},
	OpLDAMem:   {"LDA", 0xAD, ModeAbsolute},
	OpSTA:      {"STA", 0x8D, ModeAbsolute},
	OpADC:      {"ADC", 0x6D, ModeAbsolute},
	OpLDXConst: {"LDX", 0xA2, ModeImmediate},
	OpLDXMem:   {"LDX", 0xAE, ModeAbsolute},
	OpLDYConst: {"LDY", 0xA0, ModeImmediate},
	OpLDYMem:   {"LDY", 0xAC, ModeAbsolute},
	OpNOP:      {"NOP", 0xEA, ModeImplied},
	OpBRK:      {"BRK", 0x00, ModeImplied},
	OpCPX:      {"CPX", 0xEC, ModeAbsolute},
	OpBNE:      {"BNE", 0xD0, ModeRelative},
	OpINC:      {"INC", 0xEE, ModeAbsolute},
	OpSYS:      {"SYS", 0xFF, ModeImplied},
}

// System call selectors, passed in X.
const (
	SysPrintInt    byte = 0x01
	SysPrintString byte = 0x02
)

var byOpcode = make(map[byte]Op)

func init() {
	for op, info := range Table {
		byOpcode[info.Opcode] = op
	}
}

// Decode maps an opcode byte back to its operation.
func Decode(b byte) (Op, bool) {
	op, ok := byOpcode[b]
	return op, ok
}

func (o Op) Info() Info { return Table[o] }

func (o Op) String() string { return Table[o].Mnemonic }

// Len is the encoded size of the instruction in bytes.
func (o Op) Len() int { return Table[o].Mode.Len() }

func (m Mode) Len() int {
	switch m {
	case ModeImmediate, ModeRelative:
		return 2
	case ModeAbsolute:
		return 3
	}
	return 1
}

// Line is one disassembled instruction.
type Line struct {
	Addr  int
	Bytes []byte
	Op    Op
	Valid bool
}

func (l Line) String() string {
	var hex strings.Builder
	for i, b := range l.Bytes {
		if i > 0 {
			hex.WriteByte(' ')
		}
		fmt.Fprintf(&hex, "%02X", b)
	}
	if !l.Valid {
		return fmt.Sprintf("%02X: %-9s .byte $%02X", l.Addr, hex.String(), l.Bytes[0])
	}
	info := l.Op.Info()
	var operand string
	switch info.Mode {
	case ModeImmediate:
		operand = fmt.Sprintf("#$%02X", l.Bytes[1])
	case ModeAbsolute:
		operand = fmt.Sprintf("$%02X%02X", l.Bytes[2], l.Bytes[1])
	case ModeRelative:
		target := (l.Addr + 2 + int(l.Bytes[1])) % 256
		operand = fmt.Sprintf("$%02X (-> %02X)", l.Bytes[1], target)
	}
	return strings.TrimRight(fmt.Sprintf("%02X: %-9s %s %s", l.Addr, hex.String(), info.Mnemonic, operand), " ")
}

// Disassemble decodes code[start:end]. An instruction whose operands would
// run past end is emitted as raw bytes.
func Disassemble(code []byte, start, end int) []Line {
	var lines []Line
	for pc := start; pc < end && pc < len(code); {
		op, ok := Decode(code[pc])
		n := 1
		if ok {
			n = op.Len()
		}
		if !ok || pc+n > end {
			lines = append(lines, Line{Addr: pc, Bytes: code[pc : pc+1]})
			pc++
			continue
		}
		lines = append(lines, Line{Addr: pc, Bytes: code[pc : pc+n], Op: op, Valid: true})
		pc += n
	}
	return lines
}
