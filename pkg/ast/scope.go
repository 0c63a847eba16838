package ast

import (
	"github.com/xplshn/g65/pkg/token"
)

// VarType is a declared variable type.
type VarType int

const (
	TypeUnknown VarType = iota
	TypeInt
	TypeString
	TypeBoolean
)

func (t VarType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	}
	return "unknown"
}

// ParseVarType maps a type keyword to a VarType.
func ParseVarType(name string) VarType {
	switch name {
	case "int":
		return TypeInt
	case "string":
		return TypeString
	case "boolean":
		return TypeBoolean
	}
	return TypeUnknown
}

type Symbol struct {
	Name        string
	Type        VarType
	Tok         token.Token
	Scope       *Scope
	Used        bool
	Initialized bool
}

// Scope is the variable table of one block. IDs are unique within a program
// and assigned in depth-first block order starting at 0.
type Scope struct {
	ID       int
	Parent   *Scope
	Children []*Scope
	Symbols  map[string]*Symbol
	order    []string
}

func NewScope(id int, parent *Scope) *Scope {
	s := &Scope{ID: id, Parent: parent, Symbols: make(map[string]*Symbol)}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// Declare adds a symbol to this scope; it returns the existing symbol and
// false if the name is already declared here.
func (s *Scope) Declare(name string, typ VarType, tok token.Token) (*Symbol, bool) {
	if existing, ok := s.Symbols[name]; ok {
		return existing, false
	}
	sym := &Symbol{Name: name, Type: typ, Tok: tok, Scope: s}
	s.Symbols[name] = sym
	s.order = append(s.order, name)
	return sym, true
}

// Lookup walks the scope chain outward.
func (s *Scope) Lookup(name string) *Symbol {
	for sc := s; sc != nil; sc = sc.Parent {
		if sym, ok := sc.Symbols[name]; ok {
			return sym
		}
	}
	return nil
}

// Ordered returns the symbols in declaration order.
func (s *Scope) Ordered() []*Symbol {
	out := make([]*Symbol, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.Symbols[name])
	}
	return out
}

// Walk visits s and every nested scope depth first.
func (s *Scope) Walk(fn func(*Scope)) {
	if s == nil {
		return
	}
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}
