// Package ast defines the abstract syntax tree and the scope tree that the
// semantic pass attaches to it.
package ast

import (
	"github.com/xplshn/g65/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

const (
	// Statements
	Block NodeType = iota
	VarDecl
	Assign
	Print
	If
	While

	// Expressions
	Add
	Equal
	NotEqual
	Ident
	Digit
	String
	Bool

	// Leaves that only appear as declaration children
	TypeName
)

var nodeNames = [...]string{
	Block: "Block", VarDecl: "VariableDeclaration", Assign: "AssignmentStatement",
	Print: "PrintStatement", If: "IfStatement", While: "WhileStatement",
	Add: "IntExpression", Equal: "Equality", NotEqual: "Inequality",
	Ident: "Id", Digit: "Digit", String: "StringExpression", Bool: "BooleanValue",
	TypeName: "Type",
}

func (t NodeType) String() string {
	if int(t) >= 0 && int(t) < len(nodeNames) {
		return nodeNames[t]
	}
	return "Unknown"
}

// Node is one tree node. Children are ordered as in the source:
//
//	VarDecl  [TypeName, Ident]
//	Assign   [Ident, Expr]
//	Print    [Expr]
//	If/While [Expr, Block]
//	Add      [Digit, Expr]
//	Equal    [Expr, Expr]
//
// Value holds the lexeme of leaves. Scope is set on blocks and Sym on
// identifiers once the semantic pass has run.
type Node struct {
	Type     NodeType
	Tok      token.Token
	Value    string
	Children []*Node
	Scope    *Scope
	Sym      *Symbol
}

func newNode(tok token.Token, nodeType NodeType, value string, children ...*Node) *Node {
	return &Node{Type: nodeType, Tok: tok, Value: value, Children: children}
}

func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, "", stmts...)
}
func NewVarDecl(tok token.Token, typ, ident *Node) *Node {
	return newNode(tok, VarDecl, "", typ, ident)
}
func NewAssign(tok token.Token, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, "", lhs, rhs)
}
func NewPrint(tok token.Token, expr *Node) *Node {
	return newNode(tok, Print, "", expr)
}
func NewIf(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, If, "", cond, body)
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, "", cond, body)
}
func NewAdd(tok token.Token, digit, rest *Node) *Node {
	return newNode(tok, Add, "+", digit, rest)
}

// NewComparison builds an Equal or NotEqual node depending on op.
func NewComparison(tok token.Token, op token.Type, left, right *Node) *Node {
	if op == token.Neq {
		return newNode(tok, NotEqual, "!=", left, right)
	}
	return newNode(tok, Equal, "==", left, right)
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, name)
}
func NewDigit(tok token.Token, value string) *Node {
	return newNode(tok, Digit, value)
}
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, value)
}
func NewBool(tok token.Token, value bool) *Node {
	if value {
		return newNode(tok, Bool, "true")
	}
	return newNode(tok, Bool, "false")
}
func NewTypeName(tok token.Token, name string) *Node {
	return newNode(tok, TypeName, name)
}

// IsComparison reports whether the node is a (Expr == Expr) or (Expr != Expr).
func (n *Node) IsComparison() bool { return n.Type == Equal || n.Type == NotEqual }

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}
