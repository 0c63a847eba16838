package token

import "fmt"

type Type int

const (
	EOF Type = iota
	EOP
	Ident
	Digit
	String
	Print
	While
	If
	TypeInt
	TypeString
	TypeBoolean
	True
	False
	LParen
	RParen
	LBrace
	RBrace
	Assign
	EqEq
	Neq
	Plus
	Illegal
)

// KeywordMap lists every reserved word. The lexer tries them as prefixes of
// a letter run, so a longer keyword must be tried before any shorter one
// sharing its first letter (see Keywords).
var KeywordMap = map[string]Type{
	"print":   Print,
	"while":   While,
	"if":      If,
	"int":     TypeInt,
	"string":  TypeString,
	"boolean": TypeBoolean,
	"true":    True,
	"false":   False,
}

// Keywords is KeywordMap ordered longest first.
var Keywords = []string{"boolean", "string", "print", "while", "false", "true", "int", "if"}

var names = map[Type]string{
	EOF:         "EOF",
	EOP:         "'$'",
	Ident:       "identifier",
	Digit:       "digit",
	String:      "string literal",
	Print:       "'print'",
	While:       "'while'",
	If:          "'if'",
	TypeInt:     "'int'",
	TypeString:  "'string'",
	TypeBoolean: "'boolean'",
	True:        "'true'",
	False:       "'false'",
	LParen:      "'('",
	RParen:      "')'",
	LBrace:      "'{'",
	RBrace:      "'}'",
	Assign:      "'='",
	EqEq:        "'=='",
	Neq:         "'!='",
	Plus:        "'+'",
	Illegal:     "illegal character",
}

func (t Type) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Token is one lexeme. Program is the zero-based index of the '$'-delimited
// program the token belongs to within its file.
type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Program   int
	Line      int
	Column    int
	Len       int
}

func (t Token) String() string {
	if t.Value != "" {
		return fmt.Sprintf("%s %q", t.Type, t.Value)
	}
	return t.Type.String()
}
