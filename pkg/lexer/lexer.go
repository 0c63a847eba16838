package lexer

import (
	"strings"

	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/token"
	"github.com/xplshn/g65/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	program   int
	pos       int
	line      int
	column    int
	pending   bool // the current program has tokens but no '$' yet
	closed    bool // the implicit '$' has been emitted
	cfg       *config.Config
	rep       *util.Reporter
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config, rep *util.Reporter) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg, rep: rep,
	}
}

// Tokenize lexes the whole source. The result always ends with EOF.
func Tokenize(source []rune, fileIndex int, cfg *config.Config, rep *util.Reporter) []token.Token {
	l := NewLexer(source, fileIndex, cfg, rep)
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespaceAndComments()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			if l.pending && !l.closed {
				return l.implicitEOP()
			}
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		ch := l.peek()
		if ch >= 'a' && ch <= 'z' {
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if ch >= '0' && ch <= '9' {
			l.advance()
			return l.makeToken(token.Digit, string(ch), startPos, startCol, startLine)
		}

		l.advance()
		switch ch {
		case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
		case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
		case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
		case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
		case '+': return l.makeToken(token.Plus, "", startPos, startCol, startLine)
		case '$':
			tok := l.makeToken(token.EOP, "", startPos, startCol, startLine)
			l.program++
			l.pending = false
			return tok
		case '=':
			if l.match('=') {
				return l.makeToken(token.EqEq, "", startPos, startCol, startLine)
			}
			return l.makeToken(token.Assign, "", startPos, startCol, startLine)
		case '!':
			if l.match('=') {
				return l.makeToken(token.Neq, "", startPos, startCol, startLine)
			}
			l.rep.Error(util.StageLexer, l.makeToken(token.Illegal, "!", startPos, startCol, startLine), "'!' must be followed by '=' to form '!='")
			continue
		case '"':
			return l.stringLiteral(startPos, startCol, startLine)
		}

		tok := l.makeToken(token.Illegal, string(ch), startPos, startCol, startLine)
		if ch >= 'A' && ch <= 'Z' {
			l.rep.Error(util.StageLexer, tok, "Uppercase letter '%c' is not allowed; identifiers and keywords are lowercase", ch)
		} else {
			l.rep.Error(util.StageLexer, tok, "Unrecognized character: '%c'", ch)
		}
	}
}

func (l *Lexer) implicitEOP() token.Token {
	l.closed = true
	tok := l.makeToken(token.EOP, "", l.pos, l.column, l.line)
	if l.cfg.IsFeatureEnabled(config.FeatImplicitEOP) {
		l.rep.Warn(config.WarnMissingEOP, util.StageLexer, tok, "Missing '$' at end of program %d; added one", l.program)
	} else {
		l.rep.Error(util.StageLexer, tok, "Missing '$' at end of program %d", l.program)
	}
	l.program++
	l.pending = false
	return tok
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	if tokType != token.EOF && tokType != token.EOP {
		l.pending = true
	}
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex, Program: l.program,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '/':
			if l.peekNext() == '*' {
				l.blockComment()
			} else {
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startCol, startLine := l.column, l.line
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	tok := token.Token{Type: token.Illegal, FileIndex: l.fileIndex, Program: l.program, Line: startLine, Column: startCol, Len: 2}
	l.rep.Error(util.StageLexer, tok, "Unterminated block comment")
}

// identifierOrKeyword splits a run of letters: a keyword is taken greedily if
// it is a prefix of the remaining input, otherwise a single letter is an
// identifier.
func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	rest := string(l.source[l.pos:min(l.pos+len("boolean"), len(l.source))])
	for _, kw := range token.Keywords {
		if strings.HasPrefix(rest, kw) {
			for range kw {
				l.advance()
			}
			return l.makeToken(token.KeywordMap[kw], kw, startPos, startCol, startLine)
		}
	}
	ch := l.advance()
	return l.makeToken(token.Ident, string(ch), startPos, startCol, startLine)
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	var sb strings.Builder
	for !l.isAtEnd() {
		c := l.peek()
		if c == '"' {
			l.advance()
			return l.makeToken(token.String, sb.String(), startPos, startCol, startLine)
		}
		if c == '\n' {
			break
		}
		charPos, charCol, charLine := l.pos, l.column, l.line
		l.advance()
		if (c >= 'a' && c <= 'z') || c == ' ' {
			sb.WriteRune(c)
			continue
		}
		l.rep.Error(util.StageLexer, l.makeToken(token.Illegal, string(c), charPos, charCol, charLine),
			"Character '%c' is not allowed in a string; only lowercase letters and spaces are", c)
	}
	tok := l.makeToken(token.String, sb.String(), startPos, startCol, startLine)
	l.rep.Error(util.StageLexer, tok, "Unterminated string literal")
	return tok
}
