package parser

import (
	"github.com/xplshn/g65/pkg/ast"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/token"
	"github.com/xplshn/g65/pkg/util"
)

// Program is one '$'-terminated compilation unit of a source file.
type Program struct {
	Index     int
	FileIndex int
	Tok       token.Token
	Root      *ast.Node
}

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	cfg      *config.Config
	rep      *util.Reporter
}

// bailout unwinds the parse of the current program after an error.
type bailout struct{}

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token, cfg *config.Config, rep *util.Reporter) *Parser {
	p := &Parser{tokens: tokens, cfg: cfg, rep: rep}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) {
	if p.check(tokType) {
		p.advance()
		return
	}
	p.fail(message)
}

func (p *Parser) fail(message string) {
	p.rep.Error(util.StageParser, p.current, "%s Found %s.", message, p.current)
	panic(bailout{})
}

func (p *Parser) atEnd() bool {
	return p.pos >= len(p.tokens) || p.check(token.EOF)
}

// skipProgram discards tokens up to and including the next '$'.
func (p *Parser) skipProgram() {
	for !p.atEnd() {
		if p.match(token.EOP) {
			return
		}
		p.advance()
	}
}

// Parse returns every program that parsed cleanly. Programs whose lexing
// failed are skipped without being parsed.
func (p *Parser) Parse() []*Program {
	var programs []*Program
	for !p.atEnd() {
		tok := p.current
		if p.rep.HasErrors(tok.FileIndex, tok.Program) {
			p.rep.Warn(config.WarnSkip, util.StageParser, tok, "Skipping parse of program %d due to lexer errors", tok.Program)
			p.skipProgram()
			continue
		}
		if prog := p.parseProgram(); prog != nil {
			programs = append(programs, prog)
		}
	}
	return programs
}

func (p *Parser) parseProgram() (prog *Program) {
	tok := p.current
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			prog = nil
			p.skipProgram()
		}
	}()
	root := p.parseBlock()
	p.expect(token.EOP, "Expected '$' after the program's block.")
	p.rep.Info(util.StageParser, tok, "Parsed program %d", tok.Program)
	return &Program{Index: tok.Program, FileIndex: tok.FileIndex, Tok: tok, Root: root}
}

// Statement Parsing
func (p *Parser) parseBlock() *ast.Node {
	tok := p.current
	p.expect(token.LBrace, "Expected '{' to start a block.")
	var stmts []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOP) && !p.atEnd() {
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(token.RBrace, "Expected '}' after block.")
	return ast.NewBlock(tok, stmts)
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Print):
		p.expect(token.LParen, "Expected '(' after 'print'.")
		expr := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after print argument.")
		return ast.NewPrint(tok, expr)
	case p.match(token.Ident):
		lhs := ast.NewIdent(tok, tok.Value)
		assignTok := p.current
		p.expect(token.Assign, "Expected '=' in assignment.")
		return ast.NewAssign(assignTok, lhs, p.parseExpr())
	case p.match(token.TypeInt), p.match(token.TypeString), p.match(token.TypeBoolean):
		typ := ast.NewTypeName(tok, tok.Value)
		idTok := p.current
		p.expect(token.Ident, "Expected identifier in declaration.")
		return ast.NewVarDecl(tok, typ, ast.NewIdent(idTok, idTok.Value))
	case p.match(token.While):
		cond := p.parseBooleanExpr()
		return ast.NewWhile(tok, cond, p.parseBlock())
	case p.match(token.If):
		cond := p.parseBooleanExpr()
		return ast.NewIf(tok, cond, p.parseBlock())
	case p.check(token.LBrace):
		return p.parseBlock()
	}
	p.fail("Expected a statement.")
	return nil
}

// Expression Parsing
func (p *Parser) parseExpr() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.Digit:
		return p.parseIntExpr()
	case token.String:
		p.advance()
		return ast.NewString(tok, tok.Value)
	case token.LParen, token.True, token.False:
		return p.parseBooleanExpr()
	case token.Ident:
		p.advance()
		return ast.NewIdent(tok, tok.Value)
	}
	p.fail("Expected an expression.")
	return nil
}

func (p *Parser) parseIntExpr() *ast.Node {
	tok := p.current
	p.expect(token.Digit, "Expected a digit.")
	digit := ast.NewDigit(tok, tok.Value)
	if plus := p.current; p.match(token.Plus) {
		return ast.NewAdd(plus, digit, p.parseExpr())
	}
	return digit
}

func (p *Parser) parseBooleanExpr() *ast.Node {
	tok := p.current
	if p.match(token.True) {
		return ast.NewBool(tok, true)
	}
	if p.match(token.False) {
		return ast.NewBool(tok, false)
	}
	p.expect(token.LParen, "Expected '(' or a boolean value.")
	left := p.parseExpr()
	opTok := p.current
	if !p.match(token.EqEq) && !p.match(token.Neq) {
		p.fail("Expected '==' or '!=' in boolean expression.")
	}
	right := p.parseExpr()
	p.expect(token.RParen, "Expected ')' after boolean expression.")
	return ast.NewComparison(opTok, opTok.Type, left, right)
}
