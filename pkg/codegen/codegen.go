package codegen

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/xplshn/g65/pkg/ast"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/image"
	"github.com/xplshn/g65/pkg/isa"
	"github.com/xplshn/g65/pkg/token"
	"github.com/xplshn/g65/pkg/util"
)

// Unit is one semantically checked program handed to the generator.
type Unit struct {
	Index     int
	FileIndex int
	Root      *ast.Node
	Scope     *ast.Scope
}

// Result is the artifact of one generated program.
type Result struct {
	Index       int
	FileIndex   int
	Image       *image.Image
	Table       *StaticTable
	Diagnostics []util.Diagnostic
}

// operand is a value ready to be loaded into a register: either a constant
// or a static slot. Slots produced by an expression are released after use.
type operand struct {
	entry *Entry
	value byte
	temp  bool
}

type Context struct {
	cfg   *config.Config
	rep   *util.Reporter
	img   *image.Image
	st    *StaticTable
	emit  *Emitter
	scope *ast.Scope
	log   commonlog.Logger
}

func NewContext(cfg *config.Config, rep *util.Reporter) *Context {
	img := image.New()
	st := NewStaticTable(cfg)
	log := rep.Logger(util.StageCodegen)
	return &Context{cfg: cfg, rep: rep, img: img, st: st, emit: NewEmitter(img, st, log), log: log}
}

// GenerateAll compiles every unit whose index is not in skip. A failing
// program is reported and left out of the results; the others still compile.
func GenerateAll(units []Unit, skip []int, cfg *config.Config, rep *util.Reporter) []*Result {
	skipped := make(map[int]bool, len(skip))
	for _, idx := range skip {
		skipped[idx] = true
	}
	var results []*Result
	for _, u := range units {
		tok := token.Token{FileIndex: u.FileIndex, Program: u.Index}
		if skipped[u.Index] {
			rep.Warn(config.WarnSkip, util.StageCodegen, tok, "Skipping code generation for program %d due to earlier errors", u.Index)
			continue
		}
		res, err := NewContext(cfg, rep).Generate(u)
		if err != nil {
			var located *Error
			if errors.As(err, &located) && located.Tok.Line > 0 {
				tok = located.Tok
			}
			rep.Error(util.StageCodegen, tok, "Code generation failed for program %d: %v", u.Index, err)
			continue
		}
		res.Diagnostics = rep.ProgramDiagnostics(u.FileIndex, u.Index)
		results = append(results, res)
	}
	return results
}

// Generate compiles one program into a fresh image and back-patches it.
func (ctx *Context) Generate(u Unit) (*Result, error) {
	if u.Root == nil || u.Root.Type != ast.Block {
		return nil, malformed(token.Token{FileIndex: u.FileIndex, Program: u.Index}, "program %d has no root block", u.Index)
	}
	ctx.scope = u.Scope
	if err := ctx.codegenStmt(u.Root); err != nil {
		return nil, err
	}
	if err := ctx.emit.BRK(); err != nil {
		return nil, errorAt(u.Root.Tok, err)
	}
	tok := token.Token{FileIndex: u.FileIndex, Program: u.Index}
	ctx.rep.Info(util.StageCodegen, tok, "Emitted %d bytes of code, %d static bytes, %d heap strings",
		ctx.img.CodeSize(), ctx.st.Size(), len(ctx.st.Strings()))

	if err := ctx.img.InitializeStack(); err != nil {
		return nil, errorAt(tok, fmt.Errorf("%w: %w", ErrCapacity, err))
	}
	for i := 0; i < ctx.st.Size(); i++ {
		if err := ctx.img.WriteStack(image.Byte(0)); err != nil {
			return nil, errorAt(tok, fmt.Errorf("%w: %w", ErrCapacity, err))
		}
	}
	stats, err := Backpatch(ctx.img, ctx.st)
	if err != nil {
		return nil, errorAt(tok, err)
	}
	for _, e := range ctx.st.Entries() {
		ctx.rep.Info(util.StageBackpatch, tok, "T%d (%s) -> $%02X, %d reference(s)", e.ID, e.Name, e.Addr, stats.Temps[e.ID])
	}
	ctx.rep.Info(util.StageBackpatch, tok, "Resolved %d jump(s)", stats.Jumps)
	if err := ctx.img.Check(); err != nil {
		return nil, errorAt(tok, err)
	}
	return &Result{Index: u.Index, FileIndex: u.FileIndex, Image: ctx.img, Table: ctx.st}, nil
}

// Statements
func (ctx *Context) codegenStmt(node *ast.Node) error {
	if node == nil {
		return malformed(token.Token{}, "nil statement")
	}
	switch node.Type {
	case ast.Block:
		outer := ctx.scope
		if node.Scope != nil {
			ctx.scope = node.Scope
		}
		for _, stmt := range node.Children {
			if err := ctx.codegenStmt(stmt); err != nil {
				return err
			}
		}
		ctx.scope = outer
		return nil
	case ast.VarDecl:
		return errorAt(node.Tok, ctx.codegenVarDecl(node))
	case ast.Assign:
		return errorAt(node.Tok, ctx.codegenAssign(node))
	case ast.Print:
		return errorAt(node.Tok, ctx.codegenPrint(node))
	case ast.If:
		return errorAt(node.Tok, ctx.codegenIf(node))
	case ast.While:
		return errorAt(node.Tok, ctx.codegenWhile(node))
	}
	return malformed(node.Tok, "unexpected %s statement", node.Type)
}

func (ctx *Context) codegenVarDecl(node *ast.Node) error {
	typ, ident := node.Child(0), node.Child(1)
	if typ == nil || ident == nil {
		return malformed(node.Tok, "incomplete declaration")
	}
	scopeID := -1
	if ident.Sym != nil && ident.Sym.Scope != nil {
		scopeID = ident.Sym.Scope.ID
	} else if ctx.scope != nil {
		scopeID = ctx.scope.ID
	}
	vt := ast.ParseVarType(typ.Value)
	entry, ok := ctx.st.Put(ident.Value, scopeID, vt)
	if !ok {
		return malformed(ident.Tok, "'%s' declared twice in scope %d", ident.Value, scopeID)
	}

	var def byte
	switch vt {
	case ast.TypeInt:
		def = 0
	case ast.TypeBoolean:
		def = image.FalseAddr
	case ast.TypeString:
		def = image.NullAddr
	default:
		return malformed(typ.Tok, "unknown type '%s'", typ.Value)
	}
	if err := ctx.emit.LDAConst(def); err != nil {
		return err
	}
	return ctx.emit.STA(entry)
}

func (ctx *Context) codegenAssign(node *ast.Node) error {
	lhs, rhs := node.Child(0), node.Child(1)
	if lhs == nil || rhs == nil {
		return malformed(node.Tok, "incomplete assignment")
	}
	target, err := ctx.lookup(lhs)
	if err != nil {
		return err
	}
	op, err := ctx.codegenOperand(rhs)
	if err != nil {
		return err
	}
	if err := ctx.loadA(op); err != nil {
		return err
	}
	return ctx.emit.STA(target)
}

func (ctx *Context) codegenPrint(node *ast.Node) error {
	arg := node.Child(0)
	if arg == nil {
		return malformed(node.Tok, "print without argument")
	}
	typ, err := ctx.typeOf(arg)
	if err != nil {
		return err
	}
	op, err := ctx.codegenOperand(arg)
	if err != nil {
		return err
	}
	if op.entry != nil {
		err = ctx.emit.LDYMem(op.entry)
	} else {
		err = ctx.emit.LDYConst(op.value)
	}
	if err != nil {
		return err
	}
	ctx.release(op)

	sys := isa.SysPrintString
	if typ == ast.TypeInt {
		sys = isa.SysPrintInt
	}
	if err := ctx.emit.LDXConst(sys); err != nil {
		return err
	}
	return ctx.emit.SYS()
}

// branchIfFalse evaluates cond and emits a forward branch taken when it is
// false. It returns the jump placeholder to resolve once the target is known.
func (ctx *Context) branchIfFalse(cond *ast.Node) (int, error) {
	flag, err := ctx.codegenInMemory(cond)
	if err != nil {
		return 0, err
	}
	if err := ctx.emit.LDXConst(image.TrueAddr); err != nil {
		return 0, err
	}
	if err := ctx.emit.CPX(flag.entry); err != nil {
		return 0, err
	}
	ctx.release(flag)
	j, err := ctx.st.PutJump()
	if err != nil {
		return 0, err
	}
	return j, ctx.emit.BNE(image.Jump(j))
}

func (ctx *Context) codegenIf(node *ast.Node) error {
	cond, body := node.Child(0), node.Child(1)
	if cond == nil || body == nil {
		return malformed(node.Tok, "incomplete if statement")
	}
	j, err := ctx.branchIfFalse(cond)
	if err != nil {
		return err
	}
	start := ctx.img.CodeSize()
	if err := ctx.codegenStmt(body); err != nil {
		return err
	}
	return ctx.st.SetJump(j, ctx.img.CodeSize()-start)
}

func (ctx *Context) codegenWhile(node *ast.Node) error {
	cond, body := node.Child(0), node.Child(1)
	if cond == nil || body == nil {
		return malformed(node.Tok, "incomplete while statement")
	}
	loopStart := ctx.img.CodeSize()
	j, err := ctx.branchIfFalse(cond)
	if err != nil {
		return err
	}
	start := ctx.img.CodeSize()
	if err := ctx.codegenStmt(body); err != nil {
		return err
	}

	// Compare true against a false slot so Z is clear and BNE always branches.
	f := ctx.st.GetOrAllocAnonymous()
	if err := ctx.emit.LDAConst(image.FalseAddr); err != nil {
		return err
	}
	if err := ctx.emit.STA(f); err != nil {
		return err
	}
	if err := ctx.emit.LDXConst(image.TrueAddr); err != nil {
		return err
	}
	if err := ctx.emit.CPX(f); err != nil {
		return err
	}
	ctx.st.Free(f)
	branchAddr := ctx.img.CodeSize()
	back := (loopStart - (branchAddr + isa.OpBNE.Len()) + image.Size) % image.Size
	if err := ctx.emit.BNE(image.Byte(byte(back))); err != nil {
		return err
	}
	return ctx.st.SetJump(j, ctx.img.CodeSize()-start)
}

// Expressions
func (ctx *Context) lookup(ident *ast.Node) (*Entry, error) {
	if ident.Type != ast.Ident {
		return nil, malformed(ident.Tok, "expected identifier, found %s", ident.Type)
	}
	if sym := ident.Sym; sym != nil && sym.Scope != nil {
		if e, ok := ctx.st.Get(sym.Name, sym.Scope.ID); ok {
			return e, nil
		}
	}
	if e, ok := ctx.st.Lookup(ident.Value, ctx.scope); ok {
		return e, nil
	}
	return nil, malformed(ident.Tok, "identifier '%s' has no storage", ident.Value)
}

func (ctx *Context) typeOf(node *ast.Node) (ast.VarType, error) {
	switch node.Type {
	case ast.Digit, ast.Add:
		return ast.TypeInt, nil
	case ast.String:
		return ast.TypeString, nil
	case ast.Bool, ast.Equal, ast.NotEqual:
		return ast.TypeBoolean, nil
	case ast.Ident:
		e, err := ctx.lookup(node)
		if err != nil {
			return ast.TypeUnknown, err
		}
		return e.Type, nil
	}
	return ast.TypeUnknown, malformed(node.Tok, "unexpected %s in expression", node.Type)
}

func digitValue(node *ast.Node) (byte, error) {
	v, err := strconv.Atoi(node.Value)
	if err != nil || v < 0 || v > 0xFF {
		return 0, &Error{Tok: node.Tok, Err: fmt.Errorf("%w: '%s' does not fit in a byte", ErrLiteralRange, node.Value)}
	}
	return byte(v), nil
}

// codegenOperand evaluates node without touching A, X or Y beyond what its
// own sub-expressions need, and returns where its value lives.
func (ctx *Context) codegenOperand(node *ast.Node) (operand, error) {
	switch node.Type {
	case ast.Digit:
		v, err := digitValue(node)
		return operand{value: v}, err
	case ast.Bool:
		if node.Value == "true" {
			return operand{value: image.TrueAddr}, nil
		}
		return operand{value: image.FalseAddr}, nil
	case ast.String:
		addr, err := ctx.st.InternString(ctx.img, node.Value)
		if err != nil {
			return operand{}, errorAt(node.Tok, err)
		}
		ctx.log.Debugf("string %q at $%02X", node.Value, addr)
		return operand{value: addr}, nil
	case ast.Ident:
		e, err := ctx.lookup(node)
		return operand{entry: e}, err
	case ast.Add:
		e, err := ctx.codegenIntExpr(node)
		return operand{entry: e, temp: true}, err
	case ast.Equal, ast.NotEqual:
		e, err := ctx.codegenComparison(node)
		return operand{entry: e, temp: true}, err
	}
	return operand{}, malformed(node.Tok, "unexpected %s in expression", node.Type)
}

// codegenInMemory is codegenOperand with constants spilled to a slot, for
// instructions that only take memory operands.
func (ctx *Context) codegenInMemory(node *ast.Node) (operand, error) {
	op, err := ctx.codegenOperand(node)
	if err != nil || op.entry != nil {
		return op, err
	}
	t := ctx.st.GetOrAllocAnonymous()
	if err := ctx.emit.LDAConst(op.value); err != nil {
		return operand{}, err
	}
	if err := ctx.emit.STA(t); err != nil {
		return operand{}, err
	}
	return operand{entry: t, temp: true}, nil
}

func (ctx *Context) release(op operand) {
	if op.temp {
		ctx.st.Free(op.entry)
	}
}

func (ctx *Context) loadA(op operand) error {
	defer ctx.release(op)
	if op.entry != nil {
		return ctx.emit.LDAMem(op.entry)
	}
	return ctx.emit.LDAConst(op.value)
}

// codegenIntExpr folds d + d + ... + x into one running sum slot.
func (ctx *Context) codegenIntExpr(node *ast.Node) (*Entry, error) {
	sum := ctx.st.GetOrAllocAnonymous()
	for n, first := node, true; ; first = false {
		term := n
		if n.Type == ast.Add {
			term = n.Child(0)
		}
		if term == nil || (term.Type != ast.Digit && term.Type != ast.Ident) {
			return nil, malformed(n.Tok, "integer expression must end in a digit or identifier")
		}
		op, err := ctx.codegenOperand(term)
		if err != nil {
			return nil, err
		}
		if err := ctx.loadA(op); err != nil {
			return nil, err
		}
		if !first {
			if err := ctx.emit.ADC(sum); err != nil {
				return nil, err
			}
		}
		if err := ctx.emit.STA(sum); err != nil {
			return nil, err
		}
		if n.Type != ast.Add {
			return sum, nil
		}
		if n = n.Child(1); n == nil {
			return nil, malformed(node.Tok, "integer expression missing its right side")
		}
	}
}

// codegenComparison compares both sides with CPX and turns the zero flag
// into a pointer to "true" or "false" stored in a fresh slot.
func (ctx *Context) codegenComparison(node *ast.Node) (*Entry, error) {
	left, right := node.Child(0), node.Child(1)
	if left == nil || right == nil {
		return nil, malformed(node.Tok, "incomplete comparison")
	}
	lop, err := ctx.codegenOperand(left)
	if err != nil {
		return nil, err
	}
	rop, err := ctx.codegenInMemory(right)
	if err != nil {
		return nil, err
	}
	if lop.entry != nil {
		err = ctx.emit.LDXMem(lop.entry)
	} else {
		err = ctx.emit.LDXConst(lop.value)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.emit.CPX(rop.entry); err != nil {
		return nil, err
	}
	ctx.release(lop)
	ctx.release(rop)

	// BNE is taken when the sides differ and skips the second load.
	ifDiffer, ifEqual := image.FalseAddr, image.TrueAddr
	if node.Type == ast.NotEqual {
		ifDiffer, ifEqual = ifEqual, ifDiffer
	}
	result := ctx.st.GetOrAllocAnonymous()
	if err := ctx.emit.LDAConst(ifDiffer); err != nil {
		return nil, err
	}
	if err := ctx.emit.BNE(image.Byte(byte(isa.OpLDAConst.Len()))); err != nil {
		return nil, err
	}
	if err := ctx.emit.LDAConst(ifEqual); err != nil {
		return nil, err
	}
	if err := ctx.emit.STA(result); err != nil {
		return nil, err
	}
	return result, nil
}
