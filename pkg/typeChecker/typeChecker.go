package typeChecker

import (
	"github.com/xplshn/g65/pkg/ast"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/util"
)

// TypeChecker builds the scope tree of one program, resolves every
// identifier to its declaration and checks the types of assignments,
// integer expressions and comparisons.
type TypeChecker struct {
	cfg          *config.Config
	rep          *util.Reporter
	currentScope *ast.Scope
	nextScopeID  int
	errors       int
}

func NewTypeChecker(cfg *config.Config, rep *util.Reporter) *TypeChecker {
	return &TypeChecker{cfg: cfg, rep: rep}
}

func (tc *TypeChecker) enterScope(block *ast.Node) {
	tc.currentScope = ast.NewScope(tc.nextScopeID, tc.currentScope)
	tc.nextScopeID++
	block.Scope = tc.currentScope
}

func (tc *TypeChecker) exitScope() {
	if tc.currentScope.Parent != nil {
		tc.currentScope = tc.currentScope.Parent
	}
}

func (tc *TypeChecker) error(node *ast.Node, format string, args ...interface{}) {
	tc.errors++
	tc.rep.Error(util.StageSemantic, node.Tok, format, args...)
}

// Check analyzes the program rooted at root and returns its outermost scope
// and whether it is free of errors. The tree is annotated in place.
func (tc *TypeChecker) Check(root *ast.Node) (*ast.Scope, bool) {
	tc.currentScope, tc.nextScopeID, tc.errors = nil, 0, 0
	if root == nil || root.Type != ast.Block {
		return nil, false
	}
	tc.checkStmt(root)
	rootScope := root.Scope
	tc.reportUnused(rootScope)
	tc.rep.Info(util.StageSemantic, root.Tok, "Semantic analysis of program %d finished with %d error(s)", root.Tok.Program, tc.errors)
	return rootScope, tc.errors == 0
}

func (tc *TypeChecker) checkStmt(node *ast.Node) {
	switch node.Type {
	case ast.Block:
		tc.enterScope(node)
		for _, stmt := range node.Children {
			tc.checkStmt(stmt)
		}
		tc.exitScope()
	case ast.VarDecl:
		typ, ident := node.Child(0), node.Child(1)
		sym, ok := tc.currentScope.Declare(ident.Value, ast.ParseVarType(typ.Value), ident.Tok)
		if !ok {
			tc.error(ident, "Redeclared identifier '%s' in the same scope (first declared on line %d)", ident.Value, sym.Tok.Line)
			return
		}
		ident.Sym = sym
	case ast.Assign:
		lhs, rhs := node.Child(0), node.Child(1)
		rhsType := tc.checkExpr(rhs)
		sym := tc.resolve(lhs)
		if sym == nil {
			return
		}
		if rhsType != ast.TypeUnknown && rhsType != sym.Type {
			tc.error(lhs, "Type mismatch: cannot assign %s to %s variable '%s'", rhsType, sym.Type, sym.Name)
		}
		sym.Initialized = true
	case ast.Print:
		tc.checkExpr(node.Child(0))
	case ast.If, ast.While:
		if typ := tc.checkExpr(node.Child(0)); typ != ast.TypeBoolean && typ != ast.TypeUnknown {
			tc.error(node.Child(0), "Condition of %s must be boolean, found %s", node.Type, typ)
		}
		tc.checkStmt(node.Child(1))
	default:
		tc.error(node, "Unexpected %s node in statement position", node.Type)
	}
}

func (tc *TypeChecker) resolve(ident *ast.Node) *ast.Symbol {
	sym := tc.currentScope.Lookup(ident.Value)
	if sym == nil {
		tc.error(ident, "Undeclared identifier '%s'", ident.Value)
		return nil
	}
	ident.Sym = sym
	return sym
}

func (tc *TypeChecker) checkExpr(node *ast.Node) ast.VarType {
	switch node.Type {
	case ast.Digit:
		return ast.TypeInt
	case ast.String:
		return ast.TypeString
	case ast.Bool:
		return ast.TypeBoolean
	case ast.Ident:
		sym := tc.resolve(node)
		if sym == nil {
			return ast.TypeUnknown
		}
		if !sym.Initialized {
			tc.rep.Warn(config.WarnUninitialized, util.StageSemantic, node.Tok, "Variable '%s' is used before being initialized; it holds its type's default", sym.Name)
		}
		sym.Used = true
		return sym.Type
	case ast.Add:
		if rest := tc.checkExpr(node.Child(1)); rest != ast.TypeInt && rest != ast.TypeUnknown {
			tc.error(node.Child(1), "Type mismatch: integer expression expects int, found %s", rest)
		}
		return ast.TypeInt
	case ast.Equal, ast.NotEqual:
		left, right := tc.checkExpr(node.Child(0)), tc.checkExpr(node.Child(1))
		if left != ast.TypeUnknown && right != ast.TypeUnknown && left != right {
			tc.error(node, "Type mismatch: cannot compare %s with %s", left, right)
		}
		return ast.TypeBoolean
	}
	tc.error(node, "Unexpected %s node in expression position", node.Type)
	return ast.TypeUnknown
}

func (tc *TypeChecker) reportUnused(root *ast.Scope) {
	root.Walk(func(s *ast.Scope) {
		for _, sym := range s.Ordered() {
			switch {
			case !sym.Used && !sym.Initialized:
				tc.rep.Warn(config.WarnUnused, util.StageSemantic, sym.Tok, "Variable '%s' is declared but never used", sym.Name)
			case !sym.Used:
				tc.rep.Warn(config.WarnUnusedInit, util.StageSemantic, sym.Tok, "Variable '%s' is initialized but never used", sym.Name)
			}
		}
	})
}
