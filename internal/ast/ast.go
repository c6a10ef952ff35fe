// Package ast defines the tree-walked syntax produced by the parser,
// grounded in termfx-morfx's tagged-struct style (internal/core/types.go's
// Operation/Status constant sets paired with plain data structs) generalized
// from a flat operation descriptor into a recursive expression/statement
// tree per spec.md §3.
package ast

import "github.com/oxhq/ecrun/internal/token"

// Pos carries the source byte offset a node starts at, for diagnostics.
type Pos struct {
	Offset int
	Line   int
	Column int
}

// Node is implemented by every AST node.
type Node interface {
	At() Pos
}

type Base struct{ Pos Pos }

func (b Base) At() Pos { return b.Pos }

// ---- Expressions ----

type Expr interface {
	Node
	exprNode()
}

type ExprBase struct{ Base }

func (ExprBase) exprNode() {}

// NumberLit is a numeric literal (spec.md §3: numbers are double-precision).
type NumberLit struct {
	ExprBase
	Value float64
}

// StringLit is a plain string literal with escapes already decoded.
type StringLit struct {
	ExprBase
	Value string
}

// TemplateLit is a template literal made of literal string quasis
// interleaved with embedded expressions (spec.md §4.B TEMPLATE_* tokens).
type TemplateLit struct {
	ExprBase
	Quasis []string
	Exprs  []Expr
}

// BoolLit is `true` or `false`.
type BoolLit struct {
	ExprBase
	Value bool
}

// NullLit is the `null` literal.
type NullLit struct{ ExprBase }

// RegexLit is a regex literal with its source pattern and flag letters.
type RegexLit struct {
	ExprBase
	Pattern string
	Flags   string
}

// Ident is a bare identifier reference.
type Ident struct {
	ExprBase
	Name string
}

// ThisExpr is the `this` keyword.
type ThisExpr struct{ ExprBase }

// ArrayLit is `[a, b, c]`.
type ArrayLit struct {
	ExprBase
	Elements []Expr
}

// ObjectProp is one `key: value` pair of an object literal. Computed keys
// use Key == "" with ComputedKey holding the key expression.
type ObjectProp struct {
	Key         string
	ComputedKey Expr
	Value       Expr
}

// ObjectLit is `{ a: 1, [b]: 2 }`.
type ObjectLit struct {
	ExprBase
	Props []ObjectProp
}

// UnaryExpr is a prefix operator: `-x`, `+x`, `!x`, `~x`, `typeof x`.
// Prefix `++x` / `--x` are UpdateExpr nodes.
type UnaryExpr struct {
	ExprBase
	Op token.Kind
	X  Expr
}

// UpdateExpr is a postfix `x++` / `x--`, or a prefix `++x` / `--x` when
// Prefix is set.
type UpdateExpr struct {
	ExprBase
	Op     token.Kind
	X      Expr
	Prefix bool
}

// BinaryExpr is an infix arithmetic, relational, bitwise, or shift operator.
type BinaryExpr struct {
	ExprBase
	Op   token.Kind
	X, Y Expr
}

// LogicalExpr is `&&` / `||`, kept distinct from BinaryExpr because the
// right operand is evaluated lazily (spec.md §4.G short-circuit rule).
type LogicalExpr struct {
	ExprBase
	Op   token.Kind
	X, Y Expr
}

// AssignExpr is `x = y`, `x += y`, etc. Target is an Ident, MemberExpr, or
// IndexExpr (spec.md §4.D assignment-target restriction).
type AssignExpr struct {
	ExprBase
	Op     token.Kind
	Target Expr
	Value  Expr
}

// ConditionalExpr is the ternary `cond ? x : y`.
type ConditionalExpr struct {
	ExprBase
	Cond, Then, Else Expr
}

// CallExpr is `callee(args...)`.
type CallExpr struct {
	ExprBase
	Callee Expr
	Args   []Expr
}

// NewExpr is `new Callee(args...)` (spec.md §4.G construction semantics).
type NewExpr struct {
	ExprBase
	Callee Expr
	Args   []Expr
}

// MemberExpr is `obj.prop`.
type MemberExpr struct {
	ExprBase
	Object   Expr
	Property string
}

// IndexExpr is `obj[expr]`.
type IndexExpr struct {
	ExprBase
	Object Expr
	Index  Expr
}

// PipeExpr is the pipeline operator `x |> f` (spec.md §4.G: `f(x)` sugar).
type PipeExpr struct {
	ExprBase
	X, F Expr
}

// Param is a function parameter, optionally with a default value.
type Param struct {
	Name    string
	Default Expr
}

// FunctionExpr is a function literal: `function name(params) {...}`,
// an arrow `(params) => expr|{...}`, or a generator `function* (...) {...}`.
type FunctionExpr struct {
	ExprBase
	Name        string // empty for anonymous/arrow
	Params      []Param
	Body        []Stmt
	ExprBody    Expr // set instead of Body for concise arrows `x => x+1`
	IsArrow     bool
	IsGenerator bool
}

// ---- Statements ----

type Stmt interface {
	Node
	stmtNode()
}

type StmtBase struct{ Base }

func (StmtBase) stmtNode() {}

// ExprStmt wraps a bare expression used as a statement.
type ExprStmt struct {
	StmtBase
	X Expr
}

// VarKind distinguishes var/let/const declaration semantics (spec.md §4.F).
type VarKind int

const (
	VarVar VarKind = iota
	VarLet
	VarConst
)

// VarDeclarator is one `name = init` entry of a declaration statement.
type VarDeclarator struct {
	Name string
	Init Expr // nil if uninitialized (only legal for `var`/`let`)
}

// VarDecl is a `var`/`let`/`const` declaration statement.
type VarDecl struct {
	StmtBase
	Kind  VarKind
	Decls []VarDeclarator
}

// BlockStmt is a `{ ... }` statement sequence introducing a new scope.
type BlockStmt struct {
	StmtBase
	Body []Stmt
}

// IfStmt is `if (cond) then else alt`. Alt is nil when there is no else
// clause; dangling-else binds to the nearest unmatched if (spec.md §4.D).
type IfStmt struct {
	StmtBase
	Cond Expr
	Then Stmt
	Alt  Stmt
}

// ForStmt is the classic three-clause `for (init; cond; post) body`. Any of
// Init/Cond/Post may be nil.
type ForStmt struct {
	StmtBase
	Init Stmt
	Cond Expr
	Post Expr
	Body Stmt
}

// ForInStmt is `for (var x in obj) body` / `for (var x of iterable) body`.
// Of distinguishes the two enumeration modes (spec.md §4.G); NoDecl marks a
// head that assigns to an existing binding instead of declaring one.
type ForInStmt struct {
	StmtBase
	Kind   VarKind
	Name   string
	NoDecl bool
	Object Expr
	Of     bool
	Body   Stmt
}

// WhileStmt is `while (cond) body`.
type WhileStmt struct {
	StmtBase
	Cond Expr
	Body Stmt
}

// DoWhileStmt is `do body while (cond)`.
type DoWhileStmt struct {
	StmtBase
	Body Stmt
	Cond Expr
}

// BreakStmt is `break;`.
type BreakStmt struct{ StmtBase }

// ContinueStmt is `continue;`.
type ContinueStmt struct{ StmtBase }

// ReturnStmt is `return expr?;`.
type ReturnStmt struct {
	StmtBase
	Value Expr // nil for bare `return;`
}

// YieldStmt is a statement-position `yield expr?;` inside a generator body.
type YieldStmt struct {
	StmtBase
	Value Expr
}

// ThrowStmt is `throw expr;`.
type ThrowStmt struct {
	StmtBase
	Value Expr
}

// CatchClause is the `catch (name) { ... }` part of a try statement; Name is
// empty when the catch binds no parameter.
type CatchClause struct {
	Name string
	Body []Stmt
}

// TryStmt is `try { } catch (e) { } finally { }`; Catch/Finally are nil when
// absent (spec.md §4.D requires at least one of the two).
type TryStmt struct {
	StmtBase
	Block   []Stmt
	Catch   *CatchClause
	Finally []Stmt
}

// SwitchCase is one `case expr:`/`default:` arm. Test == nil marks default.
type SwitchCase struct {
	Test Expr
	Body []Stmt
}

// SwitchStmt is `switch (disc) { case ...: ... }` with fallthrough semantics.
type SwitchStmt struct {
	StmtBase
	Disc  Expr
	Cases []SwitchCase
}

// FunctionDecl is a named function declaration statement (as opposed to a
// FunctionExpr used in expression position).
type FunctionDecl struct {
	StmtBase
	Fn *FunctionExpr
}

// ImportSpecifier is one named, default, or namespace binding of an import
// statement. Imported is "default" for a default import and "*" for a
// namespace import.
type ImportSpecifier struct {
	Imported string
	Local    string
}

// ImportStmt is `import { a, b as c } from "spec"`, `import d from "spec"`,
// `import * as ns from "spec"`, a mixed `import d, { a } from "spec"`, or a
// bare side-effect `import "spec"` (spec.md §4.I). An empty Specifiers list
// means side-effect only.
type ImportStmt struct {
	StmtBase
	Specifiers []ImportSpecifier
	Source     string
}

// ImportExpr is the call-like dynamic import `import("spec")`, resolving
// through the same module machinery as static imports and yielding the
// module's exports record (spec.md §4.I: no promise contract required).
type ImportExpr struct {
	ExprBase
	Source Expr
}

// ExportName is one `name` or `name as alias` entry of a braced export list.
type ExportName struct {
	Name  string
	Alias string // equals Name when no rename
}

// ExportStmt covers the export forms of spec.md §4.D: `export <decl>`,
// `export default expr`, `export { a, b as c }`, and the re-export
// `export { a } from "spec"` (Source non-empty).
type ExportStmt struct {
	StmtBase
	Decl    Stmt       // non-nil for `export <decl>`
	Default Expr       // non-nil for `export default expr`
	Names   []ExportName
	Source  string
}

// ObserveStmt is `observe name fn` or `observe (n1, n2, ...) fn` (spec.md
// §3/§4.G): Callback is invoked after any assignment to one of Names,
// single-variable form with (old, new, name), multi-variable form with one
// `changes` record argument.
type ObserveStmt struct {
	StmtBase
	Names    []string
	Callback Expr
}

// WhenStmt is the observer-body guard from spec.md §4.D/§4.G: `when (cond)
// block` runs Body only if Cond is truthy; `when name block` (Name set,
// Cond nil) is sugar for "only if this invocation was triggered by name".
type WhenStmt struct {
	StmtBase
	Cond Expr
	Name string
	Body []Stmt
}

// Program is the root node: a module's top-level statement sequence.
type Program struct {
	StmtBase
	Body []Stmt
}
