// Package evaluator tree-walks the AST produced by internal/parser,
// implementing spec.md §4.G's execution semantics: statements, expressions,
// closures/arrows/generators, construction, the pipeline operator, and the
// observe/when reactive statements. Grounded in the teacher's
// internal/core/pipeline.go 8-step Pipeline.Apply method (a single
// dispatching driver that threads a mutable result/error pair through
// successive stages) generalized from a one-shot transform pipeline into a
// recursive statement/expression evaluator.
package evaluator

import (
	"errors"
	"fmt"
	"math"

	"github.com/oxhq/ecrun/internal/ast"
	"github.com/oxhq/ecrun/internal/diagnostics"
	"github.com/oxhq/ecrun/internal/environment"
	"github.com/oxhq/ecrun/internal/eventloop"
	"github.com/oxhq/ecrun/internal/token"
	"github.com/oxhq/ecrun/internal/value"
)

// maxCallDepth bounds recursive evaluator calls, per spec.md §9 Design
// Notes' "MAY cap evaluation recursion depth" option, surfaced as a
// RUNTIME_ERROR rather than a Go stack overflow.
const maxCallDepth = 2000

// controlKind distinguishes the non-local exits a statement can produce.
type controlKind int

const (
	controlNone controlKind = iota
	controlBreak
	controlContinue
	controlReturn
	controlYield
)

// control carries a non-local statement exit up through nested Stmt
// evaluation, the way a tree-walker without exceptions threads break/
// continue/return signals.
type control struct {
	kind  controlKind
	value value.Value
}

// ErrHalt marks an error as a host shutdown request (process.exit): it
// unwinds the entire evaluation without being catchable by try/catch.
var ErrHalt = errors.New("halt")

// ThrownError wraps an ec-level thrown value so it can travel as a Go
// error through the call stack until a try/catch handles it.
type ThrownError struct {
	Value value.Value
}

func (e *ThrownError) Error() string {
	return "uncaught exception: " + value.ToString(e.Value)
}

// Evaluator executes one module's worth of statements against a global
// scope, with a host-provided Loop for timers/microtasks and a Resolver
// for import statements.
type Evaluator struct {
	Global   *environment.Scope
	Loop     *eventloop.Loop
	Resolver ModuleResolver
	Buf      *diagnostics.Buffer

	// Exports collects this module's export statements when the evaluator is
	// running a module's top level (set by the module resolver; nil for a
	// plain script, where export statements are a runtime error).
	Exports *value.Object

	// HostProps resolves property reads on value kinds the core does not
	// own (dates, regexes, buffers, host handles). Installed by the host
	// package so method bodies stay outside the evaluator, per spec.md §4.J.
	HostProps func(recv value.Value, name string) (value.Value, bool)

	// Last holds the value of the most recently evaluated expression
	// statement, preserving the program-evaluates-to-last-expression
	// convention a REPL builds on. Undefined for an empty program.
	Last value.Value

	depth     int
	triggered []string // stack of in-flight observer trigger names, for `when name`
}

// ModuleResolver abstracts spec.md §4.I's module resolution algorithm so
// the evaluator can import without depending on internal/modcache
// directly.
type ModuleResolver interface {
	Resolve(fromFile, specifier string) (exports *value.Object, err error)
}

// New creates an Evaluator with a fresh global scope.
func New(loop *eventloop.Loop, resolver ModuleResolver, buf *diagnostics.Buffer) *Evaluator {
	return &Evaluator{Global: environment.NewGlobal(), Loop: loop, Resolver: resolver, Buf: buf}
}

func (e *Evaluator) runtimeErr(pos ast.Pos, format string, args ...any) error {
	return e.Buf.New(diagnostics.Runtime, "RUNTIME_ERROR", pos.Offset, format, args...)
}

// Function is an ec-level closure: the captured definition scope plus its
// parameter list and body, invoked through value.Callable.
type Function struct {
	ev      *Evaluator
	def     *ast.FunctionExpr
	closure *environment.Scope
	this    value.Value
}

// Name reports the function's declared name, empty for anonymous functions
// and arrows; the console formatter uses it for [Function name] rendering.
func (f *Function) Name() string { return f.def.Name }

func (f *Function) Call(args []value.Value) (value.Value, error) {
	f.ev.depth++
	defer func() { f.ev.depth-- }()
	if f.ev.depth > maxCallDepth {
		return value.Undef(), f.ev.runtimeErr(f.def.At(), "maximum call stack size exceeded")
	}

	scope := f.closure.NewChild()
	for i, param := range f.def.Params {
		var v value.Value
		if i < len(args) {
			v = args[i]
		} else if param.Default != nil {
			dv, err := f.ev.evalExpr(param.Default, scope)
			if err != nil {
				return value.Undef(), err
			}
			v = dv
		} else {
			v = value.Undef()
		}
		if err := scope.Declare(param.Name, environment.KindLet, true); err != nil {
			return value.Undef(), err
		}
		scope.Initialize(param.Name, v)
	}
	// `arguments`-like access: bind the full call args array for variadic
	// style callers (spec.md §4.G does not define `arguments`, so this is
	// exposed only as a conventionally named binding, not magic).
	if err := scope.Declare("__args__", environment.KindLet, true); err == nil {
		scope.Initialize("__args__", value.Arr(args))
	}
	// Non-arrow functions bind `this` per call site; arrows leave the
	// enclosing binding visible through the closure chain (spec.md §4.G).
	if !f.def.IsArrow {
		if err := scope.Declare("this", environment.KindConst, true); err == nil {
			scope.Initialize("this", f.this)
		}
	}

	// A named function expression can refer to itself by name even when
	// the surrounding scope never binds it.
	if f.def.Name != "" && !f.def.IsArrow {
		if err := scope.Declare(f.def.Name, environment.KindConst, true); err == nil {
			scope.Initialize(f.def.Name, value.Fn(f))
		}
	}

	if f.def.IsGenerator {
		return f.ev.makeGenerator(f.def, scope, f.this), nil
	}

	if f.def.ExprBody != nil {
		return f.ev.evalExpr(f.def.ExprBody, scope)
	}

	ctl, err := f.ev.execBlock(f.def.Body, scope)
	if err != nil {
		return value.Undef(), err
	}
	if ctl.kind == controlReturn {
		return ctl.value, nil
	}
	return value.Undef(), nil
}

// ---- Program / statement execution ----

// Run executes an entire parsed program against the evaluator's global
// scope.
func (e *Evaluator) Run(prog *ast.Program) error {
	e.hoist(prog.Body, e.Global)
	ctl, err := e.execStmts(prog.Body, e.Global)
	if err != nil {
		return err
	}
	if ctl.kind == controlReturn {
		return e.runtimeErr(prog.At(), "illegal return at module top level")
	}
	return nil
}

// hoist pre-declares `var` and function names per spec.md §4.F, so forward
// references inside the same scope see `undefined` for a `var` and the
// function value for a function declaration rather than erroring.
// Declarations wrapped in `export` are hoisted the same way.
func (e *Evaluator) hoist(body []ast.Stmt, scope *environment.Scope) {
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *ast.VarDecl:
			if s.Kind == ast.VarVar {
				for _, d := range s.Decls {
					scope.Hoist(d.Name, environment.KindVar)
					if v, ok, _ := scope.Get(d.Name); ok && v == nil {
						scope.Initialize(d.Name, value.Undef())
					}
				}
			}
		case *ast.FunctionDecl:
			scope.Hoist(s.Fn.Name, environment.KindFunction)
			scope.Initialize(s.Fn.Name, value.Fn(&Function{ev: e, def: s.Fn, closure: scope}))
		case *ast.ExportStmt:
			if s.Decl != nil {
				e.hoist([]ast.Stmt{s.Decl}, scope)
			}
		}
	}
}

func (e *Evaluator) execBlock(body []ast.Stmt, parent *environment.Scope) (control, error) {
	scope := parent.NewChild()
	e.hoist(body, scope)
	return e.execStmts(body, scope)
}

func (e *Evaluator) execStmts(body []ast.Stmt, scope *environment.Scope) (control, error) {
	for _, stmt := range body {
		ctl, err := e.execStmt(stmt, scope)
		if err != nil {
			return control{}, err
		}
		if ctl.kind != controlNone {
			return ctl, nil
		}
	}
	return control{}, nil
}

func (e *Evaluator) execStmt(stmt ast.Stmt, scope *environment.Scope) (control, error) {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		v, err := e.evalExpr(s.X, scope)
		if err == nil {
			e.Last = v
		}
		return control{}, err

	case *ast.VarDecl:
		for _, d := range s.Decls {
			kind := environment.KindVar
			switch s.Kind {
			case ast.VarLet:
				kind = environment.KindLet
			case ast.VarConst:
				kind = environment.KindConst
			}
			if s.Kind != ast.VarVar {
				if err := scope.Declare(d.Name, kind, false); err != nil {
					return control{}, e.runtimeErr(s.At(), "%s", err)
				}
			}
			var v value.Value
			if d.Init != nil {
				var err error
				v, err = e.evalExpr(d.Init, scope)
				if err != nil {
					return control{}, err
				}
			} else {
				v = value.Undef()
			}
			scope.Initialize(d.Name, v)
		}
		return control{}, nil

	case *ast.BlockStmt:
		return e.execBlock(s.Body, scope)

	case *ast.IfStmt:
		cond, err := e.evalExpr(s.Cond, scope)
		if err != nil {
			return control{}, err
		}
		if value.Truthy(cond) {
			return e.execStmt(s.Then, scope)
		}
		if s.Alt != nil {
			return e.execStmt(s.Alt, scope)
		}
		return control{}, nil

	case *ast.WhileStmt:
		for {
			cond, err := e.evalExpr(s.Cond, scope)
			if err != nil {
				return control{}, err
			}
			if !value.Truthy(cond) {
				break
			}
			ctl, err := e.execStmt(s.Body, scope)
			if err != nil {
				return control{}, err
			}
			if ctl.kind == controlBreak {
				break
			}
			if ctl.kind == controlReturn || ctl.kind == controlYield {
				return ctl, nil
			}
		}
		return control{}, nil

	case *ast.DoWhileStmt:
		for {
			ctl, err := e.execStmt(s.Body, scope)
			if err != nil {
				return control{}, err
			}
			if ctl.kind == controlBreak {
				break
			}
			if ctl.kind == controlReturn || ctl.kind == controlYield {
				return ctl, nil
			}
			cond, err := e.evalExpr(s.Cond, scope)
			if err != nil {
				return control{}, err
			}
			if !value.Truthy(cond) {
				break
			}
		}
		return control{}, nil

	case *ast.ForStmt:
		return e.execFor(s, scope)

	case *ast.ForInStmt:
		return e.execForIn(s, scope)

	case *ast.BreakStmt:
		return control{kind: controlBreak}, nil

	case *ast.ContinueStmt:
		return control{kind: controlContinue}, nil

	case *ast.ReturnStmt:
		var v value.Value
		if s.Value != nil {
			var err error
			v, err = e.evalExpr(s.Value, scope)
			if err != nil {
				return control{}, err
			}
		} else {
			v = value.Undef()
		}
		return control{kind: controlReturn, value: v}, nil

	case *ast.YieldStmt:
		var v value.Value
		if s.Value != nil {
			var err error
			v, err = e.evalExpr(s.Value, scope)
			if err != nil {
				return control{}, err
			}
		} else {
			v = value.Undef()
		}
		return control{kind: controlYield, value: v}, nil

	case *ast.ThrowStmt:
		v, err := e.evalExpr(s.Value, scope)
		if err != nil {
			return control{}, err
		}
		return control{}, &ThrownError{Value: v}

	case *ast.TryStmt:
		return e.execTry(s, scope)

	case *ast.SwitchStmt:
		return e.execSwitch(s, scope)

	case *ast.FunctionDecl:
		fn := &Function{ev: e, def: s.Fn, closure: scope}
		scope.Initialize(s.Fn.Name, value.Fn(fn))
		return control{}, nil

	case *ast.ImportStmt:
		return control{}, e.execImport(s, scope)

	case *ast.ExportStmt:
		return control{}, e.execExport(s, scope)

	case *ast.ObserveStmt:
		return control{}, e.execObserve(s, scope)

	case *ast.WhenStmt:
		return control{}, e.execWhen(s, scope)

	default:
		return control{}, fmt.Errorf("evaluator: unhandled statement %T", stmt)
	}
}

func (e *Evaluator) execFor(s *ast.ForStmt, parent *environment.Scope) (control, error) {
	scope := parent.NewChild()
	if s.Init != nil {
		e.hoist([]ast.Stmt{s.Init}, scope)
		if _, err := e.execStmt(s.Init, scope); err != nil {
			return control{}, err
		}
	}
	for {
		if s.Cond != nil {
			cond, err := e.evalExpr(s.Cond, scope)
			if err != nil {
				return control{}, err
			}
			if !value.Truthy(cond) {
				break
			}
		}
		iterScope := scope.NewChild()
		ctl, err := e.execStmt(s.Body, iterScope)
		if err != nil {
			return control{}, err
		}
		if ctl.kind == controlBreak {
			break
		}
		if ctl.kind == controlReturn || ctl.kind == controlYield {
			return ctl, nil
		}
		if s.Post != nil {
			if _, err := e.evalExpr(s.Post, scope); err != nil {
				return control{}, err
			}
		}
	}
	return control{}, nil
}

func (e *Evaluator) execForIn(s *ast.ForInStmt, parent *environment.Scope) (control, error) {
	obj, err := e.evalExpr(s.Object, parent)
	if err != nil {
		return control{}, err
	}

	var keys []value.Value
	if s.Of {
		keys, err = e.iterableValues(obj, s.At())
		if err != nil {
			return control{}, err
		}
	} else {
		keys = e.enumerableKeys(obj)
	}

	envKind := environment.KindLet
	switch s.Kind {
	case ast.VarVar:
		envKind = environment.KindVar
	case ast.VarConst:
		envKind = environment.KindConst
	}

	for _, k := range keys {
		iterScope := parent.NewChild()
		if s.NoDecl {
			ok, constViolation := iterScope.Set(s.Name, k)
			if constViolation {
				return control{}, e.runtimeErr(s.At(), "assignment to constant variable %q", s.Name)
			}
			if !ok {
				return control{}, e.runtimeErr(s.At(), "assignment to undeclared variable %q", s.Name)
			}
		} else {
			if err := iterScope.Declare(s.Name, envKind, true); err != nil {
				return control{}, e.runtimeErr(s.At(), "%s", err)
			}
			iterScope.Initialize(s.Name, k)
		}
		ctl, err := e.execStmt(s.Body, iterScope)
		if err != nil {
			return control{}, err
		}
		if ctl.kind == controlBreak {
			break
		}
		if ctl.kind == controlReturn || ctl.kind == controlYield {
			return ctl, nil
		}
	}
	return control{}, nil
}

// enumerableKeys implements `for...in`: own-keys in insertion order for
// objects, indices as strings for arrays (spec.md §9 Open Question,
// resolved in DESIGN.md).
func (e *Evaluator) enumerableKeys(v value.Value) []value.Value {
	switch v.Kind {
	case value.ObjectKind:
		keys := v.AsObject().Keys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i] = value.Str(k)
		}
		return out
	case value.Array:
		arr := v.AsArray()
		out := make([]value.Value, len(arr))
		for i := range arr {
			out[i] = value.Str(fmt.Sprintf("%d", i))
		}
		return out
	default:
		return nil
	}
}

// iterableValues implements `for...of`: array elements in index order, or
// string characters (spec.md §4.G iteration scope).
func (e *Evaluator) iterableValues(v value.Value, pos ast.Pos) ([]value.Value, error) {
	switch v.Kind {
	case value.Array:
		return v.AsArray(), nil
	case value.String:
		s := v.AsString()
		out := make([]value.Value, 0, len(s))
		for _, r := range s {
			out = append(out, value.Str(string(r)))
		}
		return out, nil
	default:
		return nil, e.runtimeErr(pos, "value of type %s is not iterable", value.TypeOf(v))
	}
}

func (e *Evaluator) execTry(s *ast.TryStmt, scope *environment.Scope) (control, error) {
	ctl, err := e.execBlock(s.Block, scope)
	if err != nil {
		// Host shutdown requests unwind past every catch.
		if errors.Is(err, ErrHalt) {
			return control{}, err
		}
		if s.Catch != nil {
			thrown, ok := err.(*ThrownError)
			if !ok {
				thrown = &ThrownError{Value: value.Str(err.Error())}
			}
			catchScope := scope.NewChild()
			if s.Catch.Name != "" {
				if declErr := catchScope.Declare(s.Catch.Name, environment.KindLet, true); declErr != nil {
					return control{}, e.runtimeErr(s.At(), "%s", declErr)
				}
				catchScope.Initialize(s.Catch.Name, thrown.Value)
			}
			e.hoist(s.Catch.Body, catchScope)
			ctl, err = e.execStmts(s.Catch.Body, catchScope)
		}
	}
	if s.Finally != nil {
		finallyCtl, finallyErr := e.execBlock(s.Finally, scope)
		if finallyErr != nil {
			return control{}, finallyErr
		}
		if finallyCtl.kind != controlNone {
			return finallyCtl, nil
		}
	}
	return ctl, err
}

func (e *Evaluator) execSwitch(s *ast.SwitchStmt, parent *environment.Scope) (control, error) {
	disc, err := e.evalExpr(s.Disc, parent)
	if err != nil {
		return control{}, err
	}
	scope := parent.NewChild()
	matched := -1
	defaultIdx := -1
	for i, c := range s.Cases {
		if c.Test == nil {
			defaultIdx = i
			continue
		}
		tv, err := e.evalExpr(c.Test, scope)
		if err != nil {
			return control{}, err
		}
		if value.StrictEquals(disc, tv) {
			matched = i
			break
		}
	}
	if matched == -1 {
		matched = defaultIdx
	}
	if matched == -1 {
		return control{}, nil
	}
	// Switch falls through subsequent cases until a break, per spec.md §4.D.
	for i := matched; i < len(s.Cases); i++ {
		e.hoist(s.Cases[i].Body, scope)
		ctl, err := e.execStmts(s.Cases[i].Body, scope)
		if err != nil {
			return control{}, err
		}
		if ctl.kind == controlBreak {
			return control{}, nil
		}
		if ctl.kind != controlNone {
			return ctl, nil
		}
	}
	return control{}, nil
}

func (e *Evaluator) execImport(s *ast.ImportStmt, scope *environment.Scope) error {
	if e.Resolver == nil {
		return e.runtimeErr(s.At(), "module imports are not supported in this context")
	}
	exports, err := e.Resolver.Resolve(e.Buf.Name, s.Source)
	if err != nil {
		return err
	}
	for _, spec := range s.Specifiers {
		var v value.Value
		if spec.Imported == "*" {
			v = value.Obj(exports)
		} else {
			bound, ok := exports.Get(spec.Imported)
			if !ok {
				return e.runtimeErr(s.At(), "module %q has no export named %q", s.Source, spec.Imported)
			}
			v = bound
		}
		if err := scope.Declare(spec.Local, environment.KindConst, true); err != nil {
			return e.runtimeErr(s.At(), "%s", err)
		}
		scope.Initialize(spec.Local, v)
	}
	return nil
}

// execExport records exports into the module's exports map as the statement
// executes (spec.md §4.I: named imports bind by lookup at evaluation time).
func (e *Evaluator) execExport(s *ast.ExportStmt, scope *environment.Scope) error {
	if e.Exports == nil {
		return e.runtimeErr(s.At(), "export is only allowed at a module's top level")
	}

	if s.Default != nil {
		v, err := e.evalExpr(s.Default, scope)
		if err != nil {
			return err
		}
		e.Exports.Set("default", v)
		return nil
	}

	if s.Source != "" {
		if e.Resolver == nil {
			return e.runtimeErr(s.At(), "module imports are not supported in this context")
		}
		exports, err := e.Resolver.Resolve(e.Buf.Name, s.Source)
		if err != nil {
			return err
		}
		for _, n := range s.Names {
			v, ok := exports.Get(n.Name)
			if !ok {
				return e.runtimeErr(s.At(), "module %q has no export named %q", s.Source, n.Name)
			}
			e.Exports.Set(n.Alias, v)
		}
		return nil
	}

	if len(s.Names) > 0 {
		for _, n := range s.Names {
			v, ok, tdz := scope.Get(n.Name)
			if tdz || !ok {
				return e.runtimeErr(s.At(), "cannot export %q: it is not defined", n.Name)
			}
			e.Exports.Set(n.Alias, v.(value.Value))
		}
		return nil
	}

	ctl, err := e.execStmt(s.Decl, scope)
	if err != nil {
		return err
	}
	_ = ctl
	switch d := s.Decl.(type) {
	case *ast.VarDecl:
		for _, decl := range d.Decls {
			if v, ok, _ := scope.Get(decl.Name); ok {
				e.Exports.Set(decl.Name, v.(value.Value))
			}
		}
	case *ast.FunctionDecl:
		if v, ok, _ := scope.Get(d.Fn.Name); ok {
			e.Exports.Set(d.Fn.Name, v.(value.Value))
		}
	}
	return nil
}

// execObserve implements spec.md §3/§4.G: for a single name, the callback
// fires after every assignment with (oldValue, newValue, name); for
// multiple names the same callback fires once per assignment with a
// `changes` record naming which binding triggered it.
func (e *Evaluator) execObserve(s *ast.ObserveStmt, scope *environment.Scope) error {
	cb, err := e.evalExpr(s.Callback, scope)
	if err != nil {
		return err
	}
	if cb.Kind != value.Function {
		return e.runtimeErr(s.At(), "observe target is not callable")
	}
	callable := cb.AsCallable()
	multi := len(s.Names) > 1
	for _, n := range s.Names {
		if !scope.Has(n) {
			return e.runtimeErr(s.At(), "identifier %q is not defined", n)
		}
	}
	names := s.Names
	makeHandler := func(name string) func(old, new any) {
		return func(old, new any) {
			e.triggered = append(e.triggered, name)
			defer func() { e.triggered = e.triggered[:len(e.triggered)-1] }()
			var args []value.Value
			if multi {
				changes := value.NewObject()
				changes.Set("triggered", value.Arr([]value.Value{value.Str(name)}))
				values := value.NewObject()
				for _, vn := range names {
					if cur, ok, _ := scope.Get(vn); ok {
						values.Set(vn, cur.(value.Value))
					}
				}
				changes.Set("values", value.Obj(values))
				diff := value.NewObject()
				diff.Set("old", old.(value.Value))
				diff.Set("new", new.(value.Value))
				changes.Set(name, value.Obj(diff))
				args = []value.Value{value.Obj(changes)}
			} else {
				args = []value.Value{old.(value.Value), new.(value.Value), value.Str(name)}
			}
			_, _ = callable.Call(args)
		}
	}
	for _, n := range names {
		if _, err := scope.Observe(n, makeHandler(n)); err != nil {
			return err
		}
	}
	return nil
}

// execWhen implements the observer-body guard from spec.md §4.D/§4.G:
// `when (cond) block` runs only if cond is truthy; `when name block` runs
// only if the enclosing observer invocation was triggered by name.
func (e *Evaluator) execWhen(s *ast.WhenStmt, scope *environment.Scope) error {
	if s.Cond != nil {
		v, err := e.evalExpr(s.Cond, scope)
		if err != nil {
			return err
		}
		if !value.Truthy(v) {
			return nil
		}
	} else {
		if len(e.triggered) == 0 || e.triggered[len(e.triggered)-1] != s.Name {
			return nil
		}
	}
	_, err := e.execBlock(s.Body, scope)
	return err
}

// ---- Expression evaluation ----

func (e *Evaluator) evalExpr(expr ast.Expr, scope *environment.Scope) (value.Value, error) {
	switch x := expr.(type) {
	case *ast.NumberLit:
		return value.Num(x.Value), nil
	case *ast.StringLit:
		return value.Str(x.Value), nil
	case *ast.BoolLit:
		return value.Bool(x.Value), nil
	case *ast.NullLit:
		return value.Nul(), nil
	case *ast.ThisExpr:
		v, ok, _ := scope.Get("this")
		if !ok {
			return value.Undef(), nil
		}
		return v.(value.Value), nil
	case *ast.RegexLit:
		re, err := compileRegex(x.Pattern, x.Flags)
		if err != nil {
			return value.Undef(), e.runtimeErr(x.At(), "%s", err)
		}
		return value.RegexValue(re), nil
	case *ast.TemplateLit:
		return e.evalTemplate(x, scope)
	case *ast.Ident:
		return e.evalIdent(x, scope)
	case *ast.ArrayLit:
		return e.evalArrayLit(x, scope)
	case *ast.ObjectLit:
		return e.evalObjectLit(x, scope)
	case *ast.FunctionExpr:
		this, _, _ := scope.Get("this")
		tv, _ := this.(value.Value)
		return value.Fn(&Function{ev: e, def: x, closure: scope, this: tv}), nil
	case *ast.UnaryExpr:
		return e.evalUnary(x, scope)
	case *ast.UpdateExpr:
		return e.evalUpdate(x, scope)
	case *ast.BinaryExpr:
		return e.evalBinary(x, scope)
	case *ast.LogicalExpr:
		return e.evalLogical(x, scope)
	case *ast.AssignExpr:
		return e.evalAssign(x, scope)
	case *ast.ConditionalExpr:
		cond, err := e.evalExpr(x.Cond, scope)
		if err != nil {
			return value.Undef(), err
		}
		if value.Truthy(cond) {
			return e.evalExpr(x.Then, scope)
		}
		return e.evalExpr(x.Else, scope)
	case *ast.CallExpr:
		return e.evalCall(x, scope)
	case *ast.NewExpr:
		return e.evalNew(x, scope)
	case *ast.MemberExpr:
		obj, err := e.evalExpr(x.Object, scope)
		if err != nil {
			return value.Undef(), err
		}
		return e.getProperty(obj, x.Property, x.At())
	case *ast.IndexExpr:
		obj, err := e.evalExpr(x.Object, scope)
		if err != nil {
			return value.Undef(), err
		}
		idx, err := e.evalExpr(x.Index, scope)
		if err != nil {
			return value.Undef(), err
		}
		return e.getProperty(obj, value.ToString(idx), x.At())
	case *ast.PipeExpr:
		return e.evalPipe(x, scope)
	case *ast.ImportExpr:
		if e.Resolver == nil {
			return value.Undef(), e.runtimeErr(x.At(), "module imports are not supported in this context")
		}
		src, err := e.evalExpr(x.Source, scope)
		if err != nil {
			return value.Undef(), err
		}
		exports, err := e.Resolver.Resolve(e.Buf.Name, value.ToString(src))
		if err != nil {
			return value.Undef(), err
		}
		return value.Obj(exports), nil
	default:
		return value.Undef(), fmt.Errorf("evaluator: unhandled expression %T", expr)
	}
}

func (e *Evaluator) evalIdent(x *ast.Ident, scope *environment.Scope) (value.Value, error) {
	v, ok, tdz := scope.Get(x.Name)
	if tdz {
		return value.Undef(), e.runtimeErr(x.At(), "cannot access %q before initialization", x.Name)
	}
	if !ok {
		return value.Undef(), e.runtimeErr(x.At(), "%q is not defined", x.Name)
	}
	return v.(value.Value), nil
}

func (e *Evaluator) evalTemplate(x *ast.TemplateLit, scope *environment.Scope) (value.Value, error) {
	var out string
	for i, q := range x.Quasis {
		out += q
		if i < len(x.Exprs) {
			v, err := e.evalExpr(x.Exprs[i], scope)
			if err != nil {
				return value.Undef(), err
			}
			out += value.ToString(v)
		}
	}
	return value.Str(out), nil
}

func (e *Evaluator) evalArrayLit(x *ast.ArrayLit, scope *environment.Scope) (value.Value, error) {
	elems := make([]value.Value, len(x.Elements))
	for i, el := range x.Elements {
		v, err := e.evalExpr(el, scope)
		if err != nil {
			return value.Undef(), err
		}
		elems[i] = v
	}
	return value.Arr(elems), nil
}

func (e *Evaluator) evalObjectLit(x *ast.ObjectLit, scope *environment.Scope) (value.Value, error) {
	obj := value.NewObject()
	for _, p := range x.Props {
		key := p.Key
		if p.ComputedKey != nil {
			kv, err := e.evalExpr(p.ComputedKey, scope)
			if err != nil {
				return value.Undef(), err
			}
			key = value.ToString(kv)
		}
		v, err := e.evalExpr(p.Value, scope)
		if err != nil {
			return value.Undef(), err
		}
		obj.Set(key, v)
	}
	return value.Obj(obj), nil
}

func (e *Evaluator) evalUnary(x *ast.UnaryExpr, scope *environment.Scope) (value.Value, error) {
	if x.Op == token.TYPEOF {
		if id, ok := x.X.(*ast.Ident); ok && !scope.Has(id.Name) {
			return value.Str("undefined"), nil
		}
	}
	v, err := e.evalExpr(x.X, scope)
	if err != nil {
		return value.Undef(), err
	}
	switch x.Op {
	case token.MINUS:
		return value.Num(-value.ToNumber(v)), nil
	case token.PLUS:
		return value.Num(value.ToNumber(v)), nil
	case token.NOT:
		return value.Bool(!value.Truthy(v)), nil
	case token.BIT_NOT:
		return value.Num(float64(^value.ToInt32(v))), nil
	case token.TYPEOF:
		return value.Str(value.TypeOf(v)), nil
	default:
		return value.Undef(), e.runtimeErr(x.At(), "unsupported unary operator %s", x.Op)
	}
}

func (e *Evaluator) evalUpdate(x *ast.UpdateExpr, scope *environment.Scope) (value.Value, error) {
	old, err := e.evalExpr(x.X, scope)
	if err != nil {
		return value.Undef(), err
	}
	oldN := value.ToNumber(old)
	newN := oldN + 1
	if x.Op == token.DEC {
		newN = oldN - 1
	}
	if err := e.assignTo(x.X, value.Num(newN), scope); err != nil {
		return value.Undef(), err
	}
	if x.Prefix {
		return value.Num(newN), nil
	}
	return value.Num(oldN), nil
}

func (e *Evaluator) evalBinary(x *ast.BinaryExpr, scope *environment.Scope) (value.Value, error) {
	a, err := e.evalExpr(x.X, scope)
	if err != nil {
		return value.Undef(), err
	}
	b, err := e.evalExpr(x.Y, scope)
	if err != nil {
		return value.Undef(), err
	}
	switch x.Op {
	case token.PLUS:
		return value.Add(a, b), nil
	case token.MINUS:
		return value.Num(value.ToNumber(a) - value.ToNumber(b)), nil
	case token.STAR:
		return value.Num(value.ToNumber(a) * value.ToNumber(b)), nil
	case token.SLASH:
		return value.Num(value.ToNumber(a) / value.ToNumber(b)), nil
	case token.EQ:
		return value.Bool(value.LooseEquals(a, b)), nil
	case token.NOT_EQ:
		return value.Bool(!value.LooseEquals(a, b)), nil
	case token.STRICT_EQ:
		return value.Bool(value.StrictEquals(a, b)), nil
	case token.STRICT_NOT_EQ:
		return value.Bool(!value.StrictEquals(a, b)), nil
	case token.LT, token.LT_EQ, token.GT, token.GT_EQ:
		return e.evalRelational(x.Op, a, b), nil
	case token.BIT_AND:
		return value.Num(float64(value.ToInt32(a) & value.ToInt32(b))), nil
	case token.BIT_OR:
		return value.Num(float64(value.ToInt32(a) | value.ToInt32(b))), nil
	case token.BIT_XOR:
		return value.Num(float64(value.ToInt32(a) ^ value.ToInt32(b))), nil
	case token.SHL:
		return value.Num(float64(value.ToInt32(a) << (value.ToUint32(b) & 31))), nil
	case token.SHR:
		return value.Num(float64(value.ToInt32(a) >> (value.ToUint32(b) & 31))), nil
	case token.USHR:
		return value.Num(float64(value.ToUint32(a) >> (value.ToUint32(b) & 31))), nil
	default:
		return value.Undef(), e.runtimeErr(x.At(), "unsupported binary operator %s", x.Op)
	}
}

func (e *Evaluator) evalRelational(op token.Kind, a, b value.Value) value.Value {
	if a.Kind == value.String && b.Kind == value.String {
		as, bs := a.AsString(), b.AsString()
		switch op {
		case token.LT:
			return value.Bool(as < bs)
		case token.LT_EQ:
			return value.Bool(as <= bs)
		case token.GT:
			return value.Bool(as > bs)
		default:
			return value.Bool(as >= bs)
		}
	}
	an, bn := value.ToNumber(a), value.ToNumber(b)
	if math.IsNaN(an) || math.IsNaN(bn) {
		return value.Bool(false)
	}
	switch op {
	case token.LT:
		return value.Bool(an < bn)
	case token.LT_EQ:
		return value.Bool(an <= bn)
	case token.GT:
		return value.Bool(an > bn)
	default:
		return value.Bool(an >= bn)
	}
}

func (e *Evaluator) evalLogical(x *ast.LogicalExpr, scope *environment.Scope) (value.Value, error) {
	a, err := e.evalExpr(x.X, scope)
	if err != nil {
		return value.Undef(), err
	}
	if x.Op == token.AND {
		if !value.Truthy(a) {
			return a, nil
		}
		return e.evalExpr(x.Y, scope)
	}
	if value.Truthy(a) {
		return a, nil
	}
	return e.evalExpr(x.Y, scope)
}

func (e *Evaluator) evalAssign(x *ast.AssignExpr, scope *environment.Scope) (value.Value, error) {
	rhs, err := e.evalExpr(x.Value, scope)
	if err != nil {
		return value.Undef(), err
	}
	newVal := rhs
	if x.Op != token.ASSIGN {
		cur, err := e.evalExpr(x.Target, scope)
		if err != nil {
			return value.Undef(), err
		}
		switch x.Op {
		case token.PLUS_ASSIGN:
			newVal = value.Add(cur, rhs)
		case token.MINUS_ASSIGN:
			newVal = value.Num(value.ToNumber(cur) - value.ToNumber(rhs))
		case token.STAR_ASSIGN:
			newVal = value.Num(value.ToNumber(cur) * value.ToNumber(rhs))
		case token.SLASH_ASSIGN:
			newVal = value.Num(value.ToNumber(cur) / value.ToNumber(rhs))
		}
	}
	if err := e.assignTo(x.Target, newVal, scope); err != nil {
		return value.Undef(), err
	}
	return newVal, nil
}

func (e *Evaluator) assignTo(target ast.Expr, v value.Value, scope *environment.Scope) error {
	switch t := target.(type) {
	case *ast.Ident:
		ok, constViolation := scope.Set(t.Name, v)
		if constViolation {
			return e.runtimeErr(t.At(), "assignment to constant variable %q", t.Name)
		}
		if !ok {
			return e.runtimeErr(t.At(), "assignment to undeclared variable %q", t.Name)
		}
		return nil
	case *ast.MemberExpr:
		obj, err := e.evalExpr(t.Object, scope)
		if err != nil {
			return err
		}
		return e.setProperty(obj, t.Property, v, t.At())
	case *ast.IndexExpr:
		obj, err := e.evalExpr(t.Object, scope)
		if err != nil {
			return err
		}
		idx, err := e.evalExpr(t.Index, scope)
		if err != nil {
			return err
		}
		return e.setProperty(obj, value.ToString(idx), v, t.At())
	default:
		return e.runtimeErr(target.At(), "invalid assignment target")
	}
}

func (e *Evaluator) evalCall(x *ast.CallExpr, scope *environment.Scope) (value.Value, error) {
	var this value.Value
	var calleeVal value.Value
	var err error
	if mem, ok := x.Callee.(*ast.MemberExpr); ok {
		this, err = e.evalExpr(mem.Object, scope)
		if err != nil {
			return value.Undef(), err
		}
		calleeVal, err = e.getProperty(this, mem.Property, mem.At())
	} else if idx, ok := x.Callee.(*ast.IndexExpr); ok {
		this, err = e.evalExpr(idx.Object, scope)
		if err != nil {
			return value.Undef(), err
		}
		var key value.Value
		key, err = e.evalExpr(idx.Index, scope)
		if err == nil {
			calleeVal, err = e.getProperty(this, value.ToString(key), idx.At())
		}
	} else {
		calleeVal, err = e.evalExpr(x.Callee, scope)
	}
	if err != nil {
		return value.Undef(), err
	}
	if calleeVal.Kind != value.Function {
		return value.Undef(), e.runtimeErr(x.At(), "value is not callable")
	}
	args := make([]value.Value, len(x.Args))
	for i, a := range x.Args {
		v, err := e.evalExpr(a, scope)
		if err != nil {
			return value.Undef(), err
		}
		args[i] = v
	}
	if fn, ok := calleeVal.AsCallable().(*Function); ok && fn.this.Kind == value.Undefined && this.Kind != value.Undefined {
		bound := *fn
		bound.this = this
		return bound.Call(args)
	}
	return calleeVal.AsCallable().Call(args)
}

func (e *Evaluator) evalNew(x *ast.NewExpr, scope *environment.Scope) (value.Value, error) {
	calleeVal, err := e.evalExpr(x.Callee, scope)
	if err != nil {
		return value.Undef(), err
	}
	if calleeVal.Kind != value.Function {
		return value.Undef(), e.runtimeErr(x.At(), "value is not a constructor")
	}
	args := make([]value.Value, len(x.Args))
	for i, a := range x.Args {
		v, err := e.evalExpr(a, scope)
		if err != nil {
			return value.Undef(), err
		}
		args[i] = v
	}
	instance := value.NewObject()
	this := value.Obj(instance)
	if fn, ok := calleeVal.AsCallable().(*Function); ok {
		bound := *fn
		bound.this = this
		result, err := bound.Call(args)
		if err != nil {
			return value.Undef(), err
		}
		if result.Kind == value.ObjectKind {
			return result, nil
		}
		return this, nil
	}
	return calleeVal.AsCallable().Call(args)
}

func (e *Evaluator) evalPipe(x *ast.PipeExpr, scope *environment.Scope) (value.Value, error) {
	v, err := e.evalExpr(x.X, scope)
	if err != nil {
		return value.Undef(), err
	}
	// `x |> add(3)` prepends x as the first argument (spec.md §4.G), so the
	// call expression on the right is not evaluated as-is; its callee and
	// arguments are evaluated separately and v is spliced in front.
	if call, ok := x.F.(*ast.CallExpr); ok {
		f, err := e.evalExpr(call.Callee, scope)
		if err != nil {
			return value.Undef(), err
		}
		if f.Kind != value.Function {
			return value.Undef(), e.runtimeErr(x.At(), "pipeline target is not callable")
		}
		args := []value.Value{v}
		for _, a := range call.Args {
			av, err := e.evalExpr(a, scope)
			if err != nil {
				return value.Undef(), err
			}
			args = append(args, av)
		}
		return f.AsCallable().Call(args)
	}
	f, err := e.evalExpr(x.F, scope)
	if err != nil {
		return value.Undef(), err
	}
	if f.Kind != value.Function {
		return value.Undef(), e.runtimeErr(x.At(), "pipeline target is not callable")
	}
	return f.AsCallable().Call([]value.Value{v})
}

// ---- Property access ----

func (e *Evaluator) getProperty(obj value.Value, name string, pos ast.Pos) (value.Value, error) {
	switch obj.Kind {
	case value.ObjectKind:
		if v, ok := obj.AsObject().Get(name); ok {
			return v, nil
		}
		return value.Undef(), nil
	case value.Array:
		arr := obj.AsArray()
		if name == "length" {
			return value.Num(float64(len(arr))), nil
		}
		if i, ok := arrayIndex(name); ok {
			if i >= 0 && i < len(arr) {
				return arr[i], nil
			}
			return value.Undef(), nil
		}
		return arrayMethod(e, obj, name), nil
	case value.String:
		s := obj.AsString()
		if name == "length" {
			return value.Num(float64(len([]rune(s)))), nil
		}
		if i, ok := arrayIndex(name); ok {
			runes := []rune(s)
			if i >= 0 && i < len(runes) {
				return value.Str(string(runes[i])), nil
			}
			return value.Undef(), nil
		}
		return stringMethod(e, obj, name), nil
	case value.Undefined, value.Null:
		return value.Undef(), e.runtimeErr(pos, "cannot read property %q of %s", name, obj.Kind)
	default:
		// Dates, regexes, buffers, and host handles resolve methods through
		// the host surface's dispatch table (spec.md §4.J).
		if e.HostProps != nil {
			if v, ok := e.HostProps(obj, name); ok {
				return v, nil
			}
		}
		return value.Undef(), nil
	}
}

func (e *Evaluator) setProperty(obj value.Value, name string, v value.Value, pos ast.Pos) error {
	switch obj.Kind {
	case value.ObjectKind:
		obj.AsObject().Set(name, v)
		return nil
	case value.Array:
		if i, ok := arrayIndex(name); ok {
			ref := obj.ArrayRef()
			for len(*ref) <= i {
				*ref = append(*ref, value.Undef())
			}
			(*ref)[i] = v
			return nil
		}
		return nil
	case value.Undefined, value.Null:
		return e.runtimeErr(pos, "cannot set property %q of %s", name, obj.Kind)
	default:
		return nil
	}
}

func arrayIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	n := 0
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
