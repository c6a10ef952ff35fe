package evaluator

import (
	"github.com/oxhq/ecrun/internal/ast"
	"github.com/oxhq/ecrun/internal/environment"
	"github.com/oxhq/ecrun/internal/value"
)

// generatorState backs a basic yield/next generator object (spec.md §4.G:
// "generators beyond yield/next" are explicitly out of scope, so this
// supports exactly one resumable yield point per Next call, driven by a
// dedicated goroutine that blocks on channels between yields — the same
// shape as a cooperative coroutine, not full bidirectional generator
// protocol).
type generatorState struct {
	yields  chan value.Value
	resume  chan struct{}
	done    bool
	result  value.Value
	err     error
	started bool
}

// makeGenerator wraps a generator function body into a host object exposing
// a `next()` method that advances execution to the following yield (or
// completion), matching the minimal `{ value, done }` result shape.
func (e *Evaluator) makeGenerator(def *ast.FunctionExpr, scope *environment.Scope, this value.Value) value.Value {
	gs := &generatorState{
		yields: make(chan value.Value),
		resume: make(chan struct{}),
	}

	runBody := func() {
		<-gs.resume
		ctl, err := e.execGeneratorBlock(def.Body, scope, gs)
		gs.done = true
		if err != nil {
			gs.err = err
		} else if ctl.kind == controlReturn {
			gs.result = ctl.value
		} else {
			gs.result = value.Undef()
		}
		close(gs.yields)
	}
	go runBody()

	obj := value.NewObject()
	obj.Class = "Generator"
	obj.Set("next", value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
		if gs.done {
			return generatorResult(value.Undef(), true), nil
		}
		gs.resume <- struct{}{}
		v, ok := <-gs.yields
		if !ok {
			if gs.err != nil {
				return value.Undef(), gs.err
			}
			return generatorResult(gs.result, true), nil
		}
		return generatorResult(v, false), nil
	})))
	return value.Obj(obj)
}

func generatorResult(v value.Value, done bool) value.Value {
	o := value.NewObject()
	o.Set("value", v)
	o.Set("done", value.Bool(done))
	return value.Obj(o)
}

// hostFunc adapts a plain Go closure to value.Callable for host-provided
// methods such as a generator's `next`.
type hostFunc func(args []value.Value) (value.Value, error)

func (h hostFunc) Call(args []value.Value) (value.Value, error) { return h(args) }

// execGeneratorBlock mirrors execBlock/execStmts but evaluates YieldStmt by
// handing the value across the generator's channel pair and blocking until
// the consumer calls next() again.
func (e *Evaluator) execGeneratorBlock(body []ast.Stmt, parent *environment.Scope, gs *generatorState) (control, error) {
	scope := parent.NewChild()
	e.hoist(body, scope)
	return e.execGeneratorStmts(body, scope, gs)
}

func (e *Evaluator) execGeneratorStmts(body []ast.Stmt, scope *environment.Scope, gs *generatorState) (control, error) {
	for _, stmt := range body {
		ctl, err := e.execGeneratorStmt(stmt, scope, gs)
		if err != nil {
			return control{}, err
		}
		if ctl.kind != controlNone {
			return ctl, nil
		}
	}
	return control{}, nil
}

// execGeneratorStmt behaves like execStmt except it intercepts YieldStmt
// (suspending the goroutine) and recurses into blocks, if/else, while and
// classic for loops using the generator-aware evaluator, so yields nested
// in those still suspend correctly. A yield nested inside a do-while,
// for-in/for-of, switch or try statement does not suspend the generator,
// and its value is not delivered to next().
func (e *Evaluator) execGeneratorStmt(stmt ast.Stmt, scope *environment.Scope, gs *generatorState) (control, error) {
	switch s := stmt.(type) {
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
		gs.yields <- v
		<-gs.resume
		return control{}, nil

	case *ast.BlockStmt:
		return e.execGeneratorBlock(s.Body, scope, gs)

	case *ast.IfStmt:
		cond, err := e.evalExpr(s.Cond, scope)
		if err != nil {
			return control{}, err
		}
		if value.Truthy(cond) {
			return e.execGeneratorStmt(s.Then, scope, gs)
		}
		if s.Alt != nil {
			return e.execGeneratorStmt(s.Alt, scope, gs)
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
			ctl, err := e.execGeneratorStmt(s.Body, scope, gs)
			if err != nil {
				return control{}, err
			}
			if ctl.kind == controlBreak {
				break
			}
			if ctl.kind == controlReturn {
				return ctl, nil
			}
		}
		return control{}, nil

	case *ast.ForStmt:
		childScope := scope.NewChild()
		if s.Init != nil {
			e.hoist([]ast.Stmt{s.Init}, childScope)
			if _, err := e.execStmt(s.Init, childScope); err != nil {
				return control{}, err
			}
		}
		for {
			if s.Cond != nil {
				cond, err := e.evalExpr(s.Cond, childScope)
				if err != nil {
					return control{}, err
				}
				if !value.Truthy(cond) {
					break
				}
			}
			ctl, err := e.execGeneratorStmt(s.Body, childScope.NewChild(), gs)
			if err != nil {
				return control{}, err
			}
			if ctl.kind == controlBreak {
				break
			}
			if ctl.kind == controlReturn {
				return ctl, nil
			}
			if s.Post != nil {
				if _, err := e.evalExpr(s.Post, childScope); err != nil {
					return control{}, err
				}
			}
		}
		return control{}, nil

	default:
		// Declarations, expressions, return, break/continue, throw, and the
		// compound statements not listed above run on the ordinary
		// evaluator path.
		return e.execStmt(stmt, scope)
	}
}
