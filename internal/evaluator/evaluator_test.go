package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/ecrun/internal/diagnostics"
	"github.com/oxhq/ecrun/internal/parser"
	"github.com/oxhq/ecrun/internal/value"
)

// run parses and evaluates src against a fresh global scope, returning the
// evaluator for binding inspection.
func run(t *testing.T, src string) (*Evaluator, error) {
	t.Helper()
	prog, err := parser.Parse("test.ec", src)
	require.NoError(t, err)
	ev := New(nil, nil, diagnostics.NewBuffer("test.ec", src))
	return ev, ev.Run(prog)
}

func mustRun(t *testing.T, src string) *Evaluator {
	t.Helper()
	ev, err := run(t, src)
	require.NoError(t, err)
	return ev
}

func global(t *testing.T, ev *Evaluator, name string) value.Value {
	t.Helper()
	v, ok, _ := ev.Global.Get(name)
	require.True(t, ok, "global %q not found", name)
	return v.(value.Value)
}

func TestArithmeticAndCompoundAssignment(t *testing.T) {
	ev := mustRun(t, `var x = 10; x += 5; x *= 2;`)
	assert.Equal(t, value.Num(30), global(t, ev, "x"))
}

func TestStringConcatenation(t *testing.T) {
	ev := mustRun(t, `var s = "n=" + 3 + "!";`)
	assert.Equal(t, value.Str("n=3!"), global(t, ev, "s"))
}

func TestTemplateLiterals(t *testing.T) {
	ev := mustRun(t, "var n = 6; var s = `got ${n * 7}: ${`inner ${n}`}`;")
	assert.Equal(t, value.Str("got 42: inner 6"), global(t, ev, "s"))
}

func TestShortCircuit(t *testing.T) {
	ev := mustRun(t, `
		var called = false;
		function mark() { called = true; return true; }
		var a = false && mark();
		var b = true || mark();
	`)
	assert.Equal(t, value.Bool(false), global(t, ev, "called"))
	assert.Equal(t, value.Bool(false), global(t, ev, "a"))
	assert.Equal(t, value.Bool(true), global(t, ev, "b"))
}

func TestClosuresCaptureDefiningFrame(t *testing.T) {
	ev := mustRun(t, `
		function counter() {
			var n = 0;
			return function() { n = n + 1; return n; };
		}
		var c = counter();
		c(); c();
		var third = c();
		var other = counter()();
	`)
	assert.Equal(t, value.Num(3), global(t, ev, "third"))
	assert.Equal(t, value.Num(1), global(t, ev, "other"))
}

func TestFunctionHoisting(t *testing.T) {
	ev := mustRun(t, `var r = add(1, 2); function add(a, b) { return a + b; }`)
	assert.Equal(t, value.Num(3), global(t, ev, "r"))
}

func TestMissingArgsAreUndefined(t *testing.T) {
	ev := mustRun(t, `function f(a, b) { return typeof b; } var r = f(1);`)
	assert.Equal(t, value.Str("undefined"), global(t, ev, "r"))
}

func TestDefaultParameters(t *testing.T) {
	ev := mustRun(t, `function f(a, b = 10) { return a + b; } var r = f(1); var r2 = f(1, 2);`)
	assert.Equal(t, value.Num(11), global(t, ev, "r"))
	assert.Equal(t, value.Num(3), global(t, ev, "r2"))
}

func TestPipelineOperator(t *testing.T) {
	ev := mustRun(t, `
		function add(a, b) { return a + b; }
		function double(x) { return x * 2; }
		var r = 5 |> add(3);
		var chained = 1 |> double |> double;
	`)
	assert.Equal(t, value.Num(8), global(t, ev, "r"))
	assert.Equal(t, value.Num(4), global(t, ev, "chained"))
}

func TestBlockScoping(t *testing.T) {
	ev := mustRun(t, `
		let x = "outer";
		var seen;
		{
			let x = "inner";
			seen = x;
		}
		var after = x;
	`)
	assert.Equal(t, value.Str("inner"), global(t, ev, "seen"))
	assert.Equal(t, value.Str("outer"), global(t, ev, "after"))
}

func TestConstAssignmentFails(t *testing.T) {
	_, err := run(t, `const c = 1; c = 2;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constant")
}

func TestTDZAccessFails(t *testing.T) {
	_, err := run(t, `{ var f = function() { return l; }; f(); let l = 1; }`)
	require.Error(t, err)
}

func TestAssignToUndeclaredFails(t *testing.T) {
	_, err := run(t, `ghost = 1;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared")
}

func TestUndefinedIdentifierFails(t *testing.T) {
	_, err := run(t, `ghost + 1;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not defined")
}

func TestTypeofUndeclaredDoesNotThrow(t *testing.T) {
	ev := mustRun(t, `var r = typeof ghost;`)
	assert.Equal(t, value.Str("undefined"), global(t, ev, "r"))
}

func TestLoops(t *testing.T) {
	ev := mustRun(t, `
		var sum = 0;
		for (var i = 1; i <= 4; i++) { sum += i; }
		var n = 0;
		while (n < 3) { n++; }
		var m = 0;
		do { m++; } while (m < 2);
	`)
	assert.Equal(t, value.Num(10), global(t, ev, "sum"))
	assert.Equal(t, value.Num(3), global(t, ev, "n"))
	assert.Equal(t, value.Num(2), global(t, ev, "m"))
}

func TestBreakContinue(t *testing.T) {
	ev := mustRun(t, `
		var evens = 0;
		for (var i = 0; i < 10; i++) {
			if (i === 6) { break; }
			if (i - 2 * (i / 2 | 0) === 1) { continue; }
			evens++;
		}
	`)
	assert.Equal(t, value.Num(3), global(t, ev, "evens"))
}

func TestForInObjectKeysInsertionOrder(t *testing.T) {
	ev := mustRun(t, `
		var o = { b: 1, a: 2, c: 3 };
		var keys = "";
		for (var k in o) { keys += k; }
	`)
	assert.Equal(t, value.Str("bac"), global(t, ev, "keys"))
}

func TestForInArrayIndices(t *testing.T) {
	ev := mustRun(t, `
		var a = [10, 20, 30];
		var idx = "";
		for (var i in a) { idx += i; }
	`)
	assert.Equal(t, value.Str("012"), global(t, ev, "idx"))
}

func TestForInExistingTarget(t *testing.T) {
	ev := mustRun(t, `
		var k;
		var last = "";
		for (k in { x: 1, y: 2 }) { last = k; }
	`)
	assert.Equal(t, value.Str("y"), global(t, ev, "last"))
	assert.Equal(t, value.Str("y"), global(t, ev, "k"), "loop variable outlives the loop")
}

func TestForOfValuesAndStringChars(t *testing.T) {
	ev := mustRun(t, `
		var sum = 0;
		for (var v of [1, 2, 3]) { sum += v; }
		var chars = "";
		for (var c of "abc") { chars += c + "."; }
	`)
	assert.Equal(t, value.Num(6), global(t, ev, "sum"))
	assert.Equal(t, value.Str("a.b.c."), global(t, ev, "chars"))
}

func TestSwitchFallthroughAndDefault(t *testing.T) {
	ev := mustRun(t, `
		function classify(x) {
			var r = "";
			switch (x) {
			case 1: r += "one ";
			case 2: r += "two"; break;
			default: r = "other";
			}
			return r;
		}
		var a = classify(1);
		var b = classify(2);
		var c = classify(9);
	`)
	assert.Equal(t, value.Str("one two"), global(t, ev, "a"))
	assert.Equal(t, value.Str("two"), global(t, ev, "b"))
	assert.Equal(t, value.Str("other"), global(t, ev, "c"))
}

func TestSwitchUsesStrictEquality(t *testing.T) {
	ev := mustRun(t, `
		var r = "";
		switch ("1") {
		case 1: r = "number"; break;
		default: r = "default";
		}
	`)
	assert.Equal(t, value.Str("default"), global(t, ev, "r"))
}

func TestTryCatchFinally(t *testing.T) {
	ev := mustRun(t, `
		var log = "";
		try {
			log += "t";
			throw "boom";
		} catch (e) {
			log += "c:" + e;
		} finally {
			log += "f";
		}
	`)
	assert.Equal(t, value.Str("tc:boomf"), global(t, ev, "log"))
}

func TestFinallyOverridesPendingReturn(t *testing.T) {
	ev := mustRun(t, `
		function f() {
			try {
				return "from try";
			} finally {
				return "from finally";
			}
		}
		var r = f();
	`)
	assert.Equal(t, value.Str("from finally"), global(t, ev, "r"))
}

func TestUncaughtThrowSurfaces(t *testing.T) {
	_, err := run(t, `throw "unhandled";`)
	require.Error(t, err)
	thrown, ok := err.(*ThrownError)
	require.True(t, ok)
	assert.Equal(t, value.Str("unhandled"), thrown.Value)
}

func TestRuntimeErrorsAreCatchable(t *testing.T) {
	ev := mustRun(t, `
		var caught = "";
		try {
			undeclared_name + 1;
		} catch (e) {
			caught = "yes";
		}
	`)
	assert.Equal(t, value.Str("yes"), global(t, ev, "caught"))
}

func TestObserveSingleVariable(t *testing.T) {
	ev := mustRun(t, `
		var c = 0;
		var log = "";
		observe c function(o, n) { log += "from " + o + " to " + n + ";"; }
		c = 5;
		c = 7;
	`)
	assert.Equal(t, value.Str("from 0 to 5;from 5 to 7;"), global(t, ev, "log"))
}

func TestObserveFiresOnSameValue(t *testing.T) {
	ev := mustRun(t, `
		var x = 1;
		var count = 0;
		observe x function(o, n) { count++; }
		x = 1;
		x = 1;
	`)
	assert.Equal(t, value.Num(2), global(t, ev, "count"))
}

func TestObserveMultiVariableChangesRecord(t *testing.T) {
	ev := mustRun(t, `
		var a = 1; var b = 2;
		var triggered = ""; var aOld = -1; var aNew = -1; var bSeen = -1;
		observe (a, b) function(changes) {
			triggered += changes.triggered[0];
			if (changes.a) { aOld = changes.a.old; aNew = changes.a.new; }
			bSeen = changes.values.b;
		}
		a = 10;
	`)
	assert.Equal(t, value.Str("a"), global(t, ev, "triggered"))
	assert.Equal(t, value.Num(1), global(t, ev, "aOld"))
	assert.Equal(t, value.Num(10), global(t, ev, "aNew"))
	assert.Equal(t, value.Num(2), global(t, ev, "bSeen"))
}

func TestWhenGuardByName(t *testing.T) {
	ev := mustRun(t, `
		var a = 1; var b = 2;
		var log = "";
		observe (a, b) function(changes) {
			when a { log += "A"; }
			when b { log += "B"; }
		}
		a = 3;
		b = 4;
		a = 5;
	`)
	assert.Equal(t, value.Str("ABA"), global(t, ev, "log"))
}

func TestWhenGuardByCondition(t *testing.T) {
	ev := mustRun(t, `
		var x = 0;
		var hits = 0;
		observe x function(o, n) {
			when (n > 2) { hits++; }
		}
		x = 1;
		x = 3;
		x = 5;
	`)
	assert.Equal(t, value.Num(2), global(t, ev, "hits"))
}

func TestGenerators(t *testing.T) {
	ev := mustRun(t, `
		function* seq() {
			yield 1;
			yield 2;
			return 99;
		}
		var g = seq();
		var r1 = g.next();
		var r2 = g.next();
		var r3 = g.next();
		var r4 = g.next();
		var v1 = r1.value; var d1 = r1.done;
		var v2 = r2.value;
		var d3 = r3.done;
		var d4 = r4.done;
	`)
	assert.Equal(t, value.Num(1), global(t, ev, "v1"))
	assert.Equal(t, value.Bool(false), global(t, ev, "d1"))
	assert.Equal(t, value.Num(2), global(t, ev, "v2"))
	assert.Equal(t, value.Bool(true), global(t, ev, "d3"))
	assert.Equal(t, value.Bool(true), global(t, ev, "d4"))
}

func TestGeneratorYieldInsideLoop(t *testing.T) {
	ev := mustRun(t, `
		function* upto(n) {
			for (var i = 1; i <= n; i++) { yield i; }
		}
		var g = upto(3);
		var sum = 0;
		var r = g.next();
		while (!r.done) {
			sum += r.value;
			r = g.next();
		}
	`)
	assert.Equal(t, value.Num(6), global(t, ev, "sum"))
}

func TestNewConstruction(t *testing.T) {
	ev := mustRun(t, `
		function Point(x, y) {
			this.x = x;
			this.y = y;
		}
		var p = new Point(3, 4);
		var px = p.x;
		var py = p.y;
	`)
	assert.Equal(t, value.Num(3), global(t, ev, "px"))
	assert.Equal(t, value.Num(4), global(t, ev, "py"))
}

func TestNewReturnsExplicitObject(t *testing.T) {
	ev := mustRun(t, `
		function Maker() { return { tag: "explicit" }; }
		var m = new Maker();
		var tag = m.tag;
	`)
	assert.Equal(t, value.Str("explicit"), global(t, ev, "tag"))
}

func TestMethodCallBindsThis(t *testing.T) {
	ev := mustRun(t, `
		var obj = {
			n: 41,
			incr: function() { return this.n + 1; }
		};
		var r = obj.incr();
	`)
	assert.Equal(t, value.Num(42), global(t, ev, "r"))
}

func TestMemberAssignmentSkipsObservers(t *testing.T) {
	ev := mustRun(t, `
		var o = { n: 1 };
		var fired = 0;
		observe o function(a, b) { fired++; }
		o.n = 2;
		var n = o.n;
	`)
	assert.Equal(t, value.Num(0), global(t, ev, "fired"))
	assert.Equal(t, value.Num(2), global(t, ev, "n"))
}

func TestArrayOperations(t *testing.T) {
	ev := mustRun(t, `
		var a = [1, 2, 3];
		a.push(4);
		var len = a.length;
		var popped = a.pop();
		var joined = a.join("-");
		var mapped = a.map(function(x) { return x * 2; }).join(",");
		var found = a.indexOf(2);
		var missing = a[99];
	`)
	assert.Equal(t, value.Num(4), global(t, ev, "len"))
	assert.Equal(t, value.Num(4), global(t, ev, "popped"))
	assert.Equal(t, value.Str("1-2-3"), global(t, ev, "joined"))
	assert.Equal(t, value.Str("2,4,6"), global(t, ev, "mapped"))
	assert.Equal(t, value.Num(1), global(t, ev, "found"))
	assert.Equal(t, value.Undef(), global(t, ev, "missing"))
}

func TestStringMethods(t *testing.T) {
	ev := mustRun(t, `
		var s = "Hello World";
		var up = s.toUpperCase();
		var has = s.includes("World");
		var first = s.split(" ")[0];
		var sliced = s.slice(0, 5);
	`)
	assert.Equal(t, value.Str("HELLO WORLD"), global(t, ev, "up"))
	assert.Equal(t, value.Bool(true), global(t, ev, "has"))
	assert.Equal(t, value.Str("Hello"), global(t, ev, "first"))
	assert.Equal(t, value.Str("Hello"), global(t, ev, "sliced"))
}

func TestPropertyAccessOnNullFails(t *testing.T) {
	_, err := run(t, `var n = null; n.prop;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read property")
}

func TestMissingObjectKeyIsUndefined(t *testing.T) {
	ev := mustRun(t, `var o = {}; var v = o.nothing;`)
	assert.Equal(t, value.Undef(), global(t, ev, "v"))
}

func TestEmptySourceAndCommentsOnly(t *testing.T) {
	ev := mustRun(t, "")
	assert.Equal(t, value.Undef(), ev.Last)
	ev = mustRun(t, "// only a comment\n/* and a block */")
	assert.Equal(t, value.Undef(), ev.Last)
}

func TestProgramEvaluatesToLastExpression(t *testing.T) {
	ev := mustRun(t, `var x = 2; x * 21;`)
	assert.Equal(t, value.Num(42), ev.Last)
}

func TestBitwiseAndShift(t *testing.T) {
	ev := mustRun(t, `
		var a = 6 & 3;
		var o = 6 | 3;
		var x = 6 ^ 3;
		var shl = 1 << 4;
		var sar = -8 >> 1;
		var ushr = -1 >>> 28;
	`)
	assert.Equal(t, value.Num(2), global(t, ev, "a"))
	assert.Equal(t, value.Num(7), global(t, ev, "o"))
	assert.Equal(t, value.Num(5), global(t, ev, "x"))
	assert.Equal(t, value.Num(16), global(t, ev, "shl"))
	assert.Equal(t, value.Num(-4), global(t, ev, "sar"))
	assert.Equal(t, value.Num(15), global(t, ev, "ushr"))
}

func TestAlternativeWordOperators(t *testing.T) {
	ev := mustRun(t, `
		var eq = 3 is 3;
		var both = true and true;
		var either = false or true;
	`)
	assert.Equal(t, value.Bool(true), global(t, ev, "eq"))
	assert.Equal(t, value.Bool(true), global(t, ev, "both"))
	assert.Equal(t, value.Bool(true), global(t, ev, "either"))
}

func TestUpdateExpressions(t *testing.T) {
	ev := mustRun(t, `
		var i = 5;
		var post = i++;
		var pre = ++i;
	`)
	assert.Equal(t, value.Num(5), global(t, ev, "post"))
	assert.Equal(t, value.Num(7), global(t, ev, "pre"))
	assert.Equal(t, value.Num(7), global(t, ev, "i"))
}

func TestExportCollection(t *testing.T) {
	src := `
		export const PI = 3.14;
		export function area(r) { return PI * r * r; }
		export default area;
		var hidden = 1;
		export { hidden as internal };
	`
	prog, err := parser.Parse("m.ec", src)
	require.NoError(t, err)
	ev := New(nil, nil, diagnostics.NewBuffer("m.ec", src))
	ev.Exports = value.NewObject()
	require.NoError(t, ev.Run(prog))

	assert.Equal(t, []string{"PI", "area", "default", "internal"}, ev.Exports.Keys())
	pi, _ := ev.Exports.Get("PI")
	assert.Equal(t, value.Num(3.14), pi)
}

func TestExportOutsideModuleFails(t *testing.T) {
	_, err := run(t, `export const x = 1;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module")
}

func TestRecursionDepthGuard(t *testing.T) {
	_, err := run(t, `function f() { return f(); } f();`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call stack")
}

func TestRegexLiteralAndMethods(t *testing.T) {
	ev := mustRun(t, `
		var re = /ab+c/i;
		var src = re.source;
		var flags = re.flags;
	`)
	// source/flags resolve through the host dispatcher; without a host
	// installed they are undefined, but the literal itself must evaluate.
	v := global(t, ev, "re")
	assert.Equal(t, value.RegexKind, v.Kind)
	assert.Equal(t, "ab+c", v.AsRegex().Source)
	assert.Equal(t, "i", v.AsRegex().Flags)
}

func TestTernary(t *testing.T) {
	ev := mustRun(t, `var r = 1 > 2 ? "yes" : "no";`)
	assert.Equal(t, value.Str("no"), global(t, ev, "r"))
}

func TestArrowThisIsLexical(t *testing.T) {
	ev := mustRun(t, `
		var obj = {
			n: 1,
			make: function() {
				return () => this.n + 1;
			}
		};
		var r = obj.make()();
	`)
	assert.Equal(t, value.Num(2), global(t, ev, "r"))
}
