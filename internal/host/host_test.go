package host

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/ecrun/internal/diagnostics"
	"github.com/oxhq/ecrun/internal/evaluator"
	"github.com/oxhq/ecrun/internal/eventloop"
	"github.com/oxhq/ecrun/internal/parser"
	"github.com/oxhq/ecrun/internal/testutil"
	"github.com/oxhq/ecrun/internal/value"
)

// runScript executes src with the full host surface installed and the event
// loop driven to idle exit, returning captured stdout.
func runScript(t *testing.T, src string) string {
	t.Helper()
	out, _, err := tryScript(t, src)
	require.NoError(t, err)
	return out.String()
}

func tryScript(t *testing.T, src string) (*bytes.Buffer, *Host, error) {
	t.Helper()
	loop := eventloop.New()
	stdout := &bytes.Buffer{}
	h := New(loop, stdout, &bytes.Buffer{})

	prog, err := parser.Parse("test.ec", src)
	require.NoError(t, err)
	ev := evaluator.New(loop, nil, diagnostics.NewBuffer("test.ec", src))
	h.Install(ev)
	if err := ev.Run(prog); err != nil {
		return stdout, h, err
	}
	loop.Run()
	return stdout, h, nil
}

func TestConsoleLogArithmetic(t *testing.T) {
	assert.Equal(t, "3\n", runScript(t, `console.log(1 + 2);`))
}

func TestCompoundAssignmentScenario(t *testing.T) {
	assert.Equal(t, "30\n", runScript(t, `var x = 10; x += 5; x *= 2; console.log(x);`))
}

func TestObserveScenario(t *testing.T) {
	out := runScript(t, `
		var c = 0;
		observe c function(o, n) { console.log("from", o, "to", n); }
		c = 5;
		c = 7;
	`)
	testutil.AssertLinesEqual(t, "from 0 to 5\nfrom 5 to 7\n", out, "observer output")
}

func TestIntervalScenario(t *testing.T) {
	out := runScript(t, `
		var i = 0;
		var id = setInterval(function() {
			i = i + 1;
			if (i === 3) { clearInterval(id); }
			console.log(i);
		}, 10);
	`)
	testutil.AssertLinesEqual(t, "1\n2\n3\n", out, "interval output")
}

func TestPipelineScenario(t *testing.T) {
	out := runScript(t, `function add(a, b) { return a + b; } console.log(5 |> add(3));`)
	assert.Equal(t, "8\n", out)
}

func TestTimerOrdering(t *testing.T) {
	out := runScript(t, `
		setTimeout(function() { console.log("slow"); }, 30);
		setTimeout(function() { console.log("fast"); }, 5);
		nextTick(function() { console.log("tick"); });
		console.log("sync");
	`)
	testutil.AssertLinesEqual(t, "sync\ntick\nfast\nslow\n", out, "scheduling order")
}

func TestNextTickRunsBeforeSetImmediate(t *testing.T) {
	out := runScript(t, `
		setImmediate(function() { console.log("immediate"); });
		nextTick(function() { console.log("tick"); });
	`)
	testutil.AssertLinesEqual(t, "tick\nimmediate\n", out, "micro before macro")
}

func TestConsoleFormatting(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"top level string unquoted", `console.log("plain");`, "plain\n"},
		{"nested string quoted", `console.log(["a", 1]);`, "[\"a\", 1]\n"},
		{"object insertion order", `console.log({b: 1, a: "x"});`, "{b: 1, a: \"x\"}\n"},
		{"nested object", `console.log({o: {k: [1, 2]}});`, "{o: {k: [1, 2]}}\n"},
		{"null undefined", `console.log(null, undefined);`, "null undefined\n"},
		{"booleans", `console.log(true, false);`, "true false\n"},
		{"named function", `function fn() {} console.log(fn);`, "[Function fn]\n"},
		{"anonymous function", `console.log(function() {});`, "[Function]\n"},
		{"nan infinity", `console.log(0 / 0, 1 / 0);`, "NaN Infinity\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runScript(t, tt.src))
		})
	}
}

func TestDateISOFormatting(t *testing.T) {
	out := runScript(t, `console.log(new Date(0));`)
	assert.Equal(t, "1970-01-01T00:00:00.000Z\n", out)
}

func TestMathAndNumberBuiltins(t *testing.T) {
	out := runScript(t, `
		console.log(Math.floor(3.7), Math.max(1, 9, 4));
		console.log(parseInt("42px"), parseFloat("3.5rem"));
		console.log(isNaN(parseInt("nope")));
	`)
	testutil.AssertLinesEqual(t, "3 9\n42 3.5\ntrue\n", out, "math output")
}

func TestJSONRoundTripPreservesStructure(t *testing.T) {
	out := runScript(t, `
		var v = {b: [1, "two", null], a: {n: 3.5}, ok: true};
		var back = JSON.parse(JSON.stringify(v));
		console.log(back);
		console.log(JSON.stringify(back));
	`)
	testutil.AssertLinesEqual(t,
		"{b: [1, \"two\", null], a: {n: 3.5}, ok: true}\n"+
			`{"b":[1,"two",null],"a":{"n":3.5},"ok":true}`+"\n",
		out, "json round trip")
}

func TestJSONStringifyOmissions(t *testing.T) {
	out := runScript(t, `
		console.log(JSON.stringify({f: function() {}, u: undefined, k: 1}));
		console.log(JSON.stringify([undefined]));
	`)
	testutil.AssertLinesEqual(t, "{\"k\":1}\n[null]\n", out, "stringify omissions")
}

func TestDateMethods(t *testing.T) {
	out := runScript(t, `
		var d = new Date(86400000);
		console.log(d.getFullYear(), d.getMonth(), d.getDate());
		console.log(d.getTime());
	`)
	testutil.AssertLinesEqual(t, "1970 0 2\n86400000\n", out, "date methods")
}

func TestRegexHostMethods(t *testing.T) {
	out := runScript(t, `
		var re = /h(a)llo/i;
		console.log(re.test("Hallo"));
		console.log(re.exec("xhallox")[1]);
		console.log("aaa".replace(/a/g, "b"));
	`)
	testutil.AssertLinesEqual(t, "true\na\nbbb\n", out, "regex methods")
}

func TestBufferOperations(t *testing.T) {
	out := runScript(t, `
		var b = Buffer.from("hi");
		console.log(b.length);
		console.log(b.toString("hex"));
		console.log(Buffer.concat([b, Buffer.from("!")]).toString());
	`)
	testutil.AssertLinesEqual(t, "2\n6869\nhi!\n", out, "buffer ops")
}

func TestProcessFacade(t *testing.T) {
	out := runScript(t, `
		console.log(typeof process.pid, typeof process.platform);
		console.log(process.cwd().length > 0);
	`)
	testutil.AssertLinesEqual(t, "number string\ntrue\n", out, "process facade")
}

func TestProcessExitEvents(t *testing.T) {
	out, h, err := tryScript(t, `
		process.on("beforeExit", function(code) { console.log("before", code); });
		process.on("exit", function(code) { console.log("exit", code); });
	`)
	require.NoError(t, err)
	// The runner fires exit events after the loop drains.
	h.FireExitEvents()
	testutil.AssertLinesEqual(t, "before 0\nexit 0\n", out.String(), "exit events")
	assert.Equal(t, 0, h.ExitCode)
}

func TestExplicitExitSkipsBeforeExit(t *testing.T) {
	out, h, err := tryScript(t, `
		process.on("beforeExit", function(code) { console.log("before", code); });
		process.on("exit", function(code) { console.log("exit", code); });
		process.exit(3);
	`)
	require.ErrorIs(t, err, evaluator.ErrHalt)
	h.FireExitEvents()
	testutil.AssertLinesEqual(t, "exit 3\n", out.String(), "explicit exit")
	assert.Equal(t, 3, h.ExitCode)
}

func TestEventEmitterFanOut(t *testing.T) {
	obj, em := emitterObject("EventEmitter")
	var got []string
	record := func(tag string) value.Callable {
		return fn(func(args []value.Value) (value.Value, error) {
			got = append(got, tag+":"+value.ToString(arg(args, 0)))
			return value.Undef(), nil
		})
	}
	em.on("data", record("a"), false)
	em.on("data", record("b"), true)
	_, err := em.emit("data", []value.Value{value.Str("x")})
	require.NoError(t, err)
	_, err = em.emit("data", []value.Value{value.Str("y")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:x", "b:x", "a:y"}, got, "listeners fire in order; once-listeners drop off")

	onVal, ok := obj.Get("on")
	require.True(t, ok)
	assert.Equal(t, value.Function, onVal.Kind)
}

func TestObjectAndArrayStatics(t *testing.T) {
	out := runScript(t, `
		console.log(Object.keys({x: 1, y: 2}));
		console.log(Array.isArray([1]), Array.isArray("no"));
		console.log(Array.from("ab"));
	`)
	testutil.AssertLinesEqual(t, "[\"x\", \"y\"]\ntrue false\n[\"a\", \"b\"]\n", out, "statics")
}

func TestUncaughtTimerErrorSetsExitCode(t *testing.T) {
	_, h, err := tryScript(t, `
		setTimeout(function() { throw "late failure"; }, 1);
	`)
	require.NoError(t, err, "the throw happens inside the loop, not at top level")
	assert.Equal(t, 1, h.ExitCode)
}
