package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/ecrun/internal/token"
)

func kinds(t *testing.T, src string) []token.Kind {
	t.Helper()
	toks, err := Tokenize("test.ec", src)
	require.NoError(t, err)
	out := make([]token.Kind, 0, len(toks))
	for _, tok := range toks {
		out = append(out, tok.Kind)
	}
	return out
}

func TestTokenizeBasics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []token.Kind
	}{
		{
			name: "declaration with initializer",
			src:  "var x = 10;",
			want: []token.Kind{token.VAR, token.IDENT, token.ASSIGN, token.NUMBER, token.SEMI, token.EOF},
		},
		{
			name: "multi char operators",
			src:  "a === b !== c >= d >>> e",
			want: []token.Kind{
				token.IDENT, token.STRICT_EQ, token.IDENT, token.STRICT_NOT_EQ,
				token.IDENT, token.GT_EQ, token.IDENT, token.USHR, token.IDENT, token.EOF,
			},
		},
		{
			name: "arrow and pipeline",
			src:  "x => x |> f",
			want: []token.Kind{token.IDENT, token.ARROW, token.IDENT, token.PIPE, token.IDENT, token.EOF},
		},
		{
			name: "compound assignment",
			src:  "x += 1; x *= 2;",
			want: []token.Kind{
				token.IDENT, token.PLUS_ASSIGN, token.NUMBER, token.SEMI,
				token.IDENT, token.STAR_ASSIGN, token.NUMBER, token.SEMI, token.EOF,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kinds(t, tt.src))
		})
	}
}

func TestAlternativeWordForms(t *testing.T) {
	// is/and/or lex as their operator kinds, not identifiers.
	assert.Equal(t,
		[]token.Kind{token.IDENT, token.EQ, token.NUMBER, token.AND, token.IDENT, token.OR, token.IDENT, token.EOF},
		kinds(t, "a is 1 and b or c"))
}

func TestKeywordsAreReserved(t *testing.T) {
	toks, err := Tokenize("test.ec", "observe when typeof of")
	require.NoError(t, err)
	assert.Equal(t, token.OBSERVE, toks[0].Kind)
	assert.Equal(t, token.WHEN, toks[1].Kind)
	assert.Equal(t, token.TYPEOF, toks[2].Kind)
	assert.Equal(t, token.OF, toks[3].Kind)
}

func TestStringEscapes(t *testing.T) {
	toks, err := Tokenize("test.ec", `"a\nb\t\x41B"`)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\tAB", toks[0].Lexeme)

	toks, err = Tokenize("test.ec", `'it\'s'`)
	require.NoError(t, err)
	assert.Equal(t, "it's", toks[0].Lexeme)
}

func TestStringAcrossNewlineFails(t *testing.T) {
	_, err := Tokenize("test.ec", "\"abc\ndef\"")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newline")
}

func TestUnterminatedConstructs(t *testing.T) {
	for _, src := range []string{`"abc`, "`abc", "/* abc"} {
		_, err := Tokenize("test.ec", src)
		assert.Error(t, err, "source %q", src)
	}
}

func TestComments(t *testing.T) {
	assert.Equal(t,
		[]token.Kind{token.NUMBER, token.PLUS, token.NUMBER, token.EOF},
		kinds(t, "1 + /* inline */ 2 // trailing"))
}

func TestTemplateLiteral(t *testing.T) {
	// `a${x}b${y}c` produces HEAD, expr, MIDDLE, expr, TAIL.
	toks, err := Tokenize("test.ec", "`a${x}b${y}c`")
	require.NoError(t, err)
	want := []token.Kind{
		token.TEMPLATE_HEAD, token.IDENT, token.TEMPLATE_MIDDLE,
		token.IDENT, token.TEMPLATE_TAIL, token.EOF,
	}
	got := make([]token.Kind, len(toks))
	for i, tok := range toks {
		got[i] = tok.Kind
	}
	assert.Equal(t, want, got)
	assert.Equal(t, "a", toks[0].Lexeme)
	assert.Equal(t, "b", toks[2].Lexeme)
	assert.Equal(t, "c", toks[4].Lexeme)
}

func TestTemplateWithoutExpressions(t *testing.T) {
	toks, err := Tokenize("test.ec", "`hello`")
	require.NoError(t, err)
	assert.Equal(t, token.TEMPLATE_STRING, toks[0].Kind)
	assert.Equal(t, "hello", toks[0].Lexeme)
}

func TestTemplateNestedBraces(t *testing.T) {
	// An object literal inside ${...} must not terminate the expression
	// region early.
	toks, err := Tokenize("test.ec", "`v=${ {a: 1} }`")
	require.NoError(t, err)
	assert.Equal(t, token.TEMPLATE_HEAD, toks[0].Kind)
	assert.Equal(t, token.TEMPLATE_TAIL, toks[len(toks)-2].Kind)
}

func TestRegexVersusDivision(t *testing.T) {
	// After an identifier, `/` is division.
	toks, err := Tokenize("test.ec", "a / b")
	require.NoError(t, err)
	assert.Equal(t, token.SLASH, toks[1].Kind)

	// At statement start or after `=`, `/` begins a regex.
	toks, err = Tokenize("test.ec", "x = /ab+c/gi")
	require.NoError(t, err)
	require.Equal(t, token.REGEX, toks[2].Kind)
	assert.Equal(t, "ab+c", toks[2].Lexeme)
	assert.Equal(t, "gi", toks[2].Flags)

	// `(` also re-enables regex context.
	toks, err = Tokenize("test.ec", "f(/x/)")
	require.NoError(t, err)
	assert.Equal(t, token.REGEX, toks[2].Kind)
}

func TestRegexCharacterClassSlash(t *testing.T) {
	toks, err := Tokenize("test.ec", "x = /[a/]+/")
	require.NoError(t, err)
	require.Equal(t, token.REGEX, toks[2].Kind)
	assert.Equal(t, "[a/]+", toks[2].Lexeme)
}

func TestPositions(t *testing.T) {
	toks, err := Tokenize("test.ec", "var x;\nlet y;")
	require.NoError(t, err)
	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 1, toks[0].Column)
	assert.Equal(t, 2, toks[3].Line) // let
	assert.Equal(t, 1, toks[3].Column)
	assert.Equal(t, 2, toks[4].Line) // y
	assert.Equal(t, 5, toks[4].Column)
}

func TestUnexpectedCharacter(t *testing.T) {
	_, err := Tokenize("test.ec", "var x = #")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Lexical Error")
}

func TestNumberForms(t *testing.T) {
	toks, err := Tokenize("test.ec", "0 3.14 42")
	require.NoError(t, err)
	assert.Equal(t, "0", toks[0].Lexeme)
	assert.Equal(t, "3.14", toks[1].Lexeme)
	assert.Equal(t, "42", toks[2].Lexeme)
}
