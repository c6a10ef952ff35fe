// Package token defines the lexical tokens produced by the lexer and
// consumed by the parser.
package token

import "fmt"

// Kind identifies the lexical category of a Token.
type Kind int

const (
	EOF Kind = iota
	ILLEGAL

	IDENT
	NUMBER
	STRING
	TEMPLATE_STRING // whole literal with no embedded expressions
	TEMPLATE_HEAD   // `...${
	TEMPLATE_MIDDLE // }...${
	TEMPLATE_TAIL   // }...`
	REGEX

	// Keywords
	VAR
	LET
	CONST
	FUNCTION
	RETURN
	YIELD
	IF
	ELSE
	FOR
	WHILE
	DO
	BREAK
	CONTINUE
	IN
	OF
	SWITCH
	CASE
	DEFAULT
	TRY
	CATCH
	FINALLY
	THROW
	TRUE
	FALSE
	NULL
	THIS
	IMPORT
	EXPORT
	FROM
	NEW
	TYPEOF
	AS
	OBSERVE
	WHEN

	// Operators & punctuation
	ASSIGN     // =
	PLUS_ASSIGN
	MINUS_ASSIGN
	STAR_ASSIGN
	SLASH_ASSIGN
	EQ   // ==
	STRICT_EQ // ===
	NOT_EQ
	STRICT_NOT_EQ
	LT
	LT_EQ
	GT
	GT_EQ
	PLUS
	MINUS
	STAR
	SLASH
	INC // ++
	DEC // --
	AND // &&
	OR  // ||
	BIT_AND
	BIT_OR
	BIT_XOR
	BIT_NOT
	SHL // <<
	SHR // >>
	USHR // >>>
	QUESTION
	COLON
	ARROW // =>
	PIPE  // |>
	NOT   // !
	DOT
	COMMA
	SEMI
	LPAREN
	RPAREN
	LBRACKET
	RBRACKET
	LBRACE
	RBRACE
)

var names = map[Kind]string{
	EOF: "EOF", ILLEGAL: "ILLEGAL",
	IDENT: "IDENT", NUMBER: "NUMBER", STRING: "STRING",
	TEMPLATE_STRING: "TEMPLATE_STRING", TEMPLATE_HEAD: "TEMPLATE_HEAD",
	TEMPLATE_MIDDLE: "TEMPLATE_MIDDLE", TEMPLATE_TAIL: "TEMPLATE_TAIL",
	REGEX: "REGEX",
	VAR: "var", LET: "let", CONST: "const", FUNCTION: "function",
	RETURN: "return", YIELD: "yield", IF: "if", ELSE: "else", FOR: "for",
	WHILE: "while", DO: "do", BREAK: "break", CONTINUE: "continue",
	IN: "in", OF: "of", SWITCH: "switch", CASE: "case", DEFAULT: "default",
	TRY: "try", CATCH: "catch", FINALLY: "finally", THROW: "throw",
	TRUE: "true", FALSE: "false", NULL: "null", THIS: "this",
	IMPORT: "import", EXPORT: "export", FROM: "from", NEW: "new",
	TYPEOF: "typeof", AS: "as", OBSERVE: "observe", WHEN: "when",
	ASSIGN: "=", PLUS_ASSIGN: "+=", MINUS_ASSIGN: "-=", STAR_ASSIGN: "*=",
	SLASH_ASSIGN: "/=", EQ: "==", STRICT_EQ: "===", NOT_EQ: "!=",
	STRICT_NOT_EQ: "!==", LT: "<", LT_EQ: "<=", GT: ">", GT_EQ: ">=",
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", INC: "++", DEC: "--",
	AND: "&&", OR: "||", BIT_AND: "&", BIT_OR: "|", BIT_XOR: "^",
	BIT_NOT: "~", SHL: "<<", SHR: ">>", USHR: ">>>", QUESTION: "?",
	COLON: ":", ARROW: "=>", PIPE: "|>", NOT: "!", DOT: ".", COMMA: ",",
	SEMI: ";", LPAREN: "(", RPAREN: ")", LBRACKET: "[", RBRACKET: "]",
	LBRACE: "{", RBRACE: "}",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Keywords maps reserved words to their token kind per spec.md §6. Alternate
// word-forms (is/and/or) are handled by the lexer, not this table, since they
// map to existing operator kinds rather than new keyword kinds.
var Keywords = map[string]Kind{
	"var": VAR, "let": LET, "const": CONST, "function": FUNCTION,
	"return": RETURN, "yield": YIELD, "if": IF, "else": ELSE, "for": FOR,
	"while": WHILE, "do": DO, "break": BREAK, "continue": CONTINUE,
	"in": IN, "of": OF, "switch": SWITCH, "case": CASE, "default": DEFAULT,
	"try": TRY, "catch": CATCH, "finally": FINALLY, "throw": THROW,
	"true": TRUE, "false": FALSE, "null": NULL, "this": THIS,
	"import": IMPORT, "export": EXPORT, "from": FROM, "new": NEW,
	"typeof": TYPEOF, "as": AS, "observe": OBSERVE, "when": WHEN,
}

// Token is a single lexical unit with full source-location metadata.
type Token struct {
	Kind    Kind
	Lexeme  string
	Offset  int
	Line    int
	Column  int
	// Flags carries per-kind flags; only REGEX tokens set it, to their
	// flag letters (a subset of "gim").
	Flags string
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Lexeme, t.Line, t.Column)
}
