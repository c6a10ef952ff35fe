// Package parser implements the recursive-descent, precedence-climbing
// parser of spec.md §4.D, grounded in the teacher's hand-written
// recursive-descent style (internal/parser/universal.go's
// parseSimpleQuery/parseHierarchicalQuery/parseLogicalQuery chain of
// mutually recursive parse functions over a token cursor) generalized from
// a flat DSL grammar into the full expression/statement grammar of ec.
package parser

import (
	"strconv"

	"github.com/oxhq/ecrun/internal/ast"
	"github.com/oxhq/ecrun/internal/diagnostics"
	"github.com/oxhq/ecrun/internal/lexer"
	"github.com/oxhq/ecrun/internal/token"
)

func parseFloat(s string) float64 {
	n, _ := strconv.ParseFloat(s, 64)
	return n
}

// precedence table for binary/logical operators, low to high, per
// spec.md §4.D.
var precedence = map[token.Kind]int{
	token.OR:            1,
	token.AND:           2,
	token.BIT_OR:        3,
	token.BIT_XOR:       4,
	token.BIT_AND:       5,
	token.EQ:            6,
	token.NOT_EQ:        6,
	token.STRICT_EQ:     6,
	token.STRICT_NOT_EQ: 6,
	token.LT:            7,
	token.LT_EQ:         7,
	token.GT:            7,
	token.GT_EQ:         7,
	token.SHL:           8,
	token.SHR:           8,
	token.USHR:          8,
	token.PLUS:          9,
	token.MINUS:         9,
	token.STAR:          10,
	token.SLASH:         10,
}

// pipePrecedence is handled outside the main table: `|>` binds looser than
// every other binary operator and is left-associative, so `a + b |> f |> g`
// parses as `g(f(a + b))` (spec.md §4.G pipeline sugar).
const pipePrecedence = 0

var assignOps = map[token.Kind]bool{
	token.ASSIGN: true, token.PLUS_ASSIGN: true, token.MINUS_ASSIGN: true,
	token.STAR_ASSIGN: true, token.SLASH_ASSIGN: true,
}

// Parser consumes a token stream produced by the lexer and builds an AST.
type Parser struct {
	lex    *lexer.Lexer
	buf    *diagnostics.Buffer
	name   string
	cur    token.Token
	peeked *token.Token

	// Errors accumulates every statement-level syntax error found during a
	// recovering parse (spec.md §7: recovery is limited to the parse phase
	// to allow reporting multiple issues).
	Errors []error

	// blockDepth tracks brace nesting so import/export declarations can be
	// rejected anywhere but the top level (spec.md §4.D).
	blockDepth int
}

// New prepares a Parser over named source text.
func New(name, src string) *Parser {
	return &Parser{
		lex:  lexer.New(name, src),
		buf:  diagnostics.NewBuffer(name, src),
		name: name,
	}
}

// Parse lexes and parses an entire module into a Program. Parsing recovers
// at statement boundaries so several issues can be collected in one pass
// (see ParseAll); the first of them is returned here.
func Parse(name, src string) (*ast.Program, error) {
	prog, errs := ParseAll(name, src)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return prog, nil
}

// ParseAll is Parse with every recovered syntax error reported, for
// diagnostics-oriented callers.
func ParseAll(name, src string) (*ast.Program, []error) {
	p := New(name, src)
	if err := p.advance(); err != nil {
		return nil, []error{err}
	}
	prog := p.parseProgram()
	return prog, p.Errors
}

func sb(pos ast.Pos) ast.StmtBase { return ast.StmtBase{Base: ast.Base{Pos: pos}} }
func eb(pos ast.Pos) ast.ExprBase { return ast.ExprBase{Base: ast.Base{Pos: pos}} }

func (p *Parser) errorf(format string, args ...any) error {
	return p.buf.New(diagnostics.Syntax, "SYNTAX_ERROR", p.cur.Offset, format, args...)
}

func (p *Parser) advance() error {
	if p.peeked != nil {
		p.cur = *p.peeked
		p.peeked = nil
		return nil
	}
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *Parser) peek() (token.Token, error) {
	if p.peeked == nil {
		tok, err := p.lex.Next()
		if err != nil {
			return token.Token{}, err
		}
		p.peeked = &tok
	}
	return *p.peeked, nil
}

func (p *Parser) pos() ast.Pos {
	return ast.Pos{Offset: p.cur.Offset, Line: p.cur.Line, Column: p.cur.Column}
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if p.cur.Kind != k {
		return token.Token{}, p.errorf("expected %s but found %s", k, p.cur.Kind)
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

func (p *Parser) at(k token.Kind) bool { return p.cur.Kind == k }

// consumeSemi accepts an explicit `;` and otherwise consumes nothing, so a
// missing semicolon is tolerated before any token, not only before `}` or
// EOF (spec.md §4.D does not define automatic semicolon insertion, so this
// parser is lenient rather than strict here).
func (p *Parser) consumeSemi() error {
	if p.at(token.SEMI) {
		return p.advance()
	}
	return nil
}

// parseProgram recovers from statement-level errors by discarding tokens to
// the next `;` or `}` and continuing (spec.md §4.D recovery rule), so a
// single run reports every issue it can reach.
func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.at(token.EOF) {
		stmt, err := p.parseStmt()
		if err != nil {
			p.Errors = append(p.Errors, err)
			if !p.recoverToStatementBoundary() {
				break
			}
			continue
		}
		prog.Body = append(prog.Body, stmt)
	}
	return prog
}

// recoverToStatementBoundary skips past the offending tokens, reporting
// whether parsing can continue. Lexical errors abort recovery since the
// token stream itself is broken.
func (p *Parser) recoverToStatementBoundary() bool {
	for !p.at(token.EOF) {
		boundary := p.at(token.SEMI) || p.at(token.RBRACE)
		if err := p.advance(); err != nil {
			return false
		}
		if boundary {
			return true
		}
	}
	return false
}

func (p *Parser) parseBlock() ([]ast.Stmt, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	p.blockDepth++
	defer func() { p.blockDepth-- }()
	var body []ast.Stmt
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch p.cur.Kind {
	case token.LBRACE:
		pos := p.pos()
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ast.BlockStmt{StmtBase: sb(pos), Body: body}, nil
	case token.VAR, token.LET, token.CONST:
		decl, err := p.parseVarDecl()
		if err != nil {
			return nil, err
		}
		return decl, p.consumeSemi()
	case token.FUNCTION:
		return p.parseFunctionDecl()
	case token.IF:
		return p.parseIf()
	case token.FOR:
		return p.parseFor()
	case token.WHILE:
		return p.parseWhile()
	case token.DO:
		return p.parseDoWhile()
	case token.BREAK:
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.BreakStmt{StmtBase: sb(pos)}, p.consumeSemi()
	case token.CONTINUE:
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.ContinueStmt{StmtBase: sb(pos)}, p.consumeSemi()
	case token.RETURN:
		return p.parseReturn()
	case token.YIELD:
		return p.parseYieldStmt()
	case token.THROW:
		return p.parseThrow()
	case token.TRY:
		return p.parseTry()
	case token.SWITCH:
		return p.parseSwitch()
	case token.IMPORT:
		// `import(` in statement position is a dynamic import expression,
		// not an import declaration.
		next, err := p.peek()
		if err != nil {
			return nil, err
		}
		if next.Kind == token.LPAREN {
			return p.parseExprStmt()
		}
		if p.blockDepth > 0 {
			return nil, p.errorf("import declarations are only allowed at the top level")
		}
		return p.parseImport()
	case token.EXPORT:
		if p.blockDepth > 0 {
			return nil, p.errorf("export declarations are only allowed at the top level")
		}
		return p.parseExport()
	case token.OBSERVE:
		return p.parseObserve()
	case token.WHEN:
		return p.parseWhen()
	case token.SEMI:
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.ExprStmt{StmtBase: sb(pos), X: &ast.NullLit{ExprBase: eb(pos)}}, nil
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseVarKind() ast.VarKind {
	switch p.cur.Kind {
	case token.LET:
		return ast.VarLet
	case token.CONST:
		return ast.VarConst
	default:
		return ast.VarVar
	}
}

func (p *Parser) parseVarDecl() (*ast.VarDecl, error) {
	pos := p.pos()
	kind := p.parseVarKind()
	if err := p.advance(); err != nil {
		return nil, err
	}
	decl := &ast.VarDecl{StmtBase: sb(pos), Kind: kind}
	for {
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		d := ast.VarDeclarator{Name: name.Lexeme}
		if p.at(token.ASSIGN) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			init, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			d.Init = init
		} else if kind == ast.VarConst {
			return nil, p.errorf("missing initializer in const declaration")
		}
		decl.Decls = append(decl.Decls, d)
		if !p.at(token.COMMA) {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return decl, nil
}

func (p *Parser) parseFunctionDecl() (*ast.FunctionDecl, error) {
	pos := p.pos()
	fn, err := p.parseFunctionRest(pos, false)
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{StmtBase: sb(pos), Fn: fn}, nil
}

// parseFunctionRest parses `function` [*] name? (params) { body } assuming
// the leading `function` keyword is the current token.
func (p *Parser) parseFunctionRest(pos ast.Pos, anonymousOK bool) (*ast.FunctionExpr, error) {
	if err := p.advance(); err != nil { // consume 'function'
		return nil, err
	}
	isGen := false
	if p.at(token.STAR) {
		isGen = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	name := ""
	if p.at(token.IDENT) {
		name = p.cur.Lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else if !anonymousOK {
		return nil, p.errorf("expected function name")
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionExpr{ExprBase: eb(pos), Name: name, Params: params, Body: body, IsGenerator: isGen}, nil
}

func (p *Parser) parseParamList() ([]ast.Param, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var params []ast.Param
	for !p.at(token.RPAREN) {
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		param := ast.Param{Name: name.Lexeme}
		if p.at(token.ASSIGN) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			def, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			param.Default = def
		}
		params = append(params, param)
		if p.at(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return params, nil
}

// parseIf handles dangling-else by always attaching a following `else` to
// the nearest open `if`, which falls out naturally from recursive descent
// (spec.md §4.D dangling-else rule).
func (p *Parser) parseIf() (*ast.IfStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	then, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	stmt := &ast.IfStmt{StmtBase: sb(pos), Cond: cond, Then: then}
	if p.at(token.ELSE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		alt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmt.Alt = alt
	}
	return stmt, nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}

	// Detect `for (var x in/of expr)` by looking ahead past an optional
	// declaration keyword and identifier.
	if p.at(token.VAR) || p.at(token.LET) || p.at(token.CONST) {
		kind := p.parseVarKind()
		kindPos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		if p.at(token.IN) || p.at(token.OF) {
			of := p.at(token.OF)
			if err := p.advance(); err != nil {
				return nil, err
			}
			obj, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
			body, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			return &ast.ForInStmt{StmtBase: sb(pos), Kind: kind, Name: name.Lexeme, Object: obj, Of: of, Body: body}, nil
		}
		// Classic for: finish parsing the declarator list we already started.
		decl := &ast.VarDecl{StmtBase: sb(kindPos), Kind: kind}
		d := ast.VarDeclarator{Name: name.Lexeme}
		if p.at(token.ASSIGN) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			init, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			d.Init = init
		}
		decl.Decls = append(decl.Decls, d)
		for p.at(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			d := ast.VarDeclarator{Name: name.Lexeme}
			if p.at(token.ASSIGN) {
				if err := p.advance(); err != nil {
					return nil, err
				}
				init, err := p.parseAssign()
				if err != nil {
					return nil, err
				}
				d.Init = init
			}
			decl.Decls = append(decl.Decls, d)
		}
		return p.finishClassicFor(pos, decl)
	}

	var init ast.Stmt
	if !p.at(token.SEMI) {
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		// `for (k in obj)` / `for (v of list)` over an existing binding.
		if p.at(token.IN) || p.at(token.OF) {
			id, ok := x.(*ast.Ident)
			if !ok {
				return nil, p.errorf("for-in/of target must be a name")
			}
			of := p.at(token.OF)
			if err := p.advance(); err != nil {
				return nil, err
			}
			obj, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
			body, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			return &ast.ForInStmt{StmtBase: sb(pos), Name: id.Name, NoDecl: true, Object: obj, Of: of, Body: body}, nil
		}
		init = &ast.ExprStmt{StmtBase: sb(pos), X: x}
	}
	return p.finishClassicFor(pos, init)
}

func (p *Parser) finishClassicFor(pos ast.Pos, init ast.Stmt) (ast.Stmt, error) {
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	var cond ast.Expr
	if !p.at(token.SEMI) {
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cond = c
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	var post ast.Expr
	if !p.at(token.RPAREN) {
		pe, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		post = pe
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{StmtBase: sb(pos), Init: init, Cond: cond, Post: post, Body: body}, nil
}

func (p *Parser) parseWhile() (*ast.WhileStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{StmtBase: sb(pos), Cond: cond, Body: body}, nil
}

func (p *Parser) parseDoWhile() (*ast.DoWhileStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.WHILE); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.DoWhileStmt{StmtBase: sb(pos), Body: body, Cond: cond}, p.consumeSemi()
}

func (p *Parser) parseReturn() (*ast.ReturnStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	stmt := &ast.ReturnStmt{StmtBase: sb(pos)}
	if !p.at(token.SEMI) && !p.at(token.RBRACE) && !p.at(token.EOF) {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Value = v
	}
	return stmt, p.consumeSemi()
}

func (p *Parser) parseYieldStmt() (*ast.YieldStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	stmt := &ast.YieldStmt{StmtBase: sb(pos)}
	if !p.at(token.SEMI) && !p.at(token.RBRACE) && !p.at(token.EOF) {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Value = v
	}
	return stmt, p.consumeSemi()
}

func (p *Parser) parseThrow() (*ast.ThrowStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.ThrowStmt{StmtBase: sb(pos), Value: v}, p.consumeSemi()
}

func (p *Parser) parseTry() (*ast.TryStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	block, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &ast.TryStmt{StmtBase: sb(pos), Block: block}
	if p.at(token.CATCH) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		cc := &ast.CatchClause{}
		if p.at(token.LPAREN) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			cc.Name = name.Lexeme
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		cc.Body = body
		stmt.Catch = cc
	}
	if p.at(token.FINALLY) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Finally = body
	}
	if stmt.Catch == nil && stmt.Finally == nil {
		return nil, p.errorf("try statement requires a catch or finally clause")
	}
	return stmt, nil
}

func (p *Parser) parseSwitch() (*ast.SwitchStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	disc, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	stmt := &ast.SwitchStmt{StmtBase: sb(pos), Disc: disc}
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		var c ast.SwitchCase
		if p.at(token.CASE) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			test, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			c.Test = test
		} else if p.at(token.DEFAULT) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else {
			return nil, p.errorf("expected case or default")
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		for !p.at(token.CASE) && !p.at(token.DEFAULT) && !p.at(token.RBRACE) && !p.at(token.EOF) {
			s, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			c.Body = append(c.Body, s)
		}
		stmt.Cases = append(stmt.Cases, c)
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseImport() (*ast.ImportStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	stmt := &ast.ImportStmt{StmtBase: sb(pos)}

	// Bare `import "spec"` runs the module for side effects only.
	if p.at(token.STRING) {
		stmt.Source = p.cur.Lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		return stmt, p.consumeSemi()
	}

	// Optional leading default binding, possibly followed by `, {...}` or
	// `, * as ns` (the mixed forms of spec.md §3).
	if p.at(token.IDENT) {
		stmt.Specifiers = append(stmt.Specifiers, ast.ImportSpecifier{Imported: "default", Local: p.cur.Lexeme})
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.at(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case p.at(token.STAR):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.AS); err != nil {
			return nil, err
		}
		local, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		stmt.Specifiers = append(stmt.Specifiers, ast.ImportSpecifier{Imported: "*", Local: local.Lexeme})
	case p.at(token.LBRACE):
		if err := p.advance(); err != nil {
			return nil, err
		}
		for !p.at(token.RBRACE) {
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			spec := ast.ImportSpecifier{Imported: name.Lexeme, Local: name.Lexeme}
			if p.at(token.AS) {
				if err := p.advance(); err != nil {
					return nil, err
				}
				local, err := p.expect(token.IDENT)
				if err != nil {
					return nil, err
				}
				spec.Local = local.Lexeme
			}
			stmt.Specifiers = append(stmt.Specifiers, spec)
			if p.at(token.COMMA) {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if _, err := p.expect(token.RBRACE); err != nil {
			return nil, err
		}
	default:
		if len(stmt.Specifiers) == 0 {
			return nil, p.errorf("expected import specifier")
		}
	}

	if _, err := p.expect(token.FROM); err != nil {
		return nil, err
	}
	src, err := p.expect(token.STRING)
	if err != nil {
		return nil, err
	}
	stmt.Source = src.Lexeme
	return stmt, p.consumeSemi()
}

func (p *Parser) parseExport() (*ast.ExportStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil {
		return nil, err
	}
	stmt := &ast.ExportStmt{StmtBase: sb(pos)}

	if p.at(token.DEFAULT) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		stmt.Default = expr
		return stmt, p.consumeSemi()
	}

	if p.at(token.LBRACE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for !p.at(token.RBRACE) {
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			en := ast.ExportName{Name: name.Lexeme, Alias: name.Lexeme}
			if p.at(token.AS) {
				if err := p.advance(); err != nil {
					return nil, err
				}
				alias, err := p.expect(token.IDENT)
				if err != nil {
					return nil, err
				}
				en.Alias = alias.Lexeme
			}
			stmt.Names = append(stmt.Names, en)
			if p.at(token.COMMA) {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if _, err := p.expect(token.RBRACE); err != nil {
			return nil, err
		}
		// `export { a } from "spec"` re-exports without binding locally.
		if p.at(token.FROM) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			src, err := p.expect(token.STRING)
			if err != nil {
				return nil, err
			}
			stmt.Source = src.Lexeme
		}
		return stmt, p.consumeSemi()
	}

	decl, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	switch decl.(type) {
	case *ast.VarDecl, *ast.FunctionDecl:
	default:
		return nil, p.errorf("export requires a declaration, default expression, or name list")
	}
	stmt.Decl = decl
	return stmt, nil
}

// parseObserve implements spec.md §3/§4.D/§4.G: `observe name fn` attaches
// fn as a single-variable observer; `observe (n1, n2, ...) fn` attaches the
// same callback to every listed binding. fn is a function expression (or
// any expression that evaluates to a callable, e.g. an arrow).
func (p *Parser) parseObserve() (*ast.ObserveStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil { // consume 'observe'
		return nil, err
	}
	var names []string
	if p.at(token.LPAREN) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			id, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			names = append(names, id.Lexeme)
			if !p.at(token.COMMA) {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
	} else {
		id, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		names = append(names, id.Lexeme)
	}
	callback, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return &ast.ObserveStmt{StmtBase: sb(pos), Names: names, Callback: callback}, p.consumeSemi()
}

// parseWhen implements the observer-body guard from spec.md §4.D/§4.G:
// `when (cond) block` or `when name block` (sugar for "triggered by name").
func (p *Parser) parseWhen() (*ast.WhenStmt, error) {
	pos := p.pos()
	if err := p.advance(); err != nil { // consume 'when'
		return nil, err
	}
	w := &ast.WhenStmt{StmtBase: sb(pos)}
	if p.at(token.LPAREN) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		w.Cond = cond
	} else {
		id, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		w.Name = id.Lexeme
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	w.Body = body
	return w, nil
}

func (p *Parser) parseExprStmt() (*ast.ExprStmt, error) {
	pos := p.pos()
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.ExprStmt{StmtBase: sb(pos), X: x}, p.consumeSemi()
}

// ---- Expressions ----

func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseAssign()
}

// parseAssign tries an arrow-function lookahead first, since `(a, b) => ...`
// and `(a, b)` as a parenthesized expression share a prefix that only
// resolves after seeing the matching `)` (spec.md §4.D arrow lookahead).
func (p *Parser) parseAssign() (ast.Expr, error) {
	if arrow, ok, err := p.tryParseArrow(); err != nil {
		return nil, err
	} else if ok {
		return arrow, nil
	}

	left, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if assignOps[p.cur.Kind] {
		pos := p.pos()
		op := p.cur.Kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		switch left.(type) {
		case *ast.Ident, *ast.MemberExpr, *ast.IndexExpr:
		default:
			return nil, p.errorf("invalid assignment target")
		}
		return &ast.AssignExpr{ExprBase: eb(pos), Op: op, Target: left, Value: right}, nil
	}
	return left, nil
}

// tryParseArrow recognizes `ident => ...` and `(params) => ...` forms. It
// only consumes input when the arrow form is confirmed; identifier-only
// lookahead is cheap (one token), and the parenthesized form is
// disambiguated by parsing a param list and checking for `=>` immediately
// after. When that check fails, the parser backtracks to a snapshot taken
// at the `(`, so the caller re-parses it as a parenthesized expression.
func (p *Parser) tryParseArrow() (ast.Expr, bool, error) {
	pos := p.pos()
	if p.at(token.IDENT) {
		next, err := p.peek()
		if err != nil {
			return nil, false, err
		}
		if next.Kind == token.ARROW {
			name := p.cur.Lexeme
			if err := p.advance(); err != nil { // ident
				return nil, false, err
			}
			if err := p.advance(); err != nil { // =>
				return nil, false, err
			}
			return p.finishArrow(pos, []ast.Param{{Name: name}})
		}
		return nil, false, nil
	}
	if p.at(token.LPAREN) {
		mark := p.snapshot()
		params, ok := p.tryParseParamListForArrow()
		if !ok || !p.at(token.ARROW) {
			p.restore(mark)
			return nil, false, nil
		}
		if err := p.advance(); err != nil { // =>
			return nil, false, err
		}
		return p.finishArrow(pos, params)
	}
	return nil, false, nil
}

func (p *Parser) finishArrow(pos ast.Pos, params []ast.Param) (ast.Expr, bool, error) {
	fn := &ast.FunctionExpr{ExprBase: eb(pos), Params: params, IsArrow: true}
	if p.at(token.LBRACE) {
		body, err := p.parseBlock()
		if err != nil {
			return nil, false, err
		}
		fn.Body = body
	} else {
		body, err := p.parseAssign()
		if err != nil {
			return nil, false, err
		}
		fn.ExprBody = body
	}
	return fn, true, nil
}

// parserMark is a cheap restore point; since Lexer has no backtracking
// support of its own, arrow lookahead re-lexes from a saved byte offset.
type parserMark struct {
	lex    lexer.Lexer
	cur    token.Token
	peeked *token.Token
}

func (p *Parser) snapshot() parserMark {
	return parserMark{lex: *p.lex, cur: p.cur, peeked: p.peeked}
}

func (p *Parser) restore(m parserMark) {
	lexCopy := m.lex
	p.lex = &lexCopy
	p.cur = m.cur
	p.peeked = m.peeked
}

// tryParseParamListForArrow parses `(name (= default)?, ...)` returning
// ok=false (without error) if the contents don't look like a parameter
// list, so the caller can fall back to parsing a parenthesized expression.
func (p *Parser) tryParseParamListForArrow() ([]ast.Param, bool) {
	if err := p.advance(); err != nil { // consume '('
		return nil, false
	}
	var params []ast.Param
	for !p.at(token.RPAREN) {
		if !p.at(token.IDENT) {
			return nil, false
		}
		param := ast.Param{Name: p.cur.Lexeme}
		if err := p.advance(); err != nil {
			return nil, false
		}
		if p.at(token.ASSIGN) {
			if err := p.advance(); err != nil {
				return nil, false
			}
			def, err := p.parseAssign()
			if err != nil {
				return nil, false
			}
			param.Default = def
		}
		params = append(params, param)
		if p.at(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, false
			}
			continue
		}
		break
	}
	if !p.at(token.RPAREN) {
		return nil, false
	}
	if err := p.advance(); err != nil { // consume ')'
		return nil, false
	}
	return params, true
}

func (p *Parser) parseConditional() (ast.Expr, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.at(token.QUESTION) {
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		then, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		alt, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return &ast.ConditionalExpr{ExprBase: eb(pos), Cond: cond, Then: then, Else: alt}, nil
	}
	return cond, nil
}

func (p *Parser) parseBinary(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := precedence[p.cur.Kind]
		isPipe := p.cur.Kind == token.PIPE
		if isPipe {
			prec, ok = pipePrecedence, true
		}
		if !ok || prec < minPrec {
			return left, nil
		}
		op := p.cur.Kind
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		switch {
		case isPipe:
			left = &ast.PipeExpr{ExprBase: eb(pos), X: left, F: right}
		case op == token.AND || op == token.OR:
			left = &ast.LogicalExpr{ExprBase: eb(pos), Op: op, X: left, Y: right}
		default:
			left = &ast.BinaryExpr{ExprBase: eb(pos), Op: op, X: left, Y: right}
		}
	}
}

var unaryOps = map[token.Kind]bool{
	token.MINUS: true, token.PLUS: true, token.NOT: true, token.BIT_NOT: true,
	token.TYPEOF: true, token.INC: true, token.DEC: true,
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if unaryOps[p.cur.Kind] {
		pos := p.pos()
		op := p.cur.Kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == token.INC || op == token.DEC {
			return &ast.UpdateExpr{ExprBase: eb(pos), Op: op, X: x, Prefix: true}, nil
		}
		return &ast.UnaryExpr{ExprBase: eb(pos), Op: op, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	x, err := p.parseCallChain()
	if err != nil {
		return nil, err
	}
	if p.at(token.INC) || p.at(token.DEC) {
		pos := p.pos()
		op := p.cur.Kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.UpdateExpr{ExprBase: eb(pos), Op: op, X: x, Prefix: false}, nil
	}
	return x, nil
}

func (p *Parser) parseCallChain() (ast.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Kind {
		case token.DOT:
			pos := p.pos()
			if err := p.advance(); err != nil {
				return nil, err
			}
			// A reserved word is accepted as a property name (`Buffer.from`,
			// `changes.a.new`); keyword tokens carry their word as the lexeme.
			name := p.cur
			if kw, ok := token.Keywords[name.Lexeme]; name.Kind != token.IDENT && !(ok && kw == name.Kind) {
				return nil, p.errorf("expected %s but found %s", token.IDENT, name.Kind)
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			x = &ast.MemberExpr{ExprBase: eb(pos), Object: x, Property: name.Lexeme}
		case token.LBRACKET:
			pos := p.pos()
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}
			x = &ast.IndexExpr{ExprBase: eb(pos), Object: x, Index: idx}
		case token.LPAREN:
			pos := p.pos()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = &ast.CallExpr{ExprBase: eb(pos), Callee: x, Args: args}
		default:
			return x, nil
		}
	}
}

func (p *Parser) parseArgs() ([]ast.Expr, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var args []ast.Expr
	for !p.at(token.RPAREN) {
		a, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.at(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	pos := p.pos()
	switch p.cur.Kind {
	case token.NUMBER:
		lex := p.cur.Lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.NumberLit{ExprBase: eb(pos), Value: parseFloat(lex)}, nil
	case token.STRING:
		s := p.cur.Lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.StringLit{ExprBase: eb(pos), Value: s}, nil
	case token.TEMPLATE_STRING:
		s := p.cur.Lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.TemplateLit{ExprBase: eb(pos), Quasis: []string{s}}, nil
	case token.TEMPLATE_HEAD:
		return p.parseTemplate(pos)
	case token.REGEX:
		pattern, flags := p.cur.Lexeme, p.cur.Flags
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.RegexLit{ExprBase: eb(pos), Pattern: pattern, Flags: flags}, nil
	case token.TRUE, token.FALSE:
		v := p.cur.Kind == token.TRUE
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.BoolLit{ExprBase: eb(pos), Value: v}, nil
	case token.NULL:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.NullLit{ExprBase: eb(pos)}, nil
	case token.THIS:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.ThisExpr{ExprBase: eb(pos)}, nil
	case token.IDENT:
		name := p.cur.Lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Ident{ExprBase: eb(pos), Name: name}, nil
	case token.NEW:
		if err := p.advance(); err != nil {
			return nil, err
		}
		callee, err := p.parseCallChainNoCall()
		if err != nil {
			return nil, err
		}
		var args []ast.Expr
		if p.at(token.LPAREN) {
			args, err = p.parseArgs()
			if err != nil {
				return nil, err
			}
		}
		return &ast.NewExpr{ExprBase: eb(pos), Callee: callee, Args: args}, nil
	case token.FUNCTION:
		return p.parseFunctionRest(pos, true)
	case token.IMPORT:
		// Dynamic import `import("spec")` (spec.md §4.I).
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		src, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return &ast.ImportExpr{ExprBase: eb(pos), Source: src}, nil
	case token.LPAREN:
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return x, nil
	case token.LBRACKET:
		return p.parseArrayLit(pos)
	case token.LBRACE:
		return p.parseObjectLit(pos)
	default:
		return nil, p.errorf("unexpected token %s", p.cur.Kind)
	}
}

// parseCallChainNoCall parses a member-access chain for `new Callee.sub`
// without consuming a trailing call, since `new` itself supplies the
// argument list.
func (p *Parser) parseCallChainNoCall() (ast.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Kind {
		case token.DOT:
			pos := p.pos()
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			x = &ast.MemberExpr{ExprBase: eb(pos), Object: x, Property: name.Lexeme}
		case token.LBRACKET:
			pos := p.pos()
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}
			x = &ast.IndexExpr{ExprBase: eb(pos), Object: x, Index: idx}
		default:
			return x, nil
		}
	}
}

func (p *Parser) parseTemplate(pos ast.Pos) (ast.Expr, error) {
	lit := &ast.TemplateLit{ExprBase: eb(pos)}
	lit.Quasis = append(lit.Quasis, p.cur.Lexeme)
	if err := p.advance(); err != nil {
		return nil, err
	}
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lit.Exprs = append(lit.Exprs, expr)
		switch p.cur.Kind {
		case token.TEMPLATE_MIDDLE:
			lit.Quasis = append(lit.Quasis, p.cur.Lexeme)
			if err := p.advance(); err != nil {
				return nil, err
			}
		case token.TEMPLATE_TAIL:
			lit.Quasis = append(lit.Quasis, p.cur.Lexeme)
			if err := p.advance(); err != nil {
				return nil, err
			}
			return lit, nil
		default:
			return nil, p.errorf("unterminated template literal expression")
		}
	}
}

func (p *Parser) parseArrayLit(pos ast.Pos) (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	lit := &ast.ArrayLit{ExprBase: eb(pos)}
	for !p.at(token.RBRACKET) {
		el, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		lit.Elements = append(lit.Elements, el)
		if p.at(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.RBRACKET); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *Parser) parseObjectLit(pos ast.Pos) (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	lit := &ast.ObjectLit{ExprBase: eb(pos)}
	for !p.at(token.RBRACE) {
		var prop ast.ObjectProp
		if p.at(token.LBRACKET) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}
			prop.ComputedKey = key
		} else if p.at(token.STRING) {
			prop.Key = p.cur.Lexeme
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else {
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			prop.Key = name.Lexeme
		}
		if p.at(token.COLON) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			v, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			prop.Value = v
		} else {
			// Shorthand `{ x }` means `{ x: x }`.
			prop.Value = &ast.Ident{ExprBase: eb(pos), Name: prop.Key}
		}
		lit.Props = append(lit.Props, prop)
		if p.at(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return lit, nil
}
