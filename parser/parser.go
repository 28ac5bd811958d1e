package parser

import (
	"fmt"
	"slices"

	"github.com/velang/velprof/decl"
)

// Parser is a hand-written recursive-descent parser over the token
// stream. Parse errors are tool-internal failures; the profiler never
// runs over a unit that did not parse.
type Parser struct {
	file string
	toks []Token
	pos  int
}

// ParseSource parses one Vel source unit.
func ParseSource(file, src string) (*decl.SourceFile, error) {
	toks, err := NewLexer(file, src).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{file: file, toks: toks}
	return p.parseFile()
}

func (p *Parser) peek() Token  { return p.toks[p.pos] }
func (p *Parser) next() Token  { t := p.toks[p.pos]; p.pos++; return t }
func (p *Parser) atEOF() bool  { return p.peek().Kind == TokEOF }
func (p *Parser) peek2() Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser) isPunct(text string) bool {
	t := p.peek()
	return t.Kind == TokPunct && t.Text == text
}

func (p *Parser) isKeyword(text string) bool {
	t := p.peek()
	return t.Kind == TokKeyword && t.Text == text
}

func (p *Parser) expectPunct(text string) (Token, error) {
	if !p.isPunct(text) {
		return Token{}, fmt.Errorf("%s: expected '%s', found '%s'", p.peek().Loc, text, p.peek())
	}
	return p.next(), nil
}

func (p *Parser) expectIdent() (Token, error) {
	if p.peek().Kind != TokIdent {
		return Token{}, fmt.Errorf("%s: expected identifier, found '%s'", p.peek().Loc, p.peek())
	}
	return p.next(), nil
}

func (p *Parser) parseFile() (*decl.SourceFile, error) {
	file := &decl.SourceFile{Path: p.file}
	file.Loc = decl.Location{File: p.file, Line: 1, Col: 1}
	for !p.atEOF() {
		switch {
		case p.isKeyword("abstract"):
			d, err := p.parseAbstract()
			if err != nil {
				return nil, err
			}
			file.Abstracts = append(file.Abstracts, d)
		case p.isKeyword("struct"):
			d, err := p.parseStruct()
			if err != nil {
				return nil, err
			}
			file.Structs = append(file.Structs, d)
		case p.isKeyword("def"):
			d, err := p.parseMethod()
			if err != nil {
				return nil, err
			}
			file.Methods = append(file.Methods, d)
		default:
			// Toplevel expressions are entry calls.
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call, ok := e.(*decl.CallExpr)
			if !ok {
				return nil, fmt.Errorf("%s: toplevel expression must be a call, found '%s'", e.Pos(), e.String())
			}
			file.Entries = append(file.Entries, call)
		}
	}
	return file, nil
}

func (p *Parser) parseAbstract() (*decl.AbstractDecl, error) {
	kw := p.next() // abstract
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	d := &decl.AbstractDecl{Name: name.Text}
	d.Loc = kw.Loc
	if p.isPunct("<:") {
		p.next()
		parent, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		d.Parent = parent.Text
	}
	return d, nil
}

func (p *Parser) parseStruct() (*decl.StructDecl, error) {
	kw := p.next() // struct
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	d := &decl.StructDecl{Name: name.Text}
	d.Loc = kw.Loc

	if p.isPunct("[") {
		p.next()
		for {
			cov := false
			if p.isPunct("+") {
				p.next()
				cov = true
			}
			tp, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			d.TypeParams = append(d.TypeParams, &decl.TypeParamDecl{Name: tp.Text, Covariant: cov})
			if !p.isPunct(",") {
				break
			}
			p.next()
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}

	if p.isPunct("<:") {
		p.next()
		parent, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		d.Parent = parent.Text
	}

	if p.isPunct("{") {
		p.next()
		for !p.isPunct("}") {
			fname, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			ftype, err := p.parseTypeRef()
			if err != nil {
				return nil, err
			}
			fd := &decl.FieldDecl{Name: fname.Text, Type: ftype}
			fd.Loc = fname.Loc
			d.Fields = append(d.Fields, fd)
			if p.isPunct(",") {
				p.next()
			}
		}
		p.next() // }
	}
	return d, nil
}

func (p *Parser) parseMethod() (*decl.MethodDecl, error) {
	kw := p.next() // def
	name := p.peek()
	if name.Kind != TokIdent {
		return nil, fmt.Errorf("%s: expected function name, found '%s'", name.Loc, name)
	}
	p.next()
	m := &decl.MethodDecl{Name: name.Text}
	m.Loc = kw.Loc

	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	for !p.isPunct(")") {
		pname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		param := &decl.ParamDecl{Name: pname.Text}
		param.Loc = pname.Loc
		if p.isPunct(":") {
			p.next()
			if param.Type, err = p.parseTypeRef(); err != nil {
				return nil, err
			}
		}
		m.Params = append(m.Params, param)
		if p.isPunct(",") {
			p.next()
		}
	}
	p.next() // )

	if p.isKeyword("where") {
		p.next()
		for {
			tv, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct("<:"); err != nil {
				return nil, err
			}
			bound, err := p.parseTypeRef()
			if err != nil {
				return nil, err
			}
			w := &decl.TypeVarDecl{Name: tv.Text, Bound: bound}
			w.Loc = tv.Loc
			m.Where = append(m.Where, w)
			if !p.isPunct(",") {
				break
			}
			p.next()
		}
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	m.Body = body
	return m, nil
}

// parseTypeRef parses `Name`, `Name[T, U]` and unions `A | B`.
func (p *Parser) parseTypeRef() (*decl.TypeRef, error) {
	first, err := p.parseTypeAtom()
	if err != nil {
		return nil, err
	}
	if !p.isPunct("|") {
		return first, nil
	}
	alts := []*decl.TypeRef{first}
	for p.isPunct("|") {
		p.next()
		next, err := p.parseTypeAtom()
		if err != nil {
			return nil, err
		}
		alts = append(alts, next)
	}
	union := &decl.TypeRef{Alts: alts}
	union.Loc = first.Loc
	return union, nil
}

func (p *Parser) parseTypeAtom() (*decl.TypeRef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	ref := &decl.TypeRef{Name: name.Text}
	ref.Loc = name.Loc
	if p.isPunct("[") {
		p.next()
		for {
			arg, err := p.parseTypeRef()
			if err != nil {
				return nil, err
			}
			ref.Args = append(ref.Args, arg)
			if !p.isPunct(",") {
				break
			}
			p.next()
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

func (p *Parser) parseBlock() (*decl.BlockStmt, error) {
	open, err := p.expectPunct("{")
	if err != nil {
		return nil, err
	}
	block := &decl.BlockStmt{}
	block.Loc = open.Loc
	for !p.isPunct("}") {
		if p.atEOF() {
			return nil, fmt.Errorf("%s: unterminated block", open.Loc)
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}
	p.next() // }
	return block, nil
}

func (p *Parser) parseStmt() (decl.Stmt, error) {
	tok := p.peek()
	switch {
	case p.isKeyword("return"):
		p.next()
		s := &decl.ReturnStmt{}
		s.Loc = tok.Loc
		// A value only counts when it starts on the same line.
		if p.startsExpr() && p.peek().Loc.Line == tok.Loc.Line {
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			s.Value = v
		}
		return s, nil

	case p.isKeyword("if"):
		p.next()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		then, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		s := &decl.IfStmt{Cond: cond, Then: then}
		s.Loc = tok.Loc
		if p.isKeyword("else") {
			p.next()
			if p.isKeyword("if") {
				// else-if chains nest as a single-statement else block.
				nested, err := p.parseStmt()
				if err != nil {
					return nil, err
				}
				s.Else = &decl.BlockStmt{Stmts: []decl.Stmt{nested}}
				s.Else.Loc = nested.Pos()
			} else if s.Else, err = p.parseBlock(); err != nil {
				return nil, err
			}
		}
		return s, nil

	case p.isKeyword("while"):
		p.next()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		s := &decl.WhileStmt{Cond: cond, Body: body}
		s.Loc = tok.Loc
		return s, nil
	}

	// Assignment lookahead: IDENT '=' or IDENT ':' (but not '==').
	if tok.Kind == TokIdent {
		nxt := p.peek2()
		if nxt.Kind == TokPunct && (nxt.Text == "=" || nxt.Text == ":") {
			p.next() // ident
			s := &decl.AssignStmt{Name: tok.Text}
			s.Loc = tok.Loc
			if p.isPunct(":") {
				p.next()
				var err error
				if s.Declared, err = p.parseTypeRef(); err != nil {
					return nil, err
				}
			}
			if _, err := p.expectPunct("="); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			s.Value = v
			return s, nil
		}
	}

	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	s := &decl.ExprStmt{E: e}
	s.Loc = e.Pos()
	return s, nil
}

func (p *Parser) startsExpr() bool {
	t := p.peek()
	switch t.Kind {
	case TokInt, TokFloat, TokStr, TokIdent:
		return true
	case TokKeyword:
		return t.Text == "true" || t.Text == "false"
	case TokPunct:
		return t.Text == "(" || t.Text == "-"
	}
	return false
}

// Precedence: isa < comparison < additive < multiplicative < unary.
func (p *Parser) parseExpr() (decl.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("isa") {
		kw := p.next()
		ref, err := p.parseTypeRef()
		if err != nil {
			return nil, err
		}
		e := &decl.IsaExpr{Subject: left, Tested: ref}
		e.Loc = kw.Loc
		return e, nil
	}
	return left, nil
}

func (p *Parser) parseComparison() (decl.Expr, error) {
	return p.parseBinary([]string{"<", "<=", ">", ">=", "==", "!="}, p.parseAdditive)
}

func (p *Parser) parseAdditive() (decl.Expr, error) {
	return p.parseBinary([]string{"+", "-"}, p.parseMultiplicative)
}

func (p *Parser) parseMultiplicative() (decl.Expr, error) {
	return p.parseBinary([]string{"*", "/"}, p.parseUnary)
}

func (p *Parser) parseBinary(ops []string, sub func() (decl.Expr, error)) (decl.Expr, error) {
	left, err := sub()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind != TokPunct || !slices.Contains(ops, t.Text) {
			return left, nil
		}
		p.next()
		right, err := sub()
		if err != nil {
			return nil, err
		}
		call := &decl.CallExpr{Func: t.Text, Args: []decl.Expr{left, right}, Operator: true}
		call.Loc = t.Loc
		left = call
	}
}

func (p *Parser) parseUnary() (decl.Expr, error) {
	if p.isPunct("-") {
		t := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		call := &decl.CallExpr{Func: "-", Args: []decl.Expr{operand}, Operator: true}
		call.Loc = t.Loc
		return call, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (decl.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.isPunct(".") {
		dot := p.next()
		field, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		fa := &decl.FieldAccessExpr{Receiver: e, Field: field.Text}
		fa.Loc = dot.Loc
		e = fa
	}
	return e, nil
}

func (p *Parser) parsePrimary() (decl.Expr, error) {
	t := p.peek()
	switch {
	case t.Kind == TokInt:
		p.next()
		e := &decl.LiteralExpr{Kind: decl.LitInt, IntVal: t.Int}
		e.Loc = t.Loc
		return e, nil
	case t.Kind == TokFloat:
		p.next()
		e := &decl.LiteralExpr{Kind: decl.LitFloat, FloatVal: t.Flt}
		e.Loc = t.Loc
		return e, nil
	case t.Kind == TokStr:
		p.next()
		e := &decl.LiteralExpr{Kind: decl.LitStr, StrVal: t.Text}
		e.Loc = t.Loc
		return e, nil
	case t.Kind == TokKeyword && (t.Text == "true" || t.Text == "false"):
		p.next()
		e := &decl.LiteralExpr{Kind: decl.LitBool, BoolVal: t.Text == "true"}
		e.Loc = t.Loc
		return e, nil

	case t.Kind == TokIdent:
		p.next()
		// Call parens must open on the same line as the callee.
		if p.isPunct("(") && p.peek().Loc.Line == t.Loc.Line {
			p.next()
			call := &decl.CallExpr{Func: t.Text}
			call.Loc = t.Loc
			for !p.isPunct(")") {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, arg)
				if p.isPunct(",") {
					p.next()
				}
			}
			p.next() // )
			return call, nil
		}
		e := &decl.IdentExpr{Name: t.Text}
		e.Loc = t.Loc
		return e, nil

	case t.Kind == TokPunct && t.Text == "(":
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("%s: unexpected token '%s'", t.Loc, t)
}
