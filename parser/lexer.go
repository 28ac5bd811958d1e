package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/velang/velprof/decl"
)

type TokKind int

const (
	TokEOF TokKind = iota
	TokIdent
	TokKeyword
	TokInt
	TokFloat
	TokStr
	TokPunct
)

var keywords = map[string]bool{
	"def": true, "struct": true, "abstract": true,
	"if": true, "else": true, "while": true, "return": true,
	"isa": true, "where": true, "true": true, "false": true,
}

type Token struct {
	Kind TokKind
	Text string
	Int  int64
	Flt  float64
	Loc  decl.Location
}

func (t Token) String() string {
	if t.Kind == TokEOF {
		return "<eof>"
	}
	return t.Text
}

// Lexer scans one source unit, tracking line/col (1-based, runes) for
// every token.
type Lexer struct {
	file  string
	input []rune
	pos   int
	line  int
	col   int
}

func NewLexer(file, src string) *Lexer {
	return &Lexer{file: file, input: []rune(src), line: 1, col: 1}
}

func (l *Lexer) loc() decl.Location {
	return decl.Location{File: l.file, Line: l.line, Col: l.col}
}

func (l *Lexer) peekRune() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) advance() rune {
	r := l.input[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		r := l.peekRune()
		if r == '#' {
			for l.pos < len(l.input) && l.peekRune() != '\n' {
				l.advance()
			}
			continue
		}
		if !unicode.IsSpace(r) {
			return
		}
		l.advance()
	}
}

// Two-rune punctuation, checked before the single-rune set.
var punct2 = []string{"<=", ">=", "==", "!=", "<:"}

const punct1 = "+-*/<>=:,.(){}[]|"

// Next scans the next token. Lexing errors are returned through the
// token stream as an error from Tokenize.
func (l *Lexer) Next() (Token, error) {
	l.skipSpaceAndComments()
	loc := l.loc()
	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Loc: loc}, nil
	}
	r := l.peekRune()

	switch {
	case unicode.IsLetter(r) || r == '_':
		var sb strings.Builder
		for l.pos < len(l.input) {
			c := l.peekRune()
			if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
				break
			}
			sb.WriteRune(l.advance())
		}
		text := sb.String()
		kind := TokIdent
		if keywords[text] {
			kind = TokKeyword
		}
		return Token{Kind: kind, Text: text, Loc: loc}, nil

	case unicode.IsDigit(r):
		var sb strings.Builder
		isFloat := false
		for l.pos < len(l.input) {
			c := l.peekRune()
			if c == '.' && !isFloat && l.pos+1 < len(l.input) && unicode.IsDigit(l.input[l.pos+1]) {
				isFloat = true
				sb.WriteRune(l.advance())
				continue
			}
			if !unicode.IsDigit(c) {
				break
			}
			sb.WriteRune(l.advance())
		}
		text := sb.String()
		if isFloat {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return Token{}, fmt.Errorf("%s: bad float literal '%s'", loc, text)
			}
			return Token{Kind: TokFloat, Text: text, Flt: f, Loc: loc}, nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Token{}, fmt.Errorf("%s: bad int literal '%s'", loc, text)
		}
		return Token{Kind: TokInt, Text: text, Int: n, Loc: loc}, nil

	case r == '"':
		l.advance()
		var sb strings.Builder
		for {
			if l.pos >= len(l.input) {
				return Token{}, fmt.Errorf("%s: unterminated string literal", loc)
			}
			c := l.advance()
			if c == '"' {
				break
			}
			if c == '\\' && l.pos < len(l.input) {
				esc := l.advance()
				switch esc {
				case 'n':
					c = '\n'
				case 't':
					c = '\t'
				default:
					c = esc
				}
			}
			sb.WriteRune(c)
		}
		return Token{Kind: TokStr, Text: sb.String(), Loc: loc}, nil
	}

	for _, p2 := range punct2 {
		if strings.HasPrefix(string(l.input[l.pos:min(l.pos+2, len(l.input))]), p2) {
			l.advance()
			l.advance()
			return Token{Kind: TokPunct, Text: p2, Loc: loc}, nil
		}
	}
	if strings.ContainsRune(punct1, r) {
		l.advance()
		return Token{Kind: TokPunct, Text: string(r), Loc: loc}, nil
	}
	return Token{}, fmt.Errorf("%s: unexpected character %q", loc, r)
}

// Tokenize scans the whole input up front; the parser works over the
// slice with one-token lookahead.
func (l *Lexer) Tokenize() ([]Token, error) {
	var out []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == TokEOF {
			return out, nil
		}
	}
}
