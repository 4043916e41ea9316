package cql

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenQuotedIdent
	tokenNumber
	tokenString
	tokenLParen
	tokenRParen
	tokenComma
	tokenOp
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of input"
	case tokenIdent:
		return "identifier"
	case tokenQuotedIdent:
		return "quoted identifier"
	case tokenNumber:
		return "number"
	case tokenString:
		return "string"
	case tokenLParen:
		return "("
	case tokenRParen:
		return ")"
	case tokenComma:
		return ","
	case tokenOp:
		return "operator"
	default:
		return "token"
	}
}

type token struct {
	kind tokenKind
	// text is the literal source text; for strings and quoted
	// identifiers it is the unquoted value.
	text string
	// off is the byte offset of the token's first character.
	off  int
	line int
	col  int
}

type lexer struct {
	input string
	pos   int
	line  int
	col   int
}

func lex(input string) ([]token, error) {
	l := &lexer{input: input, line: 1, col: 1}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) errorf(format string, args ...any) error {
	return &ParseError{
		Line:    l.line,
		Col:     l.col,
		Message: fmt.Sprintf(format, args...),
	}
}

func (l *lexer) advance() byte {
	ch := l.input[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.advance()
	}
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, off: l.pos, line: l.line, col: l.col}, nil
	}

	start, line, col := l.pos, l.line, l.col
	ch := l.peek()

	switch {
	case ch == '(':
		l.advance()
		return token{kind: tokenLParen, text: "(", off: start, line: line, col: col}, nil
	case ch == ')':
		l.advance()
		return token{kind: tokenRParen, text: ")", off: start, line: line, col: col}, nil
	case ch == ',':
		l.advance()
		return token{kind: tokenComma, text: ",", off: start, line: line, col: col}, nil
	case ch == '\'':
		return l.lexQuoted(tokenString, '\'', start, line, col)
	case ch == '"':
		return l.lexQuoted(tokenQuotedIdent, '"', start, line, col)
	case isDigit(ch) || (ch == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])):
		return l.lexNumber(start, line, col)
	case isIdentStart(ch):
		for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
			l.advance()
		}
		return token{kind: tokenIdent, text: l.input[start:l.pos], off: start, line: line, col: col}, nil
	case ch == '<':
		l.advance()
		if l.peek() == '=' || l.peek() == '>' {
			l.advance()
		}
		return token{kind: tokenOp, text: l.input[start:l.pos], off: start, line: line, col: col}, nil
	case ch == '>':
		l.advance()
		if l.peek() == '=' {
			l.advance()
		}
		return token{kind: tokenOp, text: l.input[start:l.pos], off: start, line: line, col: col}, nil
	case ch == '=' || ch == '+' || ch == '-' || ch == '*' || ch == '/':
		l.advance()
		return token{kind: tokenOp, text: l.input[start:l.pos], off: start, line: line, col: col}, nil
	default:
		return token{}, l.errorf("unexpected character %q", string(ch))
	}
}

// lexQuoted scans '...' and "..." forms; a doubled quote is an escaped
// quote, as in SQL.
func (l *lexer) lexQuoted(kind tokenKind, quote byte, start, line, col int) (token, error) {
	l.advance()
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.advance()
		if ch != quote {
			sb.WriteByte(ch)
			continue
		}
		if l.peek() == quote {
			sb.WriteByte(quote)
			l.advance()
			continue
		}
		return token{kind: kind, text: sb.String(), off: start, line: line, col: col}, nil
	}
	return token{}, &ParseError{Line: line, Col: col, Message: fmt.Sprintf("unterminated %s", kind)}
}

func (l *lexer) lexNumber(start, line, col int) (token, error) {
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.advance()
	}
	if l.peek() == '.' {
		l.advance()
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.advance()
		}
	}
	if ch := l.peek(); ch == 'e' || ch == 'E' {
		mark, markCol := l.pos, l.col
		l.advance()
		if ch := l.peek(); ch == '+' || ch == '-' {
			l.advance()
		}
		if !isDigit(l.peek()) {
			// Not an exponent after all; an identifier follows.
			l.pos, l.col = mark, markCol
		} else {
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.advance()
			}
		}
	}
	return token{kind: tokenNumber, text: l.input[start:l.pos], off: start, line: line, col: col}, nil
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
