package query

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type kind int

const (
	kEOF kind = iota
	kIdent
	kString
	kNumber
	kCmp // == != < <= > >=
	kLParen
	kRParen
)

type lexeme struct {
	kind kind
	text string
	pos  int
}

func (l lexeme) is(word string) bool {
	return l.kind == kIdent && strings.EqualFold(l.text, word)
}

type lexer struct {
	src string
	pos int
}

func lex(src string) ([]lexeme, error) {
	lx := &lexer{src: src}
	var out []lexeme
	for {
		l, err := lx.next()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
		if l.kind == kEOF {
			return out, nil
		}
	}
}

func (lx *lexer) next() (lexeme, error) {
	for lx.pos < len(lx.src) {
		r, w := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		lx.pos += w
	}
	start := lx.pos
	if start >= len(lx.src) {
		return lexeme{kind: kEOF, pos: start}, nil
	}

	c := lx.src[start]
	switch {
	case c == '(':
		lx.pos++
		return lexeme{kLParen, "(", start}, nil
	case c == ')':
		lx.pos++
		return lexeme{kRParen, ")", start}, nil
	case c == '"' || c == '\'':
		return lx.quoted(c)
	case strings.IndexByte("=!<>", c) >= 0:
		lx.pos++
		if lx.pos < len(lx.src) && lx.src[lx.pos] == '=' {
			lx.pos++
		}
		text := lx.src[start:lx.pos]
		if text == "=" || text == "!" {
			return lexeme{}, fmt.Errorf("position %d: unknown operator %q", start, text)
		}
		return lexeme{kCmp, text, start}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		lx.pos++
		for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '.') {
			lx.pos++
		}
		if lx.src[start:lx.pos] == "-" {
			return lexeme{}, fmt.Errorf("position %d: dangling '-'", start)
		}
		return lexeme{kNumber, lx.src[start:lx.pos], start}, nil
	}

	r, _ := utf8.DecodeRuneInString(lx.src[start:])
	if !unicode.IsLetter(r) && r != '_' {
		return lexeme{}, fmt.Errorf("position %d: unexpected %q", start, r)
	}
	for lx.pos < len(lx.src) {
		r, w := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		lx.pos += w
	}
	return lexeme{kIdent, lx.src[start:lx.pos], start}, nil
}

func (lx *lexer) quoted(q byte) (lexeme, error) {
	start := lx.pos
	var sb strings.Builder
	for i := start + 1; i < len(lx.src); i++ {
		switch c := lx.src[i]; {
		case c == '\\' && i+1 < len(lx.src):
			i++
			sb.WriteByte(lx.src[i])
		case c == q:
			lx.pos = i + 1
			return lexeme{kString, sb.String(), start}, nil
		default:
			sb.WriteByte(c)
		}
	}
	return lexeme{}, fmt.Errorf("position %d: unterminated string", start)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
