package aql

import (
	"fmt"
	"strings"
	"unicode"
)

// lexer tokenizes a query string. It is created per call to Parse and
// holds no state beyond the current scan position.
type lexer struct {
	src    []rune
	pos    int
	line   int
	column int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src), line: 1, column: 1}
}

// tokenize consumes the whole input and returns the token stream,
// terminated by an EOF token. Any invalid character sequence aborts
// with a ParseError carrying the position.
func (l *lexer) tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (Token, error) {
	l.skipSpace()
	line, col := l.line, l.column

	if l.pos >= len(l.src) {
		return Token{Kind: TokEOF, Line: line, Column: col}, nil
	}

	c := l.src[l.pos]
	switch {
	case unicode.IsLetter(c) || c == '_':
		return l.lexWord(line, col), nil
	case unicode.IsDigit(c):
		return l.lexNumber(line, col), nil
	case c == '"' || c == '\'':
		return l.lexString(line, col)
	}

	switch c {
	case '=':
		if l.peekAt(1) == '=' {
			if l.peekAt(2) == '=' {
				return Token{}, l.errorf(line, col, "invalid operator \"===\"")
			}
			l.advance(2)
			return Token{Kind: TokEq, Text: "==", Line: line, Column: col}, nil
		}
		l.advance(1)
		return Token{Kind: TokAssign, Text: "=", Line: line, Column: col}, nil
	case '!':
		if l.peekAt(1) == '=' {
			l.advance(2)
			return Token{Kind: TokNe, Text: "!=", Line: line, Column: col}, nil
		}
		return Token{}, l.errorf(line, col, "unexpected character %q", string(c))
	case '<':
		if l.peekAt(1) == '=' {
			l.advance(2)
			return Token{Kind: TokLe, Text: "<=", Line: line, Column: col}, nil
		}
		l.advance(1)
		return Token{Kind: TokLt, Text: "<", Line: line, Column: col}, nil
	case '>':
		if l.peekAt(1) == '=' {
			l.advance(2)
			return Token{Kind: TokGe, Text: ">=", Line: line, Column: col}, nil
		}
		l.advance(1)
		return Token{Kind: TokGt, Text: ">", Line: line, Column: col}, nil
	case '.':
		if l.peekAt(1) == '.' {
			l.advance(2)
			return Token{Kind: TokDotDot, Text: "..", Line: line, Column: col}, nil
		}
		l.advance(1)
		return Token{Kind: TokDot, Text: ".", Line: line, Column: col}, nil
	case '+':
		l.advance(1)
		return Token{Kind: TokPlus, Text: "+", Line: line, Column: col}, nil
	case '-':
		l.advance(1)
		return Token{Kind: TokMinus, Text: "-", Line: line, Column: col}, nil
	case '*':
		l.advance(1)
		return Token{Kind: TokStar, Text: "*", Line: line, Column: col}, nil
	case '/':
		l.advance(1)
		return Token{Kind: TokSlash, Text: "/", Line: line, Column: col}, nil
	case '%':
		l.advance(1)
		return Token{Kind: TokPercent, Text: "%", Line: line, Column: col}, nil
	case ',':
		l.advance(1)
		return Token{Kind: TokComma, Text: ",", Line: line, Column: col}, nil
	case ':':
		l.advance(1)
		return Token{Kind: TokColon, Text: ":", Line: line, Column: col}, nil
	case '(':
		l.advance(1)
		return Token{Kind: TokLParen, Text: "(", Line: line, Column: col}, nil
	case ')':
		l.advance(1)
		return Token{Kind: TokRParen, Text: ")", Line: line, Column: col}, nil
	case '[':
		l.advance(1)
		return Token{Kind: TokLBracket, Text: "[", Line: line, Column: col}, nil
	case ']':
		l.advance(1)
		return Token{Kind: TokRBracket, Text: "]", Line: line, Column: col}, nil
	case '{':
		l.advance(1)
		return Token{Kind: TokLBrace, Text: "{", Line: line, Column: col}, nil
	case '}':
		l.advance(1)
		return Token{Kind: TokRBrace, Text: "}", Line: line, Column: col}, nil
	}

	return Token{}, l.errorf(line, col, "unexpected character %q", string(c))
}

// lexWord scans an identifier and promotes it to a keyword token when the
// upper-cased spelling matches a reserved word.
func (l *lexer) lexWord(line, col int) Token {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
			break
		}
		l.advance(1)
	}
	text := string(l.src[start:l.pos])
	if kind, ok := keywords[strings.ToUpper(text)]; ok {
		return Token{Kind: kind, Text: text, Line: line, Column: col}
	}
	return Token{Kind: TokIdent, Text: text, Line: line, Column: col}
}

// lexNumber scans an integer or float literal. A trailing dot only belongs
// to the number when followed by a digit, so `1..3` lexes as 1, .., 3.
func (l *lexer) lexNumber(line, col int) Token {
	start := l.pos
	for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
		l.advance(1)
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' && l.pos+1 < len(l.src) && unicode.IsDigit(l.src[l.pos+1]) {
		l.advance(1)
		for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
			l.advance(1)
		}
	}
	return Token{Kind: TokNumber, Text: string(l.src[start:l.pos]), Line: line, Column: col}
}

func (l *lexer) lexString(line, col int) (Token, error) {
	quote := l.src[l.pos]
	l.advance(1)
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == quote {
			l.advance(1)
			return Token{Kind: TokString, Text: sb.String(), Line: line, Column: col}, nil
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.advance(1)
			esc := l.src[l.pos]
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '\\', '\'', '"':
				sb.WriteRune(esc)
			default:
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
			l.advance(1)
			continue
		}
		sb.WriteRune(c)
		l.advance(1)
	}
	return Token{}, l.errorf(line, col, "unterminated string literal")
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			l.advance(1)
			continue
		}
		// Line comments: // to end of line
		if c == '/' && l.peekAt(1) == '/' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
			continue
		}
		return
	}
}

func (l *lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.pos++
	}
}

func (l *lexer) errorf(line, col int, format string, args ...any) error {
	return &ParseError{
		Message: fmt.Sprintf(format, args...),
		Line:    line,
		Column:  col,
	}
}
