// Package formula provides lexing, parsing, and evaluation for the restricted
// arithmetic grammar used by formula and metric nodes. The grammar supports
// numeric literals, named variables, binary + - * /, unary minus, and
// parentheses; everything else is rejected at scan or parse time.
package formula

import (
	"strconv"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// Lexer tokenizes a formula string.
//
// Thread Safety: Lexer instances are NOT thread-safe. Each caller must create
// its own Lexer via NewLexer.
type Lexer struct {
	source  string  // Formula text to tokenize
	start   int     // Start position of current token
	current int     // Current position in source
	tokens  []Token // Collected tokens
}

// NewLexer creates a new Lexer for the given formula source
func NewLexer(source string) *Lexer {
	return &Lexer{
		source: source,
		tokens: make([]Token, 0),
	}
}

// ScanTokens tokenizes the entire source. The returned slice always ends with
// a TOKEN_EOF on success.
func (l *Lexer) ScanTokens() ([]Token, error) {
	for !l.isAtEnd() {
		l.start = l.current
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}

	l.tokens = append(l.tokens, Token{Type: TOKEN_EOF, Pos: l.current})
	return l.tokens, nil
}

func (l *Lexer) scanToken() error {
	c := l.advance()

	switch {
	case c == '+':
		l.addToken(TOKEN_PLUS)
	case c == '-':
		l.addToken(TOKEN_MINUS)
	case c == '*':
		l.addToken(TOKEN_STAR)
	case c == '/':
		l.addToken(TOKEN_SLASH)
	case c == '(':
		l.addToken(TOKEN_LPAREN)
	case c == ')':
		l.addToken(TOKEN_RPAREN)
	case c == ' ' || c == '\t' || c == '\r' || c == '\n':
		// Ignore whitespace
	case isDigit(c) || c == '.':
		return l.number()
	case isAlpha(c):
		l.identifier()
	default:
		return ferrors.New(ferrors.CodeFormulaSyntax,
			"unexpected character %q at position %d", string(c), l.start)
	}
	return nil
}

// number scans a numeric literal: digits with at most one decimal point.
func (l *Lexer) number() error {
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}

	lexeme := l.source[l.start:l.current]
	value, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		return ferrors.Wrap(err, ferrors.CodeFormulaSyntax,
			"invalid numeric literal %q at position %d", lexeme, l.start)
	}

	l.tokens = append(l.tokens, Token{
		Type:   TOKEN_NUMBER,
		Lexeme: lexeme,
		Value:  value,
		Pos:    l.start,
	})
	return nil
}

// identifier scans a variable name: [A-Za-z_][A-Za-z0-9_]*
func (l *Lexer) identifier() {
	for isAlpha(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	l.addToken(TOKEN_IDENTIFIER)
}

func (l *Lexer) addToken(tt TokenType) {
	l.tokens = append(l.tokens, Token{
		Type:   tt,
		Lexeme: l.source[l.start:l.current],
		Pos:    l.start,
	})
}

func (l *Lexer) advance() byte {
	c := l.source[l.current]
	l.current++
	return c
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.current]
}

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}
