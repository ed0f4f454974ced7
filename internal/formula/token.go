package formula

import "fmt"

// TokenType represents the type of a token in the formula grammar
type TokenType int

const (
	// TOKEN_EOF marks the end of the token stream.
	TOKEN_EOF TokenType = iota
	// TOKEN_NUMBER is a numeric literal (integer or decimal).
	TOKEN_NUMBER
	// TOKEN_IDENTIFIER is a variable reference.
	TOKEN_IDENTIFIER
	// TOKEN_PLUS is '+'.
	TOKEN_PLUS
	// TOKEN_MINUS is '-'.
	TOKEN_MINUS
	// TOKEN_STAR is '*'.
	TOKEN_STAR
	// TOKEN_SLASH is '/'.
	TOKEN_SLASH
	// TOKEN_LPAREN is '('.
	TOKEN_LPAREN
	// TOKEN_RPAREN is ')'.
	TOKEN_RPAREN
)

// Token is a single lexical token with its source position
type Token struct {
	Type   TokenType
	Lexeme string
	Value  float64 // Parsed value for TOKEN_NUMBER
	Pos    int     // Byte offset of the first character (0-indexed)
}

func (t Token) String() string {
	switch t.Type {
	case TOKEN_EOF:
		return "EOF"
	case TOKEN_NUMBER:
		return fmt.Sprintf("NUMBER(%s)", t.Lexeme)
	case TOKEN_IDENTIFIER:
		return fmt.Sprintf("IDENT(%s)", t.Lexeme)
	default:
		return fmt.Sprintf("%q", t.Lexeme)
	}
}
