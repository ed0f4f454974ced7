package formula

import (
	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// Expression parsing using recursive descent / precedence climbing
//
// Expression grammar (from lowest to highest precedence):
// expression → term
// term       → factor ( ( "+" | "-" ) factor )*
// factor     → unary ( ( "*" | "/" ) unary )*
// unary      → "-" unary | primary
// primary    → NUMBER | IDENTIFIER | "(" expression ")"
//
// Binary operators are left-associative. Unary minus binds tighter than
// "*" and "/" and is right-associative, so "--x" parses as -(-x) and
// "-2 * 3" parses as (-2) * 3.

// Parser parses a token stream into an expression tree
type Parser struct {
	tokens  []Token
	current int
}

// Parse tokenizes and parses source into an expression tree. It fails with a
// validation error if source contains anything outside the supported grammar.
func Parse(source string) (Expr, error) {
	tokens, err := NewLexer(source).ScanTokens()
	if err != nil {
		return nil, err
	}

	p := &Parser{tokens: tokens}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if !p.isAtEnd() {
		tok := p.peek()
		return nil, ferrors.New(ferrors.CodeFormulaSyntax,
			"unexpected token %s at position %d", tok, tok.Pos)
	}
	return expr, nil
}

// parseExpression is the entry point for expression parsing
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseTerm()
}

// parseTerm handles additive operators (+, -)
func (p *Parser) parseTerm() (Expr, error) {
	expr, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for p.match(TOKEN_PLUS, TOKEN_MINUS) {
		operator := p.previous()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{
			Left:     expr,
			Operator: operator.Lexeme,
			Right:    right,
		}
	}

	return expr, nil
}

// parseFactor handles multiplicative operators (*, /)
func (p *Parser) parseFactor() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.match(TOKEN_STAR, TOKEN_SLASH) {
		operator := p.previous()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{
			Left:     expr,
			Operator: operator.Lexeme,
			Right:    right,
		}
	}

	return expr, nil
}

// parseUnary handles unary minus
func (p *Parser) parseUnary() (Expr, error) {
	if p.match(TOKEN_MINUS) {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Operator: "-", Operand: operand}, nil
	}
	return p.parsePrimary()
}

// parsePrimary handles literals, variables, and parenthesized expressions
func (p *Parser) parsePrimary() (Expr, error) {
	switch {
	case p.match(TOKEN_NUMBER):
		return &LiteralExpr{Value: p.previous().Value}, nil

	case p.match(TOKEN_IDENTIFIER):
		return &VariableExpr{Name: p.previous().Lexeme}, nil

	case p.match(TOKEN_LPAREN):
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if !p.match(TOKEN_RPAREN) {
			tok := p.peek()
			return nil, ferrors.New(ferrors.CodeFormulaSyntax,
				"expected ')' but found %s at position %d", tok, tok.Pos)
		}
		return expr, nil

	default:
		tok := p.peek()
		return nil, ferrors.New(ferrors.CodeFormulaSyntax,
			"expected number, variable, or '(' but found %s at position %d", tok, tok.Pos)
	}
}

// match consumes the current token if it is one of the given types
func (p *Parser) match(types ...TokenType) bool {
	for _, tt := range types {
		if p.check(tt) {
			p.current++
			return true
		}
	}
	return false
}

func (p *Parser) check(tt TokenType) bool {
	return p.peek().Type == tt
}

func (p *Parser) peek() Token {
	return p.tokens[p.current]
}

func (p *Parser) previous() Token {
	return p.tokens[p.current-1]
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == TOKEN_EOF
}
