package formula

import (
	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// Resolver maps a variable name to its value for the period being evaluated.
type Resolver func(name string) (float64, error)

// Eval walks the expression tree, substituting each variable through resolve.
// Division by zero and unresolvable variables fail with calculation errors.
func Eval(expr Expr, resolve Resolver) (float64, error) {
	switch e := expr.(type) {
	case *LiteralExpr:
		return e.Value, nil

	case *VariableExpr:
		value, err := resolve(e.Name)
		if err != nil {
			return 0, err
		}
		return value, nil

	case *UnaryExpr:
		operand, err := Eval(e.Operand, resolve)
		if err != nil {
			return 0, err
		}
		return -operand, nil

	case *BinaryExpr:
		left, err := Eval(e.Left, resolve)
		if err != nil {
			return 0, err
		}
		right, err := Eval(e.Right, resolve)
		if err != nil {
			return 0, err
		}
		switch e.Operator {
		case "+":
			return left + right, nil
		case "-":
			return left - right, nil
		case "*":
			return left * right, nil
		case "/":
			if right == 0 {
				return 0, ferrors.New(ferrors.CodeDivisionByZero, "division by zero")
			}
			return left / right, nil
		default:
			// Unreachable for trees built by Parse; guards hand-built trees.
			return 0, ferrors.New(ferrors.CodeFormulaSyntax,
				"unsupported operator %q", e.Operator)
		}

	default:
		return 0, ferrors.New(ferrors.CodeFormulaSyntax, "unsupported expression node")
	}
}
