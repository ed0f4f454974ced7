package formula

// Expr is a node in the parsed expression tree. The variant set is closed:
// literal, variable, binary operation, unary operation.
type Expr interface {
	exprNode()
}

// LiteralExpr represents a numeric literal
type LiteralExpr struct {
	Value float64
}

func (l *LiteralExpr) exprNode() {}

// VariableExpr represents a named variable reference
type VariableExpr struct {
	Name string
}

func (v *VariableExpr) exprNode() {}

// BinaryExpr represents a binary operation (a + b, a * b, etc.)
type BinaryExpr struct {
	Left     Expr
	Operator string // "+", "-", "*", "/"
	Right    Expr
}

func (b *BinaryExpr) exprNode() {}

// UnaryExpr represents unary minus (-x)
type UnaryExpr struct {
	Operator string // "-"
	Operand  Expr
}

func (u *UnaryExpr) exprNode() {}

// Variables returns the distinct variable names referenced by expr, in first
// appearance order.
func Variables(expr Expr) []string {
	seen := make(map[string]struct{})
	var names []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case *VariableExpr:
			if _, ok := seen[v.Name]; !ok {
				seen[v.Name] = struct{}{}
				names = append(names, v.Name)
			}
		case *BinaryExpr:
			walk(v.Left)
			walk(v.Right)
		case *UnaryExpr:
			walk(v.Operand)
		}
	}
	walk(expr)
	return names
}
