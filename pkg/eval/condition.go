// pkg/eval/condition.go
package eval

import "github.com/cockroachdb/errors"

// ErrTypeMismatch is returned when a Condition compares a numeric result
// against a string result.
var ErrTypeMismatch = errors.New("eval: type mismatch")

// ErrInvalidOperator is returned by NewCondition for an operator outside
// {<, >, =, <=, >=, !=}.
var ErrInvalidOperator = errors.New("eval: invalid comparison operator")

var validOperators = map[string]bool{
	"<": true, ">": true, "=": true, "<=": true, ">=": true, "!=": true,
}

// Condition is a binary comparison between two expressions.
type Condition struct {
	Left     string
	Operator string
	Right    string
}

// NewCondition validates the operator and returns a Condition.
func NewCondition(left, operator, right string) (Condition, error) {
	if !validOperators[operator] {
		return Condition{}, errors.Wrapf(ErrInvalidOperator, "operator %q", operator)
	}
	return Condition{Left: left, Operator: operator, Right: right}, nil
}

// Evaluate evaluates both operand expressions against ctx and applies the
// comparison operator. Comparing a numeric result against a string result
// fails with ErrTypeMismatch.
func (c Condition) Evaluate(ctx Context) (bool, error) {
	left, err := Evaluate(c.Left, ctx)
	if err != nil {
		return false, err
	}
	right, err := Evaluate(c.Right, ctx)
	if err != nil {
		return false, err
	}

	lf, lIsNum := left.(float64)
	rf, rIsNum := right.(float64)
	if lIsNum != rIsNum {
		return false, errors.Wrap(ErrTypeMismatch, "cannot compare numeric and string operands")
	}

	if lIsNum {
		return compareFloat(lf, c.Operator, rf)
	}
	return compareString(left.(string), c.Operator, right.(string))
}

func compareFloat(l float64, op string, r float64) (bool, error) {
	switch op {
	case "<":
		return l < r, nil
	case ">":
		return l > r, nil
	case "=":
		return l == r, nil
	case "<=":
		return l <= r, nil
	case ">=":
		return l >= r, nil
	case "!=":
		return l != r, nil
	default:
		return false, errors.Wrapf(ErrInvalidOperator, "operator %q", op)
	}
}

func compareString(l string, op string, r string) (bool, error) {
	switch op {
	case "<":
		return l < r, nil
	case ">":
		return l > r, nil
	case "=":
		return l == r, nil
	case "<=":
		return l <= r, nil
	case ">=":
		return l >= r, nil
	case "!=":
		return l != r, nil
	default:
		return false, errors.Wrapf(ErrInvalidOperator, "operator %q", op)
	}
}
