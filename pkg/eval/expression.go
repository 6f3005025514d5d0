// pkg/eval/expression.go
package eval

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrExpression reports a malformed expression: mismatched parentheses, an empty
// operand stack during operator application, or an operator applied to a
// non-numeric operand where arithmetic is required.
var ErrExpression = errors.New("eval: expression error")

// ErrDivisionByZero is returned when the right operand of `/` is zero.
var ErrDivisionByZero = errors.New("eval: division by zero")

// Context resolves bare identifiers (optionally dotted, e.g. "table.col")
// to a value. An identifier absent from the context is returned as-is,
// supporting unresolved postfix streams used for debugging/indexing.
type Context map[string]interface{}

func precedence(tok Token) int {
	switch tok.Type {
	case TokenCaret:
		return 3
	case TokenStar, TokenSlash, TokenPercent:
		return 2
	case TokenPlus, TokenMinus:
		return 1
	default:
		return 0
	}
}

func isOperator(tok Token) bool {
	switch tok.Type {
	case TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenCaret:
		return true
	default:
		return false
	}
}

// toPostfix converts infix tokens to postfix (Reverse Polish) order via the
// shunting-yard algorithm. `^` falls through the same equal-precedence pop
// condition as every other operator, making it left-associative.
func toPostfix(tokens []Token) ([]Token, error) {
	var output []Token
	var stack []Token

	for _, tok := range tokens {
		switch {
		case tok.Type == TokenEOF:
			continue
		case tok.Type == TokenNumber || tok.Type == TokenString || tok.Type == TokenIdent:
			output = append(output, tok)
		case isOperator(tok):
			for len(stack) > 0 && isOperator(stack[len(stack)-1]) && precedence(stack[len(stack)-1]) >= precedence(tok) {
				output = append(output, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, tok)
		case tok.Type == TokenLParen:
			stack = append(stack, tok)
		case tok.Type == TokenRParen:
			found := false
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.Type == TokenLParen {
					found = true
					break
				}
				output = append(output, top)
			}
			if !found {
				return nil, errors.Wrap(ErrExpression, "mismatched parentheses")
			}
		}
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.Type == TokenLParen {
			return nil, errors.Wrap(ErrExpression, "mismatched parentheses")
		}
		output = append(output, top)
	}
	return output, nil
}

// Evaluate tokenizes, converts to postfix, and evaluates expr against ctx.
// The result is either a float64 (arithmetic) or a string (concatenation /
// unresolved identifier).
func Evaluate(expr string, ctx Context) (interface{}, error) {
	tokens, err := Tokenize(expr)
	if err != nil {
		return nil, err
	}
	postfix, err := toPostfix(tokens)
	if err != nil {
		return nil, err
	}
	return evalPostfix(postfix, ctx)
}

func evalPostfix(postfix []Token, ctx Context) (interface{}, error) {
	var stack []interface{}

	push := func(v interface{}) { stack = append(stack, v) }
	pop := func() (interface{}, error) {
		if len(stack) == 0 {
			return nil, errors.Wrap(ErrExpression, "empty operand stack")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	for _, tok := range postfix {
		switch {
		case tok.Type == TokenNumber:
			f, err := strconv.ParseFloat(tok.Literal, 64)
			if err != nil {
				return nil, errors.Wrapf(ErrExpression, "bad numeric literal %q", tok.Literal)
			}
			push(f)
		case tok.Type == TokenString:
			push(strings.Trim(tok.Literal, "'"))
		case tok.Type == TokenIdent:
			if v, ok := ctx[tok.Literal]; ok {
				push(v)
			} else {
				push(tok.Literal)
			}
		case isOperator(tok):
			right, err := pop()
			if err != nil {
				return nil, err
			}
			left, err := pop()
			if err != nil {
				return nil, err
			}
			result, err := applyOperator(tok, left, right)
			if err != nil {
				return nil, err
			}
			push(result)
		}
	}

	if len(stack) != 1 {
		return nil, errors.Wrap(ErrExpression, "malformed expression")
	}
	return stack[0], nil
}

func applyOperator(tok Token, left, right interface{}) (interface{}, error) {
	if tok.Type == TokenPlus {
		if ls, ok := left.(string); ok {
			return ls + toDisplayString(right), nil
		}
		if rs, ok := right.(string); ok {
			return toDisplayString(left) + rs, nil
		}
	}

	lf, lok := left.(float64)
	rf, rok := right.(float64)
	if !lok || !rok {
		return nil, errors.Wrapf(ErrExpression, "operator %q requires numeric operands", tok.Literal)
	}

	switch tok.Type {
	case TokenPlus:
		return lf + rf, nil
	case TokenMinus:
		return lf - rf, nil
	case TokenStar:
		return lf * rf, nil
	case TokenSlash:
		if rf == 0 {
			return nil, ErrDivisionByZero
		}
		return lf / rf, nil
	case TokenPercent:
		if rf == 0 {
			return nil, ErrDivisionByZero
		}
		return math.Mod(lf, rf), nil
	case TokenCaret:
		return math.Pow(lf, rf), nil
	default:
		return nil, errors.Wrapf(ErrExpression, "unknown operator %q", tok.Literal)
	}
}

func toDisplayString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return ""
	}
}
