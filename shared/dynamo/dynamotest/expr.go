package dynamotest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName          // #alias
	tokValue         // :placeholder
	tokIdent         // bare attribute, function or keyword
	tokOp            // = <> < <= > >= + -
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
}

func validationError(format string, args ...any) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: fmt.Sprintf(format, args...),
		Fault:   smithy.FaultClient,
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\n' || c == '\t' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '=' || c == '+' || c == '-':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '<' || c == '>':
			op := string(c)
			if i+1 < len(s) && (s[i+1] == '=' || c == '<' && s[i+1] == '>') {
				op = s[i : i+2]
			}
			toks = append(toks, token{tokOp, op})
			i += len(op)
		case c == '#' || c == ':' || isIdentByte(c):
			j := i + 1
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			kind := tokIdent
			switch c {
			case '#':
				kind = tokName
			case ':':
				kind = tokValue
			}
			if kind != tokIdent && j == i+1 {
				return nil, validationError("Invalid expression: empty reference at offset %d", i)
			}
			toks = append(toks, token{kind, s[i:j]})
			i = j
		default:
			return nil, validationError("Invalid expression: unexpected %q at offset %d", c, i)
		}
	}
	return toks, nil
}

// parser evaluates the expression subset produced by the expression
// package's builders directly against a single item.
type parser struct {
	expr   string
	toks   []token
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue
}

func newParser(expr string, names map[string]string, values map[string]types.AttributeValue) (*parser, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, validationError("Invalid expression: the expression is empty")
	}
	return &parser{expr: expr, toks: toks, names: names, values: values}, nil
}

func (p *parser) peekAt(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return token{kind: tokEOF}
}

func (p *parser) next() token {
	t := p.peekAt(0)
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) error {
	if t := p.next(); t.kind != kind {
		return p.syntaxError(t)
	}
	return nil
}

func (p *parser) keyword(kw string) bool {
	if t := p.peekAt(0); t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) done() error {
	if t := p.peekAt(0); t.kind != tokEOF {
		return p.syntaxError(t)
	}
	return nil
}

func (p *parser) syntaxError(t token) error {
	if t.kind == tokEOF {
		return validationError("Invalid expression: unexpected end of expression %q", p.expr)
	}
	return validationError("Invalid expression: syntax error near %q in %q", t.text, p.expr)
}

func isKeyword(s string) bool {
	switch strings.ToUpper(s) {
	case "AND", "OR", "NOT", "SET", "REMOVE", "ADD", "DELETE":
		return true
	}
	return false
}

// path resolves an attribute reference to its name.
func (p *parser) path(t token) (string, error) {
	switch {
	case t.kind == tokName:
		name, ok := p.names[t.text]
		if !ok {
			return "", validationError("An expression attribute name used in the document path is not defined; attribute name: %s", t.text)
		}
		return name, nil
	case t.kind == tokIdent && !isKeyword(t.text):
		return t.text, nil
	}
	return "", p.syntaxError(t)
}

// operand returns the value of a placeholder or attribute. A missing
// attribute yields nil.
func (p *parser) operand(item Item) (types.AttributeValue, error) {
	t := p.next()
	if t.kind == tokValue {
		v, ok := p.values[t.text]
		if !ok {
			return nil, validationError("An expression attribute value used in expression is not defined; attribute value: %s", t.text)
		}
		return v, nil
	}
	attr, err := p.path(t)
	if err != nil {
		return nil, err
	}
	return item[attr], nil
}

func (p *parser) or(item Item) (bool, error) {
	left, err := p.and(item)
	if err != nil {
		return false, err
	}
	for p.keyword("OR") {
		right, err := p.and(item)
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *parser) and(item Item) (bool, error) {
	left, err := p.not(item)
	if err != nil {
		return false, err
	}
	for p.keyword("AND") {
		right, err := p.not(item)
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *parser) not(item Item) (bool, error) {
	if p.keyword("NOT") {
		v, err := p.not(item)
		return !v, err
	}
	return p.primary(item)
}

func (p *parser) primary(item Item) (bool, error) {
	t := p.peekAt(0)
	if t.kind == tokLParen {
		p.next()
		v, err := p.or(item)
		if err != nil {
			return false, err
		}
		return v, p.expect(tokRParen)
	}
	if t.kind == tokIdent && p.peekAt(1).kind == tokLParen {
		return p.function(item)
	}

	left, err := p.operand(item)
	if err != nil {
		return false, err
	}
	op := p.next()
	if op.kind != tokOp || op.text == "+" || op.text == "-" {
		return false, p.syntaxError(op)
	}
	right, err := p.operand(item)
	if err != nil {
		return false, err
	}
	return compare(left, op.text, right), nil
}

func (p *parser) function(item Item) (bool, error) {
	name := strings.ToLower(p.next().text)
	p.next()

	switch name {
	case "attribute_exists", "attribute_not_exists":
		attr, err := p.path(p.next())
		if err != nil {
			return false, err
		}
		if err := p.expect(tokRParen); err != nil {
			return false, err
		}
		_, ok := item[attr]
		return ok == (name == "attribute_exists"), nil

	case "begins_with", "contains":
		left, err := p.operand(item)
		if err != nil {
			return false, err
		}
		if err := p.expect(tokComma); err != nil {
			return false, err
		}
		right, err := p.operand(item)
		if err != nil {
			return false, err
		}
		if err := p.expect(tokRParen); err != nil {
			return false, err
		}
		ls, lok := left.(*types.AttributeValueMemberS)
		rs, rok := right.(*types.AttributeValueMemberS)
		if !lok || !rok {
			return false, nil
		}
		if name == "begins_with" {
			return strings.HasPrefix(ls.Value, rs.Value), nil
		}
		return strings.Contains(ls.Value, rs.Value), nil
	}

	return false, validationError("Invalid expression: unsupported function %s", name)
}

// compare applies a comparison operator. Comparisons involving a missing
// attribute are false.
func compare(a types.AttributeValue, op string, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return false
	}
	switch op {
	case "=":
		return equal(a, b)
	case "<>":
		return !equal(a, b)
	}

	c, ok := order(a, b)
	if !ok {
		return false
	}
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

func order(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := strconv.ParseFloat(av.Value, 64)
		y, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// evalCondition reports whether item satisfies a condition, filter or key
// condition expression. An empty expression is always satisfied.
func evalCondition(expr string, item Item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	p, err := newParser(expr, names, values)
	if err != nil {
		return false, err
	}
	ok, err := p.or(item)
	if err != nil {
		return false, err
	}
	return ok, p.done()
}

// applyUpdate evaluates a SET update expression against item. Every right
// hand side sees the item as it was before the update.
func applyUpdate(item Item, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	p, err := newParser(expr, names, values)
	if err != nil {
		return err
	}
	if !p.keyword("SET") {
		return validationError("Invalid UpdateExpression: only SET actions are supported, got %q", expr)
	}

	assigned := make(Item)
	for {
		attr, err := p.path(p.next())
		if err != nil {
			return err
		}
		if t := p.next(); t.kind != tokOp || t.text != "=" {
			return p.syntaxError(t)
		}
		v, err := p.setValue(item)
		if err != nil {
			return err
		}
		assigned[attr] = v

		if p.peekAt(0).kind != tokComma {
			break
		}
		p.next()
	}
	if err := p.done(); err != nil {
		return err
	}

	for k, v := range assigned {
		item[k] = v
	}
	return nil
}

func (p *parser) setValue(item Item) (types.AttributeValue, error) {
	left, err := p.setOperand(item)
	if err != nil {
		return nil, err
	}
	t := p.peekAt(0)
	if t.kind != tokOp || t.text != "+" && t.text != "-" {
		return left, nil
	}
	p.next()
	right, err := p.setOperand(item)
	if err != nil {
		return nil, err
	}

	a, errA := number(left)
	b, errB := number(right)
	if errA != nil || errB != nil {
		return nil, validationError("An operand in the update expression has an incorrect data type")
	}
	if t.text == "-" {
		b = -b
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(a+b, 10)}, nil
}

func (p *parser) setOperand(item Item) (types.AttributeValue, error) {
	if t := p.peekAt(0); t.kind == tokIdent && strings.EqualFold(t.text, "if_not_exists") && p.peekAt(1).kind == tokLParen {
		p.next()
		p.next()
		attr, err := p.path(p.next())
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokComma); err != nil {
			return nil, err
		}
		fallback, err := p.operand(item)
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		if v, ok := item[attr]; ok {
			return v, nil
		}
		return fallback, nil
	}

	v, err := p.operand(item)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, validationError("The provided expression refers to an attribute that does not exist in the item")
	}
	return v, nil
}

// project keeps only the attributes named by a projection expression.
func project(item Item, expr string, names map[string]string) (Item, error) {
	if strings.TrimSpace(expr) == "" {
		return item, nil
	}
	p, err := newParser(expr, names, nil)
	if err != nil {
		return nil, err
	}

	out := make(Item)
	for {
		attr, err := p.path(p.next())
		if err != nil {
			return nil, err
		}
		if v, ok := item[attr]; ok {
			out[attr] = v
		}
		if p.peekAt(0).kind != tokComma {
			break
		}
		p.next()
	}
	return out, p.done()
}

func number(v types.AttributeValue) (int64, error) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamotest: value is not a number")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}
