// Package filter implements the match-filter DSL: grammar, parser,
// AST, canonical display, and evaluation against a domain.Match. See
// SPEC_FULL.md section 1 / spec.md section 4.2.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"cgarena/internal/domain"
)

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNotEq
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "=="
	case OpNotEq:
		return "!="
	case OpLess:
		return "<"
	case OpLessOrEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	default:
		return "?"
	}
}

// Value is a parsed literal: either a number or a quoted string.
type Value struct {
	isString bool
	number   float64
	str      string
}

func numberValue(v float64) Value { return Value{number: v} }
func stringValue(v string) Value  { return Value{isString: true, str: v} }

func (v Value) String() string {
	if v.isString {
		return fmt.Sprintf("%q", v.str)
	}
	return formatNumber(v.number)
}

// formatNumber strips a trailing ".0", matching the Rust source's
// display of whole-number doubles as bare integers.
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return s
}

// MatchAttr references match.NAME or match[TURN].NAME.
type MatchAttr struct {
	Name string
	Turn *uint16
}

func (a MatchAttr) String() string {
	if a.Turn != nil {
		return fmt.Sprintf("match[%d].%s", *a.Turn, a.Name)
	}
	return fmt.Sprintf("match.%s", a.Name)
}

// BotAttr references bot(ID).NAME or bot(ID)[TURN].NAME.
type BotAttr struct {
	BotId int64
	Name  string
	Turn  *uint16
}

func (a BotAttr) String() string {
	if a.Turn != nil {
		return fmt.Sprintf("bot(%d)[%d].%s", a.BotId, *a.Turn, a.Name)
	}
	return fmt.Sprintf("bot(%d).%s", a.BotId, a.Name)
}

// Argument is one side of a condition: a literal value or an attribute
// reference.
type Argument struct {
	value     *Value
	matchAttr *MatchAttr
	botAttr   *BotAttr
}

func valueArg(v Value) Argument         { return Argument{value: &v} }
func matchAttrArg(a MatchAttr) Argument { return Argument{matchAttr: &a} }
func botAttrArg(a BotAttr) Argument     { return Argument{botAttr: &a} }

func (a Argument) String() string {
	switch {
	case a.value != nil:
		return a.value.String()
	case a.matchAttr != nil:
		return a.matchAttr.String()
	case a.botAttr != nil:
		return a.botAttr.String()
	default:
		return ""
	}
}

// Expr is the filter AST. Exactly one of cond/not/and/or is populated,
// matching the Rust source's tagged Expr enum. parens counts how many
// redundant "(" ")" pairs wrapped this node in the source text, so
// String can reproduce them exactly instead of only the minimum a
// precedence-aware printer would need.
type Expr struct {
	cond *condition
	not  *Expr
	and  *binary
	or   *binary

	parens int
}

type condition struct {
	arg1 Argument
	op   Op
	arg2 Argument
}

type binary struct {
	left, right *Expr
}

func conditionExpr(a1 Argument, op Op, a2 Argument) *Expr {
	return &Expr{cond: &condition{arg1: a1, op: op, arg2: a2}}
}

func notExpr(e *Expr) *Expr { return &Expr{not: e} }

func andExpr(l, r *Expr) *Expr { return &Expr{and: &binary{left: l, right: r}} }

func orExpr(l, r *Expr) *Expr { return &Expr{or: &binary{left: l, right: r}} }

// String renders the canonical display form: single spaces, uppercase
// keywords, and exactly the parens the source text used. Since "("
// ")" only ever reach the AST via parseFactorInner wrapping a single
// node, replaying e.parens pairs around that node's own rendering
// round-trips the original grouping, including redundant nesting like
// "(((match.a < 100)))".
func (e *Expr) String() string {
	var s string
	switch {
	case e.cond != nil:
		s = fmt.Sprintf("%s %s %s", e.cond.arg1, e.cond.op, e.cond.arg2)
	case e.not != nil:
		s = fmt.Sprintf("NOT %s", e.not)
	case e.and != nil:
		s = fmt.Sprintf("%s AND %s", e.and.left, e.and.right)
	case e.or != nil:
		s = fmt.Sprintf("%s OR %s", e.or.left, e.or.right)
	}
	for i := 0; i < e.parens; i++ {
		s = "(" + s + ")"
	}
	return s
}

// MatchFilter is a compiled predicate; AcceptAll is the identity.
type MatchFilter struct {
	expr *Expr
}

// AcceptAll returns the filter that matches every match.
func AcceptAll() MatchFilter { return MatchFilter{} }

// Parse compiles a filter expression string. An empty string is
// equivalent to AcceptAll.
func Parse(s string) (MatchFilter, error) {
	if strings.TrimSpace(s) == "" {
		return AcceptAll(), nil
	}
	p := &parser{input: s}
	expr, err := p.parseExpression()
	if err != nil {
		return MatchFilter{}, fmt.Errorf("%w: %s", domain.ErrValidationFailed, err)
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return MatchFilter{}, domain.ValidationFailedf("unexpected suffix: %s", p.input[p.pos:])
	}
	return MatchFilter{expr: expr}, nil
}

func (f MatchFilter) String() string {
	if f.expr == nil {
		return ""
	}
	return f.expr.String()
}

// Matches evaluates the filter against m. Parens recorded on an Expr
// only affect String's rendering, never evaluation or NeededAttributes,
// so evalExpr ignores them entirely.
func (f MatchFilter) Matches(m domain.Match) bool {
	if f.expr == nil {
		return true
	}
	return evalExpr(f.expr, m)
}

// NeededAttributes returns every (name, bot_id?, turn?) reference used
// by the expression, for the Store to prefetch.
func (f MatchFilter) NeededAttributes() []domain.AttributeRef {
	var refs []domain.AttributeRef
	if f.expr != nil {
		collectRefs(f.expr, &refs)
	}
	return refs
}

func collectRefs(e *Expr, res *[]domain.AttributeRef) {
	switch {
	case e.cond != nil:
		collectArgRef(e.cond.arg1, res)
		collectArgRef(e.cond.arg2, res)
	case e.not != nil:
		collectRefs(e.not, res)
	case e.and != nil:
		collectRefs(e.and.left, res)
		collectRefs(e.and.right, res)
	case e.or != nil:
		collectRefs(e.or.left, res)
		collectRefs(e.or.right, res)
	}
}

func collectArgRef(a Argument, res *[]domain.AttributeRef) {
	switch {
	case a.matchAttr != nil:
		*res = append(*res, domain.AttributeRef{Name: a.matchAttr.Name, Turn: a.matchAttr.Turn})
	case a.botAttr != nil:
		id := domain.BotId(a.botAttr.BotId)
		*res = append(*res, domain.AttributeRef{Name: a.botAttr.Name, BotId: &id, Turn: a.botAttr.Turn})
	}
}

func evalExpr(e *Expr, m domain.Match) bool {
	switch {
	case e.cond != nil:
		return evalCondition(e.cond, m)
	case e.not != nil:
		return !evalExpr(e.not, m)
	case e.and != nil:
		return evalExpr(e.and.left, m) && evalExpr(e.and.right, m)
	case e.or != nil:
		return evalExpr(e.or.left, m) || evalExpr(e.or.right, m)
	default:
		return false
	}
}

func evalCondition(c *condition, m domain.Match) bool {
	v1, ok1 := resolveArg(c.arg1, m)
	v2, ok2 := resolveArg(c.arg2, m)
	if !ok1 || !ok2 {
		return false
	}

	if f1, isNum := v1.AsFloat(); isNum {
		if f2, isNum2 := v2.AsFloat(); isNum2 {
			return compareFloat(f1, c.op, f2)
		}
		return false
	}
	if s1, isStr := v1.AsString(); isStr {
		if s2, isStr2 := v2.AsString(); isStr2 {
			switch c.op {
			case OpEq:
				return s1 == s2
			case OpNotEq:
				return s1 != s2
			default:
				return false
			}
		}
	}
	return false
}

func compareFloat(a float64, op Op, b float64) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNotEq:
		return a != b
	case OpLess:
		return a < b
	case OpLessOrEqual:
		return a <= b
	case OpGreater:
		return a > b
	case OpGreaterOrEqual:
		return a >= b
	default:
		return false
	}
}

// resolveArg resolves a literal or attribute-reference argument to a
// MatchAttributeValue. Missing attributes resolve to (_, false); per
// spec.md section 4.2 this makes the owning condition false, not an
// error.
func resolveArg(a Argument, m domain.Match) (domain.MatchAttributeValue, bool) {
	switch {
	case a.value != nil:
		if a.value.isString {
			return domain.StringValue(a.value.str), true
		}
		return domain.FloatValue(a.value.number), true
	case a.matchAttr != nil:
		for _, attr := range m.Attributes {
			if attr.BotId == nil && attr.Name == a.matchAttr.Name && turnEqual(attr.Turn, a.matchAttr.Turn) {
				return attr.Value, true
			}
		}
		return domain.MatchAttributeValue{}, false
	case a.botAttr != nil:
		wantId := domain.BotId(a.botAttr.BotId)
		for _, attr := range m.Attributes {
			if attr.BotId != nil && *attr.BotId == wantId && attr.Name == a.botAttr.Name && turnEqual(attr.Turn, a.botAttr.Turn) {
				return attr.Value, true
			}
		}
		return domain.MatchAttributeValue{}, false
	default:
		return domain.MatchAttributeValue{}, false
	}
}

func turnEqual(a, b *uint16) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
