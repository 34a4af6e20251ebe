package aql

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError describes a syntax error with its source position.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Parse tokenizes and parses a query string into an AST.
//
// Parse is a pure function: it holds no state between calls and is safe
// for concurrent use. On failure the returned error is a *ParseError.
func Parse(input string) (*Query, error) {
	lex := newLexer(input)
	tokens, err := lex.tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	q, err := p.parseQuery(false)
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != TokEOF {
		return nil, p.errorf("unexpected %s after end of query", p.cur())
	}
	return q, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) cur() Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) peek(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) advance() Token {
	t := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *parser) match(kind Kind) bool {
	if p.cur().Kind == kind {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(kind Kind, context string) (Token, error) {
	if p.cur().Kind == kind {
		return p.advance(), nil
	}
	return Token{}, p.errorf("expected %s %s, got %s", kind, context, p.cur())
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.cur()
	return &ParseError{
		Message: fmt.Sprintf(format, args...),
		Line:    t.Line,
		Column:  t.Column,
	}
}

// parseQuery parses a full query. When sub is true the query is a
// parenthesized CTE subquery and terminates at the closing paren.
func (p *parser) parseQuery(sub bool) (*Query, error) {
	q := &Query{}

	if p.cur().Kind == TokWith {
		with, err := p.parseWith()
		if err != nil {
			return nil, err
		}
		q.With = with
	}

	for {
		switch p.cur().Kind {
		case TokFor:
			if err := p.parseFor(q); err != nil {
				return nil, err
			}
		case TokFilter:
			p.advance()
			cond, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			q.Filters = append(q.Filters, FilterClause{Condition: cond})
		case TokLet:
			p.advance()
			name, err := p.expectIdentLike("after LET")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokAssign, "after LET variable"); err != nil {
				return nil, err
			}
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			q.Lets = append(q.Lets, LetClause{Variable: name, Expr: expr})
		case TokSort:
			if q.Sort != nil {
				return nil, p.errorf("duplicate SORT clause")
			}
			p.advance()
			sort, err := p.parseSort()
			if err != nil {
				return nil, err
			}
			q.Sort = sort
		case TokLimit:
			if q.Limit != nil {
				return nil, p.errorf("duplicate LIMIT clause")
			}
			p.advance()
			limit, err := p.parseLimit()
			if err != nil {
				return nil, err
			}
			q.Limit = limit
		case TokCollect:
			if q.Collect != nil {
				return nil, p.errorf("duplicate COLLECT clause")
			}
			p.advance()
			collect, err := p.parseCollect()
			if err != nil {
				return nil, err
			}
			q.Collect = collect
		case TokReturn:
			if q.Return != nil {
				return nil, p.errorf("duplicate RETURN clause")
			}
			p.advance()
			distinct := p.match(TokDistinct)
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			q.Return = &ReturnClause{Distinct: distinct, Expr: expr}
		case TokWith:
			return nil, p.errorf("WITH clause must appear before the first FOR")
		case TokEOF:
			return p.finishQuery(q)
		case TokRParen:
			if sub {
				return p.finishQuery(q)
			}
			return nil, p.errorf("unexpected %s", p.cur())
		default:
			return nil, p.errorf("unexpected %s", p.cur())
		}
	}
}

func (p *parser) finishQuery(q *Query) (*Query, error) {
	if len(q.Fors) == 0 && q.Traversal == nil {
		return nil, p.errorf("query must contain a FOR clause")
	}
	return q, nil
}

// parseWith parses WITH name AS (subquery)[, name AS (subquery)]*.
func (p *parser) parseWith() (*WithClause, error) {
	p.advance() // WITH

	with := &WithClause{}
	if p.cur().Kind == TokFor || p.cur().Kind == TokEOF {
		return nil, p.errorf("WITH clause requires at least one CTE definition")
	}
	for {
		if p.cur().Kind != TokIdent {
			return nil, p.errorf("expected CTE name before AS in WITH clause, got %s", p.cur())
		}
		name := p.advance().Text

		if p.cur().Kind != TokAs {
			return nil, p.errorf("expected AS after CTE name %q", name)
		}
		p.advance()

		if _, err := p.expect(TokLParen, "around CTE subquery"); err != nil {
			return nil, err
		}
		subquery, err := p.parseQuery(true)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "after CTE subquery"); err != nil {
			return nil, err
		}
		with.CTEs = append(with.CTEs, CTE{Name: name, Subquery: subquery})

		if !p.match(TokComma) {
			break
		}
	}
	return with, nil
}

// parseFor parses a collection FOR clause or a graph traversal clause.
func (p *parser) parseFor(q *Query) error {
	p.advance() // FOR

	vars := []string{}
	name, err := p.expectIdentLike("after FOR")
	if err != nil {
		return err
	}
	vars = append(vars, name)
	for p.cur().Kind == TokComma {
		p.advance()
		name, err := p.expectIdentLike("in FOR variable list")
		if err != nil {
			return err
		}
		vars = append(vars, name)
	}
	if len(vars) > 3 {
		return p.errorf("FOR binds at most three variables (vertex, edge, path)")
	}

	if _, err := p.expect(TokIn, "after FOR variables"); err != nil {
		return err
	}

	// A numeric hop range after IN marks a graph traversal.
	if p.cur().Kind == TokNumber && p.peek(1).Kind == TokDotDot {
		return p.parseTraversal(q, vars)
	}

	if len(vars) > 1 {
		return p.errorf("multiple FOR variables are only valid in graph traversals")
	}
	coll, err := p.expectIdentLike("as collection name")
	if err != nil {
		return err
	}
	q.Fors = append(q.Fors, ForClause{Variable: vars[0], Collection: coll})
	return nil
}

func (p *parser) parseTraversal(q *Query, vars []string) error {
	if q.Traversal != nil {
		return p.errorf("only one traversal clause is allowed per query")
	}
	if len(q.Fors) > 0 {
		return p.errorf("traversal FOR cannot be combined with collection FOR clauses")
	}

	minTok := p.advance()
	minDepth, err := strconv.Atoi(minTok.Text)
	if err != nil {
		return p.errorf("invalid traversal min depth %q", minTok.Text)
	}
	if _, err := p.expect(TokDotDot, "in traversal hop range"); err != nil {
		return err
	}
	maxTok, err := p.expect(TokNumber, "as traversal max depth")
	if err != nil {
		return err
	}
	maxDepth, err := strconv.Atoi(maxTok.Text)
	if err != nil {
		return p.errorf("invalid traversal max depth %q", maxTok.Text)
	}

	var dir Direction
	switch p.cur().Kind {
	case TokOutbound:
		dir = DirectionOutbound
	case TokInbound:
		dir = DirectionInbound
	case TokAny:
		dir = DirectionAny
	default:
		return p.errorf("expected traversal direction (OUTBOUND, INBOUND, or ANY), got %s", p.cur())
	}
	p.advance()

	var start string
	switch p.cur().Kind {
	case TokString, TokIdent:
		start = p.advance().Text
	default:
		return p.errorf("expected traversal start vertex, got %s", p.cur())
	}

	if _, err := p.expect(TokGraph, "before graph name"); err != nil {
		return err
	}
	var graph string
	switch p.cur().Kind {
	case TokString, TokIdent:
		graph = p.advance().Text
	default:
		return p.errorf("expected graph name, got %s", p.cur())
	}

	t := &TraversalClause{
		VarVertex:   vars[0],
		MinDepth:    minDepth,
		MaxDepth:    maxDepth,
		Direction:   dir,
		StartVertex: start,
		GraphName:   graph,
	}
	if len(vars) > 1 {
		t.VarEdge = vars[1]
	}
	if len(vars) > 2 {
		t.VarPath = vars[2]
	}
	q.Traversal = t
	return nil
}

func (p *parser) parseSort() (*SortClause, error) {
	sort := &SortClause{}
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		spec := SortSpec{Expr: expr, Ascending: true}
		switch p.cur().Kind {
		case TokAsc:
			p.advance()
		case TokDesc:
			p.advance()
			spec.Ascending = false
		}
		sort.Specs = append(sort.Specs, spec)
		if !p.match(TokComma) {
			return sort, nil
		}
	}
}

func (p *parser) parseLimit() (*LimitClause, error) {
	first, err := p.parseIntLiteral("in LIMIT clause")
	if err != nil {
		return nil, err
	}
	limit := &LimitClause{Count: first}
	if p.match(TokComma) {
		count, err := p.parseIntLiteral("as LIMIT count")
		if err != nil {
			return nil, err
		}
		limit.Offset = first
		limit.Count = count
	}
	return limit, nil
}

func (p *parser) parseIntLiteral(context string) (int64, error) {
	tok, err := p.expect(TokNumber, context)
	if err != nil {
		return 0, err
	}
	if strings.Contains(tok.Text, ".") {
		return 0, p.errorf("expected integer %s, got %q", context, tok.Text)
	}
	n, err := strconv.ParseInt(tok.Text, 10, 64)
	if err != nil {
		return 0, p.errorf("invalid integer %q %s", tok.Text, context)
	}
	return n, nil
}

// parseCollect parses COLLECT var = expr [, ...] [AGGREGATE var = FUNC(expr) [, ...]].
func (p *parser) parseCollect() (*CollectClause, error) {
	collect := &CollectClause{}
	for {
		name, err := p.expectIdentLike("as COLLECT group variable")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokAssign, "after COLLECT group variable"); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		collect.Groups = append(collect.Groups, CollectGroup{Var: name, Expr: expr})
		if !p.match(TokComma) {
			break
		}
	}

	if p.match(TokAggregate) {
		for {
			name, err := p.expectIdentLike("as AGGREGATE variable")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokAssign, "after AGGREGATE variable"); err != nil {
				return nil, err
			}
			fn, err := p.expectIdentLike("as aggregation function")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokLParen, "after aggregation function"); err != nil {
				return nil, err
			}
			agg := Aggregation{Var: name, Func: strings.ToUpper(fn)}
			if p.cur().Kind != TokRParen {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				agg.Arg = arg
			}
			if _, err := p.expect(TokRParen, "after aggregation argument"); err != nil {
				return nil, err
			}
			collect.Aggregations = append(collect.Aggregations, agg)
			if !p.match(TokComma) {
				break
			}
		}
	}
	return collect, nil
}

// Expression grammar, lowest precedence first:
//
//	orExpr   := andExpr ((OR | XOR) andExpr)*
//	andExpr  := cmpExpr (AND cmpExpr)*
//	cmpExpr  := addExpr [(== | != | < | <= | > | >= | IN) addExpr]
//	addExpr  := mulExpr ((+ | -) mulExpr)*
//	mulExpr  := unary ((* | / | %) unary)*
//	unary    := (NOT | - | +) unary | primary
func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.cur().Kind {
		case TokOr:
			op = OpOr
		case TokXor:
			op = OpXor
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == TokAnd {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	var op BinaryOp
	switch p.cur().Kind {
	case TokEq:
		op = OpEq
	case TokNe:
		op = OpNe
	case TokLt:
		op = OpLt
	case TokLe:
		op = OpLe
	case TokGt:
		op = OpGt
	case TokGe:
		op = OpGe
	case TokIn:
		op = OpIn
	default:
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.cur().Kind {
		case TokPlus:
			op = OpAdd
		case TokMinus:
			op = OpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.cur().Kind {
		case TokStar:
			op = OpMul
		case TokSlash:
			op = OpDiv
		case TokPercent:
			op = OpMod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	var op UnaryOp
	switch p.cur().Kind {
	case TokNot:
		op = OpNot
	case TokMinus:
		op = OpNegate
	case TokPlus:
		op = OpPosit
	default:
		return p.parsePrimary()
	}
	p.advance()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	// Fold unary minus into numeric literals so -5 is a literal, not an op.
	if op == OpNegate {
		if lit, ok := operand.(*LiteralExpr); ok {
			switch v := lit.Value.(type) {
			case int64:
				return &LiteralExpr{Value: -v}, nil
			case float64:
				return &LiteralExpr{Value: -v}, nil
			}
		}
	}
	return &UnaryExpr{Op: op, Operand: operand}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.cur().Kind {
	case TokNumber:
		tok := p.advance()
		if strings.Contains(tok.Text, ".") {
			f, err := strconv.ParseFloat(tok.Text, 64)
			if err != nil {
				return nil, p.errorf("invalid number %q", tok.Text)
			}
			return &LiteralExpr{Value: f}, nil
		}
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", tok.Text)
		}
		return &LiteralExpr{Value: n}, nil
	case TokString:
		return &LiteralExpr{Value: p.advance().Text}, nil
	case TokTrue:
		p.advance()
		return &LiteralExpr{Value: true}, nil
	case TokFalse:
		p.advance()
		return &LiteralExpr{Value: false}, nil
	case TokNull:
		p.advance()
		return &LiteralExpr{Value: nil}, nil
	case TokLParen:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "after parenthesized expression"); err != nil {
			return nil, err
		}
		return expr, nil
	case TokLBracket:
		return p.parseArray()
	case TokLBrace:
		return p.parseObject()
	case TokIdent:
		return p.parseNameOrCall()
	}
	return nil, p.errorf("unexpected %s in expression", p.cur())
}

func (p *parser) parseArray() (Expr, error) {
	p.advance() // [
	arr := &ArrayExpr{}
	if p.match(TokRBracket) {
		return arr, nil
	}
	for {
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, elem)
		if p.match(TokComma) {
			continue
		}
		if _, err := p.expect(TokRBracket, "after array elements"); err != nil {
			return nil, err
		}
		return arr, nil
	}
}

func (p *parser) parseObject() (Expr, error) {
	p.advance() // {
	obj := &ObjectExpr{}
	if p.match(TokRBrace) {
		return obj, nil
	}
	for {
		var key string
		switch p.cur().Kind {
		case TokIdent, TokString:
			key = p.advance().Text
		default:
			if name, ok := identLike(p.cur()); ok {
				key = name
				p.advance()
			} else {
				return nil, p.errorf("expected object key, got %s", p.cur())
			}
		}
		if _, err := p.expect(TokColon, "after object key"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, ObjectField{Key: key, Value: value})
		if p.match(TokComma) {
			continue
		}
		if _, err := p.expect(TokRBrace, "after object fields"); err != nil {
			return nil, err
		}
		return obj, nil
	}
}

// parseNameOrCall handles a dotted identifier chain followed by either a
// call argument list (PATH.ALL(...), FULLTEXT(...)) or nothing (field
// access such as doc.address.city). SIMILARITY calls become their own
// node so the translator never string-matches function names.
func (p *parser) parseNameOrCall() (Expr, error) {
	parts := []string{p.advance().Text}
	for p.cur().Kind == TokDot {
		name, ok := identLike(p.peek(1))
		if !ok {
			return nil, p.errorf("expected field name after '.', got %s", p.peek(1))
		}
		p.advance() // .
		p.advance() // field
		parts = append(parts, name)
	}

	if p.cur().Kind == TokLParen {
		p.advance()
		var args []Expr
		if p.cur().Kind != TokRParen {
			for {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if !p.match(TokComma) {
					break
				}
			}
		}
		if _, err := p.expect(TokRParen, "after call arguments"); err != nil {
			return nil, err
		}
		name := strings.Join(parts, ".")
		if strings.EqualFold(name, "SIMILARITY") {
			return &SimilarityExpr{Args: args}, nil
		}
		call := &FunctionCallExpr{Name: name, Args: args}
		if p.cur().Kind == TokIdent && strings.EqualFold(p.cur().Text, "OVER") && p.peek(1).Kind == TokLParen {
			return p.parseWindow(call)
		}
		return call, nil
	}

	var expr Expr = &VariableExpr{Name: parts[0]}
	for _, field := range parts[1:] {
		expr = &FieldAccessExpr{Object: expr, Field: field}
	}
	return expr, nil
}

// windowFuncs maps each supported window function to its minimum and
// maximum argument counts.
var windowFuncs = map[string][2]int{
	"ROW_NUMBER":  {0, 0},
	"RANK":        {0, 0},
	"DENSE_RANK":  {0, 0},
	"LAG":         {1, 3},
	"LEAD":        {1, 3},
	"FIRST_VALUE": {1, 1},
	"LAST_VALUE":  {1, 1},
}

// parseWindow parses OVER ([PARTITION BY expr, ...] [ORDER BY spec, ...])
// following a function call. OVER, PARTITION, BY, and ORDER are contextual
// words rather than reserved keywords, so plain identifiers keep working
// everywhere else.
func (p *parser) parseWindow(call *FunctionCallExpr) (Expr, error) {
	fn := strings.ToUpper(call.Name)
	arity, ok := windowFuncs[fn]
	if !ok {
		return nil, p.errorf("%s is not a window function", call.Name)
	}
	if len(call.Args) < arity[0] || len(call.Args) > arity[1] {
		return nil, p.errorf("wrong number of arguments to window function %s", fn)
	}

	p.advance() // OVER
	p.advance() // (

	w := &WindowExpr{Func: fn, Args: call.Args}
	if p.matchWord("PARTITION") {
		if !p.matchWord("BY") {
			return nil, p.errorf("expected BY after PARTITION, got %s", p.cur())
		}
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			w.PartitionBy = append(w.PartitionBy, expr)
			if !p.match(TokComma) {
				break
			}
		}
	}
	if p.matchWord("ORDER") {
		if !p.matchWord("BY") {
			return nil, p.errorf("expected BY after ORDER, got %s", p.cur())
		}
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			spec := SortSpec{Expr: expr, Ascending: true}
			switch p.cur().Kind {
			case TokAsc:
				p.advance()
			case TokDesc:
				p.advance()
				spec.Ascending = false
			}
			w.OrderBy = append(w.OrderBy, spec)
			if !p.match(TokComma) {
				break
			}
		}
	}
	if _, err := p.expect(TokRParen, "after window specification"); err != nil {
		return nil, err
	}
	return w, nil
}

// matchWord consumes a bare identifier spelled word, case-insensitively.
func (p *parser) matchWord(word string) bool {
	if p.cur().Kind == TokIdent && strings.EqualFold(p.cur().Text, word) {
		p.advance()
		return true
	}
	return false
}

// expectIdentLike consumes an identifier, accepting keyword spellings
// where an identifier is required (variables and fields may collide with
// reserved words such as graph or any).
func (p *parser) expectIdentLike(context string) (string, error) {
	if name, ok := identLike(p.cur()); ok {
		p.advance()
		return name, nil
	}
	return "", p.errorf("expected identifier %s, got %s", context, p.cur())
}

func identLike(t Token) (string, bool) {
	if t.Kind == TokIdent {
		return t.Text, true
	}
	if _, isKeyword := keywords[strings.ToUpper(t.Text)]; isKeyword && t.Text != "" {
		switch t.Kind {
		case TokNumber, TokString, TokEOF:
			return "", false
		}
		return t.Text, true
	}
	return "", false
}
