package statement

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseError means the statement text could not be proven to have one of the
// three supported shapes. The gateway fails closed on it: unparseable text is
// reported, never executed.
type ParseError struct {
	Detail string
	Near   string
}

func (e *ParseError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("cannot parse statement: %s", e.Detail)
	}
	return fmt.Sprintf("cannot parse statement: %s near %q", e.Detail, e.Near)
}

// Value is a parsed literal. Arg holds the Go value bound as a parameter at
// execution time; the literal text is never spliced back into SQL.
type Value struct {
	Arg any // string, int64, float64, or nil
}

// Assignment is one entry of an UPDATE set list.
type Assignment struct {
	Column string
	Value  Value
}

// Predicate is one conjunct of a WHERE clause. Owner marks the
// ownership-chain filter injected by the scope rewriter; at most one Owner
// predicate exists per statement and its Value carries the user id.
type Predicate struct {
	Column string // canonical, possibly table-qualified
	Op     string
	Value  Value
	Owner  bool
}

// Statement is the structured form every downstream component operates on.
type Statement struct {
	Kind        Kind
	Table       string
	Columns     []string
	Values      []Value
	Assignments []Assignment
	SelectList  []string
	Joins       []string // tables the model joined; discarded and rebuilt by the rewriter
	Where       []Predicate
	OrderBy     string
	OrderDesc   bool
	Limit       int
	ScopeUserID string // set by the scope rewriter; empty means unscoped
	Raw         string
}

// AssignedColumns returns the set of columns an UPDATE writes.
func (s *Statement) AssignedColumns() []string {
	cols := make([]string, len(s.Assignments))
	for i, a := range s.Assignments {
		cols[i] = a.Column
	}
	return cols
}

// InsertValue returns the value for an insert column, if present.
func (s *Statement) InsertValue(column string) (Value, bool) {
	for i, c := range s.Columns {
		if strings.EqualFold(c, column) {
			return s.Values[i], true
		}
	}
	return Value{}, false
}

// SetInsertValue replaces the value for an insert column in place.
func (s *Statement) SetInsertValue(column string, v Value) bool {
	for i, c := range s.Columns {
		if strings.EqualFold(c, column) {
			s.Values[i] = v
			return true
		}
	}
	return false
}

// canonicalColumns maps lowercase and snake_case spellings to the canonical
// column names of the external schema the gateway depends on.
var canonicalColumns = buildCanonicalColumns(
	"id", "userId", "bookId", "categoryId",
	"name", "description", "currency", "icon", "color",
	"amount", "date", "paymentMethod",
	"isArchived", "isDisabled", "isDefault",
	"createdAt", "updatedAt",
)

func buildCanonicalColumns(cols ...string) map[string]string {
	m := make(map[string]string, len(cols)*2)
	for _, c := range cols {
		m[strings.ToLower(c)] = c
		m[toSnake(c)] = c
	}
	return m
}

func toSnake(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalColumn normalizes a (possibly qualified) column reference. Unknown
// names pass through unchanged so the validator can report them verbatim.
func CanonicalColumn(name string) string {
	table, col, qualified := strings.Cut(name, ".")
	if !qualified {
		if c, ok := canonicalColumns[strings.ToLower(name)]; ok {
			return c
		}
		return name
	}
	if c, ok := canonicalColumns[strings.ToLower(col)]; ok {
		col = c
	}
	return strings.ToLower(table) + "." + col
}

// BareColumn strips a table qualifier, returning the canonical column name.
func BareColumn(name string) string {
	name = CanonicalColumn(name)
	if _, col, ok := strings.Cut(name, "."); ok {
		return col
	}
	return name
}

// Parse builds the structured form of a screened statement. The kind has
// already been decided by Classify; Parse never re-classifies.
func Parse(kind Kind, raw string) (*Statement, error) {
	toks, err := lex(strings.TrimSuffix(strings.TrimSpace(raw), ";"))
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var st *Statement
	switch kind {
	case KindInsert:
		st, err = p.parseInsert()
	case KindUpdate:
		st, err = p.parseUpdate()
	case KindSelect:
		st, err = p.parseSelect()
	default:
		return nil, &ParseError{Detail: "unsupported statement kind"}
	}
	if err != nil {
		return nil, err
	}
	st.Raw = raw
	return st, nil
}

// --- lexer ---

type tokKind int

const (
	tokWord tokKind = iota
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokKind
	text string
}

func lex(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'':
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						b.WriteRune('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, &ParseError{Detail: "unterminated string literal"}
			}
			toks = append(toks, token{tokString, b.String()})
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, string(runes[start:i])})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			toks = append(toks, token{tokWord, string(runes[start:i])})
		case r == '<' || r == '>' || r == '!':
			if i+1 < len(runes) && (runes[i+1] == '=' || (r == '<' && runes[i+1] == '>')) {
				toks = append(toks, token{tokPunct, string(runes[i : i+2])})
				i += 2
			} else {
				toks = append(toks, token{tokPunct, string(r)})
				i++
			}
		case strings.ContainsRune(",()*.=", r):
			toks = append(toks, token{tokPunct, string(r)})
			i++
		default:
			return nil, &ParseError{Detail: "unexpected character", Near: string(r)}
		}
	}
	return toks, nil
}

// --- parser ---

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() (token, bool) {
	if p.done() {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, error) {
	if p.done() {
		return token{}, &ParseError{Detail: "unexpected end of statement"}
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

func (p *parser) acceptWord(kw string) bool {
	if t, ok := p.peek(); ok && t.kind == tokWord && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectWord(kw string) error {
	if !p.acceptWord(kw) {
		near := ""
		if t, ok := p.peek(); ok {
			near = t.text
		}
		return &ParseError{Detail: "expected " + kw, Near: near}
	}
	return nil
}

func (p *parser) acceptPunct(s string) bool {
	if t, ok := p.peek(); ok && t.kind == tokPunct && t.text == s {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectPunct(s string) error {
	if !p.acceptPunct(s) {
		near := ""
		if t, ok := p.peek(); ok {
			near = t.text
		}
		return &ParseError{Detail: "expected " + s, Near: near}
	}
	return nil
}

func (p *parser) expectEnd() error {
	if t, ok := p.peek(); ok {
		return &ParseError{Detail: "trailing input", Near: t.text}
	}
	return nil
}

func (p *parser) tableName() (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}
	if t.kind != tokWord {
		return "", &ParseError{Detail: "expected table name", Near: t.text}
	}
	return strings.ToLower(t.text), nil
}

// columnRef parses word or word.word and canonicalizes it.
func (p *parser) columnRef() (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}
	if t.kind != tokWord {
		return "", &ParseError{Detail: "expected column name", Near: t.text}
	}
	name := t.text
	if p.acceptPunct(".") {
		col, err := p.next()
		if err != nil {
			return "", err
		}
		if col.kind != tokWord {
			return "", &ParseError{Detail: "expected column after qualifier", Near: col.text}
		}
		name = name + "." + col.text
	}
	return CanonicalColumn(name), nil
}

// literal parses a bound-parameter value: string, number, NULL, TRUE, FALSE.
// Anything else (expressions, function calls, subqueries) fails closed.
func (p *parser) literal() (Value, error) {
	t, err := p.next()
	if err != nil {
		return Value{}, err
	}
	switch t.kind {
	case tokString:
		return Value{Arg: t.text}, nil
	case tokNumber:
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return Value{}, &ParseError{Detail: "bad numeric literal", Near: t.text}
			}
			return Value{Arg: f}, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return Value{}, &ParseError{Detail: "bad numeric literal", Near: t.text}
		}
		return Value{Arg: n}, nil
	case tokWord:
		switch strings.ToUpper(t.text) {
		case "NULL":
			return Value{Arg: nil}, nil
		case "TRUE":
			return Value{Arg: int64(1)}, nil
		case "FALSE":
			return Value{Arg: int64(0)}, nil
		}
	}
	return Value{}, &ParseError{Detail: "expected literal value", Near: t.text}
}

func (p *parser) parseInsert() (*Statement, error) {
	if err := p.expectWord("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectWord("INTO"); err != nil {
		return nil, err
	}
	table, err := p.tableName()
	if err != nil {
		return nil, err
	}
	st := &Statement{Kind: KindInsert, Table: table}

	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	for {
		col, err := p.columnRef()
		if err != nil {
			return nil, err
		}
		st.Columns = append(st.Columns, BareColumn(col))
		if p.acceptPunct(",") {
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if err := p.expectWord("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	for {
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		st.Values = append(st.Values, v)
		if p.acceptPunct(",") {
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if !p.done() {
		// A second VALUES tuple means multiple rows in one statement.
		return nil, &ParseError{Detail: "single-row inserts only"}
	}
	if len(st.Columns) != len(st.Values) {
		return nil, &ParseError{Detail: fmt.Sprintf("%d columns but %d values", len(st.Columns), len(st.Values))}
	}
	return st, nil
}

func (p *parser) parseUpdate() (*Statement, error) {
	if err := p.expectWord("UPDATE"); err != nil {
		return nil, err
	}
	table, err := p.tableName()
	if err != nil {
		return nil, err
	}
	st := &Statement{Kind: KindUpdate, Table: table}

	if err := p.expectWord("SET"); err != nil {
		return nil, err
	}
	for {
		col, err := p.columnRef()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		st.Assignments = append(st.Assignments, Assignment{Column: BareColumn(col), Value: v})
		if p.acceptPunct(",") {
			continue
		}
		break
	}

	if p.acceptWord("WHERE") {
		preds, err := p.predicates()
		if err != nil {
			return nil, err
		}
		st.Where = preds
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return st, nil
}

func (p *parser) parseSelect() (*Statement, error) {
	if err := p.expectWord("SELECT"); err != nil {
		return nil, err
	}
	st := &Statement{Kind: KindSelect}

	for {
		item, err := p.selectItem()
		if err != nil {
			return nil, err
		}
		st.SelectList = append(st.SelectList, item)
		if p.acceptPunct(",") {
			continue
		}
		break
	}

	if err := p.expectWord("FROM"); err != nil {
		return nil, err
	}
	table, err := p.tableName()
	if err != nil {
		return nil, err
	}
	st.Table = table
	aliases := map[string]string{}
	if a := p.tableAlias(); a != "" {
		aliases[a] = table
	}

	// Model-supplied joins are recorded for validation and then discarded;
	// the scope rewriter rebuilds the ownership chain deterministically.
	for {
		if p.acceptWord("JOIN") {
			// plain JOIN
		} else if p.acceptWord("INNER") || p.acceptWord("LEFT") {
			if err := p.expectWord("JOIN"); err != nil {
				return nil, err
			}
		} else {
			break
		}
		jt, err := p.tableName()
		if err != nil {
			return nil, err
		}
		st.Joins = append(st.Joins, jt)
		if a := p.tableAlias(); a != "" {
			aliases[a] = jt
		}
		if err := p.expectWord("ON"); err != nil {
			return nil, err
		}
		if _, err := p.columnRef(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		if _, err := p.columnRef(); err != nil {
			return nil, err
		}
	}

	if p.acceptWord("WHERE") {
		preds, err := p.predicates()
		if err != nil {
			return nil, err
		}
		st.Where = preds
	}

	if p.acceptWord("ORDER") {
		if err := p.expectWord("BY"); err != nil {
			return nil, err
		}
		col, err := p.columnRef()
		if err != nil {
			return nil, err
		}
		st.OrderBy = col
		if p.acceptWord("DESC") {
			st.OrderDesc = true
		} else {
			p.acceptWord("ASC")
		}
	}

	if p.acceptWord("LIMIT") {
		t, err := p.next()
		if err != nil {
			return nil, err
		}
		if t.kind != tokNumber {
			return nil, &ParseError{Detail: "expected LIMIT count", Near: t.text}
		}
		n, err := strconv.Atoi(t.text)
		if err != nil || n < 0 {
			return nil, &ParseError{Detail: "bad LIMIT count", Near: t.text}
		}
		st.Limit = n
	}

	if err := p.expectEnd(); err != nil {
		return nil, err
	}

	// Resolve table aliases to real table names so the rewriter and
	// validator never see alias qualifiers.
	for i, item := range st.SelectList {
		st.SelectList[i] = resolveAlias(item, aliases)
	}
	for i := range st.Where {
		st.Where[i].Column = resolveAlias(st.Where[i].Column, aliases)
	}
	st.OrderBy = resolveAlias(st.OrderBy, aliases)
	return st, nil
}

// tableAlias consumes an optional [AS] alias after a table name and returns
// it lowercased, or "" when the next token starts a clause.
func (p *parser) tableAlias() string {
	if p.acceptWord("AS") {
		if t, ok := p.peek(); ok && t.kind == tokWord {
			p.pos++
			return strings.ToLower(t.text)
		}
		return ""
	}
	if t, ok := p.peek(); ok && t.kind == tokWord && !isClauseWord(t.text) {
		p.pos++
		return strings.ToLower(t.text)
	}
	return ""
}

// resolveAlias replaces an alias qualifier in a column reference or aggregate
// with the aliased table name.
func resolveAlias(ref string, aliases map[string]string) string {
	if ref == "" || len(aliases) == 0 {
		return ref
	}
	if fn, inner, ok := splitAggregate(ref); ok {
		return fn + "(" + resolveAlias(inner, aliases) + ")"
	}
	table, col, qualified := strings.Cut(ref, ".")
	if !qualified {
		return ref
	}
	if real, ok := aliases[strings.ToLower(table)]; ok {
		return real + "." + col
	}
	return ref
}

func splitAggregate(ref string) (fn, inner string, ok bool) {
	open := strings.IndexByte(ref, '(')
	if open < 0 || !strings.HasSuffix(ref, ")") {
		return "", "", false
	}
	return ref[:open], ref[open+1 : len(ref)-1], true
}

// selectItem parses *, a column reference, or a single-argument aggregate
// like SUM(amount) or COUNT(*).
func (p *parser) selectItem() (string, error) {
	if p.acceptPunct("*") {
		return "*", nil
	}
	t, ok := p.peek()
	if !ok {
		return "", &ParseError{Detail: "expected select list"}
	}
	if t.kind == tokWord && p.pos+1 < len(p.toks) && p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == "(" {
		fn := strings.ToUpper(t.text)
		switch fn {
		case "SUM", "COUNT", "AVG", "MIN", "MAX":
		default:
			return "", &ParseError{Detail: "unsupported function", Near: t.text}
		}
		p.pos += 2
		inner := "*"
		if !p.acceptPunct("*") {
			col, err := p.columnRef()
			if err != nil {
				return "", err
			}
			inner = col
		}
		if err := p.expectPunct(")"); err != nil {
			return "", err
		}
		return fn + "(" + inner + ")", nil
	}
	return p.columnRef()
}

// predicates parses conjunctive filters. Disjunctions fail closed: an OR
// branch could widen the scope past what the rewriter can prove. A trailing
// dangling AND (a concatenation artifact) is repaired by removal.
func (p *parser) predicates() ([]Predicate, error) {
	var preds []Predicate
	for {
		t, ok := p.peek()
		if !ok || (t.kind == tokWord && isClauseWord(t.text)) {
			// Empty WHERE or dangling AND: nothing more to parse.
			break
		}
		col, err := p.columnRef()
		if err != nil {
			return nil, err
		}
		op, err := p.operator()
		if err != nil {
			return nil, err
		}
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		preds = append(preds, Predicate{Column: col, Op: op, Value: v})
		if p.acceptWord("AND") {
			continue
		}
		if t, ok := p.peek(); ok && t.kind == tokWord && strings.EqualFold(t.text, "OR") {
			return nil, &ParseError{Detail: "disjunctive filters are not allowed", Near: t.text}
		}
		break
	}
	return preds, nil
}

func (p *parser) operator() (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}
	if t.kind == tokPunct {
		switch t.text {
		case "=", "<", ">", "<=", ">=", "!=", "<>":
			return t.text, nil
		}
	}
	if t.kind == tokWord && strings.EqualFold(t.text, "LIKE") {
		return "LIKE", nil
	}
	return "", &ParseError{Detail: "expected comparison operator", Near: t.text}
}

// isClauseWord reports words that terminate a predicate list.
func isClauseWord(w string) bool {
	switch strings.ToUpper(w) {
	case "ORDER", "LIMIT", "GROUP", "JOIN", "INNER", "LEFT", "ON", "WHERE":
		return true
	}
	return false
}
