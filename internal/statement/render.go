package statement

import (
	"fmt"
	"strings"
)

// Ownership-chain tables. The chain is expenses→categories→books→users;
// proving a row belongs to a user means walking it to books.userId.
const (
	TableBooks      = "books"
	TableCategories = "categories"
	TableExpenses   = "expenses"
)

// ChainTable reports whether the table participates in the ownership chain.
func ChainTable(table string) bool {
	switch table {
	case TableBooks, TableCategories, TableExpenses:
		return true
	}
	return false
}

// Render turns the structured statement back into parameterized SQL plus its
// bound arguments. This is the only place statement text is produced; nothing
// upstream concatenates SQL strings.
func Render(st *Statement) (string, []any, error) {
	switch st.Kind {
	case KindInsert:
		return renderInsert(st)
	case KindUpdate:
		return renderUpdate(st)
	case KindSelect:
		return renderSelect(st)
	default:
		return "", nil, fmt.Errorf("render: unsupported kind %s", st.Kind)
	}
}

func renderInsert(st *Statement) (string, []any, error) {
	if len(st.Columns) == 0 || len(st.Columns) != len(st.Values) {
		return "", nil, fmt.Errorf("render: insert column/value mismatch")
	}
	args := make([]any, len(st.Values))
	ph := make([]string, len(st.Values))
	for i, v := range st.Values {
		args[i] = v.Arg
		ph[i] = "?"
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		st.Table, strings.Join(st.Columns, ", "), strings.Join(ph, ", "))
	return sql, args, nil
}

func renderUpdate(st *Statement) (string, []any, error) {
	if len(st.Assignments) == 0 {
		return "", nil, fmt.Errorf("render: update with empty set list")
	}
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("UPDATE " + st.Table + " SET ")
	for i, a := range st.Assignments {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Column + " = ?")
		args = append(args, a.Value.Arg)
	}
	whereSQL, whereArgs, err := renderWhere(st, false)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(whereSQL)
	args = append(args, whereArgs...)
	return b.String(), args, nil
}

func renderSelect(st *Statement) (string, []any, error) {
	var b strings.Builder
	scoped := st.ScopeUserID != ""

	b.WriteString("SELECT ")
	for i, item := range st.SelectList {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(qualifySelectItem(item, st.Table, scoped))
	}
	b.WriteString(" FROM " + st.Table)

	// The rewriter discarded any model-supplied joins; when scoped, the
	// ownership chain is rebuilt here deterministically.
	if scoped {
		switch st.Table {
		case TableExpenses:
			b.WriteString(" JOIN categories ON expenses.categoryId = categories.id")
			b.WriteString(" JOIN books ON categories.bookId = books.id")
		case TableCategories:
			b.WriteString(" JOIN books ON categories.bookId = books.id")
		}
	}

	whereSQL, whereArgs, err := renderWhere(st, scoped)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(whereSQL)

	if st.OrderBy != "" {
		b.WriteString(" ORDER BY " + qualifyColumn(st.OrderBy, st.Table, scoped))
		if st.OrderDesc {
			b.WriteString(" DESC")
		}
	}
	if st.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", st.Limit))
	}
	return b.String(), whereArgs, nil
}

func renderWhere(st *Statement, qualify bool) (string, []any, error) {
	if len(st.Where) == 0 {
		return "", nil, nil
	}
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(" WHERE ")
	for i, pred := range st.Where {
		if i > 0 {
			b.WriteString(" AND ")
		}
		if pred.Owner {
			sql, err := ownerPredicateSQL(st)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(sql)
			args = append(args, pred.Value.Arg)
			continue
		}
		b.WriteString(qualifyColumn(pred.Column, st.Table, qualify) + " " + pred.Op + " ?")
		args = append(args, pred.Value.Arg)
	}
	return b.String(), args, nil
}

// ownerPredicateSQL renders the equality filter tying the statement to the
// requesting user. SELECTs traverse the rebuilt join chain; UPDATEs use an
// ownership subquery because SQLite UPDATE has no JOIN clause.
func ownerPredicateSQL(st *Statement) (string, error) {
	if st.Kind == KindSelect {
		return "books.userId = ?", nil
	}
	switch st.Table {
	case TableBooks:
		return "userId = ?", nil
	case TableCategories:
		return "bookId IN (SELECT id FROM books WHERE userId = ?)", nil
	case TableExpenses:
		return "categoryId IN (SELECT c.id FROM categories c JOIN books b ON c.bookId = b.id WHERE b.userId = ?)", nil
	}
	return "", fmt.Errorf("render: owner predicate for unknown table %s", st.Table)
}

// qualifySelectItem qualifies a bare column or * with the base table when the
// rendered statement carries joins, so column references stay unambiguous.
func qualifySelectItem(item, table string, qualify bool) string {
	if fn, inner, ok := splitAggregate(item); ok {
		if inner == "*" {
			return fn + "(*)"
		}
		return fn + "(" + qualifyColumn(inner, table, qualify) + ")"
	}
	if item == "*" {
		if qualify {
			return table + ".*"
		}
		return "*"
	}
	return qualifyColumn(item, table, qualify)
}

func qualifyColumn(col, table string, qualify bool) string {
	if !qualify || col == "" || strings.Contains(col, ".") {
		return col
	}
	return table + "." + col
}
