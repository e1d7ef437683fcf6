package statement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Insert(t *testing.T) {
	st, err := Parse(KindInsert,
		"INSERT INTO expenses (categoryId, amount, date, description) VALUES ('a1b2', 40.5, '2026-08-01', 'electricity')")
	require.NoError(t, err)

	assert.Equal(t, KindInsert, st.Kind)
	assert.Equal(t, "expenses", st.Table)
	assert.Equal(t, []string{"categoryId", "amount", "date", "description"}, st.Columns)
	assert.Equal(t, "a1b2", st.Values[0].Arg)
	assert.Equal(t, 40.5, st.Values[1].Arg)
}

func TestParse_InsertNormalizesSnakeCaseColumns(t *testing.T) {
	st, err := Parse(KindInsert, "INSERT INTO expenses (category_id, amount) VALUES ('x', 5)")
	require.NoError(t, err)
	assert.Equal(t, []string{"categoryId", "amount"}, st.Columns)
}

func TestParse_InsertEscapedQuote(t *testing.T) {
	st, err := Parse(KindInsert, "INSERT INTO books (name, currency) VALUES ('Bob''s book', 'USD')")
	require.NoError(t, err)
	assert.Equal(t, "Bob's book", st.Values[0].Arg)
}

func TestParse_InsertRejectsColumnValueMismatch(t *testing.T) {
	_, err := Parse(KindInsert, "INSERT INTO books (name, currency) VALUES ('House')")
	require.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestParse_InsertRejectsMultiRow(t *testing.T) {
	_, err := Parse(KindInsert, "INSERT INTO books (name) VALUES ('a'), ('b')")
	require.Error(t, err)
}

func TestParse_InsertRejectsExpressions(t *testing.T) {
	_, err := Parse(KindInsert, "INSERT INTO expenses (amount, date) VALUES (40, date('now'))")
	require.Error(t, err)
}

func TestParse_Update(t *testing.T) {
	st, err := Parse(KindUpdate, "UPDATE expenses SET amount = 25.00, description = 'groceries' WHERE id = 'e1'")
	require.NoError(t, err)

	assert.Equal(t, "expenses", st.Table)
	require.Len(t, st.Assignments, 2)
	assert.Equal(t, "amount", st.Assignments[0].Column)
	assert.Equal(t, 25.0, st.Assignments[0].Value.Arg)
	require.Len(t, st.Where, 1)
	assert.Equal(t, "id", st.Where[0].Column)
	assert.Equal(t, "=", st.Where[0].Op)
	assert.Equal(t, "e1", st.Where[0].Value.Arg)
}

func TestParse_UpdateBooleanLiteral(t *testing.T) {
	st, err := Parse(KindUpdate, "UPDATE books SET isArchived = TRUE WHERE id = 'b1'")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Assignments[0].Value.Arg)
}

func TestParse_Select(t *testing.T) {
	st, err := Parse(KindSelect,
		"SELECT amount, date FROM expenses WHERE amount >= 10 AND date > '2026-01-01' ORDER BY date DESC LIMIT 20")
	require.NoError(t, err)

	assert.Equal(t, []string{"amount", "date"}, st.SelectList)
	assert.Equal(t, "expenses", st.Table)
	require.Len(t, st.Where, 2)
	assert.Equal(t, ">=", st.Where[0].Op)
	assert.Equal(t, "date", st.OrderBy)
	assert.True(t, st.OrderDesc)
	assert.Equal(t, 20, st.Limit)
}

func TestParse_SelectStarAndAggregates(t *testing.T) {
	st, err := Parse(KindSelect, "SELECT * FROM books")
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, st.SelectList)

	st, err = Parse(KindSelect, "SELECT SUM(amount), COUNT(*) FROM expenses")
	require.NoError(t, err)
	assert.Equal(t, []string{"SUM(amount)", "COUNT(*)"}, st.SelectList)
}

func TestParse_SelectDiscardsJoinsButRecordsTables(t *testing.T) {
	st, err := Parse(KindSelect,
		"SELECT expenses.amount FROM expenses JOIN categories ON expenses.categoryId = categories.id WHERE categories.name = 'Food'")
	require.NoError(t, err)
	assert.Equal(t, []string{"categories"}, st.Joins)
	require.Len(t, st.Where, 1)
	assert.Equal(t, "categories.name", st.Where[0].Column)
}

func TestParse_SelectResolvesAliases(t *testing.T) {
	st, err := Parse(KindSelect,
		"SELECT e.amount FROM expenses e JOIN categories c ON e.categoryId = c.id WHERE c.name = 'Food'")
	require.NoError(t, err)
	assert.Equal(t, []string{"expenses.amount"}, st.SelectList)
	assert.Equal(t, "categories.name", st.Where[0].Column)
}

func TestParse_RejectsDisjunction(t *testing.T) {
	_, err := Parse(KindSelect, "SELECT * FROM expenses WHERE amount > 5 OR description = 'x'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disjunctive")
}

func TestParse_RepairsDanglingConjunction(t *testing.T) {
	st, err := Parse(KindSelect, "SELECT * FROM expenses WHERE amount > 5 AND")
	require.NoError(t, err)
	require.Len(t, st.Where, 1)
}

func TestParse_RepairsEmptyWhere(t *testing.T) {
	st, err := Parse(KindSelect, "SELECT * FROM expenses WHERE")
	require.NoError(t, err)
	assert.Empty(t, st.Where)
}

func TestParse_NegativeAmountLiteral(t *testing.T) {
	st, err := Parse(KindInsert, "INSERT INTO expenses (amount) VALUES (-40)")
	require.NoError(t, err)
	assert.Equal(t, int64(-40), st.Values[0].Arg)
}

func TestRender_InsertParameterizes(t *testing.T) {
	st, err := Parse(KindInsert, "INSERT INTO books (name, currency) VALUES ('House', 'USD')")
	require.NoError(t, err)

	sql, args, err := Render(st)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO books (name, currency) VALUES (?, ?)", sql)
	assert.Equal(t, []any{"House", "USD"}, args)
}

func TestRender_UpdateWithWhere(t *testing.T) {
	st, err := Parse(KindUpdate, "UPDATE expenses SET amount = 12.5 WHERE id = 'e1'")
	require.NoError(t, err)

	sql, args, err := Render(st)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE expenses SET amount = ? WHERE id = ?", sql)
	assert.Equal(t, []any{12.5, "e1"}, args)
}

func TestRender_RoundTripPreservesLiteralValues(t *testing.T) {
	st, err := Parse(KindInsert,
		"INSERT INTO expenses (categoryId, amount, description) VALUES ('c9', 7, 'a; b -- c')")
	require.NoError(t, err)

	_, args, err := Render(st)
	require.NoError(t, err)
	// Literal content is bound, never re-spliced, so SQL-looking text in a
	// description cannot change the statement shape.
	assert.Equal(t, "a; b -- c", args[2])
}
