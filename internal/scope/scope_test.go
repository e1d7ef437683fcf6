package scope

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintalk-io/fintalk/internal/statement"
)

const userID = "11111111-1111-1111-1111-111111111111"

func parse(t *testing.T, kind statement.Kind, raw string) *statement.Statement {
	t.Helper()
	st, err := statement.Parse(kind, raw)
	require.NoError(t, err)
	return st
}

func render(t *testing.T, st *statement.Statement) (string, []any) {
	t.Helper()
	sql, args, err := statement.Render(st)
	require.NoError(t, err)
	return sql, args
}

func TestRewrite_SelectWithNoFilterGetsOwnerFilter(t *testing.T) {
	st := parse(t, statement.KindSelect, "SELECT * FROM expenses")
	require.NoError(t, Rewrite(st, userID))

	sql, args := render(t, st)
	assert.Contains(t, sql, "JOIN categories ON expenses.categoryId = categories.id")
	assert.Contains(t, sql, "JOIN books ON categories.bookId = books.id")
	assert.Contains(t, sql, "books.userId = ?")
	assert.Equal(t, []any{userID}, args)
}

func TestRewrite_WrongUserFilterIsOverwritten(t *testing.T) {
	st := parse(t, statement.KindSelect, "SELECT * FROM expenses WHERE userId = 'someone-else'")
	require.NoError(t, Rewrite(st, userID))

	sql, args := render(t, st)
	assert.Contains(t, sql, "books.userId = ?")
	assert.Equal(t, []any{userID}, args)
	assert.NotContains(t, args, "someone-else")
}

func TestRewrite_QualifiedForeignUserFilterIsOverwritten(t *testing.T) {
	st := parse(t, statement.KindSelect, "SELECT * FROM expenses WHERE books.userId = 'victim'")
	require.NoError(t, Rewrite(st, userID))

	_, args := render(t, st)
	assert.Equal(t, []any{userID}, args)
}

func TestRewrite_KeepsNonOwnerFilters(t *testing.T) {
	st := parse(t, statement.KindSelect, "SELECT * FROM expenses WHERE amount > 10")
	require.NoError(t, Rewrite(st, userID))

	sql, args := render(t, st)
	assert.Contains(t, sql, "expenses.amount > ?")
	assert.Contains(t, sql, "books.userId = ?")
	assert.Equal(t, []any{int64(10), userID}, args)
}

func TestRewrite_UpdateExpenseUsesOwnershipSubquery(t *testing.T) {
	st := parse(t, statement.KindUpdate, "UPDATE expenses SET amount = 20 WHERE id = 'e1'")
	require.NoError(t, Rewrite(st, userID))

	sql, args := render(t, st)
	assert.Contains(t, sql,
		"categoryId IN (SELECT c.id FROM categories c JOIN books b ON c.bookId = b.id WHERE b.userId = ?)")
	assert.Equal(t, []any{int64(20), "e1", userID}, args)
}

func TestRewrite_UpdateCategoryScopedThroughBooks(t *testing.T) {
	st := parse(t, statement.KindUpdate, "UPDATE categories SET name = 'Food' WHERE id = 'c1'")
	require.NoError(t, Rewrite(st, userID))

	sql, _ := render(t, st)
	assert.Contains(t, sql, "bookId IN (SELECT id FROM books WHERE userId = ?)")
}

func TestRewrite_BookGetsDirectOwnerFilter(t *testing.T) {
	st := parse(t, statement.KindUpdate, "UPDATE books SET name = 'Home' WHERE id = 'b1'")
	require.NoError(t, Rewrite(st, userID))

	sql, args := render(t, st)
	assert.Contains(t, sql, "userId = ?")
	assert.Equal(t, userID, args[len(args)-1])
}

func TestRewrite_Idempotent(t *testing.T) {
	st := parse(t, statement.KindSelect, "SELECT * FROM expenses WHERE amount > 10")
	require.NoError(t, Rewrite(st, userID))
	once, onceArgs := render(t, st)

	require.NoError(t, Rewrite(st, userID))
	twice, twiceArgs := render(t, st)

	assert.Equal(t, once, twice)
	assert.Equal(t, onceArgs, twiceArgs)
}

func TestRewrite_DiscardsModelJoins(t *testing.T) {
	st := parse(t, statement.KindSelect,
		"SELECT expenses.amount FROM expenses JOIN categories ON expenses.categoryId = categories.id")
	require.NoError(t, Rewrite(st, userID))

	sql, _ := render(t, st)
	// Exactly one rebuilt chain, not the model's join plus ours.
	assert.Equal(t, 1, strings.Count(sql, "JOIN categories"))
	assert.Empty(t, st.Joins)
}

func TestRewrite_InsertIsLeftAlone(t *testing.T) {
	st := parse(t, statement.KindInsert, "INSERT INTO books (name, currency) VALUES ('House', 'USD')")
	require.NoError(t, Rewrite(st, userID))
	assert.Empty(t, st.ScopeUserID)
	assert.Empty(t, st.Where)
}

func TestRewrite_RejectsNonChainTable(t *testing.T) {
	st := &statement.Statement{Kind: statement.KindSelect, Table: "users", SelectList: []string{"*"}}
	assert.Error(t, Rewrite(st, userID))
}

func TestRewrite_RejectsEmptyUser(t *testing.T) {
	st := parse(t, statement.KindSelect, "SELECT * FROM books")
	assert.Error(t, Rewrite(st, ""))
}
