package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUsers_CreateAndAuthenticate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "Alice@Example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "s3cret", u.PasswordHash)

	got, err := s.Authenticate(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Authenticate(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestBooks_CreateFetchArchive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	b, err := s.CreateBook(ctx, u.ID, "House", "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", b.Currency)

	byName, err := s.BookByName(ctx, u.ID, "house")
	require.NoError(t, err)
	assert.Equal(t, b.ID, byName.ID)

	// Another user cannot see it.
	other, err := s.CreateUser(ctx, "x@y.z", "pw")
	require.NoError(t, err)
	_, err = s.BookByID(ctx, other.ID, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.ArchiveBook(ctx, u.ID, b.ID))
	_, err = s.BookByName(ctx, u.ID, "House")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBooks_CreateCopiesTemplates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	_, err = s.CreateTemplateCategory(ctx, "Food & Drinks", "food", "#aa0000")
	require.NoError(t, err)

	b, err := s.CreateBook(ctx, u.ID, "House", "USD")
	require.NoError(t, err)

	cats, err := s.CategoriesByBook(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Food & Drinks", cats[0].Name)
	assert.False(t, cats[0].IsDefault, "copies are ordinary categories")

	// The template itself stays bookless.
	all, err := s.CategoriesByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCategories_CaseInsensitiveLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, "a@b.c", "pw")
	b, err := s.CreateBook(ctx, u.ID, "House", "USD")
	require.NoError(t, err)

	c, err := s.CreateCategory(ctx, b.ID, "Bills & Utilities")
	require.NoError(t, err)

	got, err := s.CategoryByName(ctx, b.ID, "bills & utilities")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestConversationTurns_AppendAndWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, "a@b.c", "pw")

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, s.AppendTurn(ctx, u.ID, "user", msg))
	}
	turns, err := s.RecentTurns(ctx, u.ID, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "two", turns[0].Content)
	assert.Equal(t, "three", turns[1].Content)
}

func TestExecStatement_RowCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, "a@b.c", "pw")
	b, err := s.CreateBook(ctx, u.ID, "House", "USD")
	require.NoError(t, err)
	c, err := s.CreateCategory(ctx, b.ID, "Food")
	require.NoError(t, err)

	n, err := s.ExecStatement(ctx,
		"INSERT INTO expenses (id, categoryId, amount, date) VALUES (?, ?, ?, ?)",
		[]any{"e1", c.ID, 12.5, "2026-08-01"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := s.QueryStatement(ctx,
		"SELECT amount, date FROM expenses WHERE categoryId = ?", []any{c.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 12.5, rows[0]["amount"])
}

func TestExecStatement_ConstraintViolationIsExecutionFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Negative amounts violate the schema CHECK.
	_, err := s.ExecStatement(ctx,
		"INSERT INTO expenses (id, categoryId, amount, date) VALUES (?, ?, ?, ?)",
		[]any{"e1", "missing", -5.0, "2026-08-01"})
	require.Error(t, err)
	var ef *ExecutionFailure
	assert.ErrorAs(t, err, &ef)
}

func TestOwnershipSubqueryBlocksForeignUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner, _ := s.CreateUser(ctx, "owner@b.c", "pw")
	attacker, _ := s.CreateUser(ctx, "attacker@b.c", "pw")
	b, err := s.CreateBook(ctx, owner.ID, "House", "USD")
	require.NoError(t, err)
	c, err := s.CreateCategory(ctx, b.ID, "Food")
	require.NoError(t, err)
	_, err = s.ExecStatement(ctx,
		"INSERT INTO expenses (id, categoryId, amount, date) VALUES (?, ?, ?, ?)",
		[]any{"e1", c.ID, 10.0, "2026-08-01"})
	require.NoError(t, err)

	// The shape the scope rewriter renders for UPDATE expenses.
	n, err := s.ExecStatement(ctx,
		`UPDATE expenses SET amount = ? WHERE id = ? AND categoryId IN
		 (SELECT c.id FROM categories c JOIN books b ON c.bookId = b.id WHERE b.userId = ?)`,
		[]any{999.0, "e1", attacker.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "foreign user must affect zero rows")

	n, err = s.ExecStatement(ctx,
		`UPDATE expenses SET amount = ? WHERE id = ? AND categoryId IN
		 (SELECT c.id FROM categories c JOIN books b ON c.bookId = b.id WHERE b.userId = ?)`,
		[]any{20.0, "e1", owner.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
