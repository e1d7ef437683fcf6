package respond

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintalk-io/fintalk/internal/statement"
	"github.com/fintalk-io/fintalk/internal/store"
)

func strptr(s string) *string { return &s }

func testEntities() *Entities {
	return &Entities{
		Books: []store.Book{
			{ID: "b1", Name: "House", Currency: "USD"},
		},
		Categories: []store.Category{
			{ID: "c1", BookID: strptr("b1"), Name: "Bills & Utilities"},
		},
	}
}

func mustParse(t *testing.T, sql string) *statement.Statement {
	t.Helper()
	st, err := statement.Parse(statement.Classify(sql), sql)
	require.NoError(t, err)
	return st
}

func TestContainsConfirmation(t *testing.T) {
	confirm := []string{
		"I've added the expense for you!",
		"Your expense has been recorded.",
		"Successfully created the book.",
		"The category was successfully saved ✅",
		"Done!",
	}
	for _, s := range confirm {
		assert.True(t, ContainsConfirmation(s), s)
	}

	clean := []string{
		"Which book should I use?",
		"You have 3 books: House, Work, Vault.",
		"Do you want me to create the category \"Bills & Utilities\" first?",
	}
	for _, s := range clean {
		assert.False(t, ContainsConfirmation(s), s)
	}
}

func TestScrub_RemovesFakeSuccess(t *testing.T) {
	in := "I've added your expense of $40! Anything else I can help with?"
	out := Scrub(in)
	assert.NotContains(t, out, "added")
	assert.Contains(t, out, "Anything else")
	assert.False(t, ContainsConfirmation(out))
}

func TestFormatInsert_Expense(t *testing.T) {
	f := New()
	st := mustParse(t, "INSERT INTO expenses (categoryId, amount, description, date) VALUES ('c1', 40.0, 'electricity bill', '2026-08-25')")
	got := f.FormatInsert(st, testEntities())
	assert.Equal(t, `Added expense: $40.00 for "electricity bill" in category "Bills & Utilities" on Aug 25, 2026.`, got)
}

func TestFormatInsert_BookAndCategory(t *testing.T) {
	f := New()
	ents := testEntities()

	book := mustParse(t, "INSERT INTO books (name, currency) VALUES ('Vault', 'usd')")
	assert.Equal(t, `Created book "Vault" (USD).`, f.FormatInsert(book, ents))

	cat := mustParse(t, "INSERT INTO categories (bookId, name) VALUES ('b1', 'Garden')")
	assert.Equal(t, `Created category "Garden" in book "House".`, f.FormatInsert(cat, ents))
}

func TestFormatUpdate(t *testing.T) {
	f := New()
	st := mustParse(t, "UPDATE expenses SET amount = 20.0 WHERE id = 'e1'")
	assert.Equal(t, "Updated 1 expense: amount → 20.00.", f.FormatUpdate(st, 1))
	assert.Equal(t, "No matching expenses to update.", f.FormatUpdate(st, 0))
}

func TestFormatRows_Shapes(t *testing.T) {
	f := New()
	ents := testEntities()

	expenses := []map[string]any{
		{"amount": 40.0, "description": "electricity bill", "categoryId": "c1", "date": "2026-08-25"},
	}
	got := f.FormatRows(expenses, ents, "USD")
	assert.Contains(t, got, "$40.00")
	assert.Contains(t, got, "Bills & Utilities")
	assert.Contains(t, got, "Aug 25, 2026")
	assert.NotContains(t, got, "c1", "raw foreign keys never reach the user")

	books := []map[string]any{{"name": "House", "currency": "USD"}}
	assert.Equal(t, `Book "House" (USD)`, f.FormatRows(books, ents, ""))

	assert.Equal(t, "No matching records.", f.FormatRows(nil, ents, "USD"))
}

func TestFormatRows_Aggregate(t *testing.T) {
	f := New()
	rows := []map[string]any{{"SUM(amount)": 123.456}}
	assert.Equal(t, "Total amount: $123.46", f.FormatRows(rows, testEntities(), "USD"))

	counts := []map[string]any{{"COUNT(id)": int64(7)}}
	assert.Equal(t, "Count of id: 7", f.FormatRows(counts, testEntities(), "USD"))
}

func TestSanitize_StripsMarkup(t *testing.T) {
	f := New()
	got := f.Sanitize(`Which book? <script>alert(1)</script><b>House</b> & friends`)
	assert.NotContains(t, got, "<script>")
	assert.NotContains(t, got, "<b>")
	assert.Contains(t, got, "House")
	assert.Contains(t, got, "& friends")
}
