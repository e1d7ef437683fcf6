package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintalk-io/fintalk/internal/store"
)

func TestBuildMessages(t *testing.T) {
	bookID := "b1"
	books := []store.Book{{ID: "b1", Name: "House", Currency: "USD"}}
	cats := []store.Category{{ID: "c1", BookID: &bookID, Name: "Food"}}
	turns := []store.Turn{
		{Role: "user", Content: "show my books"},
		{Role: "assistant", Content: "Your books are: \"House\" (USD)."},
		{Role: "system", Content: "should be skipped"},
	}
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	msgs := buildMessages(books, cats, turns, "add 5 for coffee", now)
	require.Len(t, msgs, 4, "system + two history turns + current message")

	system := msgs[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "2026-08-25")
	assert.Contains(t, system.Content, `"House" id=b1 currency=USD`)
	assert.Contains(t, system.Content, `"Food" id=c1 bookId=b1`)
	assert.Contains(t, system.Content, "```sql")

	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "add 5 for coffee", msgs[3].Content)
}

func TestUnknownBookMention(t *testing.T) {
	books := []store.Book{{Name: "House"}, {Name: "Work"}}

	name, ok := unknownBookMention("show my expenses from the Vault book", books)
	assert.True(t, ok)
	assert.Equal(t, "Vault", name)

	_, ok = unknownBookMention("show my expenses from the House book", books)
	assert.False(t, ok)

	// Creation requests are exempt.
	_, ok = unknownBookMention("create a new book called Vault", books)
	assert.False(t, ok)

	// No book mentioned at all.
	_, ok = unknownBookMention("add 40 for electricity", books)
	assert.False(t, ok)
}
