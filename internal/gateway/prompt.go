package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/fintalk-io/fintalk/internal/llm"
	"github.com/fintalk-io/fintalk/internal/store"
)

// systemPreamble is the fixed part of the system prompt. The model is told
// to put every statement in a fenced sql block; anything outside a fence is
// treated as prose and never executed.
const systemPreamble = `You translate a user's expense-tracking request into SQL for this SQLite schema:

books(id, userId, name, description, currency, isArchived)
categories(id, bookId, name, description, icon, color, isDisabled)
expenses(id, categoryId, amount, date, description, paymentMethod, isDisabled)

Rules:
- Emit only INSERT, UPDATE, or SELECT statements, each inside a ` + "```sql" + ` fenced block.
- One row per INSERT. Combine conditions with AND only.
- Reference books and categories by the exact id values listed below. Never invent an id.
- If the category the user wants does not exist in the target book, use its plain name as the categoryId value so it can be resolved.
- Dates are 'YYYY-MM-DD'. Amounts are plain numbers without currency symbols.
- If the request is not about expenses, books, or categories, reply in plain language with no SQL.
- Never claim that anything was added, created, or updated. The application confirms results itself.`

// buildMessages assembles the role-tagged message list: system instructions
// with the user's entity catalog, the recent transcript, then the current
// utterance.
func buildMessages(books []store.Book, cats []store.Category, turns []store.Turn, message string, now time.Time) []llm.Message {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	fmt.Fprintf(&sb, "\n\nToday is %s.\n", now.Format("2006-01-02"))

	sb.WriteString("\nThe user's books:\n")
	if len(books) == 0 {
		sb.WriteString("  (none yet)\n")
	}
	for _, b := range books {
		fmt.Fprintf(&sb, "  - %q id=%s currency=%s\n", b.Name, b.ID, b.Currency)
	}

	sb.WriteString("\nThe user's categories:\n")
	if len(cats) == 0 {
		sb.WriteString("  (none yet)\n")
	}
	for _, c := range cats {
		bookID := ""
		if c.BookID != nil {
			bookID = *c.BookID
		}
		fmt.Fprintf(&sb, "  - %q id=%s bookId=%s\n", c.Name, c.ID, bookID)
	}

	messages := []llm.Message{{Role: "system", Content: sb.String()}}
	for _, t := range turns {
		role := t.Role
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}
	return append(messages, llm.Message{Role: "user", Content: message})
}
