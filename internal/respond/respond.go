// Package respond renders the gateway's user-facing replies. Every reply for
// a write is built deterministically from the executed statement, never from
// the model's own prose; confirmation-shaped phrasing in model text is
// scrubbed unconditionally before anything is shown.
package respond

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/fintalk-io/fintalk/internal/statement"
	"github.com/fintalk-io/fintalk/internal/store"
)

// DegradedReply is the canned message when the language model is down.
const DegradedReply = "I can't reach the language service right now. Please try again in a moment."

// confirmationShapes match the phrasing a model uses to claim success. Any
// sentence containing one is dropped from model prose.
var confirmationShapes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(i'?ve|i have|we'?ve|we have)\s+(successfully\s+)?(added|created|recorded|updated|saved|logged|inserted)\b`),
	regexp.MustCompile(`(?i)\bsuccessfully\s+(added|created|recorded|updated|saved|logged|inserted)\b`),
	regexp.MustCompile(`(?i)\b(has|have)\s+been\s+(added|created|recorded|updated|saved|logged|inserted)\b`),
	regexp.MustCompile(`(?i)\b(done|all set)[.!]?\s*$`),
	regexp.MustCompile(`(?i)\byour\s+\w+\s+(is|was)\s+(now\s+)?(added|created|recorded|updated|saved)\b`),
	regexp.MustCompile(`✅`),
}

var sentenceSplit = regexp.MustCompile(`(?s)[^.!?\n]*[.!?\n]?`)

// ContainsConfirmation reports whether model text claims a write succeeded.
// The gateway uses it as a self-check: such text must never survive into a
// reply.
func ContainsConfirmation(text string) bool {
	for _, re := range confirmationShapes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Scrub removes every confirmation-shaped sentence from model prose.
func Scrub(text string) string {
	var kept []string
	for _, sentence := range sentenceSplit.FindAllString(text, -1) {
		if strings.TrimSpace(sentence) == "" {
			continue
		}
		if ContainsConfirmation(sentence) {
			continue
		}
		kept = append(kept, strings.TrimSpace(sentence))
	}
	return strings.Join(kept, " ")
}

// Formatter renders replies. Model-derived prose passes through an HTML
// sanitizer before it can reach a browser-bound response.
type Formatter struct {
	policy *bluemonday.Policy
}

// New creates a formatter with a strict sanitation policy.
func New() *Formatter {
	return &Formatter{policy: bluemonday.StrictPolicy()}
}

// Sanitize strips markup from model-derived prose.
func (f *Formatter) Sanitize(s string) string {
	return html.UnescapeString(f.policy.Sanitize(s))
}

// Entities is the request-scoped lookup set for resolving foreign keys back
// to display names. It is fetched once per request, never per row.
type Entities struct {
	Books      []store.Book
	Categories []store.Category
}

// BookName resolves a book id to its name, falling back to the id.
func (e *Entities) BookName(id string) string {
	for _, b := range e.Books {
		if b.ID == id {
			return b.Name
		}
	}
	return id
}

// CategoryName resolves a category id to its name, falling back to the id.
func (e *Entities) CategoryName(id string) string {
	for _, c := range e.Categories {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}

// CurrencyForCategory walks category -> book to find the currency an amount
// in that category is denominated in.
func (e *Entities) CurrencyForCategory(categoryID string) string {
	for _, c := range e.Categories {
		if c.ID == categoryID && c.BookID != nil {
			for _, b := range e.Books {
				if b.ID == *c.BookID {
					return b.Currency
				}
			}
		}
	}
	return ""
}

// FormatInsert renders the deterministic confirmation for a successful
// insert, resolving foreign keys in the value list to display names.
func (f *Formatter) FormatInsert(st *statement.Statement, ents *Entities) string {
	switch st.Table {
	case statement.TableExpenses:
		return f.formatExpenseInsert(st, ents)
	case statement.TableBooks:
		name := insertString(st, "name")
		currency := strings.ToUpper(insertString(st, "currency"))
		return fmt.Sprintf("Created book %q (%s).", name, currency)
	case statement.TableCategories:
		name := insertString(st, "name")
		book := ents.BookName(insertString(st, "bookId"))
		return fmt.Sprintf("Created category %q in book %q.", name, book)
	default:
		return "Done."
	}
}

func (f *Formatter) formatExpenseInsert(st *statement.Statement, ents *Entities) string {
	categoryID := insertString(st, "categoryId")
	parts := []string{fmt.Sprintf("Added expense: %s", formatMoney(insertArg(st, "amount"), ents.CurrencyForCategory(categoryID)))}
	if desc := insertString(st, "description"); desc != "" {
		parts = append(parts, fmt.Sprintf("for %q", desc))
	}
	parts = append(parts, fmt.Sprintf("in category %q", ents.CategoryName(categoryID)))
	if date := insertString(st, "date"); date != "" {
		parts = append(parts, "on "+formatDate(date))
	}
	return strings.Join(parts, " ") + "."
}

// FormatUpdate renders the field-by-field confirmation for an update.
func (f *Formatter) FormatUpdate(st *statement.Statement, rows int64) string {
	if rows == 0 {
		return fmt.Sprintf("No matching %s to update.", entityNoun(st.Table, 2))
	}
	var fields []string
	for _, a := range st.Assignments {
		fields = append(fields, fmt.Sprintf("%s → %s", statement.BareColumn(a.Column), renderValue(a.Value.Arg)))
	}
	return fmt.Sprintf("Updated %d %s: %s.", rows, entityNoun(st.Table, int(rows)), strings.Join(fields, ", "))
}

// rowShape is the result-set classification used to pick a rendering.
type rowShape int

const (
	shapeGeneric rowShape = iota
	shapeExpense
	shapeBook
	shapeCategory
)

func classifyShape(row map[string]any) rowShape {
	has := func(col string) bool { _, ok := row[col]; return ok }
	switch {
	case has("amount"):
		return shapeExpense
	case has("currency"):
		return shapeBook
	case has("icon") || has("color"):
		return shapeCategory
	case has("name") && has("bookId"):
		return shapeCategory
	default:
		return shapeGeneric
	}
}

// FormatRows renders a read result. Rows are shape-classified by their
// columns; expenses render with currency symbols and calendar dates.
func (f *Formatter) FormatRows(rows []map[string]any, ents *Entities, currency string) string {
	if len(rows) == 0 {
		return "No matching records."
	}
	var lines []string
	for _, row := range rows {
		switch classifyShape(row) {
		case shapeExpense:
			lines = append(lines, f.formatExpenseRow(row, ents, currency))
		case shapeBook:
			lines = append(lines, fmt.Sprintf("Book %q (%s)", stringAt(row, "name"), stringAt(row, "currency")))
		case shapeCategory:
			lines = append(lines, fmt.Sprintf("Category %q", stringAt(row, "name")))
		default:
			lines = append(lines, formatGenericRow(row, currency))
		}
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) formatExpenseRow(row map[string]any, ents *Entities, currency string) string {
	if id := stringAt(row, "categoryId"); id != "" {
		if c := ents.CurrencyForCategory(id); c != "" {
			currency = c
		}
	}
	parts := []string{formatMoney(row["amount"], currency)}
	if desc := stringAt(row, "description"); desc != "" {
		parts = append(parts, fmt.Sprintf("– %s", desc))
	}
	if id := stringAt(row, "categoryId"); id != "" {
		parts = append(parts, fmt.Sprintf("(%s)", ents.CategoryName(id)))
	}
	if date := stringAt(row, "date"); date != "" {
		parts = append(parts, "on "+formatDate(date))
	}
	return strings.Join(parts, " ")
}

// formatGenericRow handles aggregate results like SUM(amount) and anything
// else without a recognized shape.
func formatGenericRow(row map[string]any, currency string) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		label := k
		if fn, inner, ok := splitAggregateLabel(k); ok {
			label = fmt.Sprintf("%s %s", aggregateNoun(fn), statement.BareColumn(inner))
			if strings.EqualFold(statement.BareColumn(inner), "amount") {
				parts = append(parts, fmt.Sprintf("%s: %s", label, formatMoney(row[k], currency)))
				continue
			}
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, renderValue(row[k])))
	}
	return strings.Join(parts, ", ")
}

func splitAggregateLabel(col string) (fn, inner string, ok bool) {
	open := strings.IndexByte(col, '(')
	if open <= 0 || !strings.HasSuffix(col, ")") {
		return "", "", false
	}
	return strings.ToUpper(col[:open]), col[open+1 : len(col)-1], true
}

func aggregateNoun(fn string) string {
	switch fn {
	case "SUM":
		return "Total"
	case "AVG":
		return "Average"
	case "COUNT":
		return "Count of"
	case "MIN":
		return "Lowest"
	case "MAX":
		return "Highest"
	default:
		return fn
	}
}

// currencySymbols maps ISO codes to display symbols; unknown codes render
// as the code itself.
var currencySymbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "JPY": "¥", "INR": "₹",
}

func formatMoney(v any, currency string) string {
	amount := renderNumber(v)
	currency = strings.ToUpper(currency)
	if sym, ok := currencySymbols[currency]; ok {
		return sym + amount
	}
	if currency == "" {
		return amount
	}
	return amount + " " + currency
}

// formatDate renders stored dates as calendar dates. Unparseable values pass
// through untouched.
func formatDate(s string) string {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("Jan 2, 2006")
		}
	}
	return s
}

func renderNumber(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", n)
	case int64:
		return fmt.Sprintf("%d.00", n)
	case int:
		return fmt.Sprintf("%d.00", n)
	default:
		return fmt.Sprint(v)
	}
}

func renderValue(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", n)
	case nil:
		return "—"
	default:
		return fmt.Sprint(n)
	}
}

func entityNoun(table string, n int) string {
	singular := map[string]string{
		statement.TableExpenses:   "expense",
		statement.TableBooks:      "book",
		statement.TableCategories: "category",
	}[table]
	if singular == "" {
		singular = "record"
	}
	if n == 1 {
		return singular
	}
	if singular == "category" {
		return "categories"
	}
	return singular + "s"
}

func stringAt(row map[string]any, col string) string {
	s, _ := row[col].(string)
	return s
}

func insertString(st *statement.Statement, column string) string {
	v, ok := st.InsertValue(column)
	if !ok {
		return ""
	}
	s, _ := v.Arg.(string)
	return s
}

func insertArg(st *statement.Statement, column string) any {
	v, ok := st.InsertValue(column)
	if !ok {
		return nil
	}
	return v.Arg
}
