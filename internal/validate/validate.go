// Package validate applies per-entity semantic rules to parsed statements:
// required fields, surrogate-key shapes for foreign keys, mutation
// allowlists, and duplicate-name checks. Nothing here repairs a statement;
// a rule failure rejects it.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fintalk-io/fintalk/internal/statement"
	"github.com/fintalk-io/fintalk/internal/store"
)

// ValidationError means a statement broke a semantic rule. It is fatal for
// that statement only and carries the offending field so the reply can name
// it.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateEntity means an insert would create an entity whose name already
// exists in its scope. It is a normal user-facing outcome, not a fault.
type DuplicateEntity struct {
	Entity string
	Name   string
}

func (e *DuplicateEntity) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Name)
}

// CategoryNotResolved means an expense insert referenced its category by a
// plain label instead of an identifier: the model invented a reference
// instead of resolving one. The gateway turns this into the pending-expense
// flow rather than an error.
type CategoryNotResolved struct {
	Label string
}

func (e *CategoryNotResolved) Error() string {
	return fmt.Sprintf("category %q is a label, not an identifier", e.Label)
}

// Mutable columns per entity. Everything else is off limits to UPDATE.
var updateAllowlist = map[string]map[string]bool{
	statement.TableBooks: {
		"name": true, "description": true, "currency": true, "isArchived": true,
	},
	statement.TableCategories: {
		"name": true, "description": true, "icon": true, "color": true, "isDisabled": true,
	},
	statement.TableExpenses: {
		"amount": true, "date": true, "description": true, "paymentMethod": true, "isDisabled": true,
	},
}

// Columns no generated mutation may ever assign: keys, foreign keys, the
// owner column, and timestamps.
var sensitiveColumns = map[string]bool{
	"id": true, "userId": true, "bookId": true, "categoryId": true,
	"createdAt": true, "updatedAt": true,
}

// Catalog is the slice of the store the validator needs: duplicate checks
// and user-scoped resolution of foreign keys the model supplied.
type Catalog interface {
	BooksByUser(ctx context.Context, userID string) ([]store.Book, error)
	CategoriesByBook(ctx context.Context, bookID string) ([]store.Category, error)
	CategoriesByUser(ctx context.Context, userID string) ([]store.Category, error)
}

// Validator checks parsed statements against the per-entity rules.
type Validator struct {
	catalog Catalog
}

// New creates a validator over the given catalog.
func New(catalog Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate applies the rules for the statement's class and table. SELECT
// statements carry no semantic rules beyond what the parser enforced.
func (v *Validator) Validate(ctx context.Context, st *statement.Statement, userID string) error {
	switch st.Kind {
	case statement.KindInsert:
		return v.validateInsert(ctx, st, userID)
	case statement.KindUpdate:
		return validateUpdate(st)
	case statement.KindSelect:
		return nil
	default:
		return &ValidationError{Field: "statement", Reason: "unsupported statement class"}
	}
}

func (v *Validator) validateInsert(ctx context.Context, st *statement.Statement, userID string) error {
	switch st.Table {
	case statement.TableExpenses:
		return v.validateExpenseInsert(ctx, st, userID)
	case statement.TableCategories:
		return v.validateCategoryInsert(ctx, st, userID)
	case statement.TableBooks:
		return v.validateBookInsert(ctx, st, userID)
	default:
		return &ValidationError{Field: "table", Value: st.Table, Reason: "not an insertable entity"}
	}
}

func (v *Validator) validateExpenseInsert(ctx context.Context, st *statement.Statement, userID string) error {
	amount, ok := st.InsertValue("amount")
	if !ok {
		return &ValidationError{Field: "amount", Reason: "required for an expense"}
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	ref, ok := st.InsertValue("categoryId")
	if !ok {
		return &ValidationError{Field: "categoryId", Reason: "required for an expense"}
	}
	label, ok := ref.Arg.(string)
	if !ok {
		return &ValidationError{Field: "categoryId", Reason: "must be an identifier string"}
	}
	if !isSurrogateKey(label) {
		return &CategoryNotResolved{Label: label}
	}
	// A well-formed identifier still has to resolve inside the user's own
	// catalog; one pointing anywhere else is as invented as a label.
	owned, err := v.catalog.CategoriesByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolving category: %w", err)
	}
	found := false
	for _, c := range owned {
		if strings.EqualFold(c.ID, label) {
			found = true
			break
		}
	}
	if !found {
		return &CategoryNotResolved{Label: label}
	}

	if date, ok := st.InsertValue("date"); ok {
		if s, isStr := date.Arg.(string); !isStr || s == "" {
			return &ValidationError{Field: "date", Reason: "must be a calendar date string"}
		}
	}
	return nil
}

func (v *Validator) validateCategoryInsert(ctx context.Context, st *statement.Statement, userID string) error {
	name, err := requiredString(st, "name")
	if err != nil {
		return err
	}
	bookRef, ok := st.InsertValue("bookId")
	if !ok {
		return &ValidationError{Field: "bookId", Reason: "required for a category"}
	}
	bookID, isStr := bookRef.Arg.(string)
	if !isStr || !isSurrogateKey(bookID) {
		return &ValidationError{Field: "bookId", Value: fmt.Sprint(bookRef.Arg), Reason: "must be a book identifier, not a name"}
	}

	books, err := v.catalog.BooksByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolving book: %w", err)
	}
	ownedBook := false
	for _, b := range books {
		if strings.EqualFold(b.ID, bookID) {
			ownedBook = true
			break
		}
	}
	if !ownedBook {
		return &ValidationError{Field: "bookId", Value: bookID, Reason: "not one of your books"}
	}

	existing, err := v.catalog.CategoriesByBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("checking category duplicates: %w", err)
	}
	for _, c := range existing {
		if strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
			return &DuplicateEntity{Entity: "category", Name: c.Name}
		}
	}
	return nil
}

func (v *Validator) validateBookInsert(ctx context.Context, st *statement.Statement, userID string) error {
	name, err := requiredString(st, "name")
	if err != nil {
		return err
	}
	currency, err := requiredString(st, "currency")
	if err != nil {
		return err
	}
	if !isCurrencyCode(currency) {
		return &ValidationError{Field: "currency", Value: currency, Reason: "must be a three-letter code"}
	}

	existing, err := v.catalog.BooksByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking book duplicates: %w", err)
	}
	for _, b := range existing {
		if strings.EqualFold(strings.TrimSpace(b.Name), strings.TrimSpace(name)) {
			return &DuplicateEntity{Entity: "book", Name: b.Name}
		}
	}
	return nil
}

func validateUpdate(st *statement.Statement) error {
	allow, ok := updateAllowlist[st.Table]
	if !ok {
		return &ValidationError{Field: "table", Value: st.Table, Reason: "not an updatable entity"}
	}
	for _, a := range st.Assignments {
		col := statement.BareColumn(a.Column)
		if sensitiveColumns[col] {
			return &ValidationError{Field: col, Reason: "immutable after creation"}
		}
		if !allow[col] {
			return &ValidationError{Field: col, Reason: "not an updatable field for " + st.Table}
		}
		if col == "amount" {
			if err := checkAmount(a.Value); err != nil {
				return err
			}
		}
	}
	if len(st.Assignments) == 0 {
		return &ValidationError{Field: "set", Reason: "no assignments"}
	}
	return nil
}

func requiredString(st *statement.Statement, column string) (string, error) {
	v, ok := st.InsertValue(column)
	if !ok {
		return "", &ValidationError{Field: column, Reason: "required"}
	}
	s, isStr := v.Arg.(string)
	if !isStr || strings.TrimSpace(s) == "" {
		return "", &ValidationError{Field: column, Value: fmt.Sprint(v.Arg), Reason: "must be a non-empty string"}
	}
	return s, nil
}

func checkAmount(v statement.Value) error {
	switch n := v.Arg.(type) {
	case int64:
		if n < 0 {
			return &ValidationError{Field: "amount", Value: fmt.Sprint(n), Reason: "must not be negative"}
		}
	case float64:
		if n < 0 {
			return &ValidationError{Field: "amount", Value: fmt.Sprint(n), Reason: "must not be negative"}
		}
	default:
		return &ValidationError{Field: "amount", Value: fmt.Sprint(v.Arg), Reason: "must be a number"}
	}
	return nil
}

// isSurrogateKey reports whether the value has the shape of a generated
// identifier rather than a display name.
func isSurrogateKey(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func isCurrencyCode(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
