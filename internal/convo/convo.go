// Package convo carries conversation state across turns: the most recently
// mentioned book and category, and at most one pending expense whose insert
// was deferred because its category does not exist yet. The state is an
// explicit bounded object updated at fixed transition points, never inferred
// from the transcript.
package convo

import (
	"strings"
	"sync"

	"github.com/fintalk-io/fintalk/internal/statement"
)

// State tracks where an expense-creation attempt stands.
type State int

const (
	// StateReady means no expense creation is blocked.
	StateReady State = iota
	// StateNeedsCategory means an insert was blocked on a missing category.
	StateNeedsCategory
	// StateAwaitingConfirmation means the category-creation question was asked.
	StateAwaitingConfirmation
	// StateAbandoned means the user moved on before confirming.
	StateAbandoned
)

// PendingExpense is an expense whose fields are fully known but whose insert
// is deferred until its category exists. The statement snapshot is re-entered
// into the pipeline on confirmation instead of re-deriving intent.
type PendingExpense struct {
	Statement     *statement.Statement
	Utterance     string
	BookID        string
	BookName      string
	CategoryLabel string
	CategoryID    string // filled in once the category is created
}

// Context is one user's conversation state. Fields are read and written
// only while the context's lock is held; a chat turn holds it end to end so
// concurrent requests from the same user see sequential state.
type Context struct {
	mu sync.Mutex

	LastBookID       string
	LastBookName     string
	LastCategoryID   string
	LastCategoryName string

	State   State
	Pending *PendingExpense
}

// Lock takes the context's lock.
func (c *Context) Lock() { c.mu.Lock() }

// Unlock releases the context's lock.
func (c *Context) Unlock() { c.mu.Unlock() }

// NoteBook records the most recently created or mentioned book.
func (c *Context) NoteBook(id, name string) {
	c.LastBookID = id
	c.LastBookName = name
}

// NoteCategory records the most recently created or mentioned category. When
// a pending expense was waiting on a category with this label, the pending
// record picks up the identifier and becomes insertable.
func (c *Context) NoteCategory(id, name string) {
	c.LastCategoryID = id
	c.LastCategoryName = name
	if c.Pending != nil && strings.EqualFold(strings.TrimSpace(c.Pending.CategoryLabel), strings.TrimSpace(name)) {
		c.Pending.CategoryID = id
		c.State = StateReady
	}
}

// SetPending parks a blocked expense insert and moves to
// AwaitingConfirmation; the caller asks the category-creation question in
// the same turn. Any previously pending expense is discarded.
func (c *Context) SetPending(p *PendingExpense) {
	c.Pending = p
	c.State = StateAwaitingConfirmation
}

// ClearPending drops the pending expense, either because it was inserted or
// because the user started an unrelated request.
func (c *Context) ClearPending(abandoned bool) {
	c.Pending = nil
	if abandoned {
		c.State = StateAbandoned
	} else {
		c.State = StateReady
	}
}

// Confirmable reports whether a proceed phrase can act on the pending
// expense: the category must already have been created.
func (c *Context) Confirmable() bool {
	return c.Pending != nil && c.Pending.CategoryID != ""
}

// Tracker holds per-user contexts behind one lock. Contexts live for the
// process lifetime; durable history is the store's business.
type Tracker struct {
	mu     sync.Mutex
	byUser map[string]*Context
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byUser: make(map[string]*Context)}
}

// Get returns the user's context, creating it on first use.
func (t *Tracker) Get(userID string) *Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byUser[userID]
	if !ok {
		c = &Context{State: StateReady}
		t.byUser[userID] = c
	}
	return c
}

// proceedPhrases are the confirmations a short follow-up is matched against
// after normalization.
var proceedPhrases = map[string]bool{
	"yes":            true,
	"yes please":     true,
	"yep":            true,
	"yeah":           true,
	"ok":             true,
	"okay":           true,
	"sure":           true,
	"go ahead":       true,
	"do it":          true,
	"add it":         true,
	"add it now":     true,
	"proceed":        true,
	"confirm":        true,
	"create it":      true,
	"yes create it":  true,
	"sounds good":    true,
	"please proceed": true,
}

// proceedKeywords loosen the match for short utterances that embed a
// confirmation ("ok add it then").
var proceedKeywords = []string{"add it", "go ahead", "do it", "create it", "proceed", "confirm"}

// IsProceed reports whether a short utterance reads as "go ahead with the
// pending expense". Long utterances never match: they are new requests.
func IsProceed(utterance string) bool {
	norm := normalize(utterance)
	if norm == "" {
		return false
	}
	if proceedPhrases[norm] {
		return true
	}
	if len(strings.Fields(norm)) > 5 {
		return false
	}
	for _, kw := range proceedKeywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
