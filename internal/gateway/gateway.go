// Package gateway is the enforcement point between the language model's
// free-text replies and the expense store. Every statement the model emits
// passes the full pipeline here; nothing the model says is trusted.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fintalk-io/fintalk/internal/config"
	"github.com/fintalk-io/fintalk/internal/convo"
	"github.com/fintalk-io/fintalk/internal/llm"
	"github.com/fintalk-io/fintalk/internal/money"
	"github.com/fintalk-io/fintalk/internal/respond"
	"github.com/fintalk-io/fintalk/internal/scope"
	"github.com/fintalk-io/fintalk/internal/statement"
	"github.com/fintalk-io/fintalk/internal/store"
	"github.com/fintalk-io/fintalk/internal/validate"
)

// ErrRateLimited is returned before any work happens when the user or the
// process is over its request budget.
var ErrRateLimited = errors.New("rate limited")

// historyWindow is how many prior turns the model sees.
const historyWindow = 10

const blockedReply = "I can't run that request."

// Completer produces a model reply for a message list.
type Completer interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// RateSource resolves an exchange-rate multiplier between two currencies.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// Params collects the gateway's dependencies.
type Params struct {
	Store     *store.Store
	Completer Completer
	Rates     RateSource
	Config    *config.Config
}

// Gateway runs the chat pipeline for one process.
type Gateway struct {
	store     *store.Store
	completer Completer
	rates     RateSource
	cfg       *config.Config
	validator *validate.Validator
	detector  *money.Detector
	formatter *respond.Formatter
	tracker   *convo.Tracker
	limiter   *RateLimiter
}

// New creates a gateway.
func New(p Params) (*Gateway, error) {
	detector, err := money.NewDetector()
	if err != nil {
		return nil, fmt.Errorf("creating currency detector: %w", err)
	}
	return &Gateway{
		store:     p.Store,
		completer: p.Completer,
		rates:     p.Rates,
		cfg:       p.Config,
		validator: validate.New(p.Store),
		detector:  detector,
		formatter: respond.New(),
		tracker:   convo.NewTracker(),
		limiter:   NewRateLimiter(p.Config.GlobalRPM, p.Config.PerUserRPM),
	}, nil
}

// Reply is the chat endpoint's response body.
type Reply struct {
	Response             string `json:"response"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
}

// Handle runs one user message through the pipeline and returns the
// deterministic reply. For writes the response text is always built here,
// never taken from the model.
func (g *Gateway) Handle(ctx context.Context, userID, message string) (*Reply, error) {
	// Step 1: rate limit, before any work.
	if !g.limiter.Allow(userID) {
		log.Warn().Str("user_id", userID).Msg("chat_rate_limited")
		return nil, ErrRateLimited
	}

	// Step 2: request-scoped entity lists and conversation context.
	ents, err := g.entities(ctx, userID)
	if err != nil {
		return nil, err
	}
	// The context lock is held for the whole turn: two requests from the
	// same user never interleave over the pending-expense state.
	cctx := g.tracker.Get(userID)
	cctx.Lock()
	reply, err := g.handle(ctx, userID, message, ents, cctx)
	cctx.Unlock()
	if err != nil {
		return nil, err
	}

	// Step 8: transcript. Failures here don't fail the request.
	if err := g.store.AppendTurn(ctx, userID, "user", message); err != nil {
		log.Warn().Err(err).Msg("transcript_append_failed")
	}
	if err := g.store.AppendTurn(ctx, userID, "assistant", reply.Response); err != nil {
		log.Warn().Err(err).Msg("transcript_append_failed")
	}
	return reply, nil
}

func (g *Gateway) handle(ctx context.Context, userID, message string, ents *respond.Entities, cctx *convo.Context) (*Reply, error) {
	// Step 3: pending-expense follow-ups bypass the model entirely.
	if cctx.Pending != nil {
		if convo.IsProceed(message) {
			if cctx.Confirmable() {
				return g.insertPending(ctx, userID, cctx)
			}
			return g.createPendingCategory(ctx, cctx)
		}
		// The user moved on; the pending expense is abandoned.
		cctx.ClearPending(true)
	}

	// Step 4: a request naming a book the user doesn't have is answered
	// with the actual book list, not sent to the model.
	if name, ok := unknownBookMention(message, ents.Books); ok {
		return &Reply{Response: fmt.Sprintf("You don't have a book named %q. %s", name, bookListText(ents.Books))}, nil
	}

	// Step 5: model call, with fallback handled by the resolver.
	turns, err := g.store.RecentTurns(ctx, userID, historyWindow)
	if err != nil {
		return nil, err
	}
	resp, err := g.completer.Generate(ctx, &llm.Request{
		Messages:    buildMessages(ents.Books, ents.Categories, turns, message, time.Now()),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		var uu *llm.UpstreamUnavailable
		if errors.As(err, &uu) {
			log.Warn().Err(uu.Primary).Str("user_id", userID).Msg("model_unavailable")
			return &Reply{Response: respond.DegradedReply}, nil
		}
		return nil, err
	}

	// Step 6: extract candidate statements from the reply.
	raws := statement.Extract(resp.Content)
	if len(raws) == 0 {
		return &Reply{Response: g.proseReply(resp.Content)}, nil
	}

	// Step 7a: screen, classify, and parse everything before executing
	// anything, so a security violation leaves no partial effect.
	type item struct {
		st   *statement.Statement
		text string
	}
	items := make([]item, 0, len(raws))
	for _, raw := range raws {
		if err := statement.Screen(raw); err != nil {
			var sv *statement.SecurityViolation
			if errors.As(err, &sv) {
				log.Warn().
					Str("user_id", userID).
					Str("reason", sv.Reason).
					Str("fragment", sv.Fragment).
					Msg("statement_blocked")
			}
			return &Reply{Response: blockedReply}, nil
		}
		kind := statement.Classify(raw)
		if kind == statement.KindUnsupported {
			items = append(items, item{text: "I can only add, update, or look up records."})
			continue
		}
		st, err := statement.Parse(kind, raw)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("statement_parse_failed")
			items = append(items, item{text: "I couldn't safely interpret part of that request, so I skipped it."})
			continue
		}
		items = append(items, item{st: st})
	}

	// Step 7b: run each parsed statement to completion. There is no
	// cross-statement transaction; a later failure leaves earlier results
	// in place and the reply reports per-statement outcomes.
	var lines []string
	requiresConfirmation := false
	for _, it := range items {
		if it.st == nil {
			lines = append(lines, it.text)
			continue
		}
		text, ask, _, err := g.execute(ctx, userID, message, it.st, ents, cctx)
		if err != nil {
			return nil, err
		}
		if ask {
			requiresConfirmation = true
		}
		lines = append(lines, text)
	}
	return &Reply{Response: strings.Join(lines, "\n"), RequiresConfirmation: requiresConfirmation}, nil
}

// execute runs one parsed statement through validation, normalization,
// scoping, and the store, returning the user-facing outcome line. The third
// result reports whether the statement actually reached the store and
// succeeded; callers holding deferred state retry on false.
func (g *Gateway) execute(ctx context.Context, userID, utterance string, st *statement.Statement, ents *respond.Entities, cctx *convo.Context) (string, bool, bool, error) {
	// 1. Semantic validation.
	if err := g.validator.Validate(ctx, st, userID); err != nil {
		var cnr *validate.CategoryNotResolved
		if errors.As(err, &cnr) && st.Kind == statement.KindInsert && st.Table == statement.TableExpenses {
			return g.parkPending(ctx, userID, utterance, st, cnr.Label, ents, cctx)
		}
		var de *validate.DuplicateEntity
		if errors.As(err, &de) {
			return fmt.Sprintf("You already have a %s named %q.", de.Entity, de.Name), false, false, nil
		}
		var ve *validate.ValidationError
		if errors.As(err, &ve) {
			log.Info().Str("user_id", userID).Str("field", ve.Field).Str("reason", ve.Reason).Msg("statement_rejected")
			return "I couldn't do that: " + ve.Error() + ".", false, false, nil
		}
		return "", false, false, err
	}

	// 2. Currency normalization, expense inserts only. Advisory on failure.
	advisory := ""
	if st.Kind == statement.KindInsert && st.Table == statement.TableExpenses {
		advisory = g.normalizeCurrency(ctx, st, utterance, ents)
	}

	// 3. Server-side identity: fresh surrogate keys, and the owner column
	// on book inserts regardless of what the model supplied.
	if st.Kind == statement.KindInsert {
		ensureInsertIdentity(st, userID)
	}

	// 4. Tenant-isolation rewrite for reads and updates.
	if st.Kind != statement.KindInsert {
		if err := scope.Rewrite(st, userID); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("scope_rewrite_failed")
			return blockedReply, false, false, nil
		}
	}

	// 5. Render to parameterized SQL and execute.
	query, args, err := statement.Render(st)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("statement_render_failed")
		return blockedReply, false, false, nil
	}

	switch st.Kind {
	case statement.KindSelect:
		rows, err := g.store.QueryStatement(ctx, query, args)
		if err != nil {
			return execFailureText(err), false, false, nil
		}
		return g.formatter.FormatRows(rows, ents, defaultCurrency(ents.Books)), false, true, nil

	case statement.KindInsert:
		if _, err := g.store.ExecStatement(ctx, query, args); err != nil {
			return execFailureText(err), false, false, nil
		}
		if st.Table == statement.TableBooks {
			if err := g.store.CopyTemplateCategories(ctx, insertStr(st, "id")); err != nil {
				log.Warn().Err(err).Msg("template_copy_failed")
			}
		}
		g.noteCreated(st, ents, cctx)
		text := g.formatter.FormatInsert(st, ents)
		if advisory != "" {
			text += " " + advisory
		}
		return text, false, true, nil

	case statement.KindUpdate:
		n, err := g.store.ExecStatement(ctx, query, args)
		if err != nil {
			return execFailureText(err), false, false, nil
		}
		return g.formatter.FormatUpdate(st, n), false, true, nil
	}
	return blockedReply, false, false, nil
}

// parkPending handles an expense insert whose category reference is a plain
// label. When the label resolves in the target book the statement proceeds;
// otherwise it is parked and the user is asked about creating the category.
// A category from a different book is never substituted.
func (g *Gateway) parkPending(ctx context.Context, userID, utterance string, st *statement.Statement, label string, ents *respond.Entities, cctx *convo.Context) (string, bool, bool, error) {
	book := resolveTargetBook(utterance, ents.Books, cctx)
	if book == nil {
		return "I couldn't tell which book that expense belongs to. " + bookListText(ents.Books), false, false, nil
	}

	existing, err := g.store.CategoryByName(ctx, book.ID, label)
	if err == nil {
		st.SetInsertValue("categoryId", statement.Value{Arg: existing.ID})
		return g.execute(ctx, userID, utterance, st, ents, cctx)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, false, err
	}

	cctx.SetPending(&convo.PendingExpense{
		Statement:     st,
		Utterance:     utterance,
		BookID:        book.ID,
		BookName:      book.Name,
		CategoryLabel: label,
	})
	return fmt.Sprintf("There's no category %q in book %q yet. Do you want me to create it?", label, book.Name), true, false, nil
}

// createPendingCategory acts on a confirmation while the pending expense's
// category is still missing: it creates exactly the category, nothing else.
func (g *Gateway) createPendingCategory(ctx context.Context, cctx *convo.Context) (*Reply, error) {
	p := cctx.Pending
	cat, err := g.store.CategoryByName(ctx, p.BookID, p.CategoryLabel)
	created := false
	if errors.Is(err, store.ErrNotFound) {
		cat, err = g.store.CreateCategory(ctx, p.BookID, p.CategoryLabel)
		created = true
	}
	if err != nil {
		return nil, err
	}
	cctx.NoteCategory(cat.ID, cat.Name)

	verb := "Created"
	if !created {
		verb = "Found"
	}
	return &Reply{
		Response:             fmt.Sprintf("%s category %q in book %q. Say \"add it\" and I'll record the expense.", verb, cat.Name, p.BookName),
		RequiresConfirmation: true,
	}, nil
}

// insertPending re-enters the parked expense insert now that its category
// exists, using the pending snapshot instead of re-deriving intent.
func (g *Gateway) insertPending(ctx context.Context, userID string, cctx *convo.Context) (*Reply, error) {
	p := cctx.Pending
	ents, err := g.entities(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Statement.SetInsertValue("categoryId", statement.Value{Arg: p.CategoryID})
	text, ask, executed, err := g.execute(ctx, userID, p.Utterance, p.Statement, ents, cctx)
	if err != nil {
		return nil, err
	}
	// The slot clears only on a successful insert; a failed attempt keeps
	// the pending expense so another proceed phrase can retry it.
	if executed {
		cctx.ClearPending(false)
	}
	return &Reply{Response: text, RequiresConfirmation: ask}, nil
}

// normalizeCurrency rewrites the statement's amount when the utterance
// mentions a currency different from the target book's. Failure to convert
// is advisory: the original amount stands.
func (g *Gateway) normalizeCurrency(ctx context.Context, st *statement.Statement, utterance string, ents *respond.Entities) string {
	mention, ok := g.detector.Detect(utterance)
	if !ok {
		return ""
	}
	target := ents.CurrencyForCategory(insertStr(st, "categoryId"))
	if target == "" || strings.EqualFold(mention.Currency, target) {
		return ""
	}
	rate, err := g.rates.Rate(ctx, mention.Currency, target)
	if err != nil {
		log.Warn().Err(err).Str("from", mention.Currency).Str("to", target).Msg("rate_lookup_failed")
		return fmt.Sprintf("(I couldn't convert %s to %s, so I recorded the original amount.)", mention.Currency, target)
	}
	converted, _ := money.Convert(mention.Amount, rate).Float64()
	st.SetInsertValue("amount", statement.Value{Arg: converted})
	return ""
}

// proseReply sanitizes a no-statement model reply. Confirmation-shaped
// phrasing surviving the scrub is a gateway bug, caught here.
func (g *Gateway) proseReply(raw string) string {
	prose := strings.TrimSpace(g.formatter.Sanitize(respond.Scrub(statement.StripCode(raw))))
	if respond.ContainsConfirmation(prose) {
		log.Error().Msg("confirmation_scrub_failed")
		prose = ""
	}
	if prose == "" {
		return "I didn't make any changes. Could you rephrase that?"
	}
	return prose
}

func (g *Gateway) entities(ctx context.Context, userID string) (*respond.Entities, error) {
	books, err := g.store.BooksByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cats, err := g.store.CategoriesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &respond.Entities{Books: books, Categories: cats}, nil
}

// noteCreated records freshly created entities in the conversation context
// and the request-scoped lists so later statements in the same reply can
// resolve them.
func (g *Gateway) noteCreated(st *statement.Statement, ents *respond.Entities, cctx *convo.Context) {
	switch st.Table {
	case statement.TableBooks:
		id, name := insertStr(st, "id"), insertStr(st, "name")
		cctx.NoteBook(id, name)
		ents.Books = append(ents.Books, store.Book{
			ID: id, Name: name, Currency: strings.ToUpper(insertStr(st, "currency")),
		})
	case statement.TableCategories:
		id, name := insertStr(st, "id"), insertStr(st, "name")
		bookID := insertStr(st, "bookId")
		cctx.NoteCategory(id, name)
		ents.Categories = append(ents.Categories, store.Category{ID: id, Name: name, BookID: &bookID})
	}
}

// ensureInsertIdentity gives inserts a fresh surrogate key when the model
// omitted one and forces the owner column on book inserts. The model's
// opinion about either is discarded.
func ensureInsertIdentity(st *statement.Statement, userID string) {
	if _, ok := st.InsertValue("id"); !ok {
		st.Columns = append(st.Columns, "id")
		st.Values = append(st.Values, statement.Value{Arg: uuid.NewString()})
	}
	if st.Table == statement.TableBooks {
		if !st.SetInsertValue("userId", statement.Value{Arg: userID}) {
			st.Columns = append(st.Columns, "userId")
			st.Values = append(st.Values, statement.Value{Arg: userID})
		}
		if cur, ok := st.InsertValue("currency"); ok {
			if s, isStr := cur.Arg.(string); isStr {
				st.SetInsertValue("currency", statement.Value{Arg: strings.ToUpper(s)})
			}
		}
	}
}

var bookMentionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:from|in|into|for|of)\s+(?:the\s+|my\s+)?"?([A-Za-z][A-Za-z0-9 _-]{0,40}?)"?\s+book\b`),
	regexp.MustCompile(`(?i)\bbook\s+(?:named\s+|called\s+)?"([^"]{1,40})"`),
	regexp.MustCompile(`(?i)\bbook\s+([A-Z][A-Za-z0-9_-]{0,40})\b`),
}

var bookStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "this": true, "that": true,
	"new": true, "same": true, "each": true, "every": true, "another": true,
	"first": true, "which": true, "what": true,
}

var creationIntent = regexp.MustCompile(`(?i)\b(create|new|add|make|open|start)\b[^.?!]*\bbook\b`)

// unknownBookMention reports a book name the utterance references that the
// user doesn't have. Creation requests are exempt: a new name there is the
// point, not a mistake.
func unknownBookMention(message string, books []store.Book) (string, bool) {
	if creationIntent.MatchString(message) {
		return "", false
	}
	for _, re := range bookMentionPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" || bookStopWords[strings.ToLower(name)] {
			continue
		}
		for _, b := range books {
			if strings.EqualFold(b.Name, name) {
				return "", false
			}
		}
		return name, true
	}
	return "", false
}

// resolveTargetBook picks the book a blocked expense belongs to: a name
// mentioned in the utterance, then the conversation's last book, then the
// only book the user has.
func resolveTargetBook(utterance string, books []store.Book, cctx *convo.Context) *store.Book {
	for i := range books {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(books[i].Name) + `\b`)
		if re.MatchString(utterance) {
			return &books[i]
		}
	}
	if cctx.LastBookID != "" {
		for i := range books {
			if books[i].ID == cctx.LastBookID {
				return &books[i]
			}
		}
	}
	if len(books) == 1 {
		return &books[0]
	}
	return nil
}

func bookListText(books []store.Book) string {
	if len(books) == 0 {
		return "You don't have any books yet."
	}
	names := make([]string, len(books))
	for i, b := range books {
		names[i] = fmt.Sprintf("%q (%s)", b.Name, b.Currency)
	}
	return "Your books are: " + strings.Join(names, ", ") + "."
}

// defaultCurrency is the display currency for result sets that don't carry
// one themselves: meaningful only when all the user's books agree.
func defaultCurrency(books []store.Book) string {
	if len(books) == 0 {
		return ""
	}
	cur := books[0].Currency
	for _, b := range books[1:] {
		if !strings.EqualFold(b.Currency, cur) {
			return ""
		}
	}
	return cur
}

func execFailureText(err error) string {
	var ef *store.ExecutionFailure
	if errors.As(err, &ef) {
		return "That didn't work: " + ef.Err.Error() + "."
	}
	return "That didn't work."
}

func insertStr(st *statement.Statement, column string) string {
	v, ok := st.InsertValue(column)
	if !ok {
		return ""
	}
	s, _ := v.Arg.(string)
	return s
}
