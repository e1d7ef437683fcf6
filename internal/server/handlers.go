package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/fintalk-io/fintalk/internal/gateway"
	"github.com/fintalk-io/fintalk/internal/requestctx"
	"github.com/fintalk-io/fintalk/internal/store"
)

// Request schemas. Validation happens before any handler logic so malformed
// bodies never reach the pipeline.
const chatSchemaJSON = `{
	"type": "object",
	"required": ["message"],
	"properties": {
		"message": {"type": "string", "minLength": 1, "maxLength": 2000},
		"conversationHistory": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["role", "content"],
				"properties": {
					"role": {"type": "string", "enum": ["user", "assistant"]},
					"content": {"type": "string"}
				}
			}
		}
	}
}`

const credentialsSchemaJSON = `{
	"type": "object",
	"required": ["email", "password"],
	"properties": {
		"email": {"type": "string", "minLength": 3, "maxLength": 254, "pattern": "^[^@\\s]+@[^@\\s]+$"},
		"password": {"type": "string", "minLength": 8, "maxLength": 128}
	}
}`

func mustCompileSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("compiling request schema: %v", err))
	}
	return s
}

var (
	chatSchema        = mustCompileSchema(chatSchemaJSON)
	credentialsSchema = mustCompileSchema(credentialsSchemaJSON)
)

// readValidated reads the body and checks it against the schema, returning
// the raw bytes for decoding.
func readValidated(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Failed to read request body")
		return nil, false
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Request body is not valid JSON")
		return nil, false
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		writeError(w, http.StatusBadRequest, "bad_request", strings.Join(details, "; "))
		return nil, false
	}
	return body, true
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, ok := readValidated(w, r, credentialsSchema)
	if !ok {
		return
	}
	var req credentialsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Malformed request")
		return
	}

	u, err := s.store.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			writeError(w, http.StatusConflict, "conflict", "An account with that email already exists")
			return
		}
		log.Error().Err(err).Msg("register_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Could not create account")
		return
	}
	token, err := IssueToken(s.cfg.JWTSecret, u.ID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Could not issue token")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, UserID: u.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, ok := readValidated(w, r, credentialsSchema)
	if !ok {
		return
	}
	var req credentialsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Malformed request")
		return
	}

	u, err := s.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid email or password")
			return
		}
		log.Error().Err(err).Msg("login_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Could not log in")
		return
	}
	token, err := IssueToken(s.cfg.JWTSecret, u.ID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, UserID: u.ID})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserID(r.Context())
	body, ok := readValidated(w, r, chatSchema)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Malformed request")
		return
	}

	reply, err := s.gateway.Handle(r.Context(), userID, req.Message)
	if err != nil {
		if errors.Is(err, gateway.ErrRateLimited) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("chat_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type bookResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Currency    string `json:"currency"`
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserID(r.Context())
	books, err := s.store.BooksByUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("book_list_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Could not list books")
		return
	}
	out := make([]bookResponse, len(books))
	for i, b := range books {
		out[i] = bookResponse{ID: b.ID, Name: b.Name, Description: b.Description, Currency: b.Currency}
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": out})
}

type categoryResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Color    string `json:"color,omitempty"`
	Disabled bool   `json:"disabled"`
}

func (s *Server) handleBookCategories(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserID(r.Context())
	bookID := chi.URLParam(r, "id")

	// Ownership check before exposing anything about the book.
	if _, err := s.store.BookByID(r.Context(), userID, bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "No such book")
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("book_fetch_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Could not fetch book")
		return
	}
	cats, err := s.store.CategoriesByBook(r.Context(), bookID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("category_list_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Could not list categories")
		return
	}
	out := make([]categoryResponse, len(cats))
	for i, c := range cats {
		out[i] = categoryResponse{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color, Disabled: c.IsDisabled}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handleArchiveBook(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserID(r.Context())
	bookID := chi.URLParam(r, "id")

	if err := s.store.ArchiveBook(r.Context(), userID, bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "No such book")
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("book_archive_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Could not archive book")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
