package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BooksByUser lists the user's non-archived books.
func (s *Store) BooksByUser(ctx context.Context, userID string) ([]Book, error) {
	var books []Book
	err := s.db.SelectContext(ctx, &books, `
		SELECT id, userId, name, description, currency, isArchived, createdAt, updatedAt
		FROM books
		WHERE userId = ? AND isArchived = 0
		ORDER BY createdAt`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return books, nil
}

// BookByID fetches a book scoped to the requesting user.
func (s *Store) BookByID(ctx context.Context, userID, id string) (*Book, error) {
	var b Book
	err := s.db.GetContext(ctx, &b, `
		SELECT id, userId, name, description, currency, isArchived, createdAt, updatedAt
		FROM books WHERE id = ? AND userId = ?`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching book: %w", err)
	}
	return &b, nil
}

// BookByName fetches a book by name, case-insensitively, scoped to the user.
func (s *Store) BookByName(ctx context.Context, userID, name string) (*Book, error) {
	var b Book
	err := s.db.GetContext(ctx, &b, `
		SELECT id, userId, name, description, currency, isArchived, createdAt, updatedAt
		FROM books
		WHERE userId = ? AND isArchived = 0 AND LOWER(name) = LOWER(?)`,
		userID, strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching book by name: %w", err)
	}
	return &b, nil
}

// CreateBook creates a book and copies the template categories into it.
func (s *Store) CreateBook(ctx context.Context, userID, name, currency string) (*Book, error) {
	b := &Book{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     strings.TrimSpace(name),
		Currency: strings.ToUpper(strings.TrimSpace(currency)),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (id, userId, name, currency) VALUES (?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, b.Currency)
	if err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}
	if err := s.CopyTemplateCategories(ctx, b.ID); err != nil {
		return nil, err
	}
	return s.BookByID(ctx, userID, b.ID)
}

// ArchiveBook soft-deletes a book. Books are never hard-deleted here.
func (s *Store) ArchiveBook(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE books SET isArchived = 1, updatedAt = CURRENT_TIMESTAMP
		WHERE id = ? AND userId = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("archiving book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
