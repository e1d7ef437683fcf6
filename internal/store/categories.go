package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CategoriesByBook lists the categories of one book.
func (s *Store) CategoriesByBook(ctx context.Context, bookID string) ([]Category, error) {
	var cats []Category
	err := s.db.SelectContext(ctx, &cats, `
		SELECT id, bookId, name, description, icon, color, isDisabled, isDefault, createdAt, updatedAt
		FROM categories WHERE bookId = ? ORDER BY name`, bookID)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return cats, nil
}

// CategoriesByUser lists every category reachable through the user's books.
func (s *Store) CategoriesByUser(ctx context.Context, userID string) ([]Category, error) {
	var cats []Category
	err := s.db.SelectContext(ctx, &cats, `
		SELECT c.id, c.bookId, c.name, c.description, c.icon, c.color,
		       c.isDisabled, c.isDefault, c.createdAt, c.updatedAt
		FROM categories c
		JOIN books b ON c.bookId = b.id
		WHERE b.userId = ?
		ORDER BY c.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user categories: %w", err)
	}
	return cats, nil
}

// CategoryByName fetches a category by name, case-insensitively, within one book.
func (s *Store) CategoryByName(ctx context.Context, bookID, name string) (*Category, error) {
	var c Category
	err := s.db.GetContext(ctx, &c, `
		SELECT id, bookId, name, description, icon, color, isDisabled, isDefault, createdAt, updatedAt
		FROM categories
		WHERE bookId = ? AND LOWER(name) = LOWER(?)`,
		bookID, strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching category by name: %w", err)
	}
	return &c, nil
}

// CreateCategory creates a category inside a book.
func (s *Store) CreateCategory(ctx context.Context, bookID, name string) (*Category, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, bookId, name) VALUES (?, ?, ?)`,
		id, bookID, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}
	var c Category
	if err := s.db.GetContext(ctx, &c, `
		SELECT id, bookId, name, description, icon, color, isDisabled, isDefault, createdAt, updatedAt
		FROM categories WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("fetching created category: %w", err)
	}
	return &c, nil
}

// CreateTemplateCategory creates a template category (no owning book).
// Templates are never mutated afterwards, only copied.
func (s *Store) CreateTemplateCategory(ctx context.Context, name, icon, color string) (*Category, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, bookId, name, icon, color, isDefault) VALUES (?, NULL, ?, ?, ?, 1)`,
		id, strings.TrimSpace(name), icon, color)
	if err != nil {
		return nil, fmt.Errorf("creating template category: %w", err)
	}
	return &Category{ID: id, Name: name, Icon: icon, Color: color, IsDefault: true}, nil
}

// CopyTemplateCategories copies every template category into the given book.
// The copies are ordinary categories; the templates stay untouched.
func (s *Store) CopyTemplateCategories(ctx context.Context, bookID string) error {
	var templates []Category
	err := s.db.SelectContext(ctx, &templates, `
		SELECT id, bookId, name, description, icon, color, isDisabled, isDefault, createdAt, updatedAt
		FROM categories WHERE bookId IS NULL AND isDefault = 1`)
	if err != nil {
		return fmt.Errorf("listing template categories: %w", err)
	}
	for _, tpl := range templates {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO categories (id, bookId, name, description, icon, color)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), bookID, tpl.Name, tpl.Description, tpl.Icon, tpl.Color)
		if err != nil {
			return fmt.Errorf("copying template category %q: %w", tpl.Name, err)
		}
	}
	return nil
}
