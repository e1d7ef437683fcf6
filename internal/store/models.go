package store

import "time"

// User owns books. The id is immutable after registration.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"passwordHash" json:"-"`
	CreatedAt    time.Time `db:"createdAt" json:"created_at"`
}

// Book is a named ledger with a currency. Books are archived, never deleted.
type Book struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"userId" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Currency    string    `db:"currency" json:"currency"`
	IsArchived  bool      `db:"isArchived" json:"is_archived"`
	CreatedAt   time.Time `db:"createdAt" json:"created_at"`
	UpdatedAt   time.Time `db:"updatedAt" json:"updated_at"`
}

// Category is an expense bucket inside a book. Template categories have a
// NULL book and exist only to be copied into new books.
type Category struct {
	ID          string    `db:"id" json:"id"`
	BookID      *string   `db:"bookId" json:"book_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Icon        string    `db:"icon" json:"icon"`
	Color       string    `db:"color" json:"color"`
	IsDisabled  bool      `db:"isDisabled" json:"is_disabled"`
	IsDefault   bool      `db:"isDefault" json:"is_default"`
	CreatedAt   time.Time `db:"createdAt" json:"created_at"`
	UpdatedAt   time.Time `db:"updatedAt" json:"updated_at"`
}

// Turn is one entry of the append-only conversation log.
type Turn struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"userId" json:"user_id"`
	Role      string    `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"createdAt" json:"created_at"`
}
