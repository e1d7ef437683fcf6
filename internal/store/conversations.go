package store

import (
	"context"
	"fmt"
)

// AppendTurn appends one entry to the user's conversation log. The log is
// append-only; nothing ever updates or deletes a turn.
func (s *Store) AppendTurn(ctx context.Context, userID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (userId, role, content) VALUES (?, ?, ?)`,
		userID, role, content)
	if err != nil {
		return fmt.Errorf("appending conversation turn: %w", err)
	}
	return nil
}

// RecentTurns returns the user's most recent turns in chronological order.
func (s *Store) RecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	var turns []Turn
	err := s.db.SelectContext(ctx, &turns, `
		SELECT id, userId, role, content, createdAt FROM (
			SELECT id, userId, role, content, createdAt
			FROM conversation_turns
			WHERE userId = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversation turns: %w", err)
	}
	return turns, nil
}
