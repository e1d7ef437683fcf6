package store

import (
	"context"
	"fmt"
)

// ExecutionFailure means the store rejected a validated, rewritten statement
// (typically a constraint violation). The message is surfaced to the user
// because it is usually actionable.
type ExecutionFailure struct {
	SQL string
	Err error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

// ExecStatement runs a rendered INSERT or UPDATE with bound arguments and
// returns the affected-row count. Statements run one at a time with no
// cross-statement transaction; a later failure does not roll back an
// earlier success.
func (s *Store) ExecStatement(ctx context.Context, query string, args []any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &ExecutionFailure{SQL: query, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &ExecutionFailure{SQL: query, Err: err}
	}
	return n, nil
}

// QueryStatement runs a rendered SELECT with bound arguments and returns the
// rows as column→value maps for shape classification by the formatter.
func (s *Store) QueryStatement(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, &ExecutionFailure{SQL: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, &ExecutionFailure{SQL: query, Err: err}
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionFailure{SQL: query, Err: err}
	}
	return out, nil
}
