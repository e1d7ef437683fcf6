// Package scope enforces tenant isolation on structured statements. Every
// SELECT or UPDATE that touches an owned table leaves this package carrying
// an equality filter on the owning user, regardless of what the model
// supplied: the model's own owner filters are discarded, not trusted.
package scope

import (
	"fmt"
	"strings"

	"github.com/fintalk-io/fintalk/internal/statement"
)

// Rewrite scopes a statement to the requesting user. It is idempotent:
// applying it twice yields the same statement as applying it once, because
// any previously injected (or model-supplied) owner filter is removed before
// the canonical one is appended.
func Rewrite(st *statement.Statement, userID string) error {
	if userID == "" {
		return fmt.Errorf("scope: empty user id")
	}
	if !statement.ChainTable(st.Table) {
		return fmt.Errorf("scope: table %q is outside the ownership chain", st.Table)
	}
	if st.Kind == statement.KindInsert {
		// Inserts are scoped through their validated foreign keys, which the
		// semantic validator has already proven belong to this user.
		return nil
	}

	kept := st.Where[:0]
	for _, pred := range st.Where {
		if pred.Owner || isOwnerColumn(pred.Column) {
			continue
		}
		kept = append(kept, pred)
	}
	st.Where = append(kept, statement.Predicate{
		Owner: true,
		Op:    "=",
		Value: statement.Value{Arg: userID},
	})

	// Model-supplied joins were only ever recorded for validation; the
	// renderer rebuilds the ownership chain from the table alone.
	st.Joins = nil
	st.ScopeUserID = userID
	return nil
}

// isOwnerColumn reports predicates on the owning-user identifier, qualified
// or not. These are overwritten because the model's filter cannot be trusted
// to name the right user.
func isOwnerColumn(col string) bool {
	return strings.EqualFold(statement.BareColumn(col), "userId")
}
