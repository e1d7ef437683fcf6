package statement

import (
	"fmt"
	"regexp"
	"strings"
)

// SecurityViolation is the fatal, pre-semantic rejection of a candidate
// statement. It carries the reason and the offending fragment for logging;
// a statement that trips it is never parsed, rewritten, or executed.
type SecurityViolation struct {
	Reason   string
	Fragment string
}

func (e *SecurityViolation) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("security violation: %s", e.Reason)
	}
	return fmt.Sprintf("security violation: %s (%q)", e.Reason, e.Fragment)
}

// denied lists verbs the gateway never executes: schema mutation, destructive
// writes, and set operations usable to smuggle cross-table reads. The check
// is purely lexical and intentionally does not care about quoting context;
// a false positive is a rejected statement, a false negative is a breach.
var denied = regexp.MustCompile(`(?i)\b(DROP|DELETE|TRUNCATE|ALTER|CREATE|ATTACH|DETACH|PRAGMA|VACUUM|REINDEX|GRANT|REVOKE|REPLACE|MERGE|EXEC|EXECUTE|CALL|UNION)\b`)

var (
	writeVerb  = regexp.MustCompile(`(?i)\b(INSERT|UPDATE)\b`)
	selectVerb = regexp.MustCompile(`(?i)\bSELECT\b`)
	whereWord  = regexp.MustCompile(`(?i)\bWHERE\b`)
	andOrWord  = regexp.MustCompile(`(?i)\b(AND|OR)\b`)
)

// commentTokens have historically been used to smuggle a second statement
// past naive splitting, so their mere presence is a violation.
var commentTokens = []string{"--", "/*", "*/", "#"}

// Screen rejects a candidate statement on lexical grounds before any semantic
// understanding is attempted. It runs first; everything downstream may assume
// a screened statement has exactly one leading verb and no comment tokens.
func Screen(stmt string) error {
	trimmed := strings.TrimSpace(stmt)
	if trimmed == "" {
		return &SecurityViolation{Reason: "empty statement"}
	}

	for _, tok := range commentTokens {
		if strings.Contains(trimmed, tok) {
			return &SecurityViolation{Reason: "comment delimiter", Fragment: tok}
		}
	}

	// Extract() already split on terminators; a surviving semicolon means a
	// quoted literal was used to disguise multiple statements as one.
	if strings.Contains(strings.TrimSuffix(trimmed, ";"), ";") {
		return &SecurityViolation{Reason: "multiple statements", Fragment: ";"}
	}

	if m := denied.FindString(trimmed); m != "" {
		return &SecurityViolation{Reason: "disallowed keyword", Fragment: strings.ToUpper(m)}
	}

	leading := strings.ToUpper(firstWord(trimmed))
	rest := trimmed[len(leading):]

	switch leading {
	case "SELECT":
		if m := writeVerb.FindString(rest); m != "" {
			return &SecurityViolation{Reason: "write verb inside read", Fragment: strings.ToUpper(m)}
		}
	case "INSERT", "UPDATE":
		// INSERT ... SELECT and update-with-subquery are read smuggling;
		// scoping subqueries are added by the rewriter after this gate.
		if m := selectVerb.FindString(rest); m != "" {
			return &SecurityViolation{Reason: "read verb inside write", Fragment: strings.ToUpper(m)}
		}
	}

	if leading == "UPDATE" {
		if err := screenUpdateFilter(trimmed); err != nil {
			return err
		}
	}

	return nil
}

// screenUpdateFilter rejects malformed filter shapes on UPDATE. A second
// WHERE, or a conjunction with no WHERE at all, may silently drop the
// intended scope after naive concatenation; a malformed filter is worse
// than none, so both are violations rather than repair candidates.
func screenUpdateFilter(stmt string) error {
	wheres := whereWord.FindAllString(stmt, -1)
	if len(wheres) > 1 {
		return &SecurityViolation{Reason: "multiple WHERE clauses", Fragment: "WHERE"}
	}
	if len(wheres) == 0 {
		if m := andOrWord.FindString(stmt); m != "" {
			return &SecurityViolation{Reason: "conjunction without WHERE", Fragment: strings.ToUpper(m)}
		}
	}
	return nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
