// Package statement turns the model's free-text reply into a structured,
// screened intermediate representation of SQL statements. Raw text is parsed
// exactly once here; every downstream component works on the Statement value
// and the text is rendered back to SQL only at the executor boundary.
package statement

import "strings"

// Kind is the closed set of statement classes the gateway executes.
// Classification happens once, from the leading verb; downstream code
// switches on Kind and never re-inspects raw text.
type Kind int

const (
	KindUnsupported Kind = iota
	KindInsert
	KindUpdate
	KindSelect
)

// String returns the SQL verb for the kind.
func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindSelect:
		return "SELECT"
	default:
		return "UNSUPPORTED"
	}
}

// Classify tags a screened statement by its leading verb only. The screener
// has already guaranteed there is exactly one verb of executable interest.
func Classify(stmt string) Kind {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return KindUnsupported
	}
	switch strings.ToUpper(fields[0]) {
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "SELECT":
		return KindSelect
	default:
		return KindUnsupported
	}
}
