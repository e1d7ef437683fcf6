package statement

import (
	"regexp"
	"strings"
)

// codeFence matches fenced code regions in a model reply. Only text inside
// a fence is ever considered executable; everything outside is prose.
var codeFence = regexp.MustCompile("(?s)```(?:sql|SQL)?\\s*(.*?)```")

// Extract pulls candidate SQL statements from the fenced code regions of a
// model reply. Within a region, statements are split on terminators with
// quote awareness, trimmed, and empty fragments dropped. Order is preserved.
func Extract(reply string) []string {
	var stmts []string
	for _, m := range codeFence.FindAllStringSubmatch(reply, -1) {
		for _, frag := range splitStatements(m[1]) {
			frag = strings.TrimSpace(frag)
			if frag != "" {
				stmts = append(stmts, frag)
			}
		}
	}
	return stmts
}

// StripCode returns the reply with all fenced code regions removed. The
// remainder is prose the formatter may scrub and sanitize but never execute.
func StripCode(reply string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(reply, ""))
}

// splitStatements splits on ';' outside single-quoted literals, so a
// semicolon inside a description does not produce a phantom statement.
func splitStatements(block string) []string {
	var (
		parts   []string
		current strings.Builder
		inQuote bool
	)
	runes := []rune(block)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'':
			// '' is an escaped quote inside a literal
			if inQuote && i+1 < len(runes) && runes[i+1] == '\'' {
				current.WriteRune(r)
				current.WriteRune(runes[i+1])
				i++
				continue
			}
			inQuote = !inQuote
			current.WriteRune(r)
		case r == ';' && !inQuote:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
