// Package patterns provides embedded default currency recognizer definitions.
// The YAML file defines regex recognizers evaluated in priority order plus
// the symbol and word tables that map matches to ISO 4217 codes.
package patterns

import _ "embed"

//go:embed currency.yaml
var currencyYAML []byte

// CurrencyYAML returns the embedded currency recognizer definitions.
func CurrencyYAML() []byte { return currencyYAML }
