package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Mention is a currency amount found in free text.
type Mention struct {
	Amount     decimal.Decimal
	Currency   string // ISO 4217
	Recognizer string
	Matched    string
}

// Detect returns the first currency mention in the text, trying recognizers
// in priority order. The priority order is the tiebreaker when shapes
// overlap, so "$12" wins over the bare "12" inside it.
func (d *Detector) Detect(text string) (*Mention, bool) {
	for _, rec := range d.recognizers {
		m := rec.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		code := d.normalizeUnit(rec.unitKind, m[rec.unitGroup])
		if code == "" {
			continue
		}
		amount, err := parseAmount(m[rec.amountGroup])
		if err != nil {
			continue
		}
		return &Mention{
			Amount:     amount,
			Currency:   code,
			Recognizer: rec.name,
			Matched:    m[0],
		}, true
	}
	return nil, false
}

// parseAmount parses a matched amount, accepting a comma decimal separator.
func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
}

// Convert applies an exchange rate and rounds to two decimal places, the
// precision every stored amount carries.
func Convert(amount decimal.Decimal, rate float64) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(rate)).Round(2)
}
