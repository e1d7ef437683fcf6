package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector()
	require.NoError(t, err)
	return d
}

func TestDetect_Shapes(t *testing.T) {
	d := newTestDetector(t)

	cases := []struct {
		text     string
		amount   string
		currency string
	}{
		{"I spent $12.50 on lunch", "12.50", "USD"},
		{"paid 45€ for gas", "45", "EUR"},
		{"ticket was 30 USD yesterday", "30", "USD"},
		{"refund of EUR 99.99 arrived", "99.99", "EUR"},
		{"that cost me 20 quid", "20", "GBP"},
		{"about 15 bucks", "15", "USD"},
		{"coffee was 3,50€", "3.50", "EUR"},
		{"₹250 for the taxi", "250", "INR"},
	}
	for _, tc := range cases {
		m, ok := d.Detect(tc.text)
		require.True(t, ok, "no mention in %q", tc.text)
		assert.Equal(t, tc.currency, m.Currency, tc.text)
		want, _ := decimal.NewFromString(tc.amount)
		assert.True(t, m.Amount.Equal(want), "%s: got %s want %s", tc.text, m.Amount, want)
	}
}

func TestDetect_SymbolWinsOverCode(t *testing.T) {
	d := newTestDetector(t)
	m, ok := d.Detect("I paid $12 USD")
	require.True(t, ok)
	assert.Equal(t, "symbol_amount", m.Recognizer)
	assert.Equal(t, "USD", m.Currency)
}

func TestDetect_NoMention(t *testing.T) {
	d := newTestDetector(t)
	_, ok := d.Detect("add an expense of twelve for groceries")
	assert.False(t, ok)

	// A bare number with no unit is not a currency mention.
	_, ok = d.Detect("spent 12.50 on lunch")
	assert.False(t, ok)
}

func TestConvert_RoundsToTwoPlaces(t *testing.T) {
	amount := decimal.RequireFromString("10.00")
	got := Convert(amount, 1.0837)
	assert.Equal(t, "10.84", got.StringFixed(2))

	same := Convert(amount, 1.0)
	assert.True(t, same.Equal(amount))
}

func TestNewDetector_BadRegistry(t *testing.T) {
	_, err := newDetectorFromYAML([]byte("recognizers: [{name: broken, regex: '(', amount_group: 1, unit_group: 2}]"))
	assert.Error(t, err)
}
