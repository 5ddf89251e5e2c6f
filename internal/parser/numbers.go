package parser

import (
	"strconv"
	"strings"
)

// amountPattern matches a currency-ish number with optional thousands separators.
const amountPattern = `\$?\s*\(?-?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?\)?`

// dollarPattern requires the currency symbol.
const dollarPattern = `\$\s*\(?-?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?\)?`

var amountReplacer = strings.NewReplacer("$", "", ",", "", " ", "", "USD", "", "usd", "")

// ParseAmount strips currency symbols and separators. Unparsable input returns nil,
// never zero.
func ParseAmount(s string) *float64 {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	neg := false
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		neg = true
		t = strings.TrimSuffix(strings.TrimPrefix(t, "("), ")")
	}
	t = amountReplacer.Replace(t)
	t = strings.Trim(t, "()")
	if t == "" {
		return nil
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return nil
	}
	if neg && v > 0 {
		v = -v
	}
	return &v
}
