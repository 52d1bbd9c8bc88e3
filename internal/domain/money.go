package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatAmount renders a minor-unit amount as a localised currency string for
// display fields in API responses, e.g. FormatAmount(499, "EUR", language.German).
func FormatAmount(amount int64, code string, tag language.Tag) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fmt.Sprintf("%.2f %s", float64(amount)/100, strings.ToUpper(code))
	}
	p := message.NewPrinter(tag)
	return p.Sprint(currency.Symbol(unit.Amount(float64(amount) / 100)))
}
