// Package pdf renders invoices to HTML and hands the result to a PDF converter.
package pdf

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const DateLayout = "Jan 2, 2006"

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"IDR": "Rp",
	"INR": "₹",
	"AUD": "A$",
	"CAD": "C$",
}

// Formatter is the helper bundle handed to the invoice template.
type Formatter struct {
	printer *message.Printer
}

func NewFormatter(tag language.Tag) Formatter {
	return Formatter{printer: message.NewPrinter(tag)}
}

// FormatCurrency renders amount with two decimals and the currency symbol.
// Codes without a known symbol are printed as their ISO code.
func (f Formatter) FormatCurrency(amount decimal.Decimal, code string) string {
	amount = amount.Round(2)
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}
	value, _ := amount.Float64()
	digits := f.printer.Sprint(number.Decimal(value, number.Scale(2)))
	return sign + symbolFor(code) + digits
}

func (f Formatter) FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func symbolFor(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "USD"
	}
	if s, ok := currencySymbols[code]; ok {
		return s
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return ""
	}
	return unit.String() + " "
}
