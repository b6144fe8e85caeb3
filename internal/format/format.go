// Package format renders widget values for display
package format

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

// Field formats understood by Value
const (
	FormatCurrency   = "currency"
	FormatPercentage = "percentage"
	FormatNumber     = "number"
)

// NotAvailable is shown for null or missing values
const NotAvailable = "N/A"

var printer = message.NewPrinter(language.AmericanEnglish)

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CAD": "CA$",
	"AUD": "A$",
	"CNY": "CN¥",
	"INR": "₹",
}

func decimal(v float64, digits int) string {
	return printer.Sprint(number.Decimal(v,
		number.MinFractionDigits(digits),
		number.MaxFractionDigits(digits),
	))
}

// Currency formats v in the given ISO currency, defaulting to USD. The
// number of decimals follows the currency's standard rounding.
func Currency(v float64, code string) string {
	if code == "" {
		code = "USD"
	}
	code = strings.ToUpper(code)

	digits := 2
	if unit, err := currency.ParseISO(code); err == nil {
		digits, _ = currency.Standard.Rounding(unit)
	}
	symbol, ok := symbols[code]
	if !ok {
		symbol = code + " "
	}

	sign := ""
	if v < 0 {
		sign = "-"
		v = math.Abs(v)
	}
	return sign + symbol + decimal(v, digits)
}

// Percentage formats v, expressed in percent units, with two decimals
func Percentage(v float64) string {
	return decimal(v, 2) + "%"
}

// Number formats v with grouping and a fixed number of decimals
func Number(v float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return decimal(v, decimals)
}

// Value renders v for a field with the given format. Formats only apply
// to numbers; other values are shown as text.
func Value(v jsonvalue.Value, format string) string {
	if v.IsNull() {
		return NotAvailable
	}
	n, isNumber := v.AsNumber()
	if !isNumber {
		return v.Text()
	}
	switch format {
	case FormatCurrency:
		return Currency(n, "USD")
	case FormatPercentage:
		return Percentage(n)
	case FormatNumber:
		return Number(n, 2)
	default:
		return v.Text()
	}
}

// Label turns a field path or key into a display label
func Label(s string) string {
	return strings.NewReplacer(".", " ", "_", " ").Replace(s)
}
