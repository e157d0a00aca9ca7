// ABOUTME: Number formatting for chart axes, tooltips and table cells
// ABOUTME: Abbreviates millions and thousands, otherwise en-US grouping via x/text

package visualization

import (
	"encoding/json"
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// NoValue is shown for a missing value.
const NoValue = "—"

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatNumber renders numeric values as 1.2M, 3.4K or 12.345 (at most three
// fraction digits). Non-numeric values are printed as-is; nil is NoValue.
func FormatNumber(v any) string {
	if v == nil {
		return NoValue
	}
	f, ok := Numeric(v)
	if !ok {
		return fmt.Sprint(v)
	}

	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "∞"
	case math.IsInf(f, -1):
		return "-∞"
	case math.Abs(f) >= 1e6:
		return oneDecimal(f/1e6) + "M"
	case math.Abs(f) >= 1e3:
		return oneDecimal(f/1e3) + "K"
	}
	return printer.Sprint(number.Decimal(f, number.MaxFractionDigits(3)))
}

// oneDecimal rounds halves away from zero, so 1.25 prints as 1.3.
func oneDecimal(f float64) string {
	return fmt.Sprintf("%.1f", math.Round(f*10)/10)
}

// Numeric converts Go and JSON numeric values to float64. Strings are not
// parsed: a "1200" in a row is a label, not a number.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
