// internal/pkg/msisdn/msisdn.go
package msisdn

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// mobilePattern matches canonical Kenyan mobile numbers: 254 followed by a
// 7xx or 1xx prefix and eight more digits. Landlines (20x...) normalize to
// twelve digits too but fail this check.
var mobilePattern = regexp.MustCompile(`^254(7|1)\d{8}$`)

// Normalize coerces a raw phone input into canonical 254XXXXXXXXX form.
// It accepts local ("07...", "01..."), bare ("7...", "1..."), international
// ("+254...", "254...") and lightly malformed ("00254...") inputs. It never
// fails; inputs that cannot be normalized return "" and are expected to be
// rejected by Valid.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "254") && len(digits) == 12 {
		return digits
	}

	digits = strings.TrimLeft(digits, "0")
	if strings.HasPrefix(digits, "254") && len(digits) == 12 {
		return digits
	}
	if len(digits) == 9 {
		return "254" + digits
	}
	return ""
}

// Valid reports whether a normalized number is an acceptable mobile MSISDN.
func Valid(normalized string) bool {
	return mobilePattern.MatchString(normalized)
}

// NormalizeAmount coerces an amount of any JSON-decoded type into whole
// currency units, rounding to the nearest integer. It rejects non-finite
// values, unparseable strings and anything that rounds below 1.
func NormalizeAmount(v any) (int64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	n := int64(math.Round(f))
	if n < 1 {
		return 0, false
	}
	return n, true
}
