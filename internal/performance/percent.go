package performance

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errOutOfRange = errors.New("outside of [0, 1]")

// ParsePercent converts a dashboard percentage like "92%" into 0.92.
func ParsePercent(raw string) (float64, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimSuffix(text, "%")
	text = strings.TrimSpace(text)

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, &ParseError{Field: "percent", Raw: raw, Err: err}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &ParseError{Field: "percent", Raw: raw, Err: strconv.ErrSyntax}
	}

	fraction := value / 100
	if err := checkFraction(fraction); err != nil {
		return 0, &ParseError{Field: "percent", Raw: raw, Err: err}
	}
	return fraction, nil
}

// FormatPercent is the inverse of ParsePercent, it keeps at most two decimal
// places of percent.
func FormatPercent(fraction float64) string {
	percent := math.Round(fraction*10_000) / 100
	return strconv.FormatFloat(percent, 'f', -1, 64) + "%"
}

func checkFraction(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%v is %w", v, errOutOfRange)
	}
	return nil
}
