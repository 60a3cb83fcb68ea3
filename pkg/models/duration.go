package models

import (
	"fmt"
	"math"
)

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour up.
// Negative and NaN inputs render as 0:00.
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int(math.Round(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
