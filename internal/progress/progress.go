// Package progress draws a single line text progress bar that redraws itself
// in place with a carriage return.
package progress

import (
	"fmt"
	"io"
	"math"
	"strings"
)

const (
	Segments = 20

	filledSegment = "█"
	emptySegment  = "-"
)

// Percent of total that done represents. A non-positive total counts as done.
func Percent(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

// Filled returns the number of filled segments, one per 5%, within
// [0, Segments].
func Filled(done, total int) int {
	filled := int(math.Floor(Percent(done, total) / (100 / Segments)))
	return max(0, min(Segments, filled))
}

// Render the bar for done out of total, e.g. "Recording: ██████--------------  30%".
func Render(label string, done, total int) string {
	filled := Filled(done, total)
	return fmt.Sprintf("%s: %s%s %.0f%%",
		label,
		strings.Repeat(filledSegment, filled),
		strings.Repeat(emptySegment, Segments-filled),
		Percent(done, total),
	)
}

// A Bar redraws one line of w on every Update.
type Bar struct {
	w     io.Writer
	label string
	total int
}

func New(w io.Writer, label string, total int) *Bar {
	return &Bar{w: w, label: label, total: total}
}

func (b *Bar) Update(done int) error {
	_, err := fmt.Fprint(b.w, "\r"+Render(b.label, done, b.total))
	return err
}
