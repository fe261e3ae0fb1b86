package report

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alan-christopher/qkdsim/qkd/sim"
)

// A ResultsLog appends the rounded mean of every run to a text file, one value
// per line. Earlier lines are never rewritten.
type ResultsLog struct {
	Path string
}

// Report implements sim.Reporter.
func (l *ResultsLog) Report(_ context.Context, res *sim.RunResult) error {
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening results log: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s\n", formatMean(res.RoundedMean)); err != nil {
		f.Close()
		return fmt.Errorf("appending to results log: %w", err)
	}
	return f.Close()
}

// formatMean keeps at least one decimal so integral means read as 25.0.
func formatMean(f float64) string {
	s := formatFloat(f)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
