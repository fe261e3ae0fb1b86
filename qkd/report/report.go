// Package report holds the collaborators that consume a finished run: the
// console summary, the append-only results log, CSV and binary exports, and
// the QBER plot. Every type here implements sim.Reporter.
package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/alan-christopher/qkdsim/qkd/sim"
)

// DefaultResultsLog is where KMB09 runs append their rounded mean unless told
// otherwise.
const DefaultResultsLog = "kmb09_qkd_results.txt"

var (
	_ sim.Reporter = (*Summary)(nil)
	_ sim.Reporter = (*ResultsLog)(nil)
	_ sim.Reporter = (*CSV)(nil)
	_ sim.Reporter = (*Records)(nil)
	_ sim.Reporter = (*Plot)(nil)
)

// A Summary prints the closing line of a run.
type Summary struct {
	W io.Writer
}

// Report implements sim.Reporter.
func (s *Summary) Report(_ context.Context, res *sim.RunResult) error {
	_, err := fmt.Fprintf(s.W, "Avg. QBER = %s ≈ %d\n", formatFloat(res.RoundedMean), int(math.RoundToEven(res.RoundedMean)))
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
