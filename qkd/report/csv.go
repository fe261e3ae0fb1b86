package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/alan-christopher/qkdsim/qkd/sim"
)

var csvHeader = []string{"cycle", "qber", "outcome", "key_length"}

// A CSV writes one row per cycle of a run, truncating Path first.
type CSV struct {
	Path string
}

// Report implements sim.Reporter.
func (c *CSV) Report(_ context.Context, res *sim.RunResult) error {
	f, err := os.Create(c.Path)
	if err != nil {
		return fmt.Errorf("creating csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return err
	}
	for _, cr := range res.Cycles {
		row := []string{
			strconv.Itoa(cr.Index + 1),
			formatFloat(cr.QBER),
			cr.Outcome.String(),
			strconv.Itoa(len(cr.AliceKey)),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("writing cycle %d: %w", cr.Index, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing csv: %w", err)
	}
	return f.Close()
}
