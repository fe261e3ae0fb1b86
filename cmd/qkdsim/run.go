package main

import (
	"context"
	"fmt"
	"io"

	"github.com/alan-christopher/qkdsim/internal/config"
	"github.com/alan-christopher/qkdsim/qkd/report"
	"github.com/alan-christopher/qkdsim/qkd/sim"
	"github.com/alan-christopher/qkdsim/qkd/store"
	"github.com/spf13/cobra"
)

func newRunCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		Long: `Run executes the configured number of cycles and prints a trace of each
cycle followed by the average QBER. Outputs such as the plot, CSV series and
run store are written only when their paths are set.

Example:
  qkdsim run --protocol bb84 --cycles 100 --qubits 16 --silent --plot qber.png
  qkdsim run -p kmb09 --eve=false -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rc, err := cfg.RunConfig(out)
			if err != nil {
				return err
			}

			reporters, closeAll, err := buildReporters(cfg, out)
			if err != nil {
				return err
			}
			defer closeAll()

			if cfg.Silent {
				fmt.Fprintf(out, "Executing %d Cycle(s) of %d Qubit(s)... Please wait!\n", rc.Cycles, rc.Qubits)
			}
			res, err := sim.Run(cmd.Context(), rc, sim.WithLogger(log), sim.WithReporters(reporters...))
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			log.Debug().Int64("seed", res.Config.Seed).Msg("run finished")
			return nil
		},
	}
	config.RegisterRunFlags(cmd.Flags())
	return cmd
}

// buildReporters returns the reporters cfg enables, in the order they run.
// The console summary always comes last.
func buildReporters(cfg config.Config, out io.Writer) ([]sim.Reporter, func(), error) {
	var reps []sim.Reporter
	closeAll := func() {}
	if cfg.Silent {
		reps = append(reps, sim.ReporterFunc(func(_ context.Context, res *sim.RunResult) error {
			msg := fmt.Sprintf("%d Cycle(s) successfully executed!", len(res.QBERs))
			if cfg.Plot != "" {
				msg += " Generating Plot..."
			}
			_, err := fmt.Fprintln(out, msg)
			return err
		}))
	}
	if p := cfg.ResultsLogPath(); p != "" {
		reps = append(reps, &report.ResultsLog{Path: p})
	}
	if cfg.CSV != "" {
		reps = append(reps, &report.CSV{Path: cfg.CSV})
	}
	if cfg.Records != "" {
		reps = append(reps, &report.Records{Path: cfg.Records})
	}
	if cfg.Plot != "" {
		reps = append(reps, &report.Plot{Path: cfg.Plot})
	}
	if cfg.DB != "" {
		st, err := store.Open(cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		reps = append(reps, st)
		closeAll = func() { st.Close() }
	}
	reps = append(reps, &report.Summary{W: out})
	return reps, closeAll, nil
}
