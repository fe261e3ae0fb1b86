package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/alan-christopher/qkdsim/qkd/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd(load loader) *cobra.Command {
	var protocol string
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored runs, or the QBER series of one run",
		Long: `History reads the run store given by --db. Without arguments it lists the
stored runs, newest first. With a run id it prints that run's QBER series,
one value per line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load(cmd)
			if err != nil {
				return err
			}
			if cfg.DB == "" {
				return errors.New("history needs a run store, set --db")
			}
			st, err := store.Open(cfg.DB)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				qbers, err := st.QBERs(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, q := range qbers {
					fmt.Fprintln(out, q)
				}
				return nil
			}

			runs, err := st.Runs(cmd.Context(), protocol)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tPROTOCOL\tCYCLES\tQUBITS\tEVE\tEMPTY\tAVG QBER")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\t%d\t%v\n",
					r.ID, r.Started.Local().Format(time.DateTime), r.Protocol,
					r.Cycles, r.Qubits, r.Eve, r.EmptyKeys, r.RoundedMean)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&protocol, "protocol", "", "only list runs of this protocol")
	return cmd
}
