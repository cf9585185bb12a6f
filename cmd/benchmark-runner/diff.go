package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"database-benchmark/internal/aggregate"
	"database-benchmark/internal/report"
)

func newDiffCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <baseline.json> <candidate.json>",
		Short: "Compare two results and report regressions",
		Long: `Compare a candidate result against a baseline of the same benchmark.
The command fails when any metric got worse by more than --tolerance
percent.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseline, err := report.ReadFile(args[0])
			if err != nil {
				return err
			}
			candidate, err := report.ReadFile(args[1])
			if err != nil {
				return err
			}
			if baseline.Benchmark != candidate.Benchmark {
				return fmt.Errorf("cannot compare %s with %s", baseline.Benchmark, candidate.Benchmark)
			}

			regressions := aggregate.Compare(baseline, candidate, v.GetFloat64("tolerance"))
			out := cmd.OutOrStdout()
			if len(regressions) == 0 {
				fmt.Fprintf(out, "%s: no regressions\n", candidate.Name())
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METRIC\tBASELINE\tCANDIDATE\tWORSE BY")
			for _, r := range regressions {
				fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.1f%%\n", r.Metric, r.Baseline, r.Candidate, r.ChangePercent)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return fmt.Errorf("%d metrics regressed", len(regressions))
		},
	}
	cmd.Flags().Float64("tolerance", 10, wrapString("Allowed change in percent before a metric counts as regressed"))
	return cmd
}
