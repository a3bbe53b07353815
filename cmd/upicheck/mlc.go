package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/upicheck/internal/latency"
)

func mlcCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "mlc",
		Short: "Print the idle memory latencies seen from NUMA node 0",
		Long: `Runs the Intel Memory Latency Checker and prints the node 0 row of its
latency matrix, one integer value per line. With --input the output of
an earlier run is parsed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			var values []string

			if input != "" {
				in, err := openInput(input)
				if err != nil {
					return err
				}
				defer in.Close()

				values, err = latency.ParseRow(in)
				if err != nil {
					return err
				}
			} else {
				ctx, cancel := signalContext()
				defer cancel()

				values, err = latency.NewRunner(log, cfg.MLC).Run(ctx)
				if err != nil {
					return err
				}
			}

			return latency.Write(os.Stdout, values)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "parse captured mlc output from this file, or - for stdin")

	return cmd
}
