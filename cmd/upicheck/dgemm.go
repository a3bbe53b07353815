package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/upicheck/internal/check"
)

type dgemmFlags struct {
	sockets         int
	upis            int
	downLinks       string
	downPorts       string
	verbose         bool
	output          string
	metricsTextfile string
	input           string
}

func dgemmCmd() *cobra.Command {
	flags := &dgemmFlags{}

	cmd := &cobra.Command{
		Use:   "dgemm",
		Short: "Check UPI link bandwidth from a perf report of a dgemm run",
		Long: `Reads the combined dgemm and perf stat output from stdin (or --input)
and checks that every UPI link carried an even and sufficient share of
data traffic. Exits non-zero when the check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDgemm(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&flags.sockets, "sockets", "s", 2, "number of sockets")
	f.IntVarP(&flags.upis, "upis", "u", 4, "number of UPI links per socket")
	f.StringVarP(&flags.downLinks, "down-links", "d", "", "links known to be down (s-u:s-u,s-u:s-u,...)")
	f.StringVarP(&flags.downPorts, "down-ports", "p", "", "ports known to be down (s-u,s-u,...)")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "print statistics and per-link rates")
	f.StringVar(&flags.output, "output", "text", "output format (text, table, json, prometheus)")
	f.StringVar(&flags.metricsTextfile, "metrics-textfile", "", "write verdict metrics to this node_exporter textfile")
	f.StringVar(&flags.input, "input", "-", "report file, or - for stdin")

	return cmd
}

// apply overrides the config with the flags set on the command line.
func (f *dgemmFlags) apply(cmd *cobra.Command, cfg *check.Config) {
	changed := cmd.Flags().Changed

	if changed("sockets") {
		cfg.Topology.Sockets = f.sockets
	}

	if changed("upis") {
		cfg.Topology.LinksPerSocket = f.upis
	}

	if changed("down-links") {
		cfg.DownLinks = f.downLinks
	}

	if changed("down-ports") {
		cfg.DownPorts = f.downPorts
	}

	if changed("verbose") {
		cfg.Output.Verbose = f.verbose
	}

	if changed("output") {
		cfg.Output.Format = f.output
	}

	if changed("metrics-textfile") {
		cfg.Output.MetricsTextfile = f.metricsTextfile
	}
}

func runDgemm(cmd *cobra.Command, flags *dgemmFlags) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	flags.apply(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	in, err := openInput(flags.input)
	if err != nil {
		return err
	}
	defer in.Close()

	_, err = check.NewRunner(log, cfg, os.Stdout).Run(ctx, in)

	return err
}
