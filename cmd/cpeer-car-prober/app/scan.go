package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/carprober/cmd/cpeer-car-prober/app/options"
	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/internal/prober"
)

type scanResult struct {
	port    int
	open    bool
	elapsed time.Duration
}

func newScanCommand(opts *options.CarProberOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Probe the candidate ports once and print which accept connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			probe := prober.NewPortProbe(opts.ProberOptions.PortProbeTimeout)
			results := scan(cmd.Context(), probe, opts.ProberOptions.CandidatePorts)
			_, err := fmt.Fprintln(cmd.OutOrStdout(), formatScan(results))
			return err
		},
	}
}

func scan(ctx context.Context, probe prober.PortChecker, ports []int) []scanResult {
	results := make([]scanResult, 0, len(ports))
	for _, port := range ports {
		start := time.Now()
		open := probe.IsOpen(ctx, port)
		results = append(results, scanResult{port: port, open: open, elapsed: time.Since(start)})
	}
	return results
}

func formatScan(results []scanResult) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("HOST", "PORT", "STATUS", "ELAPSED")
	for _, r := range results {
		status := "closed"
		if r.open {
			status = "open"
		}
		table.AddRow(core.LoopbackHost, r.port, status, r.elapsed.Round(time.Millisecond))
	}
	return table
}
