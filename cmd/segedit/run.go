package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"segedit/pkg/app"
	"segedit/pkg/script"
	"segedit/pkg/stats"
)

// RunOptions holds flags for the run command
type RunOptions struct {
	*RootOptions
	ExportWindow int
	ExportDir    string
	Metrics      bool
}

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Run an edit script and print label statistics",
		Long: `Run loads the main image described by the script, applies its steps in
order and prints a line per step followed by the label statistics.

Example:
  segedit run edits.yaml
  segedit run --export-window 0 --export-dir ./axial edits.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScript(ctx, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.ExportWindow, "export-window", -1, "display window whose slices are exported as PNG (0 axial, 1 sagittal, 2 coronal)")
	cmd.Flags().StringVar(&opts.ExportDir, "export-dir", "slices", "directory for exported slices")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print undo and edit metrics after the run")
	return cmd
}

func runScript(ctx context.Context, opts *RunOptions, path string, out io.Writer) error {
	log := opts.log
	s, err := script.Load(path)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	a, err := app.New(opts.cfg, log, reg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	a.SetProgressCallback(func(completed, total int, message string) {
		log.Debug("progress", zap.String("task", message), zap.Int("completed", completed), zap.Int("total", total))
	})

	log.Info("running script", zap.String("path", path), zap.Int("steps", len(s.Steps)))
	start := time.Now()
	report, err := script.Run(ctx, a, s, out)
	if err != nil {
		return err
	}
	log.Info("script finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("changed", report.Changed),
		zap.Int("failed", len(report.Failed())))

	rows, err := a.Statistics(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderStats(rows))

	if opts.ExportWindow >= 0 {
		n, err := a.ExportSlices(opts.ExportWindow, opts.ExportDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d slices of window %d to %s\n", n, opts.ExportWindow, opts.ExportDir)
	}

	if opts.Metrics {
		if err := writeMetrics(out, reg); err != nil {
			return err
		}
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// renderStats draws the statistics table, one row per label
func renderStats(t stats.Table) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))).
		Headers("LABEL", "VOXELS", "VOLUME (mm3)", "MEAN", "STD DEV").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			}
			return numberStyle
		})

	for _, r := range t.Sorted() {
		tbl.Row(
			fmt.Sprintf("%d", r.Label),
			fmt.Sprintf("%d", r.Count),
			fmt.Sprintf("%.3f", r.VolumeMM3),
			fmt.Sprintf("%.4f", r.Mean),
			fmt.Sprintf("%.4f", r.StdDev),
		)
	}
	return tbl.String()
}

// writeMetrics prints every gathered counter and gauge as name{labels} value
func writeMetrics(out io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			value := m.GetCounter().GetValue() + m.GetGauge().GetValue()
			lines = append(lines, fmt.Sprintf("%s %g", name, value))
		}
	}
	sort.Strings(lines)
	fmt.Fprintln(out)
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	return nil
}
