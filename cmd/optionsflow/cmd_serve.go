package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"optionsflow/internal/dashboard"
	"optionsflow/internal/pipeline"
	"optionsflow/reader"
	"optionsflow/writer"
)

// serveCmd exposes a report over the dashboard JSON API
var serveCmd = &cobra.Command{
	Use:   "serve [inputs...]",
	Short: "Serve a report, run metrics and logs over HTTP",
	Long: `Start the dashboard API. With inputs the pipeline runs first and its
report is served; otherwise the report.json given by --report is loaded.

Endpoints:
  /healthz
  /api/report, /api/summary/{by_moneyness|by_dte}?group=&metric=
  /api/supplementary, /api/rejections
  /api/metrics, /api/logs, /api/resources

Examples:
  optionsflow serve --report output/report.json
  optionsflow serve data/spy_eod_202301.txt --addr :9090`,
	RunE: runServe,
}

var (
	serveReport string
	serveAddr   string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveReport, "report", "output/report.json", "Report to serve when no inputs are given")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default dashboard.address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Dashboard.Address = serveAddr
	}
	log, err := configureLogger(cfg)
	if err != nil {
		return err
	}

	srv := dashboard.NewServer(cfg.Dashboard, cfg.Writer.OutputDir, log)
	defer srv.Close()

	if len(args) > 0 {
		cl, err := newClients(ctx, cfg, args)
		if err != nil {
			return err
		}
		sources := make([]reader.Source, 0, len(args))
		for _, arg := range args {
			sources = append(sources, reader.ParseSource(arg, cl.fetcher))
		}
		p, err := pipeline.New(cfg, nil)
		if err != nil {
			return err
		}
		report, err := p.Run(ctx, sources...)
		if err != nil {
			return err
		}
		srv.SetReport(report)
	} else {
		data, err := os.ReadFile(serveReport)
		if err != nil {
			return fmt.Errorf("failed to read report: %w", err)
		}
		report, err := writer.ReadReport(data)
		if err != nil {
			return err
		}
		srv.SetReport(report)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "serving on http://%s\n", srv.Address())
	return srv.Run(ctx)
}
