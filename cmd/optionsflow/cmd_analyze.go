package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"optionsflow/config"
	"optionsflow/internal/metrics"
	"optionsflow/internal/pipeline"
	"optionsflow/logger"
	"optionsflow/models"
	"optionsflow/reader"
	"optionsflow/writer"
)

// analyzeCmd runs the full pipeline over the given inputs
var analyzeCmd = &cobra.Command{
	Use:   "analyze [inputs...]",
	Short: "Summarise option chains by moneyness and expiry bucket",
	Long: `Load one or more option-chain snapshots, drop invalid quotes, derive
moneyness and days-to-expiry buckets and write the grouped summary.

Inputs are local paths or http, https and s3 URLs. Without arguments the
sources manifest given by --sources is used.

Examples:
  optionsflow analyze data/spy_eod_202301.txt
  optionsflow analyze chain.csv --format csv,json,parquet --out output
  optionsflow analyze s3://bucket/chains/2023-03-01.csv --atm-tolerance 1 --dte-edges 7,30,90,180`,
	RunE: runAnalyze,
}

var (
	analyzeOut          string
	analyzeFormats      []string
	analyzeATMTolerance float64
	analyzeDTEEdges     string
	analyzeWorkers      int
	analyzeSources      string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "Output directory (default writer.output_dir)")
	analyzeCmd.Flags().StringSliceVar(&analyzeFormats, "format", nil, "Output formats: csv, json, parquet, xlsx")
	analyzeCmd.Flags().Float64Var(&analyzeATMTolerance, "atm-tolerance", 0, "ATM band as percent of the underlying price")
	analyzeCmd.Flags().StringVar(&analyzeDTEEdges, "dte-edges", "", "Comma separated days-to-expiry bucket edges")
	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0, "Parallel workers for derivation")
	analyzeCmd.Flags().StringVar(&analyzeSources, "sources", "config/sources.yml", "Sources manifest used when no inputs are given")
}

// applyAnalyzeFlags overrides the configuration with explicitly set flags.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Writer.OutputDir = analyzeOut
	}
	if flags.Changed("format") {
		cfg.Writer.Formats = analyzeFormats
	}
	if flags.Changed("atm-tolerance") {
		cfg.Analysis.ATMTolerancePct = analyzeATMTolerance
	}
	if flags.Changed("dte-edges") {
		edges, err := config.ParseEdges(analyzeDTEEdges)
		if err != nil {
			return fmt.Errorf("--dte-edges: %w", err)
		}
		cfg.Analysis.DTEBucketEdges = edges
	}
	if flags.Changed("workers") {
		cfg.Processor.MaxWorkers = analyzeWorkers
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyAnalyzeFlags(cmd, cfg); err != nil {
		return err
	}
	log, err := configureLogger(cfg)
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"service": cfg.Optionsflow.Name,
		"version": cfg.Optionsflow.Version,
	}).Info("starting optionsflow analyze")

	var collector *metrics.Collector
	if cfg.Metrics.Textfile != "" {
		collector = metrics.NewCollector(cfg.Optionsflow.Name)
		defer collector.Close()
	}
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}

	var entries []config.SourceEntry
	if len(args) == 0 {
		manifest, err := config.LoadSources(analyzeSources)
		if err != nil {
			return fmt.Errorf("no inputs given: %w", err)
		}
		entries = manifest.Sources
	}

	remote := append([]string(nil), args...)
	for _, e := range entries {
		remote = append(remote, e.URL)
	}
	cl, err := newClients(ctx, cfg, remote)
	if err != nil {
		return err
	}

	var sources []reader.Source
	for _, arg := range args {
		sources = append(sources, reader.ParseSource(arg, cl.fetcher))
	}
	sources = append(sources, reader.SourcesFromConfig(entries, cl.fetcher)...)

	p, err := pipeline.New(cfg, nil)
	if err != nil {
		return err
	}
	report, err := p.Run(ctx, sources...)
	if err != nil {
		return err
	}

	artifacts, err := writeReport(ctx, cfg, cl, log, report)
	if err != nil {
		return err
	}

	metrics.ReportRun(ctx, log, report)
	if collector != nil {
		if err := collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.WithComponent("metrics").WithError(err).Warn("failed to write prometheus textfile")
		}
	}

	return printReport(cmd.OutOrStdout(), report, artifacts)
}

// writeReport writes every configured format and uploads the artifacts
// when S3 storage is enabled.
func writeReport(ctx context.Context, cfg *config.Config, cl *clients, log *logger.Log, report *models.Report) ([]writer.Artifact, error) {
	writers, err := writer.New(cfg)
	if err != nil {
		return nil, err
	}

	var stats metrics.WriterStats
	artifacts, err := writer.WriteAll(ctx, writers, cfg.Writer.OutputDir, report)
	for _, a := range artifacts {
		stats.FilesWritten++
		stats.BytesWritten += a.Size
	}
	if err != nil {
		stats.ErrorsCount++
		metrics.ReportWriter(log, "writer", stats)
		return nil, err
	}

	if cfg.Storage.S3.Enabled {
		uploaded, err := writer.NewS3Uploader(cl.s3, cfg).Upload(ctx, report, artifacts)
		if err != nil {
			stats.ErrorsCount++
			metrics.ReportWriter(log, "writer", stats)
			return nil, err
		}
		stats.Uploaded = int64(len(uploaded))
		artifacts = uploaded
	}

	if cfg.Storage.Kafka.Enabled {
		if err := publishSummary(ctx, cfg.Storage.Kafka, report); err != nil {
			stats.ErrorsCount++
			metrics.ReportWriter(log, "writer", stats)
			return nil, err
		}
	}

	metrics.ReportWriter(log, "writer", stats)
	return artifacts, nil
}

func publishSummary(ctx context.Context, cfg config.KafkaConfig, report *models.Report) error {
	publisher, err := writer.NewKafkaPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	_, err = publisher.Publish(ctx, report)
	return err
}

func printReport(w io.Writer, report *models.Report, artifacts []writer.Artifact) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", report.RunID)
	fmt.Fprintf(tw, "rows read\t%d\n", report.RowsRead)
	fmt.Fprintf(tw, "rows rejected\t%d\n", report.RowsRejected)
	fmt.Fprintf(tw, "records loaded\t%d\n", report.RecordsLoaded)
	for _, reason := range models.DropReasons {
		if n := report.RecordsDropped[reason]; n > 0 {
			fmt.Fprintf(tw, "dropped (%s)\t%d\n", reason, n)
		}
	}
	fmt.Fprintf(tw, "records accepted\t%d\n", report.RecordsAccepted)
	for _, a := range artifacts {
		location := a.Path
		if a.URI != "" {
			location = a.URI
		}
		fmt.Fprintf(tw, "%s\t%s\n", a.Name, location)
	}
	return tw.Flush()
}
