package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"optionsflow/config"
	"optionsflow/internal/metrics"
	"optionsflow/logger"
	"optionsflow/models"
	"optionsflow/processor"
	"optionsflow/reader"
)

// Pipeline runs load, clean, derive, aggregate and the supplementary
// analyses over one set of sources.
type Pipeline struct {
	cfg        *config.Config
	loader     *reader.Loader
	cleaner    *processor.Cleaner
	deriver    *processor.Deriver
	aggregator *processor.Aggregator
	log        *logger.Log

	now   func() time.Time
	newID func() string
}

func New(cfg *config.Config, loader *reader.Loader) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if loader == nil {
		opts, err := reader.OptionsFromConfig(cfg.Input)
		if err != nil {
			return nil, err
		}
		loader = reader.NewLoader(opts)
	}
	deriver, err := processor.NewDeriver(cfg.Analysis, cfg.Processor)
	if err != nil {
		return nil, fmt.Errorf("analysis.dte_bucket_edges: %w", err)
	}

	log := logger.GetLogger()
	log.WithComponent("pipeline").WithFields(logger.Fields{
		"atm_tolerance_pct": cfg.Analysis.ATMTolerancePct,
		"dte_bucket_edges":  cfg.Analysis.DTEBucketEdges,
		"max_workers":       cfg.Processor.MaxWorkers,
	}).Info("pipeline initialized")

	return &Pipeline{
		cfg:        cfg,
		loader:     loader,
		cleaner:    processor.NewCleaner(cfg.Analysis),
		deriver:    deriver,
		aggregator: processor.NewAggregator(deriver.Buckets(), cfg.Analysis.Quantiles),
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// Run executes every stage and returns the report. Input errors from the
// loader are returned unchanged so callers can match *models.InputError.
func (p *Pipeline) Run(ctx context.Context, sources ...reader.Source) (*models.Report, error) {
	log := p.log.WithComponent("pipeline")
	runID := p.newID()
	log = log.WithRun(runID)
	log.WithFields(logger.Fields{"sources": len(sources)}).Info("starting run")

	stage := time.Now()
	loaded, err := p.loader.Load(ctx, sources...)
	if err != nil {
		log.WithError(err).Error("load failed")
		return nil, err
	}
	metrics.ReportStage(p.log, metrics.StageStats{Stage: "load", Duration: time.Since(stage), RecordsIn: loaded.RowsRead, RecordsOut: len(loaded.Records)})
	metrics.EmitRejections(p.log, "", loaded.RowsRejected)
	logger.LogDataFlowEntry(log, "loader", "cleaner", len(loaded.Records), "option_records")

	stage = time.Now()
	cleaned := p.cleaner.Clean(loaded.Records)
	metrics.ReportStage(p.log, metrics.StageStats{Stage: "clean", Duration: time.Since(stage), RecordsIn: len(loaded.Records), RecordsOut: len(cleaned.Accepted)})
	metrics.EmitDropCounts(p.log, cleaned.Dropped)
	logger.LogDataFlowEntry(log, "cleaner", "deriver", len(cleaned.Accepted), "option_records")

	stage = time.Now()
	enriched, err := p.deriver.Derive(ctx, cleaned.Accepted)
	if err != nil {
		log.WithError(err).Error("derive failed")
		return nil, err
	}
	metrics.ReportStage(p.log, metrics.StageStats{Stage: "derive", Duration: time.Since(stage), RecordsIn: len(cleaned.Accepted), RecordsOut: len(enriched)})

	stage = time.Now()
	summary := p.aggregator.Summarize(enriched)
	supplementary := processor.Supplement(enriched, p.deriver.Buckets(), p.cfg.Analysis.OutlierIQRMultiplier)
	metrics.ReportStage(p.log, metrics.StageStats{Stage: "aggregate", Duration: time.Since(stage), RecordsIn: len(enriched), RecordsOut: len(summary.ByMoneyness) + len(summary.ByBucket)})

	report := &models.Report{
		RunID:         runID,
		GeneratedAt:   p.now().UTC(),
		Sources:       loaded.Sources,
		SnapshotDates: snapshotDates(loaded.Records),
		Params: models.AnalysisParams{
			ATMTolerancePct: p.cfg.Analysis.ATMTolerancePct,
			DTEBucketEdges:  append([]int(nil), p.cfg.Analysis.DTEBucketEdges...),
			Quantiles:       append([]float64(nil), p.cfg.Analysis.Quantiles...),
		},
		RowsRead:        loaded.RowsRead,
		RowsRejected:    loaded.RowsRejected,
		Rejections:      loaded.Rejections,
		RecordsLoaded:   len(loaded.Records),
		RecordsDropped:  cleaned.Dropped,
		RecordsAccepted: len(cleaned.Accepted),
		Summary:         summary,
		Supplementary:   supplementary,
	}

	log.WithFields(logger.Fields{
		"rows_read":        report.RowsRead,
		"rows_rejected":    report.RowsRejected,
		"records_loaded":   report.RecordsLoaded,
		"records_dropped":  report.TotalDropped(),
		"records_accepted": report.RecordsAccepted,
	}).Info("run completed")
	return report, nil
}

// snapshotDates lists the distinct quote dates in ascending order.
func snapshotDates(records []models.OptionRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[models.CalendarDate(r.QuoteDate).Format(models.DateLayout)] = struct{}{}
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
