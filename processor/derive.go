package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

var hundred = decimal.NewFromInt(100)

// Classify returns the moneyness of rec. A strike within tolerancePct of the
// underlying, edge included, is ATM regardless of option type.
func Classify(rec models.OptionRecord, tolerancePct decimal.Decimal) models.Moneyness {
	band := rec.UnderlyingPrice.Mul(tolerancePct).Div(hundred)
	if rec.StrikePrice.Sub(rec.UnderlyingPrice).Abs().LessThanOrEqual(band) {
		return models.ATM
	}
	switch rec.OptionType {
	case models.Call:
		if rec.StrikePrice.LessThan(rec.UnderlyingPrice) {
			return models.ITM
		}
	case models.Put:
		if rec.StrikePrice.GreaterThan(rec.UnderlyingPrice) {
			return models.ITM
		}
	}
	return models.OTM
}

// Deriver attaches moneyness and DTE bucket to accepted records.
type Deriver struct {
	tolerancePct decimal.Decimal
	buckets      []models.DTEBucket
	workers      int
	chunkSize    int
	log          *logger.Log
}

func NewDeriver(analysis config.AnalysisConfig, proc config.ProcessorConfig) (*Deriver, error) {
	buckets, err := NewBuckets(analysis.DTEBucketEdges)
	if err != nil {
		return nil, err
	}
	workers := proc.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	chunk := proc.ChunkSize
	if chunk <= 0 {
		chunk = 2048
	}
	log := logger.GetLogger()
	log.WithComponent("deriver").WithFields(logger.Fields{
		"atm_tolerance_pct": analysis.ATMTolerancePct,
		"buckets":           len(buckets),
		"workers":           workers,
	}).Debug("deriver initialized")

	return &Deriver{
		tolerancePct: decimal.NewFromFloat(analysis.ATMTolerancePct),
		buckets:      buckets,
		workers:      workers,
		chunkSize:    chunk,
		log:          log,
	}, nil
}

// Buckets returns the configured partition in output order.
func (d *Deriver) Buckets() []models.DTEBucket {
	return d.buckets
}

// Enrich derives the tags of a single record.
func (d *Deriver) Enrich(rec models.OptionRecord) (models.EnrichedRecord, error) {
	bucket, ok := BucketFor(d.buckets, rec.DaysToExpiry)
	if !ok {
		return models.EnrichedRecord{}, fmt.Errorf("%s:%d: days to expiry %d outside every bucket", rec.Source, rec.Line, rec.DaysToExpiry)
	}
	return models.EnrichedRecord{
		OptionRecord: rec,
		Moneyness:    Classify(rec, d.tolerancePct),
		Bucket:       bucket,
	}, nil
}

// Derive returns one enriched record per input record, same order. Large
// inputs are split into chunks processed by up to max_workers goroutines;
// the result is identical to a sequential pass.
func (d *Deriver) Derive(ctx context.Context, records []models.OptionRecord) ([]models.EnrichedRecord, error) {
	start := time.Now()
	out := make([]models.EnrichedRecord, len(records))

	enrichRange := func(ctx context.Context, lo, hi int) error {
		for i := lo; i < hi; i++ {
			if (i-lo)%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			rec, err := d.Enrich(records[i])
			if err != nil {
				return err
			}
			out[i] = rec
		}
		return nil
	}

	if d.workers <= 1 || len(records) <= d.chunkSize {
		if err := enrichRange(ctx, 0, len(records)); err != nil {
			return nil, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.workers)
		for lo := 0; lo < len(records); lo += d.chunkSize {
			lo, hi := lo, lo+d.chunkSize
			if hi > len(records) {
				hi = len(records)
			}
			g.Go(func() error { return enrichRange(gctx, lo, hi) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	log := d.log.WithComponent("deriver")
	logger.LogPerformanceEntry(log, "deriver", "derive", time.Since(start), logger.Fields{"records": len(records)})
	logger.LogDataFlowEntry(log, "cleaner", "aggregator", len(out), "enriched_records")
	return out, nil
}
