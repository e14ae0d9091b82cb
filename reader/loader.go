package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

// Options control how raw rows are interpreted.
type Options struct {
	Delimiter    rune
	DateFormat   string
	SnapshotDate time.Time
}

// OptionsFromConfig converts the input configuration section.
func OptionsFromConfig(cfg config.InputConfig) (Options, error) {
	opts := Options{Delimiter: ',', DateFormat: cfg.DateFormat}
	if d := []rune(cfg.Delimiter); len(d) == 1 {
		opts.Delimiter = d[0]
	} else if cfg.Delimiter != "" {
		return opts, fmt.Errorf("input.delimiter must be a single character")
	}
	if cfg.SnapshotDate != "" {
		t, err := time.Parse(models.DateLayout, cfg.SnapshotDate)
		if err != nil {
			return opts, fmt.Errorf("input.snapshot_date: %w", err)
		}
		opts.SnapshotDate = t
	}
	return opts, nil
}

// LoadResult is everything read from a set of sources. A wide row may carry
// one rejection per side; RowsRejected counts rows that produced no record.
type LoadResult struct {
	Records      []models.OptionRecord
	Rejections   []models.RowRejection
	RowsRead     int
	RowsRejected int
	Sources      []string
}

// Loader parses option-chain snapshots into records.
type Loader struct {
	opts Options
	log  *logger.Log
}

func NewLoader(opts Options) *Loader {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	return &Loader{opts: opts, log: logger.GetLogger()}
}

// Load reads every source in order and concatenates their records. Rows that
// cannot be parsed are rejected individually; an unreadable source or an
// input without data rows fails with *models.InputError.
func (l *Loader) Load(ctx context.Context, sources ...Source) (*LoadResult, error) {
	if len(sources) == 0 {
		return nil, &models.InputError{Err: errors.New("no input sources given")}
	}

	start := time.Now()
	res := &LoadResult{}
	for _, src := range sources {
		if err := l.loadSource(ctx, src, res); err != nil {
			return nil, err
		}
	}

	if res.RowsRead == 0 {
		return nil, &models.InputError{Source: strings.Join(res.Sources, ","), Err: models.ErrEmptyInput}
	}

	log := l.log.WithComponent("loader")
	logger.LogPerformanceEntry(log, "loader", "load", time.Since(start), logger.Fields{
		"sources":       len(sources),
		"rows_read":     res.RowsRead,
		"rows_rejected": res.RowsRejected,
		"rejections":    len(res.Rejections),
	})
	return res, nil
}

func (l *Loader) loadSource(ctx context.Context, src Source, res *LoadResult) error {
	name := src.Name()
	log := l.log.WithComponent("loader").WithFields(logger.Fields{"source": name})
	res.Sources = append(res.Sources, name)

	rc, err := src.Open(ctx)
	if err != nil {
		return &models.InputError{Source: name, Err: err}
	}
	defer rc.Close()

	var parser *rowParser
	rowsBefore, recordsBefore, rejectedBefore := res.RowsRead, len(res.Records), res.RowsRejected

	reject := func(line int, reason string) {
		res.Rejections = append(res.Rejections, models.RowRejection{Source: name, Line: line, Reason: reason})
		log.WithFields(logger.Fields{"line": line, "reason": reason}).Debug("row rejected")
	}

	handle := func(line int, fields []string, rowErr error) error {
		if parser == nil {
			if rowErr != nil {
				return &models.InputError{Source: name, Err: fmt.Errorf("unreadable header: %w", rowErr)}
			}
			p, err := newRowParser(fields, l.opts)
			if err != nil {
				return &models.InputError{Source: name, Err: err}
			}
			parser = p
			return nil
		}

		res.RowsRead++
		if res.RowsRead%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if rowErr != nil {
			res.RowsRejected++
			reject(line, rowErr.Error())
			return nil
		}

		records, reasons := parser.parse(fields)
		if len(records) == 0 {
			res.RowsRejected++
		}
		for _, rec := range records {
			rec.Source = name
			rec.Line = line
			res.Records = append(res.Records, rec)
		}
		for _, reason := range reasons {
			reject(line, reason)
		}
		return nil
	}

	switch formatOf(name) {
	case formatXLSX:
		err = readXLSX(rc, handle)
	default:
		err = readDelimited(rc, l.opts.Delimiter, handle)
	}
	if err != nil {
		var inputErr *models.InputError
		if errors.As(err, &inputErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &models.InputError{Source: name, Err: err}
	}
	if parser == nil {
		return &models.InputError{Source: name, Err: models.ErrEmptyInput}
	}

	rows := res.RowsRead - rowsBefore
	logger.LogDataFlowEntry(log, name, "cleaner", len(res.Records)-recordsBefore, "option_records")
	log.WithFields(logger.Fields{
		"rows_read":     rows,
		"rows_rejected": res.RowsRejected - rejectedBefore,
		"wide_layout":   parser.wide,
	}).Info("source loaded")
	return nil
}
