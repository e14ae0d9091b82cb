package writer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

// SummaryParquet is the name of the parquet artifact.
const SummaryParquet = "summary.parquet"

// ParquetRecord is one metric of one group with every statistic as a column.
type ParquetRecord struct {
	RunID     string    `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Grouping  string    `parquet:"name=grouping, type=BYTE_ARRAY, convertedtype=UTF8"`
	Group     string    `parquet:"name=group, type=BYTE_ARRAY, convertedtype=UTF8"`
	Subgroup  string    `parquet:"name=subgroup, type=BYTE_ARRAY, convertedtype=UTF8"`
	Metric    string    `parquet:"name=metric, type=BYTE_ARRAY, convertedtype=UTF8"`
	Records   int64     `parquet:"name=records, type=INT64"`
	Count     int64     `parquet:"name=count, type=INT64"`
	Mean      float64   `parquet:"name=mean, type=DOUBLE"`
	Std       float64   `parquet:"name=std, type=DOUBLE"`
	Min       float64   `parquet:"name=min, type=DOUBLE"`
	Max       float64   `parquet:"name=max, type=DOUBLE"`
	QuantileP []float64 `parquet:"name=quantile_p, type=DOUBLE, repetitiontype=REPEATED"`
	QuantileV []float64 `parquet:"name=quantile_value, type=DOUBLE, repetitiontype=REPEATED"`
}

// memoryFileWriter implements source.ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

// Seek reports the write position; the writer only appends.
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// ParquetWriter writes the summary table as a single parquet file.
type ParquetWriter struct {
	dir         string
	compression string
	log         *logger.Log
}

func NewParquetWriter(dir, compression string) *ParquetWriter {
	return &ParquetWriter{dir: dir, compression: strings.ToLower(compression), log: logger.GetLogger()}
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "zstd":
		return parquet.CompressionCodec_ZSTD
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

func parquetRecords(report *models.Report) []ParquetRecord {
	var out []ParquetRecord
	add := func(grouping string, groups []models.GroupSummary) {
		for _, g := range groups {
			for _, m := range report.Summary.Metrics {
				s := g.Metrics[m]
				rec := ParquetRecord{
					RunID:    report.RunID,
					Grouping: grouping,
					Group:    g.Group,
					Subgroup: g.Subgroup,
					Metric:   string(m),
					Records:  int64(g.Records),
					Count:    int64(s.Count),
					Mean:     s.Mean,
					Std:      s.StdDev,
					Min:      s.Min,
					Max:      s.Max,
				}
				for _, q := range s.Quantiles {
					rec.QuantileP = append(rec.QuantileP, q.P)
					rec.QuantileV = append(rec.QuantileV, q.Value)
				}
				out = append(out, rec)
			}
		}
	}
	add(GroupingMoneyness, report.Summary.ByMoneyness)
	add(GroupingDTE, report.Summary.ByBucket)
	return out
}

func (w *ParquetWriter) encode(records []ParquetRecord) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(w.compression)

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func (w *ParquetWriter) Write(ctx context.Context, report *models.Report) ([]Artifact, error) {
	log := w.log.WithComponent("parquet_writer").WithFields(logger.Fields{
		"run_id":    report.RunID,
		"operation": "create_parquet_file",
	})

	records := parquetRecords(report)
	data, err := w.encode(records)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return nil, err
	}
	a, err := writeFile(w.dir, SummaryParquet, appconfig.FormatParquet, data, len(records))
	if err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"file_size":   a.Size,
		"records":     a.Records,
		"compression": w.compression,
	}).Info("parquet file created successfully")
	return []Artifact{a}, nil
}
