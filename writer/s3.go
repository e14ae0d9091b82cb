package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	appconfig "optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

// ObjectPutter is the part of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader copies written artifacts to a partitioned S3 prefix.
type S3Uploader struct {
	client       ObjectPutter
	bucket       string
	partitioning appconfig.PartitioningConfig
	version      string
	workers      int
	log          *logger.Log
}

func NewS3Uploader(client ObjectPutter, cfg *appconfig.Config) *S3Uploader {
	log := logger.GetLogger()
	log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket": cfg.Storage.S3.Bucket,
		"prefix": cfg.Writer.Partitioning.Prefix,
	}).Info("s3 uploader initialized")

	return &S3Uploader{
		client:       client,
		bucket:       cfg.Storage.S3.Bucket,
		partitioning: cfg.Writer.Partitioning,
		version:      cfg.Optionsflow.Version,
		workers:      4,
		log:          log,
	}
}

// generateS3Key builds {prefix}/snapshot=<date>/run=<id>/<file>.
func (u *S3Uploader) generateS3Key(report *models.Report, name string) string {
	layout := u.partitioning.TimeFormat
	if layout == "" {
		layout = models.DateLayout
	}
	parts := []string{}
	if prefix := strings.Trim(u.partitioning.Prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts,
		fmt.Sprintf("snapshot=%s", snapshotPartition(report, layout)),
		fmt.Sprintf("run=%s", report.RunID),
		name,
	)
	return path.Join(parts...)
}

func contentType(format string) string {
	switch format {
	case appconfig.FormatCSV:
		return "text/csv"
	case appconfig.FormatJSON, "manifest":
		return "application/json"
	case appconfig.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Upload puts every artifact and returns them with URI set.
func (u *S3Uploader) Upload(ctx context.Context, report *models.Report, artifacts []Artifact) ([]Artifact, error) {
	start := time.Now()
	out := append([]Artifact(nil), artifacts...)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i := range out {
		i := i
		g.Go(func() error {
			key := u.generateS3Key(report, out[i].Name)
			if err := u.uploadToS3(gctx, key, out[i]); err != nil {
				return err
			}
			out[i].URI = fmt.Sprintf("s3://%s/%s", u.bucket, key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log := u.log.WithComponent("s3_uploader").WithRun(report.RunID)
	logger.LogPerformanceEntry(log, "s3_uploader", "upload", time.Since(start), logger.Fields{"artifacts": len(out)})
	logger.LogDataFlowEntry(log, "writer", "s3", len(out), "artifacts")
	return out, nil
}

func (u *S3Uploader) uploadToS3(ctx context.Context, key string, a Artifact) error {
	log := u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"operation": "upload_to_s3",
		"s3_key":    key,
		"data_size": a.Size,
	})

	data, err := os.ReadFile(a.Path)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", a.Path, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(a.Format)),
		Metadata: map[string]string{
			"format":              a.Format,
			"record-count":        fmt.Sprintf("%d", a.Records),
			"optionsflow-version": u.version,
		},
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		log.WithError(err).WithEnv("S3_BUCKET").Error("failed to upload to S3")
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", u.bucket, err)
	}

	log.Debug("successfully uploaded to S3")
	return nil
}
