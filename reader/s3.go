package reader

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"optionsflow/internal/storage"
	"optionsflow/logger"
)

// ObjectGetter is the S3 read call used by S3Fetcher.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads s3://bucket/key snapshots.
type S3Fetcher struct {
	client ObjectGetter
	log    *logger.Log
}

func NewS3Fetcher(client ObjectGetter) *S3Fetcher {
	return &S3Fetcher{client: client, log: logger.GetLogger()}
}

func (f *S3Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := storage.ParseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3 object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3 object %s/%s: %w", bucket, key, err)
	}

	log := f.log.WithComponent("s3_fetcher").WithFields(logger.Fields{"bucket": bucket, "key": key})
	logger.LogPerformanceEntry(log, "s3_fetcher", "get_object", time.Since(start), logger.Fields{"bytes": len(data)})
	return data, nil
}
