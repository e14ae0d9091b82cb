package main

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"optionsflow/config"
	"optionsflow/internal/storage"
	"optionsflow/reader"
)

// clients holds the remote clients shared by fetching and uploading.
type clients struct {
	fetcher *reader.MultiFetcher
	s3      *s3.Client
}

// newClients builds the http fetcher and, when S3 is enabled or any input
// uses s3://, the S3 client.
func newClients(ctx context.Context, cfg *config.Config, inputs []string) (*clients, error) {
	httpFetcher := reader.NewHTTPFetcher(cfg.Fetcher)
	c := &clients{
		fetcher: reader.NewMultiFetcher().Handle("http", httpFetcher).Handle("https", httpFetcher),
	}

	needS3 := cfg.Storage.S3.Enabled
	for _, in := range inputs {
		if strings.HasPrefix(in, "s3://") {
			needS3 = true
		}
	}
	if !needS3 {
		return c, nil
	}

	client, err := storage.NewS3Client(ctx, cfg.Storage.S3)
	if err != nil {
		return nil, err
	}
	c.s3 = client
	c.fetcher.Handle("s3", reader.NewS3Fetcher(client))
	return c, nil
}
