package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://chains/spy/2023/spy_eod_202301.txt")
	require.NoError(t, err)
	assert.Equal(t, "chains", bucket)
	assert.Equal(t, "spy/2023/spy_eod_202301.txt", key)
}

func TestParseS3URLErrors(t *testing.T) {
	for _, raw := range []string{"https://chains/a.csv", "s3://chains", "s3:///a.csv"} {
		_, _, err := ParseS3URL(raw)
		assert.Error(t, err, raw)
	}
}
