package reader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/config"
)

func testFetcher() *HTTPFetcher {
	f := NewHTTPFetcher(config.FetcherConfig{
		Timeout:   time.Second,
		UserAgent: "optionsflow-test",
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 10},
		Retry:     config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiplier: 2},
	})
	f.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return f
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "optionsflow-test", r.Header.Get("User-Agent"))
		w.Write([]byte("quote_date,strike\n"))
	}))
	defer srv.Close()

	body, err := testFetcher().Fetch(context.Background(), srv.URL+"/chain.csv?apikey=secret")
	require.NoError(t, err)
	assert.Equal(t, "quote_date,strike\n", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPFetcherDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL+"/missing.csv?apikey=secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.NotContains(t, err.Error(), "secret")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPFetcherGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

type stubFetcher struct {
	data []byte
	err  error
	urls []string
}

func (s *stubFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	s.urls = append(s.urls, rawURL)
	return s.data, s.err
}

func TestMultiFetcherRoutesByScheme(t *testing.T) {
	web := &stubFetcher{data: []byte("web")}
	obj := &stubFetcher{data: []byte("obj")}
	m := NewMultiFetcher().Handle("https", web).Handle("s3", obj)

	got, err := m.Fetch(context.Background(), "s3://chains/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "obj", string(got))

	got, err = m.Fetch(context.Background(), "https://example.com/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "web", string(got))

	_, err = m.Fetch(context.Background(), "ftp://example.com/a.csv")
	assert.Error(t, err)
}

func TestRemoteSourceLoadsThroughFetcher(t *testing.T) {
	content := "quote_date,underlying_price,strike_price,option_type,expiry_date,bid,ask\n2023-03-01,400,400,C,2023-03-11,5,5.2\n"
	f := &stubFetcher{data: []byte(content)}

	src := ParseSource("https://example.com/spy/chain.csv", f)
	res, err := NewLoader(Options{}).Load(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, []string{"https://example.com/spy/chain.csv"}, f.urls)
}

func TestRemoteSourceFetchErrorIsInputError(t *testing.T) {
	f := &stubFetcher{err: errors.New("connection refused")}
	_, err := NewLoader(Options{}).Load(context.Background(), RemoteSource{URL: "https://example.com/a.csv", Fetcher: f})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestParseSource(t *testing.T) {
	assert.IsType(t, FileSource{}, ParseSource("data/spy.csv", nil))
	assert.IsType(t, RemoteSource{}, ParseSource("s3://chains/spy.csv", nil))
	assert.Equal(t, formatXLSX, formatOf("https://example.com/chain.xlsx?token=1"))
	assert.Equal(t, formatDelimited, formatOf("spy_eod_202301.txt"))
}

type fakeObjectGetter struct {
	bucket, key string
	body        []byte
}

func (f *fakeObjectGetter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func TestS3FetcherReadsObject(t *testing.T) {
	getter := &fakeObjectGetter{body: []byte("payload")}
	data, err := NewS3Fetcher(getter).Fetch(context.Background(), "s3://chains/spy/2023/chain.csv")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, "chains", getter.bucket)
	assert.Equal(t, "spy/2023/chain.csv", getter.key)
}
