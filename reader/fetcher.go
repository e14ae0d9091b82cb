package reader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"optionsflow/config"
	"optionsflow/logger"
)

// Fetcher retrieves a remote snapshot. It is the only way the pipeline
// touches the network.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPFetcher downloads http(s) resources with rate limiting and retries.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retry     config.RetryConfig
	userAgent string
	log       *logger.Log
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewHTTPFetcher creates a fetcher from the fetcher configuration section.
func NewHTTPFetcher(cfg config.FetcherConfig) *HTTPFetcher {
	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.BackoffMultiplier <= 0 {
		retry.BackoffMultiplier = 2
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		retry:     retry,
		userAgent: cfg.UserAgent,
		log:       logger.GetLogger(),
		sleep:     sleepContext,
	}
}

// Fetch downloads rawURL. Transport errors and 5xx/429 responses are retried
// with exponential backoff; other non-2xx responses fail immediately.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	log := f.log.WithComponent("http_fetcher").WithFields(logger.Fields{"url": redactURL(rawURL)})

	delay := f.retry.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= f.retry.MaxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		start := time.Now()
		body, retryable, err := f.do(ctx, rawURL)
		if err == nil {
			logger.LogPerformanceEntry(log, "http_fetcher", "fetch", time.Since(start), logger.Fields{"bytes": len(body), "attempt": attempt})
			return body, nil
		}
		lastErr = err
		if !retryable || attempt == f.retry.MaxAttempts {
			break
		}

		log.WithError(err).WithFields(logger.Fields{"attempt": attempt, "backoff_ms": delay.Milliseconds()}).Warn("fetch failed, retrying")
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= time.Duration(f.retry.BackoffMultiplier)
		if f.retry.MaxDelay > 0 && delay > f.retry.MaxDelay {
			delay = f.retry.MaxDelay
		}
	}
	return nil, fmt.Errorf("fetch %s: %w", redactURL(rawURL), lastErr)
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	return body, false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// redactURL drops query strings, which often carry API keys.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

// MultiFetcher routes a URL to a fetcher by scheme.
type MultiFetcher struct {
	schemes map[string]Fetcher
}

// NewMultiFetcher creates a router. Register fetchers with Handle.
func NewMultiFetcher() *MultiFetcher {
	return &MultiFetcher{schemes: make(map[string]Fetcher)}
}

// Handle registers f for the given URL scheme.
func (m *MultiFetcher) Handle(scheme string, f Fetcher) *MultiFetcher {
	m.schemes[scheme] = f
	return m
}

func (m *MultiFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	f, ok := m.schemes[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("no fetcher for scheme %q", u.Scheme)
	}
	return f.Fetch(ctx, rawURL)
}
