// Package fetcher performs one logical outbound fetch against the source
// host: a jittered pre-attempt delay, a fresh identity per attempt, a fixed
// browser header profile, and bounded retry on the failure classes the
// source is known to emit. HTTP statuses are data, never errors; only
// transport-level failures surface as errors.
package fetcher

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/subdex/subdex/internal/config"
	"github.com/subdex/subdex/internal/identity"
	"github.com/subdex/subdex/internal/metrics"
)

// Response is the outcome of one logical fetch. The status code is carried
// as data for the caller to inspect.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// Options configures one Fetcher instance.
type Options struct {
	// MaxAttempts caps attempts per logical fetch. Transport failures and
	// HTTP 403 (the source's soft anti-automation signal) are retried with a
	// new identity up to this cap; any other non-200 fails the call
	// immediately.
	MaxAttempts int

	// JitterMin and JitterMax bound the randomized delay slept before each
	// attempt to avoid request-rate fingerprinting.
	JitterMin time.Duration
	JitterMax time.Duration

	// Referer is sent with every request as part of the fixed header profile.
	Referer string
}

// Fetcher issues the outbound requests. Safe for concurrent use.
type Fetcher struct {
	httpClient *http.Client
	pool       *identity.Pool
	opts       Options
	policy     retrypolicy.RetryPolicy[*Response]
}

// New creates a Fetcher executing the given retry options.
//
// The retry policy is a value: max attempts, the retryable predicate
// (transport failure or 403), and last-failure propagation. The jitter delay
// is applied inside each attempt rather than as a between-attempt policy
// delay so that the very first attempt is jittered too.
func New(httpClient *http.Client, pool *identity.Pool, opts Options) *Fetcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	logger := config.GetLogger()

	policy := retrypolicy.NewBuilder[*Response]().
		HandleIf(func(resp *Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode == http.StatusForbidden)
		}).
		WithMaxAttempts(opts.MaxAttempts).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*Response]) {
			evt := logger.Debug().Int("attempt", e.Attempts())
			if err := e.LastError(); err != nil {
				evt = evt.Err(err)
			} else if r := e.LastResult(); r != nil {
				evt = evt.Int("status", r.StatusCode)
			}
			evt.Msg("Retrying fetch with a new identity")
		}).
		Build()

	return &Fetcher{
		httpClient: httpClient,
		pool:       pool,
		opts:       opts,
		policy:     policy,
	}
}

// Fetch performs one logical fetch of url. On success the response is
// returned with whatever status the source produced; the returned error is
// non-nil only for transport-level failure after retries are exhausted, and
// then it is the last failure observed.
func (f *Fetcher) Fetch(ctx context.Context, fetchURL string) (*Response, error) {
	return failsafe.With[*Response](f.policy).
		WithContext(ctx).
		Get(func() (*Response, error) {
			return f.attempt(ctx, fetchURL)
		})
}

// attempt issues a single request with a freshly drawn identity.
func (f *Fetcher) attempt(ctx context.Context, fetchURL string) (*Response, error) {
	logger := config.GetLogger()

	if err := f.jitterSleep(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}
	identity.ApplyHeaders(req, f.pool.Pick(), f.opts.Referer)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.SourceFetchAttemptsTotal.WithLabelValues("transport_error").Inc()
		logger.Debug().Err(err).Str("url", fetchURL).Msg("Fetch attempt failed at transport level")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.SourceFetchAttemptsTotal.WithLabelValues("transport_error").Inc()
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		metrics.SourceFetchAttemptsTotal.WithLabelValues("ok").Inc()
	case resp.StatusCode == http.StatusForbidden:
		metrics.SourceFetchAttemptsTotal.WithLabelValues("forbidden").Inc()
	default:
		metrics.SourceFetchAttemptsTotal.WithLabelValues("rejected").Inc()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        fetchURL,
	}, nil
}

// jitterSleep waits a randomized duration within the configured bounds,
// cooperatively: other in-flight work is never blocked, and the wait ends
// early if ctx is cancelled.
func (f *Fetcher) jitterSleep(ctx context.Context) error {
	min, max := f.opts.JitterMin, f.opts.JitterMax
	delay := min
	if max > min {
		delay = min + time.Duration(rand.Int64N(int64(max-min)))
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewHTTPClient assembles the shared outbound HTTP client: configured
// timeout, optional proxy, and transparent response decompression.
func NewHTTPClient(cfg *config.Config) *http.Client {
	logger := config.GetLogger()

	timeout := 30 * time.Second
	if cfg.ClientTimeout != "" {
		if parsed, err := time.ParseDuration(cfg.ClientTimeout); err != nil {
			logger.Warn().Err(err).Str("timeout", cfg.ClientTimeout).Msg("Invalid timeout duration, using default 30s")
		} else {
			timeout = parsed
		}
	}

	// Clone DefaultTransport to preserve its pooling and timeout settings.
	baseTransport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.ProxyConnectionString != "" {
		proxyURL, err := url.Parse(cfg.ProxyConnectionString)
		if err != nil {
			logger.Warn().Err(err).Str("proxy", cfg.ProxyConnectionString).Msg("Invalid proxy URL, continuing without proxy")
		} else {
			baseTransport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: newCompressionTransport(baseTransport),
	}
}
