package providers

import (
	"context"
	"fmt"
	"time"

	svcmetrics "EarnScan/internal/service/metrics"
	"EarnScan/internal/service/ratelimit"
	"EarnScan/pkg/config"
	xhttp "EarnScan/pkg/http"
)

// HTTPServiceBase is the shared foundation for upstream provider clients:
// one HTTP client per provider, paced by the keyed rate limiter, with latency
// and error metrics on every call.
type HTTPServiceBase struct {
	name    string
	baseURL string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	rps     float64
	burst   int
}

// NewHTTPServiceBase builds a provider client from its config block.
func NewHTTPServiceBase(name string, pc config.ProviderConfig, limiter *ratelimit.Limiter) *HTTPServiceBase {
	timeout := pc.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPServiceBase{
		name:    name,
		baseURL: pc.BaseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter: limiter,
		rps:     pc.Rate,
		burst:   pc.Burst,
	}
}

func (b *HTTPServiceBase) send(ctx context.Context, op string, opts *xhttp.RequestOptions, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("%s client not initialized", b.name)
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, b.name, b.rps, b.burst); err != nil {
			return fmt.Errorf("rate wait %s: %w", b.name, err)
		}
	}

	start := time.Now()
	err := b.client.SendAndParse(ctx, opts, dest)
	svcmetrics.ProviderLatency.WithLabelValues(b.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		svcmetrics.ProviderErrors.WithLabelValues(b.name, op).Inc()
		return fmt.Errorf("%s %s: %w", b.name, op, err)
	}
	return nil
}

// GetJSON fetches `path` under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) GetJSON(ctx context.Context, op, path string, query map[string][]string, dest interface{}) error {
	return b.send(ctx, op, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, dest)
}

// PostJSON posts the given payload to `path` under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, op, path string, payload, dest interface{}) error {
	return b.send(ctx, op, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
}

// PostJSONWithRetry posts JSON with up to `attempts` tries for transient errors.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, op, path string, payload, dest interface{}, attempts int) error {
	return b.withRetry(ctx, attempts, func() error {
		return b.PostJSON(ctx, op, path, payload, dest)
	})
}

// GetJSONWithRetry fetches JSON with up to `attempts` tries for transient errors.
func (b *HTTPServiceBase) GetJSONWithRetry(ctx context.Context, op, path string, query map[string][]string, dest interface{}, attempts int) error {
	return b.withRetry(ctx, attempts, func() error {
		return b.GetJSON(ctx, op, path, query, dest)
	})
}

func (b *HTTPServiceBase) withRetry(ctx context.Context, attempts int, call func() error) error {
	if attempts <= 1 {
		return call()
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = call()
		if err == nil {
			return nil
		}
		// linear backoff
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
