package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"EarnScan/internal/domain/models"
	domsvc "EarnScan/internal/domain/service"
	svcmetrics "EarnScan/internal/service/metrics"
	"EarnScan/internal/service/ratelimit"
	"EarnScan/pkg/config"
	xhttp "EarnScan/pkg/http"
	applogger "EarnScan/pkg/logger"
)

const (
	defaultWinRateRetries = 3
	defaultWinRateBackoff = 1 * time.Second
	defaultBreakerTrip    = 3
	defaultBreakerTimeout = 60 * time.Second
)

// SessionWinRateProvider talks to the win-rate service through an expensive
// session handshake. The session is single-flight: one caller at a time, up to
// three attempts with a fixed backoff, re-initializing the session after every
// failure. When the attempts or the circuit breaker are exhausted it degrades
// to the neutral default instead of erroring.
type SessionWinRateProvider struct {
	base    *HTTPServiceBase
	logger  *applogger.Logger
	retries int
	backoff time.Duration
	breaker *gobreaker.CircuitBreaker

	mu    sync.Mutex
	token string
}

func NewSessionWinRateProvider(cfg *config.Config, limiter *ratelimit.Limiter, l *applogger.Logger) *SessionWinRateProvider {
	wr := cfg.Providers.WinRate

	retries := wr.Retries
	if retries <= 0 {
		retries = defaultWinRateRetries
	}
	backoff := wr.RetryBackoff
	if backoff <= 0 {
		backoff = defaultWinRateBackoff
	}
	trip := wr.BreakerTrip
	if trip <= 0 {
		trip = defaultBreakerTrip
	}
	timeout := wr.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	st := gobreaker.Settings{Name: "winrate", Timeout: timeout}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= uint32(trip)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		if to == gobreaker.StateOpen {
			svcmetrics.WinRateBreakerState.Set(1)
		} else {
			svcmetrics.WinRateBreakerState.Set(0)
		}
		l.Warn("win rate breaker state changed",
			applogger.String("from", from.String()), applogger.String("to", to.String()))
	}

	return &SessionWinRateProvider{
		base:    NewHTTPServiceBase("winrate", wr.ProviderConfig, limiter),
		logger:  l,
		retries: retries,
		backoff: backoff,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

type sessionResp struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

type winRateResp struct {
	Symbol   string  `json:"symbol"`
	WinRate  float64 `json:"win_rate"`
	Quarters int     `json:"win_quarters"`
	Error    string  `json:"error"`
}

// Fetch returns the historical win-rate stats for symbol. The zero value comes
// back, with a nil error, whenever the service cannot be reached reliably.
func (p *SessionWinRateProvider) Fetch(ctx context.Context, symbol string) (models.WinRateStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.WinRateStats{}, err
		}

		stats, err := p.fetchOnce(ctx, symbol)
		if err == nil {
			return stats, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			p.logger.Debug("win rate breaker open, using neutral default",
				applogger.String("symbol", symbol))
			return models.WinRateStats{}, nil
		}

		lastErr = err
		p.token = "" // stale session is the usual culprit, rebuild it
		p.logger.Warn("win rate attempt failed",
			applogger.String("symbol", symbol),
			applogger.Int("attempt", attempt),
			applogger.Error(err))

		if attempt < p.retries {
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return models.WinRateStats{}, ctx.Err()
			}
		}
	}

	p.logger.Warn("win rate attempts exhausted, using neutral default",
		applogger.String("symbol", symbol), applogger.Error(lastErr))
	return models.WinRateStats{}, nil
}

func (p *SessionWinRateProvider) fetchOnce(ctx context.Context, symbol string) (models.WinRateStats, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		if p.token == "" {
			if err := p.initSession(ctx); err != nil {
				return nil, err
			}
		}

		var wr winRateResp
		path := "/api/v1/winrate/" + url.PathEscape(symbol)
		err := p.base.send(ctx, "fetch", &xhttp.RequestOptions{
			Method:  xhttp.MethodGet,
			URL:     p.base.baseURL + path,
			Headers: map[string]string{"X-Session-Token": p.token},
		}, &wr)
		if err != nil {
			return nil, err
		}
		if wr.Error != "" {
			return nil, fmt.Errorf("win rate for %s: %s", symbol, wr.Error)
		}
		return models.WinRateStats{WinRate: wr.WinRate, Quarters: wr.Quarters}, nil
	})
	if err != nil {
		return models.WinRateStats{}, err
	}
	return out.(models.WinRateStats), nil
}

func (p *SessionWinRateProvider) initSession(ctx context.Context) error {
	var sr sessionResp
	if err := p.base.PostJSON(ctx, "session", "/api/v1/session", nil, &sr); err != nil {
		return fmt.Errorf("init win rate session: %w", err)
	}
	if sr.Error != "" || sr.Token == "" {
		return fmt.Errorf("init win rate session: %s", sr.Error)
	}
	p.token = sr.Token
	return nil
}

var _ domsvc.WinRateProvider = (*SessionWinRateProvider)(nil)

// NeutralWinRate always answers with the neutral default. It stands in when no
// win-rate service is configured.
type NeutralWinRate struct{}

func (NeutralWinRate) Fetch(context.Context, string) (models.WinRateStats, error) {
	return models.WinRateStats{}, nil
}

var _ domsvc.WinRateProvider = NeutralWinRate{}
