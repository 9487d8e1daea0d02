package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EarnScan/internal/domain/models"
	"EarnScan/internal/service/ratelimit"
	"EarnScan/pkg/config"
	applogger "EarnScan/pkg/logger"
)

func newWinRateProvider(t *testing.T, baseURL string, trip int) *SessionWinRateProvider {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Providers.WinRate.ProviderConfig = testProviderConfig(baseURL)
	cfg.Providers.WinRate.Retries = 3
	cfg.Providers.WinRate.RetryBackoff = time.Millisecond
	cfg.Providers.WinRate.BreakerTrip = trip
	cfg.Providers.WinRate.BreakerTimeout = time.Minute
	return NewSessionWinRateProvider(cfg, ratelimit.New(), l)
}

// winRateServer fakes the session-gated win-rate service. Tokens are issued
// sequentially; rejectToken forces one round of session rebuilding.
type winRateServer struct {
	mu          sync.Mutex
	sessions    int
	fetches     int
	rejectToken string
	alwaysFail  bool
}

func (s *winRateServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/session":
			s.sessions++
			fmt.Fprintf(w, `{"token":"tok-%d"}`, s.sessions)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v1/winrate/"):
			s.fetches++
			if s.alwaysFail || r.Header.Get("X-Session-Token") == s.rejectToken {
				http.Error(w, "session expired", http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `{"symbol":"AAA","win_rate":62.5,"win_quarters":8}`)
		default:
			http.NotFound(w, r)
		}
	}
}

func (s *winRateServer) counts() (sessions, fetches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions, s.fetches
}

func TestWinRateSessionReuse(t *testing.T) {
	fake := &winRateServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := newWinRateProvider(t, srv.URL, 10)

	stats, err := p.Fetch(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, models.WinRateStats{WinRate: 62.5, Quarters: 8}, stats)

	_, err = p.Fetch(context.Background(), "AAA")
	require.NoError(t, err)

	sessions, fetches := fake.counts()
	assert.Equal(t, 1, sessions, "a working session is reused across fetches")
	assert.Equal(t, 2, fetches)
}

func TestWinRateRebuildsStaleSession(t *testing.T) {
	fake := &winRateServer{rejectToken: "tok-1"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := newWinRateProvider(t, srv.URL, 10)

	stats, err := p.Fetch(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, models.WinRateStats{WinRate: 62.5, Quarters: 8}, stats)

	sessions, fetches := fake.counts()
	assert.Equal(t, 2, sessions, "the rejected token forces one session rebuild")
	assert.Equal(t, 2, fetches)
}

func TestWinRateDegradesToNeutralAfterRetries(t *testing.T) {
	fake := &winRateServer{alwaysFail: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := newWinRateProvider(t, srv.URL, 10)

	stats, err := p.Fetch(context.Background(), "AAA")
	require.NoError(t, err, "an unreachable service degrades, it does not fail the candidate")
	assert.Equal(t, models.WinRateStats{}, stats)

	sessions, fetches := fake.counts()
	assert.Equal(t, 3, fetches, "every configured attempt was spent")
	assert.Equal(t, 3, sessions, "each failed attempt rebuilds the session from scratch")
}

func TestWinRateBreakerShortCircuits(t *testing.T) {
	fake := &winRateServer{alwaysFail: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := newWinRateProvider(t, srv.URL, 1)

	stats, err := p.Fetch(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, models.WinRateStats{}, stats)

	_, fetchesAfterFirst := fake.counts()
	assert.Equal(t, 1, fetchesAfterFirst, "the open breaker stops the remaining attempts")

	stats, err = p.Fetch(context.Background(), "BBB")
	require.NoError(t, err)
	assert.Equal(t, models.WinRateStats{}, stats)

	_, fetchesAfterSecond := fake.counts()
	assert.Equal(t, 1, fetchesAfterSecond, "while open, no traffic reaches the service at all")
}
