package providers

import (
	"context"
	"fmt"
	"time"

	"EarnScan/internal/domain/models"
	domsvc "EarnScan/internal/domain/service"
	"EarnScan/internal/service/ratelimit"
	"EarnScan/pkg/config"
)

// HTTPCalendarSource fetches the earnings calendar for one date.
type HTTPCalendarSource struct {
	base *HTTPServiceBase
}

func NewHTTPCalendarSource(cfg *config.Config, limiter *ratelimit.Limiter) *HTTPCalendarSource {
	return &HTTPCalendarSource{
		base: NewHTTPServiceBase("calendar", cfg.Providers.Calendar, limiter),
	}
}

type calendarRow struct {
	Symbol string `json:"symbol"`
	Timing string `json:"timing"`
}

type calendarResp struct {
	Date     string        `json:"date"`
	Earnings []calendarRow `json:"earnings"`
}

func (s *HTTPCalendarSource) Fetch(ctx context.Context, date time.Time) ([]models.Candidate, error) {
	var cr calendarResp
	query := map[string][]string{"date": {date.Format("2006-01-02")}}
	if err := s.base.GetJSON(ctx, "calendar", "/api/v1/earnings/calendar", query, &cr); err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(cr.Earnings))
	for _, row := range cr.Earnings {
		if row.Symbol == "" {
			continue
		}
		candidates = append(candidates, models.Candidate{
			Symbol: row.Symbol,
			Timing: models.ParseEventTiming(row.Timing),
		})
	}
	return candidates, nil
}

var _ domsvc.EventCalendarSource = (*HTTPCalendarSource)(nil)
