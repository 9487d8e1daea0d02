package usecase

import (
	"errors"
	"fmt"
	"time"

	"EarnScan/internal/domain/models"
	"EarnScan/pkg/util"
)

// ErrMalformedDate is the only error class allowed to abort a scan before it
// starts; everything downstream degrades per candidate instead.
var ErrMalformedDate = errors.New("date must be in MM/DD/YYYY format")

const marketCloseHour = 16

// ResolveScanDates picks the post-market date and pairs it with the next
// business day for pre-market events. With no explicit date the post-market
// date is today in loc until the 16:00 close, tomorrow after it.
func ResolveScanDates(explicit string, now time.Time, loc *time.Location) (models.ScanDates, error) {
	var post time.Time
	if explicit != "" {
		d, err := util.ParseDateUS(explicit)
		if err != nil {
			return models.ScanDates{}, fmt.Errorf("%w: got %q", ErrMalformedDate, explicit)
		}
		post = d
	} else {
		local := now.In(loc)
		close := time.Date(local.Year(), local.Month(), local.Day(), marketCloseHour, 0, 0, 0, loc)
		if local.Before(close) {
			post = util.Midnight(local)
		} else {
			post = util.Midnight(local.AddDate(0, 0, 1))
		}
	}
	return models.ScanDates{PostMarket: post, PreMarket: util.NextBusinessDay(post)}, nil
}
