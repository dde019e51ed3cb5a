// Package pricing computes the deterministic cost of a rental window.
package pricing

import (
	"errors"
	"time"

	"autorent/internal/domain"
)

var (
	ErrNonPositiveRate = errors.New("pricing: daily rate must be positive")
	ErrInvalidWindow   = errors.New("pricing: window must have positive duration")
)

const day = 24 * time.Hour

// Days measures a half-open [start, end) window in whole rental days,
// rounding partial days up, with a floor of one day: a same-day rental still
// costs a full day.
func Days(start, end time.Time) (int64, error) {
	d := end.Sub(start)
	if d <= 0 {
		return 0, ErrInvalidWindow
	}
	days := int64(d / day)
	if d%day > 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days, nil
}

// Quote prices the window at the given daily rate. Amounts stay in integer
// minor units throughout, so days * rate needs no rounding step.
func Quote(rate domain.Money, start, end time.Time) (domain.Money, error) {
	if !rate.IsPositive() {
		return domain.Money{}, ErrNonPositiveRate
	}
	days, err := Days(start, end)
	if err != nil {
		return domain.Money{}, err
	}
	return rate.MultiplyDays(days), nil
}
