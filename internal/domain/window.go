package domain

import (
	"fmt"
	"time"
)

// Window is the half-open interval [From, To) the source fetchers filter
// against. Every row of SOURCE_A/SOURCE_B falls strictly inside it.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ResolveWindow turns (period_back, period_number,
// period_type) into a concrete [date_from, date_to) relative to now.
func ResolveWindow(now time.Time, periodBack, periodNumber int, periodType PeriodType) (Window, error) {
	if periodNumber <= 0 {
		return Window{}, fmt.Errorf("%w: period_number must be positive", ErrConfigInvalid)
	}
	if periodBack < 0 {
		return Window{}, fmt.Errorf("%w: period_back must not be negative", ErrConfigInvalid)
	}

	switch periodType {
	case PeriodDay:
		dateTo := truncateToDay(now).AddDate(0, 0, -(periodBack - periodNumber))
		dateFrom := dateTo.AddDate(0, 0, -periodNumber)
		return Window{From: dateFrom, To: dateTo}, nil

	case PeriodWeek:
		dateTo := truncateToDay(now).AddDate(0, 0, -7*(periodBack-periodNumber))
		dateFrom := dateTo.AddDate(0, 0, -7*periodNumber)
		return Window{From: dateFrom, To: dateTo}, nil

	case PeriodMonth:
		currentMonthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		dateFrom := currentMonthStart.AddDate(0, -periodBack, 0)
		dateTo := dateFrom.AddDate(0, periodNumber, 0)
		return Window{From: dateFrom, To: dateTo}, nil

	default:
		return Window{}, fmt.Errorf("%w: unknown period_type %q", ErrConfigInvalid, periodType)
	}
}
