package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/rapo/internal/domain"
)

func TestResolveWindow_Day(t *testing.T) {
	now := time.Date(2026, 7, 31, 14, 30, 0, 0, time.UTC)

	w, err := domain.ResolveWindow(now, 1, 1, domain.PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), w.To)
}

func TestResolveWindow_Week(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	w, err := domain.ResolveWindow(now, 1, 1, domain.PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, w.To.Sub(w.From))
	assert.Equal(t, now.AddDate(0, 0, -7), w.From)
	assert.Equal(t, now, w.To)
}

func TestResolveWindow_MonthCurrent(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	w, err := domain.ResolveWindow(now, 0, 1, domain.PeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), w.To)
}

func TestResolveWindow_MonthBack(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	w, err := domain.ResolveWindow(now, 2, 1, domain.PeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), w.To)
}

func TestResolveWindow_InvalidParams(t *testing.T) {
	now := time.Now()

	_, err := domain.ResolveWindow(now, 0, 0, domain.PeriodDay)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)

	_, err = domain.ResolveWindow(now, -1, 1, domain.PeriodDay)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)

	_, err = domain.ResolveWindow(now, 1, 1, "X")
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
}
