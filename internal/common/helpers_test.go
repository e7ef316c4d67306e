package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPluralizeCredits(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{1, "кредит"},
		{21, "кредит"},
		{101, "кредит"},
		{2, "кредита"},
		{4, "кредита"},
		{23, "кредита"},
		{0, "кредитов"},
		{5, "кредитов"},
		{11, "кредитов"},
		{12, "кредитов"},
		{14, "кредитов"},
		{111, "кредитов"},
		{-2, "кредита"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, PluralizeCredits(tt.n), "n=%d", tt.n)
	}
}

func TestPluralizeHours(t *testing.T) {
	require.Equal(t, "час", PluralizeHours(1))
	require.Equal(t, "часа", PluralizeHours(3))
	require.Equal(t, "часов", PluralizeHours(13))
	require.Equal(t, "час", PluralizeHours(121))
}

func TestFormatHours(t *testing.T) {
	require.Equal(t, "3.50 часа", FormatHours(3.5))
	require.Equal(t, "8.00 часов", FormatHours(8))
}

func TestPeriodOf(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)

	// 00:30 по Москве — это уже следующий календарный день,
	// хотя по UTC сутки ещё не сменились
	moment := time.Date(2026, 3, 9, 21, 30, 0, 0, time.UTC)
	p := PeriodOf(moment, loc)
	require.Equal(t, "2026-03-10", p.String())
	require.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, loc), p.Day())
	require.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, loc), p.End())
}

func TestPreviousPeriod(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)

	// Задача начисления стартует в 00:05 и считает за вчера
	now := time.Date(2026, 3, 10, 0, 5, 0, 0, loc)
	p := PreviousPeriod(now, loc)
	require.Equal(t, "2026-03-09", p.String())
}

func TestLoadLocationFallback(t *testing.T) {
	loc := LoadLocation("Not/AZone")
	_, offset := time.Now().In(loc).Zone()
	require.Equal(t, 3*60*60, offset)
}
