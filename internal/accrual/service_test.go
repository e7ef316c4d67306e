package accrual

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/identity"
)

func TestComputeAccrual(t *testing.T) {
	tests := []struct {
		name         string
		baseline     float64
		total        float64
		wantRaw      float64
		wantCredited float64
	}{
		{"рост под потолком", 2.0, 5.5, 3.5, 3.5},
		{"рост над потолком", 2.0, 13.0, 11.0, 8.0},
		{"нулевой рост", 4.0, 4.0, 0, 0},
		{"регресс итога", 10.0, 4.0, 0, 0},
		{"суточный предел", 0, 40.0, 24.0, 8.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, credited := computeAccrual(tt.baseline, tt.total, 8, 24)
			require.Equal(t, tt.wantRaw, raw)
			require.Equal(t, tt.wantCredited, credited)
		})
	}
}

// fakeTotals — источник часов с управляемыми отказами.
type fakeTotals struct {
	authoritative map[string]float64
	authErr       error
	local         map[string]float64
	localErr      error
}

func (f *fakeTotals) AuthoritativeTotals(context.Context, identity.Platform, common.Period) (map[string]float64, error) {
	return f.authoritative, f.authErr
}

func (f *fakeTotals) LocalHours(context.Context, identity.Platform, common.Period) (map[string]float64, error) {
	return f.local, f.localErr
}

// fakeLister отдаёт фиксированный список аккаунтов.
type fakeLister struct {
	accounts []*identity.Account
}

func (f *fakeLister) ListAccounts(context.Context, identity.Platform) ([]*identity.Account, error) {
	return f.accounts, nil
}

// fakeLedger повторяет семантику репозитория в памяти: защита периода,
// сдвиг отметки, зачисление.
type fakeLedger struct {
	baselines map[string]float64
	credits   map[string]float64
	applied   map[string]bool // platform/account/period
	failFor   map[string]error
	failTimes map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		baselines: make(map[string]float64),
		credits:   make(map[string]float64),
		applied:   make(map[string]bool),
		failFor:   make(map[string]error),
		failTimes: make(map[string]int),
	}
}

func (f *fakeLedger) Apply(_ context.Context, platform identity.Platform, accountID string, period common.Period, totalHours, cap, dayLimit float64, degraded bool) (*Event, error) {
	if err, ok := f.failFor[accountID]; ok {
		n, limited := f.failTimes[accountID]
		if !limited {
			return nil, err // отказ без лимита
		}
		if n > 0 {
			f.failTimes[accountID] = n - 1
			return nil, err
		}
	}

	guard := string(platform) + "/" + accountID + "/" + period.String()
	if f.applied[guard] {
		return nil, nil
	}

	baseline := f.baselines[accountID]
	raw, credited := computeAccrual(baseline, totalHours, cap, dayLimit)

	f.applied[guard] = true
	f.baselines[accountID] = totalHours
	f.credits[accountID] += credited

	return &Event{
		Platform: platform, AccountID: accountID, Period: period.String(),
		RawHours: raw, Credited: credited,
		PreviousHours: baseline, NewHours: totalHours, Degraded: degraded,
	}, nil
}

func account(id string) *identity.Account {
	return &identity.Account{Platform: identity.Plex, AccountID: id, Username: "u" + id}
}

func testPeriod() common.Period {
	loc := time.FixedZone("MSK", 3*60*60)
	return common.PeriodOf(time.Date(2026, 3, 9, 12, 0, 0, 0, loc), loc)
}

func TestAccrueCapAndBaseline(t *testing.T) {
	ledger := newFakeLedger()
	ledger.baselines["1"] = 2.0
	svc := NewService(
		&fakeTotals{authoritative: map[string]float64{"1": 13.0}},
		&fakeLister{accounts: []*identity.Account{account("1")}},
		ledger, 8, 24, 3,
	)

	summary, err := svc.Accrue(context.Background(), identity.Plex, testPeriod())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.False(t, summary.Degraded)

	require.Len(t, summary.Events, 1)
	e := summary.Events[0]
	require.Equal(t, 11.0, e.RawHours)
	require.Equal(t, 8.0, e.Credited)
	require.Equal(t, 13.0, ledger.baselines["1"])
}

func TestAccrueIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	svc := NewService(
		&fakeTotals{authoritative: map[string]float64{"1": 5.0}},
		&fakeLister{accounts: []*identity.Account{account("1")}},
		ledger, 8, 24, 3,
	)
	ctx := context.Background()
	period := testPeriod()

	first, err := svc.Accrue(ctx, identity.Plex, period)
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)
	require.Equal(t, 5.0, ledger.credits["1"])

	// Повторный прогон того же периода ничего не доначисляет
	second, err := svc.Accrue(ctx, identity.Plex, period)
	require.NoError(t, err)
	require.Equal(t, 0, second.Processed)
	require.Equal(t, 1, second.Skipped)
	require.Equal(t, 5.0, ledger.credits["1"])
}

func TestAccrueRegression(t *testing.T) {
	ledger := newFakeLedger()
	ledger.baselines["1"] = 10.0
	svc := NewService(
		&fakeTotals{authoritative: map[string]float64{"1": 4.0}},
		&fakeLister{accounts: []*identity.Account{account("1")}},
		ledger, 8, 24, 3,
	)

	summary, err := svc.Accrue(context.Background(), identity.Plex, testPeriod())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 0.0, summary.TotalCredited)
	// Отметка сброшена вниз без ошибки
	require.Equal(t, 4.0, ledger.baselines["1"])
}

func TestAccrueDegradedFallback(t *testing.T) {
	ledger := newFakeLedger()
	ledger.baselines["1"] = 7.0
	svc := NewService(
		&fakeTotals{
			authErr: common.ErrNoAuthoritativeData,
			local:   map[string]float64{"1": 2.5},
		},
		&fakeLister{accounts: []*identity.Account{account("1")}},
		ledger, 8, 24, 3,
	)

	summary, err := svc.Accrue(context.Background(), identity.Plex, testPeriod())
	require.NoError(t, err)
	require.True(t, summary.Degraded)
	require.Len(t, summary.Events, 1)

	// Локальные часы — прирост периода: итог = отметка + часы
	e := summary.Events[0]
	require.True(t, e.Degraded)
	require.Equal(t, 2.5, e.Credited)
	require.Equal(t, 9.5, ledger.baselines["1"])
}

func TestAccrueMissingAccountIsNotZero(t *testing.T) {
	ledger := newFakeLedger()
	ledger.baselines["2"] = 6.0
	svc := NewService(
		&fakeTotals{authoritative: map[string]float64{"1": 3.0}},
		&fakeLister{accounts: []*identity.Account{account("1"), account("2")}},
		ledger, 8, 24, 3,
	)

	summary, err := svc.Accrue(context.Background(), identity.Plex, testPeriod())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	// Аккаунт без данных пропущен: отметка не тронута, регресса нет
	require.Equal(t, 6.0, ledger.baselines["2"])
}

func TestAccruePartialBatch(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failFor["1"] = context.DeadlineExceeded
	svc := NewService(
		&fakeTotals{authoritative: map[string]float64{"1": 3.0, "2": 4.0}},
		&fakeLister{accounts: []*identity.Account{account("1"), account("2")}},
		ledger, 8, 24, 3,
	)

	summary, err := svc.Accrue(context.Background(), identity.Plex, testPeriod())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 4.0, ledger.credits["2"])
}

func TestAccrueRetriesSerializationFailure(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failFor["1"] = &pgconn.PgError{Code: "40001"}
	ledger.failTimes["1"] = 2 // две неудачи, третья попытка проходит
	svc := NewService(
		&fakeTotals{authoritative: map[string]float64{"1": 3.0}},
		&fakeLister{accounts: []*identity.Account{account("1")}},
		ledger, 8, 24, 3,
	)

	summary, err := svc.Accrue(context.Background(), identity.Plex, testPeriod())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 0, summary.Failed)
	require.Equal(t, 3.0, ledger.credits["1"])
}
