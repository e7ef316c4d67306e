package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/identity"
	"medialedger.ru/credits-bot/internal/telemetry"
)

// fakeStore отдаёт заранее заданные строки рейтингов.
type fakeStore struct {
	credits  []Entry
	donation []Entry
	keys     map[identity.Platform]map[string]NamedKey
}

func (f *fakeStore) CreditRows(context.Context) ([]Entry, error)   { return f.credits, nil }
func (f *fakeStore) DonationRows(context.Context) ([]Entry, error) { return f.donation, nil }
func (f *fakeStore) AccountKeys(_ context.Context, platform identity.Platform) (map[string]NamedKey, error) {
	return f.keys[platform], nil
}

// fakeHours — аналитика платформ с управляемыми отказами.
type fakeHours struct {
	rows map[identity.Platform][]telemetry.WindowRow
	errs map[identity.Platform]error
}

func (f *fakeHours) WindowHours(_ context.Context, platform identity.Platform, _, _ time.Time) ([]telemetry.WindowRow, error) {
	if err := f.errs[platform]; err != nil {
		return nil, err
	}
	return f.rows[platform], nil
}

// fakeSamples — локальная агрегация сэмплов.
type fakeSamples struct {
	aggs map[identity.Platform][]telemetry.DayAggregate
}

func (f *fakeSamples) WindowAggregate(_ context.Context, platform identity.Platform, _, _ time.Time, _ int) ([]telemetry.DayAggregate, error) {
	return f.aggs[platform], nil
}

// fakeAnnouncer копит публикации.
type fakeAnnouncer struct {
	announced []string
	admin     []string
}

func (f *fakeAnnouncer) Announce(text string) bool { f.announced = append(f.announced, text); return true }
func (f *fakeAnnouncer) NotifyAdmins(text string)  { f.admin = append(f.admin, text) }

func msk() *time.Location { return time.FixedZone("MSK", 3*60*60) }

func TestMergeSumsLinkedIdentity(t *testing.T) {
	rows := []Entry{
		{Key: identity.LinkedKey(1), Name: "Alice", Value: 3.5},
		{Key: identity.LinkedKey(1), Name: "Alice", Value: 2.0},
		{Key: identity.SyntheticKey(identity.Plex, "bob"), Name: "bob", Value: 4.0},
	}
	out := merge(rows, 10)
	require.Len(t, out, 2)
	require.Equal(t, 5.5, out[0].Value)
	require.Equal(t, identity.LinkedKey(1), out[0].Key)
	require.Equal(t, 4.0, out[1].Value)
}

func TestMergeNeverMergesUnlinkedAcrossPlatforms(t *testing.T) {
	rows := []Entry{
		{Key: identity.SyntheticKey(identity.Plex, "alice"), Name: "alice", Value: 1.0},
		{Key: identity.SyntheticKey(identity.Emby, "alice"), Name: "alice", Value: 2.0},
	}
	out := merge(rows, 10)
	require.Len(t, out, 2)
}

func TestMergeDeterministicTieBreak(t *testing.T) {
	rows := []Entry{
		{Key: identity.SyntheticKey(identity.Plex, "zeta"), Name: "zeta", Value: 5.0},
		{Key: identity.LinkedKey(42), Name: "Linked", Value: 5.0},
		{Key: identity.SyntheticKey(identity.Emby, "alpha"), Name: "alpha", Value: 5.0},
	}
	out := merge(rows, 10)
	// При равных значениях порядок задаёт стабильный ключ сортировки:
	// привязанные раньше синтетических, синтетические — по платформе и имени
	require.Equal(t, identity.LinkedKey(42), out[0].Key)
	require.Equal(t, identity.SyntheticKey(identity.Emby, "alpha"), out[1].Key)
	require.Equal(t, identity.SyntheticKey(identity.Plex, "zeta"), out[2].Key)
}

func TestMergeDropsNonPositiveAndTruncates(t *testing.T) {
	rows := []Entry{
		{Key: identity.LinkedKey(1), Value: 3.0},
		{Key: identity.LinkedKey(2), Value: 0},
		{Key: identity.LinkedKey(3), Value: -1.0},
		{Key: identity.LinkedKey(4), Value: 2.0},
		{Key: identity.LinkedKey(5), Value: 1.0},
	}
	out := merge(rows, 2)
	require.Len(t, out, 2)
	require.Equal(t, 3.0, out[0].Value)
	require.Equal(t, 2.0, out[1].Value)
}

func TestRankCredits(t *testing.T) {
	store := &fakeStore{credits: []Entry{
		{Key: identity.LinkedKey(1), Name: "Alice", Value: 10},
		{Key: identity.SyntheticKey(identity.Emby, "bob"), Name: "bob", Value: 12},
	}}
	svc := NewService(store, &fakeHours{}, &fakeSamples{}, &fakeAnnouncer{}, msk())

	out, err := svc.Rank(context.Background(), MetricCredits, 10)
	require.NoError(t, err)
	require.Equal(t, "bob", out[0].Name)
	require.Equal(t, "Alice", out[1].Name)

	_, err = svc.Rank(context.Background(), Metric("bogus"), 10)
	require.Error(t, err)
}

func TestHoursWindowMergesPlatforms(t *testing.T) {
	store := &fakeStore{keys: map[identity.Platform]map[string]NamedKey{
		identity.Plex: {"p1": {Key: identity.LinkedKey(7), Name: "Alice"}},
		identity.Emby: {"e1": {Key: identity.LinkedKey(7), Name: "Alice"}},
	}}
	hours := &fakeHours{rows: map[identity.Platform][]telemetry.WindowRow{
		identity.Plex: {{AccountID: "p1", Hours: 3.5}},
		identity.Emby: {{AccountID: "e1", Hours: 2.0}},
	}}
	svc := NewService(store, hours, &fakeSamples{}, &fakeAnnouncer{}, msk())

	out, degraded, err := svc.HoursWindow(context.Background(), time.Now().Add(-24*time.Hour), time.Now(), 10)
	require.NoError(t, err)
	require.False(t, degraded)
	require.Len(t, out, 1)
	require.Equal(t, 5.5, out[0].Value)
	require.Equal(t, identity.LinkedKey(7), out[0].Key)
}

func TestHoursWindowFallbackEqualsLocalAggregation(t *testing.T) {
	store := &fakeStore{keys: map[identity.Platform]map[string]NamedKey{
		identity.Plex: {"p1": {Key: identity.SyntheticKey(identity.Plex, "alice"), Name: "alice"}},
	}}
	hours := &fakeHours{errs: map[identity.Platform]error{
		identity.Plex: common.ErrNoAuthoritativeData,
		identity.Emby: common.ErrNotConfigured,
	}}
	samples := &fakeSamples{aggs: map[identity.Platform][]telemetry.DayAggregate{
		identity.Plex: {{AccountID: "p1", Username: "alice", Hours: 1.25}},
	}}
	svc := NewService(store, hours, samples, &fakeAnnouncer{}, msk())

	out, degraded, err := svc.HoursWindow(context.Background(), time.Now().Add(-24*time.Hour), time.Now(), 10)
	require.NoError(t, err)
	require.True(t, degraded)
	require.Len(t, out, 1)
	require.Equal(t, 1.25, out[0].Value)
	require.Equal(t, "alice", out[0].Name)
}

func TestPushHoursRankEmptyGoesToAdmins(t *testing.T) {
	announcer := &fakeAnnouncer{}
	hours := &fakeHours{errs: map[identity.Platform]error{
		identity.Plex: common.ErrNotConfigured,
		identity.Emby: common.ErrNotConfigured,
	}}
	svc := NewService(&fakeStore{}, hours, &fakeSamples{}, announcer, msk())

	require.NoError(t, svc.PushHoursRank(context.Background(), "Топ за день", 1, 10))
	require.Empty(t, announcer.announced)
	require.Len(t, announcer.admin, 1)
}

func TestFormatRanks(t *testing.T) {
	entries := []Entry{
		{Key: identity.LinkedKey(1), Name: "Alice", Value: 5.0},
		{Key: identity.SyntheticKey(identity.Plex, "bob"), Name: "bob", Value: 1.0},
	}

	credits := FormatCreditsRank("Топ баланса", entries)
	require.Contains(t, credits, "1. Alice — 5.00 кредитов")
	require.Contains(t, credits, "2. bob — 1.00 кредит")

	hours := FormatHoursRank("Топ за день", entries, true)
	require.Contains(t, hours, "1. Alice — 5.00 часов")
	require.Contains(t, hours, "по собственным замерам")
}

func TestPushHoursRankPublishes(t *testing.T) {
	announcer := &fakeAnnouncer{}
	store := &fakeStore{keys: map[identity.Platform]map[string]NamedKey{
		identity.Emby: {"e1": {Key: identity.SyntheticKey(identity.Emby, "bob"), Name: "bob"}},
	}}
	hours := &fakeHours{
		rows: map[identity.Platform][]telemetry.WindowRow{
			identity.Emby: {{AccountID: "e1", Hours: 2.0}},
		},
		errs: map[identity.Platform]error{identity.Plex: common.ErrNotConfigured},
	}
	svc := NewService(store, hours, &fakeSamples{}, announcer, msk())

	require.NoError(t, svc.PushHoursRank(context.Background(), "Топ за день", 1, 10))
	require.Len(t, announcer.announced, 1)
	require.Contains(t, announcer.announced[0], "bob")
	require.Contains(t, announcer.announced[0], "2.00 часа")
}
