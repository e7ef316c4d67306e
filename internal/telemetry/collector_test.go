package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/identity"
)

// fakeClient — клиент платформы с управляемым поведением.
type fakeClient struct {
	platform   identity.Platform
	configured bool
	sessions   []WatchSample
	sessionErr error
	users      []identity.AccountInfo
	usersErr   error
}

func (f *fakeClient) Platform() identity.Platform { return f.platform }
func (f *fakeClient) Configured() bool            { return f.configured }

func (f *fakeClient) Sessions(context.Context, int64) ([]WatchSample, error) {
	return f.sessions, f.sessionErr
}

func (f *fakeClient) AuthoritativeTotals(context.Context, time.Time) (map[string]float64, error) {
	return nil, common.ErrNoAuthoritativeData
}

func (f *fakeClient) WindowHours(context.Context, time.Time, time.Time) ([]WindowRow, error) {
	return nil, common.ErrNoAuthoritativeData
}

func (f *fakeClient) Users(context.Context) ([]identity.AccountInfo, error) {
	return f.users, f.usersErr
}

// fakeSampleStore копит добавленные сэмплы.
type fakeSampleStore struct {
	added []WatchSample
	days  []time.Time
}

func (f *fakeSampleStore) AddSeconds(_ context.Context, s WatchSample, day time.Time) error {
	f.added = append(f.added, s)
	f.days = append(f.days, day)
	return nil
}

func (f *fakeSampleStore) HoursByAccount(context.Context, identity.Platform, common.Period) (map[string]float64, error) {
	return nil, nil
}

func (f *fakeSampleStore) WindowAggregate(context.Context, identity.Platform, time.Time, time.Time, int) ([]DayAggregate, error) {
	return nil, nil
}

// fakeDirectory копит обновления справочника.
type fakeDirectory struct {
	ensured []identity.AccountInfo
}

func (f *fakeDirectory) EnsureAccount(_ context.Context, _ identity.Platform, info identity.AccountInfo) error {
	f.ensured = append(f.ensured, info)
	return nil
}

func TestPollNotConfigured(t *testing.T) {
	c := NewCollector(
		[]Client{&fakeClient{platform: identity.Plex, configured: false}},
		&fakeSampleStore{}, &fakeDirectory{}, time.Minute, time.UTC,
	)
	_, err := c.Poll(context.Background(), identity.Plex)
	require.ErrorIs(t, err, common.ErrNotConfigured)

	_, err = c.Poll(context.Background(), identity.Emby)
	require.ErrorIs(t, err, common.ErrNotConfigured)
}

func TestCollectLivePersistsDayBuckets(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	observed := time.Date(2026, 3, 9, 23, 30, 0, 0, loc)
	store := &fakeSampleStore{}
	dir := &fakeDirectory{}

	c := NewCollector([]Client{
		&fakeClient{platform: identity.Plex, configured: true, sessions: []WatchSample{
			{Platform: identity.Plex, AccountID: "1", Username: "alice", ObservedAt: observed, ActiveSeconds: 60},
		}},
		&fakeClient{platform: identity.Emby, configured: false},
	}, store, dir, time.Minute, loc)

	require.NoError(t, c.CollectLive(context.Background()))
	require.Len(t, store.added, 1)
	require.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, loc), store.days[0])
	// Аккаунт заведён при первом появлении
	require.Len(t, dir.ensured, 1)
	require.Equal(t, "alice", dir.ensured[0].Username)
}

func TestCollectLiveOnePlatformFailureDoesNotBlockOther(t *testing.T) {
	store := &fakeSampleStore{}
	c := NewCollector([]Client{
		&fakeClient{platform: identity.Plex, configured: true, sessionErr: common.ErrCollectionFailed},
		&fakeClient{platform: identity.Emby, configured: true, sessions: []WatchSample{
			{Platform: identity.Emby, AccountID: "e1", Username: "bob", ObservedAt: time.Now(), ActiveSeconds: 60},
		}},
	}, store, &fakeDirectory{}, time.Minute, time.UTC)

	err := c.CollectLive(context.Background())
	require.ErrorIs(t, err, common.ErrCollectionFailed)
	// Сбой Plex не помешал учесть сессию Emby
	require.Len(t, store.added, 1)
	require.Equal(t, "e1", store.added[0].AccountID)
}

func TestSyncAccounts(t *testing.T) {
	dir := &fakeDirectory{}
	c := NewCollector([]Client{
		&fakeClient{platform: identity.Emby, configured: true, users: []identity.AccountInfo{
			{AccountID: "e1", Username: "bob"},
			{AccountID: "e2", Username: "carol"},
		}},
	}, &fakeSampleStore{}, dir, time.Minute, time.UTC)

	require.NoError(t, c.SyncAccounts(context.Background(), identity.Emby))
	require.Len(t, dir.ensured, 2)

	require.ErrorIs(t, c.SyncAccounts(context.Background(), identity.Plex), common.ErrNotConfigured)
}
