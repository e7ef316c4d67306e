package identity

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountKeyString(t *testing.T) {
	require.Equal(t, "tg:123", LinkedKey(123).String())
	require.Equal(t, "plex::alice", SyntheticKey(Plex, "alice").String())
}

func TestAccountKeyEquality(t *testing.T) {
	// Привязанные аккаунты разных платформ дают один ключ
	require.Equal(t, LinkedKey(42), LinkedKey(42))
	// Непривязанные аккаунты разных платформ не сливаются даже при
	// совпадении имён
	require.NotEqual(t, SyntheticKey(Plex, "alice"), SyntheticKey(Emby, "alice"))
}

func TestSortKeyDeterministic(t *testing.T) {
	keys := []AccountKey{
		SyntheticKey(Emby, "bob"),
		LinkedKey(100),
		SyntheticKey(Plex, "alice"),
		LinkedKey(9),
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].SortKey() < keys[j].SortKey() })

	// Привязанные идут раньше синтетических; числа сравниваются как числа
	require.Equal(t, LinkedKey(9), keys[0])
	require.Equal(t, LinkedKey(100), keys[1])
	require.Equal(t, SyntheticKey(Emby, "bob"), keys[2])
	require.Equal(t, SyntheticKey(Plex, "alice"), keys[3])
}

func TestAccountKeyFromAccount(t *testing.T) {
	tgID := int64(7)
	linked := &Account{Platform: Plex, Username: "alice", TGID: &tgID}
	require.Equal(t, LinkedKey(7), linked.Key())
	require.True(t, linked.Key().Linked())

	unlinked := &Account{Platform: Emby, Username: "bob"}
	require.Equal(t, SyntheticKey(Emby, "bob"), unlinked.Key())
	require.False(t, unlinked.Key().Linked())
}

func TestPlatformValid(t *testing.T) {
	require.True(t, Plex.Valid())
	require.True(t, Emby.Valid())
	require.False(t, Platform("jellyfin").Valid())
}
