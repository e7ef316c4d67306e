// Package identity — key.go описывает платформы и ключ аккаунта.
// Ключ — размеченный вариант: либо привязанная Telegram-идентичность,
// либо синтетический ключ «платформа::имя» для непривязанных аккаунтов.
// Вся логика слияния рейтингов обрабатывает оба случая в одном месте.
package identity

import "fmt"

// Platform — медиаплатформа, за которой следит сервис.
type Platform string

const (
	// Plex — статистика приходит через Tautulli
	Plex Platform = "plex"
	// Emby — статистика приходит с самого сервера
	Emby Platform = "emby"
)

// Platforms — все поддерживаемые платформы в стабильном порядке.
var Platforms = []Platform{Plex, Emby}

// Valid сообщает, известна ли платформа.
func (p Platform) Valid() bool {
	return p == Plex || p == Emby
}

// KeyKind — вид ключа аккаунта.
type KeyKind int

const (
	// KeyLinked — аккаунт привязан к Telegram-идентичности
	KeyLinked KeyKind = iota + 1
	// KeySynthetic — аккаунт без привязки, ключ «платформа::имя»
	KeySynthetic
)

// AccountKey — ключ, по которому ведётся леджер и сливаются рейтинги.
// Привязанные аккаунты разных платформ с одним tg_id дают один ключ;
// непривязанные аккаунты никогда не сливаются между платформами,
// даже при совпадении имён.
type AccountKey struct {
	Kind     KeyKind
	TGID     int64    // заполнено при Kind == KeyLinked
	Platform Platform // заполнены при Kind == KeySynthetic
	Username string
}

// LinkedKey создаёт ключ привязанной идентичности.
func LinkedKey(tgID int64) AccountKey {
	return AccountKey{Kind: KeyLinked, TGID: tgID}
}

// SyntheticKey создаёт синтетический ключ непривязанного аккаунта.
func SyntheticKey(platform Platform, username string) AccountKey {
	return AccountKey{Kind: KeySynthetic, Platform: platform, Username: username}
}

// Linked сообщает, является ли ключ привязанной идентичностью.
func (k AccountKey) Linked() bool { return k.Kind == KeyLinked }

// String — читаемое представление ключа: "tg:123" или "plex::alice".
func (k AccountKey) String() string {
	if k.Kind == KeyLinked {
		return fmt.Sprintf("tg:%d", k.TGID)
	}
	return fmt.Sprintf("%s::%s", k.Platform, k.Username)
}

// SortKey — стабильный ключ сортировки для детерминированного
// разрешения ничьих в рейтингах. Числовая часть дополняется нулями,
// чтобы лексикографический порядок совпадал с числовым.
func (k AccountKey) SortKey() string {
	if k.Kind == KeyLinked {
		return fmt.Sprintf("0:%020d", k.TGID)
	}
	return fmt.Sprintf("1:%s::%s", k.Platform, k.Username)
}
