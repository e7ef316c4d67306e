// Package identity — service.go содержит бизнес-логику справочника:
// разрешение ключа аккаунта, привязку и отвязку идентичностей.
package identity

import (
	"context"

	log "github.com/sirupsen/logrus"

	"medialedger.ru/credits-bot/internal/config"
)

// Store — операции справочника, нужные сервису.
// Реализуется Repository; в тестах подменяется фейком.
type Store interface {
	UpsertAccount(ctx context.Context, platform Platform, info AccountInfo) error
	GetAccount(ctx context.Context, platform Platform, accountID string) (*Account, error)
	AccountExists(ctx context.Context, platform Platform, accountID string) (bool, error)
	Link(ctx context.Context, platform Platform, accountID string, tgID int64, displayName string) error
	Unlink(ctx context.Context, platform Platform, accountID string) error
}

// Service — Identity Resolver: единственный владелец привязок tg_id.
type Service struct {
	store Store
	flags *config.Flags
}

// NewService создаёт сервис справочника идентичностей.
func NewService(store Store, flags *config.Flags) *Service {
	return &Service{store: store, flags: flags}
}

// Resolve возвращает ключ леджера для аккаунта платформы:
// привязанную идентичность или синтетический ключ «платформа::имя».
func (s *Service) Resolve(ctx context.Context, platform Platform, accountID string) (AccountKey, error) {
	a, err := s.store.GetAccount(ctx, platform, accountID)
	if err != nil {
		return AccountKey{}, err
	}
	return a.Key(), nil
}

// Link привязывает аккаунт к Telegram-идентичности (1:1 на платформу).
// Миграция локального баланса происходит внутри транзакции репозитория.
func (s *Service) Link(ctx context.Context, platform Platform, accountID string, tgID int64, displayName string) error {
	if err := s.store.Link(ctx, platform, accountID, tgID, displayName); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"platform":   platform,
		"account_id": accountID,
		"tg_id":      tgID,
	}).Info("Аккаунт привязан")
	return nil
}

// Unlink снимает привязку, обнулив локальный баланс аккаунта.
func (s *Service) Unlink(ctx context.Context, platform Platform, accountID string) error {
	if err := s.store.Unlink(ctx, platform, accountID); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"platform":   platform,
		"account_id": accountID,
	}).Info("Аккаунт отвязан")
	return nil
}

// EnsureAccount заводит аккаунт при первом появлении в телеметрии.
// При закрытой регистрации новые аккаунты не создаются, но справочные
// поля уже известных аккаунтов продолжают обновляться.
func (s *Service) EnsureAccount(ctx context.Context, platform Platform, info AccountInfo) error {
	if !s.flags.RegistrationOpen() {
		exists, err := s.store.AccountExists(ctx, platform, info.AccountID)
		if err != nil {
			return err
		}
		if !exists {
			log.WithFields(log.Fields{
				"platform": platform,
				"username": info.Username,
			}).Debug("Регистрация закрыта, новый аккаунт пропущен")
			return nil
		}
	}
	return s.store.UpsertAccount(ctx, platform, info)
}
