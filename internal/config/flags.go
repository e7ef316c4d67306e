// Package config — flags.go хранит изменяемые на лету флаги.
// В отличие от Config (читается один раз при старте), эти флаги
// переключаются во время работы: например, админ закрывает регистрацию.
// Никаких глобальных переменных: объект Flags внедряется в компоненты,
// все изменения проходят через один синхронизированный сеттер.
package config

import "sync"

// Flags — потокобезопасный набор рантайм-флагов.
type Flags struct {
	mu sync.RWMutex

	registrationOpen     bool
	notificationsEnabled bool
}

// NewFlags создаёт флаги с начальными значениями.
func NewFlags(registrationOpen, notificationsEnabled bool) *Flags {
	return &Flags{
		registrationOpen:     registrationOpen,
		notificationsEnabled: notificationsEnabled,
	}
}

// RegistrationOpen сообщает, открыта ли регистрация новых аккаунтов.
func (f *Flags) RegistrationOpen() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.registrationOpen
}

// SetRegistrationOpen переключает флаг регистрации.
func (f *Flags) SetRegistrationOpen(open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrationOpen = open
}

// NotificationsEnabled сообщает, разрешена ли рассылка уведомлений.
func (f *Flags) NotificationsEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.notificationsEnabled
}

// SetNotificationsEnabled переключает рассылку уведомлений.
func (f *Flags) SetNotificationsEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notificationsEnabled = enabled
}
