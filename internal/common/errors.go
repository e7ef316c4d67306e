// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях сервиса.
// Эти ошибки позволяют вызывающему коду различать типы проблем:
// временный сбой сбора телеметрии, конфликт привязки, гонка записи и т.д.
package common

import "errors"

// Ошибки сбора телеметрии
var (
	// ErrCollectionFailed — удалённый эндпоинт недоступен, ответил не-2xx
	// или вернул некорректное тело. Локально восстановимая ошибка:
	// цикл пропускается, следующий опрос по расписанию повторит попытку.
	// «Нет данных» и «ноль использования» — разные вещи.
	ErrCollectionFailed = errors.New("сбор телеметрии не удался")
	// ErrNoAuthoritativeData — ни один из эквивалентных эндпоинтов статистики
	// не вернул непустой результат; вызывающий обязан перейти на локальные сэмплы.
	ErrNoAuthoritativeData = errors.New("авторитетная статистика недоступна")
)

// Ошибки привязки аккаунтов
var (
	// ErrAlreadyLinked — аккаунт или идентичность уже привязаны к другому контрагенту
	ErrAlreadyLinked = errors.New("аккаунт уже привязан")
	// ErrNotLinked — попытка отвязать аккаунт без привязки
	ErrNotLinked = errors.New("аккаунт не привязан")
	// ErrAccountNotFound — аккаунт платформы не найден в справочнике
	ErrAccountNotFound = errors.New("аккаунт не найден")
)

// Ошибки леджера
var (
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrLedgerConflict — конкурентная запись по одному ключу; повторяется
	// ограниченное число раз внутри прохода начисления.
	ErrLedgerConflict = errors.New("конфликт записи в леджер")
)

// Ошибки конфигурации
var (
	// ErrNotConfigured — для задачи не заданы учётные данные или эндпоинт.
	// Фатально только для самой задачи: она завершается без частичных
	// изменений состояния и будет запущена заново по расписанию.
	ErrNotConfigured = errors.New("отсутствуют учётные данные или эндпоинт")
)
