// Package notify — диспетчер исходящих уведомлений.
// Все отправки проходят через одну очередь с фиксированной паузой между
// сообщениями, чтобы не упереться в лимиты Telegram. Доставка best-effort:
// переполнение очереди и ошибки отправки логируются и не останавливают
// ни диспетчер, ни вызывающего.
package notify

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"medialedger.ru/credits-bot/internal/config"
)

// Sender — отправка сообщения в Telegram. Реализуется *tgbotapi.BotAPI;
// в тестах подменяется фейком.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type message struct {
	chatID int64
	text   string
}

// Dispatcher — единственная точка исходящих уведомлений сервиса.
type Dispatcher struct {
	sender     Sender
	flags      *config.Flags
	queue      chan message
	delay      time.Duration
	rankChatID int64
	adminIDs   []int64
}

// NewDispatcher создаёт диспетчер уведомлений.
// delay — пауза между отправками, queueSize — ёмкость очереди,
// rankChatID — чат публикации рейтингов (0 = публикации выключены).
func NewDispatcher(sender Sender, flags *config.Flags, delay time.Duration, queueSize int, rankChatID int64, adminIDs []int64) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		flags:      flags,
		queue:      make(chan message, queueSize),
		delay:      delay,
		rankChatID: rankChatID,
		adminIDs:   adminIDs,
	}
}

// Notify ставит личное уведомление в очередь. Возвращает false, если
// получатель не задан, уведомления выключены или очередь переполнена —
// вызывающий не обязан (и не должен) повторять отправку.
func (d *Dispatcher) Notify(tgID int64, text string) bool {
	if tgID == 0 || text == "" {
		return false
	}
	if !d.flags.NotificationsEnabled() {
		log.WithField("tg_id", tgID).Debug("Уведомления выключены, сообщение отброшено")
		return false
	}
	select {
	case d.queue <- message{chatID: tgID, text: text}:
		return true
	default:
		log.WithField("tg_id", tgID).Warn("Очередь уведомлений переполнена, сообщение отброшено")
		return false
	}
}

// Announce публикует сообщение в чат рейтингов.
func (d *Dispatcher) Announce(text string) bool {
	return d.Notify(d.rankChatID, text)
}

// NotifyAdmins отправляет сообщение всем администраторам.
func (d *Dispatcher) NotifyAdmins(text string) {
	for _, id := range d.adminIDs {
		d.Notify(id, text)
	}
}

// Run — цикл доставки: одно сообщение за раз, фиксированная пауза
// между отправками. Работает до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info("Диспетчер уведомлений запущен")
	for {
		select {
		case <-ctx.Done():
			log.Info("Диспетчер уведомлений остановлен")
			return
		case msg := <-d.queue:
			d.deliver(msg)
			select {
			case <-ctx.Done():
				log.Info("Диспетчер уведомлений остановлен")
				return
			case <-time.After(d.delay):
			}
		}
	}
}

// deliver отправляет одно сообщение. Ошибка доставки — событие лога,
// не повод для повтора: уведомления не критичны для леджера.
func (d *Dispatcher) deliver(msg message) {
	m := tgbotapi.NewMessage(msg.chatID, msg.text)
	if _, err := d.sender.Send(m); err != nil {
		log.WithError(err).WithField("chat_id", msg.chatID).Warn("Ошибка отправки уведомления")
		return
	}
	log.WithField("chat_id", msg.chatID).Debug("Уведомление доставлено")
}
