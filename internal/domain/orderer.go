package domain

import (
	"time"

	"github.com/google/uuid"
)

// Orderer — пользователь, оформивший заказ.
//
// Явный набор атрибутов вместо «живого» объекта пользователя:
// всё, что нужно ядру (выбор приоритетной очереди, email-уведомления),
// передаётся значениями.
type Orderer struct {
	// ID — идентификатор пользователя.
	ID uuid.UUID `json:"id"`

	// Name — отображаемое имя.
	Name string `json:"name"`

	// Email — адрес для уведомлений. Пустой, если адрес не задан.
	Email string `json:"email,omitempty"`

	// Groups — имена групп пользователя (для выбора приоритетной очереди).
	Groups []string `json:"groups,omitempty"`
}

// HasEmail возвращает true, если у пользователя есть пригодный email.
func (u Orderer) HasEmail() bool {
	return u.Email != ""
}

// InGroup проверяет членство в группе.
func (u Orderer) InGroup(name string) bool {
	for _, g := range u.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// NotificationLevel — уровень durable-уведомления.
type NotificationLevel string

const (
	NotificationLevelInfo    NotificationLevel = "INFO"
	NotificationLevelWarning NotificationLevel = "WARNING"
	NotificationLevelError   NotificationLevel = "ERROR"
)

// Notification — durable-уведомление пользователю.
//
// Пишется в БД до любой попытки доставки по email: запись обязана
// пережить недоступность почтового сервера.
type Notification struct {
	// ID — идентификатор уведомления.
	ID uuid.UUID `json:"id"`

	// UserID — получатель.
	UserID uuid.UUID `json:"user_id"`

	// Level — уровень уведомления.
	Level NotificationLevel `json:"level"`

	// Message — текст уведомления.
	Message string `json:"message"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}
