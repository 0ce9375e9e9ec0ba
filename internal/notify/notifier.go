package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/domain"
	"github.com/shaiso/Excerpta/internal/repo"
	"github.com/shaiso/Excerpta/internal/telemetry"
)

// mailSubjectPrefix — префикс темы писем.
const mailSubjectPrefix = "[EXCERPTA] "

// noEmailWarning — текст предупреждения для пользователей без email.
const noEmailWarning = "There is no email address assigned to your account. " +
	"You won't be notified by email when your excerpt is ready."

// MailSender отправляет одно письмо.
type MailSender interface {
	Send(to, subject, body string) error
}

// Notifier доставляет уведомления пользователям.
type Notifier struct {
	store  repo.NotificationStore
	mail   MailSender
	logger *slog.Logger
}

// NewNotifier создаёт Notifier. mail может быть nil — тогда email
// не отправляется никогда (durable-уведомления продолжают писаться).
func NewNotifier(store repo.NotificationStore, mail MailSender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{store: store, mail: mail, logger: logger}
}

// Notify доставляет уведомление пользователю.
//
// Сначала — всегда — пишется durable-запись в БД: она обязана пережить
// любой сбой почты. Затем, если viaEmail и у пользователя есть адрес,
// письмо отправляется best-effort: сбой доставки логируется и не
// откатывает durable-запись. Пользователь без адреса получает вторую
// durable-запись с предупреждением — деградация явная, не молчаливая.
func (n *Notifier) Notify(ctx context.Context, user domain.Orderer, level domain.NotificationLevel, message string, viaEmail bool) error {
	if err := n.addStoredMessage(ctx, user.ID, level, message); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	telemetry.Notifications.WithLabelValues("stored").Inc()

	if !viaEmail {
		return nil
	}

	if !user.HasEmail() {
		if err := n.addStoredMessage(ctx, user.ID, domain.NotificationLevelWarning, noEmailWarning); err != nil {
			return fmt.Errorf("store no-email warning: %w", err)
		}
		return nil
	}

	if n.mail == nil {
		n.logger.Debug("mail delivery disabled", "user_id", user.ID)
		return nil
	}

	if err := n.mail.Send(user.Email, mailSubjectPrefix+message, message); err != nil {
		// Durable-запись уже есть; потерю письма только логируем.
		n.logger.Warn("email delivery failed",
			"user_id", user.ID,
			"error", err,
		)
		return nil
	}
	telemetry.Notifications.WithLabelValues("email").Inc()
	return nil
}

// addStoredMessage пишет одну durable-запись.
func (n *Notifier) addStoredMessage(ctx context.Context, userID uuid.UUID, level domain.NotificationLevel, message string) error {
	return n.store.Create(ctx, &domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// SMTPSender — отправка писем через SMTP без аутентификации
// (внутренний relay).
type SMTPSender struct {
	host string
	port int
	from string
}

// NewSMTPSender создаёт SMTPSender.
func NewSMTPSender(host string, port int, from string) *SMTPSender {
	return &SMTPSender{host: host, port: port, from: from}
}

// Send отправляет одно письмо.
func (s *SMTPSender) Send(to, subject, body string) error {
	msg := []byte("From: " + s.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := s.host + ":" + strconv.Itoa(s.port)
	if err := smtp.SendMail(addr, nil, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}
