package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/domain"
)

type fakeNotificationStore struct {
	created   []*domain.Notification
	createErr error
}

func (s *fakeNotificationStore) Create(ctx context.Context, n *domain.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, n)
	return nil
}

func (s *fakeNotificationStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error) {
	return nil, nil
}

type fakeMail struct {
	sent    []string // subject каждого отправленного письма
	sendErr error
}

func (m *fakeMail) Send(to, subject, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, subject)
	return nil
}

func testOrderer(email string) domain.Orderer {
	return domain.Orderer{ID: uuid.New(), Name: "test user", Email: email}
}

func TestNotify_StoresAndEmails(t *testing.T) {
	store := &fakeNotificationStore{}
	mail := &fakeMail{}
	n := NewNotifier(store, mail, nil)

	user := testOrderer("user@example.com")
	err := n.Notify(context.Background(), user, domain.NotificationLevelInfo, "order done", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 stored notification, got %d", len(store.created))
	}
	if store.created[0].UserID != user.ID || store.created[0].Level != domain.NotificationLevelInfo {
		t.Errorf("unexpected notification: %+v", store.created[0])
	}
	if len(mail.sent) != 1 || !strings.HasPrefix(mail.sent[0], mailSubjectPrefix) {
		t.Errorf("expected 1 prefixed email, got %v", mail.sent)
	}
}

func TestNotify_WithoutEmailAddress(t *testing.T) {
	store := &fakeNotificationStore{}
	mail := &fakeMail{}
	n := NewNotifier(store, mail, nil)

	err := n.Notify(context.Background(), testOrderer(""), domain.NotificationLevelInfo, "order done", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Деградация явная: вторая durable-запись с предупреждением.
	if len(store.created) != 2 {
		t.Fatalf("expected 2 stored notifications, got %d", len(store.created))
	}
	warning := store.created[1]
	if warning.Level != domain.NotificationLevelWarning {
		t.Errorf("expected WARNING, got %s", warning.Level)
	}
	if !strings.Contains(warning.Message, "no email address") {
		t.Errorf("unexpected warning text: %q", warning.Message)
	}
	if len(mail.sent) != 0 {
		t.Errorf("no email expected, got %v", mail.sent)
	}
}

func TestNotify_MailFailureDoesNotFail(t *testing.T) {
	store := &fakeNotificationStore{}
	mail := &fakeMail{sendErr: errors.New("relay refused")}
	n := NewNotifier(store, mail, nil)

	// Durable-запись уже есть, потеря письма не откатывает её.
	err := n.Notify(context.Background(), testOrderer("user@example.com"), domain.NotificationLevelError, "order failed", true)
	if err != nil {
		t.Fatalf("mail failure must not surface: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 stored notification, got %d", len(store.created))
	}
}

func TestNotify_SkipsEmailWhenDisabled(t *testing.T) {
	store := &fakeNotificationStore{}
	mail := &fakeMail{}
	n := NewNotifier(store, mail, nil)

	err := n.Notify(context.Background(), testOrderer("user@example.com"), domain.NotificationLevelInfo, "order done", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.created) != 1 || len(mail.sent) != 0 {
		t.Errorf("expected stored-only delivery, stored=%d mailed=%d", len(store.created), len(mail.sent))
	}
}

func TestNotify_NilMailSender(t *testing.T) {
	store := &fakeNotificationStore{}
	n := NewNotifier(store, nil, nil)

	err := n.Notify(context.Background(), testOrderer("user@example.com"), domain.NotificationLevelInfo, "order done", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 stored notification, got %d", len(store.created))
	}
}

func TestNotify_StoreFailure(t *testing.T) {
	store := &fakeNotificationStore{createErr: errors.New("connection lost")}
	n := NewNotifier(store, &fakeMail{}, nil)

	err := n.Notify(context.Background(), testOrderer("user@example.com"), domain.NotificationLevelInfo, "order done", true)
	if err == nil {
		t.Fatal("expected error when the durable record cannot be written")
	}
}
