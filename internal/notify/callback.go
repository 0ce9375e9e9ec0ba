package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const defaultCallbackTimeout = 10 * time.Second

// CallbackNotifier — best-effort HTTP callback worker'а.
//
// Fire and forget: любой сбой (connection refused, таймаут, не-2xx)
// проглатывается — работа worker'а считается завершённой независимо
// от судьбы callback'а.
type CallbackNotifier struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCallbackNotifier создаёт CallbackNotifier.
func NewCallbackNotifier(logger *slog.Logger) *CallbackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackNotifier{
		httpClient: &http.Client{Timeout: defaultCallbackTimeout},
		logger:     logger,
	}
}

// Notify выполняет GET на callback URL. Никогда не возвращает ошибку.
func (c *CallbackNotifier) Notify(ctx context.Context, callbackURL string) {
	if callbackURL == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callbackURL, nil)
	if err != nil {
		c.logger.Debug("invalid callback url", "url", callbackURL, "error", err)
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("callback delivery failed", "url", callbackURL, "error", err)
		return
	}
	resp.Body.Close()

	c.logger.Debug("callback delivered", "url", callbackURL, "status", resp.StatusCode)
}
