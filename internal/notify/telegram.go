package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"commodity-price-alerts/internal/alerts"
)

// Telegram 通过 Telegram Bot API 推送系统通知。
// Permission stays undetermined until RequestPermission verifies the bot token.
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger

	mu   sync.RWMutex
	perm alerts.Permission
}

// NewTelegram 构造 Telegram 通知器。
func NewTelegram(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *Telegram {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	perm := alerts.PermissionUndetermined
	if botToken == "" || chatID == "" {
		perm = alerts.PermissionDenied
	}

	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
		perm:     perm,
	}
}

// QueryPermission reports the cached permission state.
func (n *Telegram) QueryPermission() alerts.Permission {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.perm
}

// RequestPermission calls getMe; a valid bot grants, an unauthorised one denies.
func (n *Telegram) RequestPermission(ctx context.Context) (alerts.Permission, error) {
	if current := n.QueryPermission(); current != alerts.PermissionUndetermined {
		return current, nil
	}

	url := fmt.Sprintf("%s/bot%s/getMe", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return alerts.PermissionUndetermined, fmt.Errorf("create telegram request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return alerts.PermissionUndetermined, fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	perm := alerts.PermissionGranted
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound:
		perm = alerts.PermissionDenied
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return alerts.PermissionUndetermined, fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	default:
		var result struct {
			OK bool `json:"ok"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
			perm = alerts.PermissionDenied
		}
	}

	n.mu.Lock()
	n.perm = perm
	n.mu.Unlock()
	return perm, nil
}

// Show 调用 sendMessage API 推送文本。Telegram has no tag coalescing, so the
// tag is only logged; see Coalescer.
func (n *Telegram) Show(ctx context.Context, msg alerts.Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    msg.Title + "\n" + msg.Body,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("tag", msg.Tag).Msg("告警已发送 (Telegram)")
	return nil
}

var _ alerts.SystemNotifier = (*Telegram)(nil)
