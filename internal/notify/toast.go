package notify

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"commodity-price-alerts/internal/alerts"
)

// Toast is one in-app notification.
type Toast struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToastBoard keeps recently shown toasts until they expire.
type ToastBoard struct {
	items  *cache.Cache
	now    func() time.Time
	logger zerolog.Logger
}

// NewToastBoard builds a board whose toasts live for ttl.
func NewToastBoard(ttl time.Duration, logger zerolog.Logger) *ToastBoard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ToastBoard{
		items:  cache.New(ttl, 2*ttl),
		now:    time.Now,
		logger: logger.With().Str("component", "toast_board").Logger(),
	}
}

// Show posts a toast.
func (b *ToastBoard) Show(title, body string) {
	toast := Toast{ID: uuid.NewString(), Title: title, Body: body, CreatedAt: b.now().UTC()}
	b.items.Set(toast.ID, toast, cache.DefaultExpiration)
	b.logger.Info().Str("title", title).Str("body", body).Msg("toast")
}

// List returns live toasts, newest first.
func (b *ToastBoard) List() []Toast {
	items := b.items.Items()
	out := make([]Toast, 0, len(items))
	for _, item := range items {
		if toast, ok := item.Object.(Toast); ok {
			out = append(out, toast)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ServeHTTP renders live toasts as JSON.
func (b *ToastBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(b.List())
}

var _ alerts.Toaster = (*ToastBoard)(nil)
var _ http.Handler = (*ToastBoard)(nil)
