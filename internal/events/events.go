package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
)

// Eventos publicados por el storefront
const (
	RKCartUpdated = "cart.updated"
	RKCartCleared = "cart.cleared"
	RKOrderPlaced = "order.placed"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
}

type CartUpdatedPayload struct {
	SessionID string          `json:"session_id"`
	Version   int64           `json:"version"`
	Lines     int             `json:"lines"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

type OrderPlacedPayload struct {
	SessionID string          `json:"session_id"`
	OrderID   string          `json:"order_id"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

const publishTimeout = 5 * time.Second

// CartObserver returns a cart subscriber that publishes every change of one
// session's cart. Publishing happens off the mutating goroutine.
func CartObserver(pub Publisher, sessionID string, log zerolog.Logger) func(cart.Snapshot) {
	return func(snap cart.Snapshot) {
		key := RKCartUpdated
		if snap.Empty() {
			key = RKCartCleared
		}
		payload := CartUpdatedPayload{
			SessionID: sessionID,
			Version:   snap.Version,
			Lines:     len(snap.Lines),
			ItemCount: snap.ItemCount(),
			Total:     snap.Total(),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := pub.Publish(ctx, key, payload); err != nil {
				log.Warn().Err(err).Str("rk", key).Str("session", sessionID).Msg("publish failed")
			}
		}()
	}
}
