package events

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NoticeType is the type of the outbound notice sent after a purge.
const NoticeType = "orders.cache_invalidated"

// Invalidator purges every cached dashboard response and reports how many
// entries were removed.
type Invalidator interface {
	InvalidateAll(ctx context.Context) (int, error)
}

// Broadcaster tells connected dashboards that their view is stale.
type Broadcaster interface {
	Broadcast(ctx context.Context, notice Notice) error
}

// Notice is published after every handled event.
type Notice struct {
	ID      uuid.UUID `json:"id"`
	Type    string    `json:"type"`
	Cause   Type      `json:"cause"`
	OrderID int64     `json:"order_id,omitempty"`
	TableID string    `json:"table_id,omitempty"`
	Removed int       `json:"removed"`
	At      time.Time `json:"at"`
}

// Handler turns mutation events into cache purges. The purge is synchronous;
// the broadcast is best effort and its failure never fails the event.
type Handler struct {
	invalidator Invalidator
	broadcaster Broadcaster
	logger      logrus.FieldLogger
	now         func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBroadcaster publishes a Notice after each purge.
func WithBroadcaster(b Broadcaster) HandlerOption {
	return func(h *Handler) {
		h.broadcaster = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger.WithField("component", "events")
		}
	}
}

// WithClock overrides the notice timestamp source.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler builds a Handler over invalidator.
func NewHandler(invalidator Invalidator, opts ...HandlerOption) *Handler {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	h := &Handler{
		invalidator: invalidator,
		logger:      discard.WithField("component", "events"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle decodes one raw event, purges the caches and broadcasts a notice.
// It returns the decode or purge error; the event is dropped either way.
func (h *Handler) Handle(ctx context.Context, data []byte) error {
	event, err := Decode(data)
	if err != nil {
		h.logger.WithError(err).Warn("dropping invalid order event")
		return err
	}

	removed, err := h.invalidator.InvalidateAll(ctx)
	fields := logrus.Fields{
		"type":     event.Type,
		"order_id": event.OrderID,
		"table_id": event.TableID,
		"removed":  removed,
	}
	if err != nil {
		h.logger.WithFields(fields).WithError(err).Error("cache purge failed")
		return err
	}
	h.logger.WithFields(fields).Info("caches purged for order event")

	if h.broadcaster == nil {
		return nil
	}
	notice := Notice{
		ID:      uuid.New(),
		Type:    NoticeType,
		Cause:   event.Type,
		OrderID: event.OrderID,
		TableID: event.TableID,
		Removed: removed,
		At:      h.now().UTC(),
	}
	if err := h.broadcaster.Broadcast(ctx, notice); err != nil {
		h.logger.WithFields(fields).WithError(err).Warn("invalidation notice not delivered")
	}
	return nil
}
