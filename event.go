package pos

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/pos/models"
	"goflare.io/pos/models/enum"
)

// NotificationHandler shows a notification to the cashier.
type NotificationHandler func(models.Notification)

// InvalidationHandler reacts to a cart change made elsewhere.
type InvalidationHandler func(context.Context, models.CartInvalidation) error

type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// EventManager 將購物車通知與查詢失效事件發佈到 NATS，並轉給本地的處理函式
type EventManager struct {
	natsConn   natsConn
	terminalID string
	logger     *zap.Logger

	mu       sync.RWMutex
	handlers []NotificationHandler
}

// NewEventManager accepts a nil conn, in which case notifications stay local.
func NewEventManager(conn *nats.Conn, terminalID string, logger *zap.Logger) *EventManager {
	var nc natsConn
	if conn != nil {
		nc = conn
	}
	return newEventManager(nc, terminalID, logger)
}

func newEventManager(conn natsConn, terminalID string, logger *zap.Logger) *EventManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventManager{
		natsConn:   conn,
		terminalID: terminalID,
		logger:     logger,
	}
}

func (em *EventManager) RegisterHandler(handler NotificationHandler) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.handlers = append(em.handlers, handler)
}

func notifySubject(terminalID string, op enum.CartOperation) string {
	return fmt.Sprintf("pos.%s.notify.%s", terminalID, op)
}

func invalidationSubject(terminalID string) string {
	return fmt.Sprintf("pos.%s.cart.invalidated", terminalID)
}

// Notify logs n, hands it to the registered handlers and publishes it.
func (em *EventManager) Notify(_ context.Context, n models.Notification) {
	fields := []zap.Field{
		zap.String("session_id", n.SessionID),
		zap.String("operation", string(n.Operation)),
		zap.String("message", n.Message),
	}
	if n.Error != "" {
		fields = append(fields, zap.String("error", n.Error))
	}
	switch n.Level {
	case enum.NotificationLevelError:
		em.logger.Error("Cart notification", fields...)
	case enum.NotificationLevelWarning:
		em.logger.Warn("Cart notification", fields...)
	default:
		em.logger.Info("Cart notification", fields...)
	}

	em.mu.RLock()
	handlers := append([]NotificationHandler(nil), em.handlers...)
	em.mu.RUnlock()
	for _, h := range handlers {
		h(n)
	}

	if err := em.publish(notifySubject(em.terminalID, n.Operation), n); err != nil {
		em.logger.Warn("Failed to publish notification", zap.Error(err))
	}
}

func (em *EventManager) PublishInvalidation(inv models.CartInvalidation) error {
	return em.publish(invalidationSubject(em.terminalID), inv)
}

func (em *EventManager) publish(subject string, v any) error {
	if em.natsConn == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err = em.natsConn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeToInvalidations runs handler on the worker pool for every
// invalidation published for this terminal by another origin.
func (em *EventManager) SubscribeToInvalidations(origin string, wp *WorkerPool, handler InvalidationHandler) (*nats.Subscription, error) {
	if em.natsConn == nil {
		return nil, nil
	}

	return em.natsConn.Subscribe(invalidationSubject(em.terminalID), func(msg *nats.Msg) {
		var inv models.CartInvalidation
		if err := json.Unmarshal(msg.Data, &inv); err != nil {
			em.logger.Error("Failed to unmarshal cart invalidation", zap.Error(err))
			return
		}
		if inv.Origin == origin {
			return
		}

		wp.Submit("cart invalidated", func(ctx context.Context) error {
			return handler(ctx, inv)
		})
	})
}
