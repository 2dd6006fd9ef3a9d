// Package pos wires the barcode dispatcher, the cart store and the remote
// cart into a cashier session.
package pos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"goflare.io/pos/barcode"
	"goflare.io/pos/cart"
	"goflare.io/pos/catalog"
	"goflare.io/pos/models"
	"goflare.io/pos/models/enum"
	"goflare.io/pos/pricing"
)

// CartRemote is the backend cart plus its cached reads.
type CartRemote interface {
	cart.Remote
	GetCart(ctx context.Context) (*models.RemoteCart, error)
	InvalidateQueries(ctx context.Context) error
}

type ProductLookup interface {
	GetByBarcode(ctx context.Context, barcode string) (*models.Product, error)
}

type SessionOptions struct {
	// ID is generated when empty. The cart client must be built with the same id.
	ID          string
	Workers     int
	TaskTimeout time.Duration
	Dispatcher  barcode.DispatcherOptions
	Calculator  pricing.Calculator
}

// Session 是收銀員登入到登出之間的狀態，包含購物車、掃碼輸入與背景工作
type Session struct {
	id         string
	remote     CartRemote
	lookup     ProductLookup
	events     *EventManager
	store      *cart.Store
	dispatcher *barcode.Dispatcher
	workers    *WorkerPool
	calculator pricing.Calculator
	timeout    time.Duration
	sub        *nats.Subscription
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSessionID() string {
	return uuid.NewString()
}

// NewSession starts a session. events may be nil.
func NewSession(opts SessionOptions, remote CartRemote, lookup ProductLookup, events *EventManager, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ID == "" {
		opts.ID = NewSessionID()
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}
	if opts.Calculator.Currency == "" {
		opts.Calculator = pricing.NewCalculator(pricing.DefaultVATRate, pricing.DefaultTotalMultiplier, stripe.CurrencySAR)
	}
	if events == nil {
		events = newEventManager(nil, "", logger)
	}

	logger = logger.With(zap.String("session_id", opts.ID))
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:         opts.ID,
		remote:     remote,
		lookup:     lookup,
		events:     events,
		workers:    NewWorkerPool(opts.Workers, opts.TaskTimeout, logger),
		calculator: opts.Calculator,
		timeout:    opts.TaskTimeout,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.store = cart.NewStore(s.id, remote, s.workers, events, s, logger)
	s.dispatcher = barcode.NewDispatcher(opts.Dispatcher, s.onScan, logger)

	sub, err := events.SubscribeToInvalidations(s.id, s.workers, s.handleInvalidation)
	if err != nil {
		s.dispatcher.Close()
		s.workers.Shutdown()
		cancel()
		return nil, fmt.Errorf("failed to subscribe to cart invalidations: %w", err)
	}
	s.sub = sub

	logger.Info("Session started")
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Change sets the scan field content and returns what it should display.
func (s *Session) Change(raw string) string {
	return s.dispatcher.Change(raw)
}

func (s *Session) Type(keys string) string {
	return s.dispatcher.Type(keys)
}

// Submit is the Enter key of the scan field.
func (s *Session) Submit() bool {
	return s.dispatcher.Submit()
}

func (s *Session) ScanValue() string {
	return s.dispatcher.Value()
}

// Scan resolves code and adds the product to the cart. An unknown barcode
// raises a warning notification and leaves the cart unchanged.
func (s *Session) Scan(ctx context.Context, code string) (models.LineItem, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.LineItem{}, fmt.Errorf("scan: %w", catalog.ErrProductNotFound)
	}

	product, err := s.lookup.GetByBarcode(ctx, code)
	if err != nil {
		level, msg := enum.NotificationLevelError, fmt.Sprintf("Failed to look up barcode %s", code)
		if errors.Is(err, catalog.ErrProductNotFound) {
			level, msg = enum.NotificationLevelWarning, fmt.Sprintf("Product not found for barcode %s", code)
		}
		s.events.Notify(ctx, models.Notification{
			SessionID: s.id,
			Level:     level,
			Operation: enum.CartOperationScan,
			Message:   msg,
			Error:     err.Error(),
			CreatedAt: time.Now(),
		})
		return models.LineItem{}, fmt.Errorf("scan %s: %w", code, err)
	}

	return s.AddToCart(product), nil
}

func (s *Session) onScan(code string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if _, err := s.Scan(ctx, code); err != nil {
		s.logger.Warn("Failed to resolve scan", zap.String("barcode", code), zap.Error(err))
	}
}

// AddToCart adds one unit with the default payload.
func (s *Session) AddToCart(product *models.Product) models.LineItem {
	return s.store.Add(product, models.AddItemPayload{
		ProductID: product.ID,
		Quantity:  1,
		Barcode:   product.Barcode,
	})
}

// AddToCartWithPayload posts a caller supplied body instead of the default one.
func (s *Session) AddToCartWithPayload(product *models.Product, payload any) models.LineItem {
	return s.store.Add(product, payload)
}

func (s *Session) UpdateQuantity(cartItemID, productID string, quantity int) {
	s.store.UpdateQuantity(cartItemID, productID, quantity)
}

func (s *Session) RemoveFromCart(id string) {
	s.store.Remove(id)
}

func (s *Session) ClearCart() {
	s.store.Clear()
}

func (s *Session) Items() []models.LineItem {
	return s.store.Items()
}

func (s *Session) Item(productID string) (models.LineItem, bool) {
	return s.store.Item(productID)
}

func (s *Session) Totals() pricing.Totals {
	totals := s.calculator.Totals(s.store.Summary())
	totals.LoyaltyPoints = s.store.LoyaltyPoints()
	return totals
}

// RemoteCart reads the backend cart through the query cache.
func (s *Session) RemoteCart(ctx context.Context) (*models.RemoteCart, error) {
	return s.remote.GetCart(ctx)
}

// InvalidateCart implements cart.Invalidator.
func (s *Session) InvalidateCart(ctx context.Context, op enum.CartOperation) {
	if err := s.remote.InvalidateQueries(ctx); err != nil {
		s.logger.Warn("Failed to invalidate cart queries", zap.Error(err), zap.String("operation", string(op)))
	}

	err := s.events.PublishInvalidation(models.CartInvalidation{
		Origin:    s.id,
		SessionID: s.id,
		Operation: op,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish cart invalidation", zap.Error(err))
	}
}

func (s *Session) handleInvalidation(ctx context.Context, inv models.CartInvalidation) error {
	if inv.SessionID != s.id {
		return nil
	}
	if err := s.remote.InvalidateQueries(ctx); err != nil {
		return fmt.Errorf("failed to invalidate cart queries: %w", err)
	}
	return nil
}

// Close ends the session. A pending auto-submit is dropped while queued
// remote calls still run before the cached cart reads are removed.
func (s *Session) Close() {
	s.dispatcher.Close()

	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe from cart invalidations", zap.Error(err))
		}
	}

	s.workers.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.remote.InvalidateQueries(ctx); err != nil {
		s.logger.Warn("Failed to drop cart queries", zap.Error(err))
	}
	s.cancel()

	s.logger.Info("Session closed")
}
