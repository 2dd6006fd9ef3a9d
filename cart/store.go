// Package cart keeps the local view of the sale in progress and mirrors
// every change to the remote cart without waiting for it.
package cart

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"goflare.io/pos/models"
	"goflare.io/pos/models/enum"
	"goflare.io/pos/pricing"
)

// Remote is the backend cart.
type Remote interface {
	AddItem(ctx context.Context, payload any) (cartItemID string, err error)
	UpdateItem(ctx context.Context, cartItemID string, payload models.UpdateItemPayload) error
	RemoveItem(ctx context.Context, id string) error
	EmptyCart(ctx context.Context) error
}

// Executor runs remote calls in the background.
type Executor interface {
	Submit(name string, task func(ctx context.Context) error)
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Invalidator drops cached cart reads after the remote cart changed.
type Invalidator interface {
	InvalidateCart(ctx context.Context, op enum.CartOperation)
}

// Store 是目前交易的購物車，本地狀態立即更新，遠端同步失敗時不回滾
type Store struct {
	mu    sync.RWMutex
	items []*models.LineItem

	sessionID   string
	remote      Remote
	exec        Executor
	notifier    Notifier
	invalidator Invalidator
	logger      *zap.Logger
}

func NewStore(sessionID string, remote Remote, exec Executor, notifier Notifier, invalidator Invalidator, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessionID:   sessionID,
		remote:      remote,
		exec:        exec,
		notifier:    notifier,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Add puts one unit of product in the cart and posts payload to the remote
// cart. Re-adding a product increments its quantity; the price captured on
// the first add is kept.
func (s *Store) Add(product *models.Product, payload any) models.LineItem {
	s.mu.Lock()
	var item *models.LineItem
	if i := s.indexByProductLocked(product.ID); i >= 0 {
		item = s.items[i]
		item.Quantity++
	} else {
		item = models.NewLineItem(product)
		s.items = append(s.items, item)
	}
	snapshot := *item
	s.mu.Unlock()

	productID := product.ID
	s.submit(enum.CartOperationAdd, func(ctx context.Context) error {
		cartItemID, err := s.remote.AddItem(ctx, payload)
		if err != nil {
			return fmt.Errorf("failed to add %s (%s) to cart: %w", product.Name, productID, err)
		}
		s.assignCartItemID(productID, cartItemID)
		return nil
	}, fmt.Sprintf("Failed to add %s to cart", product.Name))

	return snapshot
}

// UpdateQuantity sets the quantity of the item addressed by cartItemID, or
// by productID while the item has no row id yet. A quantity of zero or less
// removes that item instead.
func (s *Store) UpdateQuantity(cartItemID, productID string, quantity int) {
	s.mu.Lock()
	i := s.indexByCartItemLocked(cartItemID)
	if i < 0 && cartItemID == "" {
		i = s.indexByProductLocked(productID)
	}

	if quantity <= 0 {
		fallback := cartItemID
		if fallback == "" {
			fallback = productID
		}
		remoteID := s.removeAtLocked(i, fallback)
		s.mu.Unlock()
		s.submitRemove(remoteID)
		return
	}

	if i >= 0 {
		s.items[i].Quantity = quantity
	}
	s.mu.Unlock()

	s.submit(enum.CartOperationUpdate, func(ctx context.Context) error {
		id := cartItemID
		if id == "" {
			id = s.cartItemIDFor(productID)
		}
		if err := s.remote.UpdateItem(ctx, id, models.UpdateItemPayload{ProductID: productID, Quantity: quantity}); err != nil {
			return fmt.Errorf("failed to update cart item %s: %w", productID, err)
		}
		return nil
	}, "Failed to update item quantity")
}

// Remove deletes one item. id is matched against remote row ids first and
// against product ids only when no row id matches.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	i := s.indexByCartItemLocked(id)
	if i < 0 {
		i = s.indexByProductLocked(id)
	}
	remoteID := s.removeAtLocked(i, id)
	s.mu.Unlock()

	s.submitRemove(remoteID)
}

func (s *Store) submitRemove(remoteID string) {
	s.submit(enum.CartOperationRemove, func(ctx context.Context) error {
		if err := s.remote.RemoveItem(ctx, remoteID); err != nil {
			return fmt.Errorf("failed to remove cart item %s: %w", remoteID, err)
		}
		return nil
	}, "Failed to remove item from cart")
}

// removeAtLocked deletes the item at i and returns the id the remote DELETE
// should address: the item's row id when known, fallback otherwise.
func (s *Store) removeAtLocked(i int, fallback string) string {
	if i < 0 {
		return fallback
	}
	item := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	if item.CartItemID != "" {
		return item.CartItemID
	}
	return fallback
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()

	s.submit(enum.CartOperationClear, func(ctx context.Context) error {
		if err := s.remote.EmptyCart(ctx); err != nil {
			return fmt.Errorf("failed to empty cart: %w", err)
		}
		return nil
	}, "Failed to clear cart")
}

// Items returns a copy of the line items in insertion order.
func (s *Store) Items() []models.LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]models.LineItem, len(s.items))
	for i, item := range s.items {
		items[i] = *item
	}
	return items
}

func (s *Store) Item(productID string) (models.LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexByProductLocked(productID); i >= 0 {
		return *s.items[i], true
	}
	return models.LineItem{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Summary projects the line items to pricing inputs.
func (s *Store) Summary() []pricing.CartSummaryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := make([]pricing.CartSummaryItem, len(s.items))
	for i, item := range s.items {
		summary[i] = pricing.CartSummaryItem{UnitPrice: item.Price, Quantity: item.Quantity}
	}
	return summary
}

func (s *Store) LoyaltyPoints() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points int64
	for _, item := range s.items {
		points += item.LoyaltyPoints * int64(item.Quantity)
	}
	return points
}

// submit hands the remote call to the executor. Failures become
// notifications; successes invalidate cached cart reads.
func (s *Store) submit(op enum.CartOperation, call func(ctx context.Context) error, failure string) {
	s.exec.Submit(string(op), func(ctx context.Context) error {
		if err := call(ctx); err != nil {
			s.notify(ctx, models.Notification{
				SessionID: s.sessionID,
				Level:     enum.NotificationLevelError,
				Operation: op,
				Message:   failure,
				Error:     err.Error(),
				CreatedAt: time.Now(),
			})
			return err
		}

		if s.invalidator != nil {
			s.invalidator.InvalidateCart(ctx, op)
		}
		return nil
	})
}

func (s *Store) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, n)
}

func (s *Store) assignCartItemID(productID, cartItemID string) {
	if cartItemID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByProductLocked(productID)
	if i < 0 {
		s.logger.Debug("Cart item removed before remote add finished",
			zap.String("product_id", productID),
			zap.String("cart_item_id", cartItemID))
		return
	}
	if s.items[i].CartItemID == "" {
		s.items[i].CartItemID = cartItemID
	}
}

func (s *Store) cartItemIDFor(productID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexByProductLocked(productID); i >= 0 {
		return s.items[i].CartItemID
	}
	return ""
}

func (s *Store) indexByProductLocked(productID string) int {
	return slices.IndexFunc(s.items, func(item *models.LineItem) bool {
		return item.ID == productID
	})
}

func (s *Store) indexByCartItemLocked(cartItemID string) int {
	if cartItemID == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(item *models.LineItem) bool {
		return item.CartItemID == cartItemID
	})
}
