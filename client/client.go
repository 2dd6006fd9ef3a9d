// Package client talks to the POS backend's REST cart endpoints.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"goflare.io/pos/cache"
	"goflare.io/pos/cart"
	"goflare.io/pos/models"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

var ErrMissingCartItemID = errors.New("missing cart item id")

var _ cart.Remote = (*CartClient)(nil)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

type Options struct {
	BaseURL   string
	Token     string
	SessionID string
	Timeout   time.Duration

	// BreakerFailures consecutive 5xx or transport errors open the breaker
	// for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type CartClient struct {
	http      *resty.Client
	breaker   *gobreaker.CircuitBreaker[*resty.Response]
	cache     cache.QueryCache
	sessionID string
	logger    *zap.Logger
}

// New builds a client for one session. queryCache may be nil.
func New(opts Options, queryCache cache.QueryCache, logger *zap.Logger) *CartClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = defaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = defaultBreakerTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		httpClient.SetAuthToken(opts.Token)
	}

	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:    "pos-cart-api",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &CartClient{
		http:      httpClient,
		breaker:   breaker,
		cache:     queryCache,
		sessionID: opts.SessionID,
		logger:    logger,
	}
}

type addItemResponse struct {
	CartItemID json.RawMessage `json:"cart_item_id"`
	ID         json.RawMessage `json:"id"`
	Data       *struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// AddItem posts payload to /cart and returns the server row id when the
// response carries one.
func (c *CartClient) AddItem(ctx context.Context, payload any) (string, error) {
	resp, err := c.do(ctx, "add cart item", http.MethodPost, "/cart", "", payload)
	if err != nil {
		return "", err
	}

	if len(resp.Body()) == 0 {
		return "", nil
	}
	var body addItemResponse
	if err = json.Unmarshal(resp.Body(), &body); err != nil {
		c.logger.Debug("Add cart item response is not JSON", zap.Error(err))
		return "", nil
	}

	for _, raw := range []json.RawMessage{body.CartItemID, body.ID} {
		if id := rawID(raw); id != "" {
			return id, nil
		}
	}
	if body.Data != nil {
		return rawID(body.Data.ID), nil
	}
	return "", nil
}

func (c *CartClient) UpdateItem(ctx context.Context, cartItemID string, payload models.UpdateItemPayload) error {
	if cartItemID == "" {
		return fmt.Errorf("update cart item %s: %w", payload.ProductID, ErrMissingCartItemID)
	}
	_, err := c.do(ctx, "update cart item", http.MethodPut, "/cart/{id}", cartItemID, payload)
	return err
}

func (c *CartClient) RemoveItem(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("remove cart item: %w", ErrMissingCartItemID)
	}
	_, err := c.do(ctx, "remove cart item", http.MethodDelete, "/cart/{id}", id, nil)
	return err
}

func (c *CartClient) EmptyCart(ctx context.Context) error {
	_, err := c.do(ctx, "empty cart", http.MethodPost, "/cart/empty", "", nil)
	return err
}

// GetCart reads GET /cart through the query cache.
func (c *CartClient) GetCart(ctx context.Context) (*models.RemoteCart, error) {
	key := cache.CartKey(c.sessionID)

	var remote models.RemoteCart
	if c.cache != nil {
		err := c.cache.Get(ctx, key, &remote)
		if err == nil {
			return &remote, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("Failed to get cart from cache", zap.Error(err))
		}
	}

	resp, err := c.do(ctx, "get cart", http.MethodGet, "/cart", "", nil)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(resp.Body(), &remote); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}

	if c.cache != nil {
		if err = c.cache.Set(ctx, key, &remote); err != nil {
			c.logger.Warn("Failed to cache cart", zap.Error(err))
		}
	}
	return &remote, nil
}

// InvalidateQueries drops cached cart reads of this session.
func (c *CartClient) InvalidateQueries(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, cache.CartKey(c.sessionID))
}

func (c *CartClient) do(ctx context.Context, op, method, path, id string, body any) (*resty.Response, error) {
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		req := c.http.R().
			SetContext(ctx).
			SetHeader("X-Request-ID", uuid.NewString())
		if c.sessionID != "" {
			req.SetHeader("X-Session-ID", c.sessionID)
		}
		if id != "" {
			req.SetPathParam("id", id)
		}
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, err
		}
		// only server side failures count against the breaker
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, statusError(op, resp)
		}
		return resp, nil
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.IsError() {
		return nil, statusError(op, resp)
	}
	return resp, nil
}

func statusError(op string, resp *resty.Response) *StatusError {
	body := strings.TrimSpace(resp.String())
	if len(body) > 256 {
		body = body[:256]
	}
	return &StatusError{Op: op, StatusCode: resp.StatusCode(), Body: body}
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
