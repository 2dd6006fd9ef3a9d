package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goflare.io/pos/cache"
	"goflare.io/pos/models"
)

type capturedRequest struct {
	Method    string
	Path      string
	Body      string
	Auth      string
	RequestID string
	SessionID string
}

type fakeBackend struct {
	m        sync.Mutex
	requests []capturedRequest
	status   atomic.Int32
	addBody  string
	cartBody string
}

func (b *fakeBackend) capture(w http.ResponseWriter, r *http.Request) bool {
	body, _ := io.ReadAll(r.Body)
	b.m.Lock()
	b.requests = append(b.requests, capturedRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		Body:      string(body),
		Auth:      r.Header.Get("Authorization"),
		RequestID: r.Header.Get("X-Request-ID"),
		SessionID: r.Header.Get("X-Session-ID"),
	})
	b.m.Unlock()

	if code := int(b.status.Load()); code != 0 {
		http.Error(w, `{"message":"nope"}`, code)
		return false
	}
	return true
}

func (b *fakeBackend) all() []capturedRequest {
	b.m.Lock()
	defer b.m.Unlock()
	return append([]capturedRequest(nil), b.requests...)
}

func (b *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/cart", func(w http.ResponseWriter, r *http.Request) {
		if !b.capture(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, b.addBody)
	})
	r.Post("/cart/empty", func(w http.ResponseWriter, r *http.Request) {
		if b.capture(w, r) {
			w.WriteHeader(http.StatusNoContent)
		}
	})
	r.Put("/cart/{id}", func(w http.ResponseWriter, r *http.Request) {
		if b.capture(w, r) {
			w.WriteHeader(http.StatusOK)
		}
	})
	r.Delete("/cart/{id}", func(w http.ResponseWriter, r *http.Request) {
		if b.capture(w, r) {
			w.WriteHeader(http.StatusNoContent)
		}
	})
	r.Get("/cart", func(w http.ResponseWriter, r *http.Request) {
		if !b.capture(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, b.cartBody)
	})
	return r
}

func setupClient(t *testing.T, backend *fakeBackend, queryCache cache.QueryCache) *CartClient {
	t.Helper()
	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)

	return New(Options{
		BaseURL:         srv.URL + "/",
		Token:           "secret",
		SessionID:       "session-1",
		Timeout:         2 * time.Second,
		BreakerFailures: 3,
		BreakerTimeout:  time.Minute,
	}, queryCache, nil)
}

func TestCartClient_AddItem(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"cart_item_id string", `{"cart_item_id":"row-9"}`, "row-9"},
		{"numeric id", `{"id":42}`, "42"},
		{"nested data", `{"data":{"id":"row-7"}}`, "row-7"},
		{"no id", `{"ok":true}`, ""},
		{"empty body", ``, ""},
		{"not json", `created`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{addBody: tt.body}
			c := setupClient(t, backend, nil)

			id, err := c.AddItem(context.Background(), models.AddItemPayload{ProductID: "p1", Quantity: 1})
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)

			reqs := backend.all()
			require.Len(t, reqs, 1)
			assert.Equal(t, http.MethodPost, reqs[0].Method)
			assert.Equal(t, "/cart", reqs[0].Path)
			assert.JSONEq(t, `{"product_id":"p1","quantity":1}`, reqs[0].Body)
			assert.Equal(t, "Bearer secret", reqs[0].Auth)
			assert.NotEmpty(t, reqs[0].RequestID)
			assert.Equal(t, "session-1", reqs[0].SessionID)
		})
	}
}

func TestCartClient_UpdateItem(t *testing.T) {
	backend := &fakeBackend{}
	c := setupClient(t, backend, nil)

	err := c.UpdateItem(context.Background(), "row-1", models.UpdateItemPayload{ProductID: "p1", Quantity: 4})
	require.NoError(t, err)

	reqs := backend.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/cart/row-1", reqs[0].Path)
	assert.JSONEq(t, `{"product_id":"p1","quantity":4}`, reqs[0].Body)
}

func TestCartClient_UpdateItemWithoutID(t *testing.T) {
	backend := &fakeBackend{}
	c := setupClient(t, backend, nil)

	err := c.UpdateItem(context.Background(), "", models.UpdateItemPayload{ProductID: "p1", Quantity: 4})
	assert.ErrorIs(t, err, ErrMissingCartItemID)
	assert.Empty(t, backend.all())
}

func TestCartClient_RemoveItemAndEmptyCart(t *testing.T) {
	backend := &fakeBackend{}
	c := setupClient(t, backend, nil)
	ctx := context.Background()

	require.NoError(t, c.RemoveItem(ctx, "row-3"))
	require.NoError(t, c.EmptyCart(ctx))
	assert.ErrorIs(t, c.RemoveItem(ctx, ""), ErrMissingCartItemID)

	reqs := backend.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/cart/row-3", reqs[0].Path)
	assert.Equal(t, http.MethodPost, reqs[1].Method)
	assert.Equal(t, "/cart/empty", reqs[1].Path)
	assert.Empty(t, reqs[1].Body)
}

func TestCartClient_StatusError(t *testing.T) {
	backend := &fakeBackend{}
	backend.status.Store(http.StatusUnprocessableEntity)
	c := setupClient(t, backend, nil)

	_, err := c.AddItem(context.Background(), models.AddItemPayload{ProductID: "p1", Quantity: 1})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
	assert.Equal(t, "add cart item", se.Op)
	assert.Contains(t, se.Body, "nope")
}

func TestCartClient_BreakerOpensOnServerErrors(t *testing.T) {
	backend := &fakeBackend{}
	backend.status.Store(http.StatusBadGateway)
	c := setupClient(t, backend, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := c.EmptyCart(ctx)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	}

	err := c.EmptyCart(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, backend.all(), 3, "open breaker does not reach the backend")
}

func TestCartClient_ClientErrorsDoNotOpenBreaker(t *testing.T) {
	backend := &fakeBackend{}
	backend.status.Store(http.StatusNotFound)
	c := setupClient(t, backend, nil)

	for i := 0; i < 5; i++ {
		assert.Error(t, c.RemoveItem(context.Background(), "row-1"))
	}
	assert.Len(t, backend.all(), 5)
}

func TestCartClient_GetCartUsesQueryCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	backend := &fakeBackend{cartBody: `{"items":[{"id":"row-1","product_id":"p1","quantity":2,"unit_price":"20"}]}`}
	c := setupClient(t, backend, cache.NewRedisQueryCache(rdb, time.Minute))
	ctx := context.Background()

	first, err := c.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, 2, first.Items[0].Quantity)

	second, err := c.GetCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Items[0].ID, second.Items[0].ID)
	assert.Len(t, backend.all(), 1, "second read is served from cache")

	require.NoError(t, c.InvalidateQueries(ctx))
	assert.False(t, mr.Exists(cache.CartKey("session-1")))

	_, err = c.GetCart(ctx)
	require.NoError(t, err)
	assert.Len(t, backend.all(), 2)
}

func TestCartClient_GetCartWithoutCache(t *testing.T) {
	backend := &fakeBackend{cartBody: `{"items":[]}`}
	c := setupClient(t, backend, nil)

	remote, err := c.GetCart(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remote.Items)
	assert.NoError(t, c.InvalidateQueries(context.Background()))
}

func TestRawID(t *testing.T) {
	assert.Equal(t, "", rawID(nil))
	assert.Equal(t, "", rawID(json.RawMessage("null")))
	assert.Equal(t, "abc", rawID(json.RawMessage(`"abc"`)))
	assert.Equal(t, "17", rawID(json.RawMessage(`17`)))
	assert.Equal(t, "", rawID(json.RawMessage(`{}`)))
}
