package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"vibeshop-backend/internal/auth"
	"vibeshop-backend/internal/cart"
	"vibeshop-backend/internal/catalog"
	"vibeshop-backend/internal/checkout"
	"vibeshop-backend/internal/domain"
	"vibeshop-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	engine *gin.Engine
	byName map[string]domain.Product
}

func newServer(t *testing.T, fallback bool) *server {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.NewMemory()

	cat := catalog.New(s.Collection(store.Products), logger)
	if _, err := cat.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	products, err := cat.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byName := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byName[p.Name] = p
	}

	tokens := auth.NewTokens("test-secret", time.Hour)
	users := s.Collection(store.Users)
	resolver := auth.NewResolver(users, tokens, auth.Fallback{
		Enabled:  fallback,
		Email:    "demo@example.com",
		Name:     "Demo User",
		Password: "demo-pass",
	}, logger)

	engine, err := cart.NewEngine(s.Collection(store.CartItems), cat, logger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	orchestrator, err := checkout.NewOrchestrator(engine, cat, s.Collection(store.Orders), nil, logger)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("shop_checkouts_total 0\n"))
	})
	h := NewHandler(auth.NewService(users, tokens, logger), resolver, cat, engine, orchestrator, logger)

	return &server{engine: API("/api", []string{"*"}, metrics, h), byName: byName}
}

func (s *server) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	expectStatus(t, rec, status)
	resp := decode[map[string]any](t, rec)
	if resp["error"] != message {
		t.Errorf("expected error %q, got %v", message, resp["error"])
	}
}

func (s *server) register(t *testing.T, email string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register",
		`{"email":"`+email+`","password":"hunter22","name":"Test User"}`, "")
	expectStatus(t, rec, http.StatusOK)
	return decode[domain.TokenResponse](t, rec).AccessToken
}

func TestAPI_Operational(t *testing.T) {
	s := newServer(t, false)

	t.Run("healthz", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/healthz", "", "")
		expectStatus(t, rec, http.StatusOK)
		if resp := decode[map[string]string](t, rec); resp["status"] != "ok" {
			t.Errorf("expected status ok, got %v", resp)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/metrics", "", "")
		expectStatus(t, rec, http.StatusOK)
		if !strings.Contains(rec.Body.String(), "shop_checkouts_total") {
			t.Errorf("unexpected metrics body: %s", rec.Body.String())
		}
	})
}

func TestAPI_Auth(t *testing.T) {
	s := newServer(t, false)

	t.Run("register and resolve", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/auth/register",
			`{"email":"ada@example.com","password":"hunter22","name":"Ada"}`, "")
		expectStatus(t, rec, http.StatusOK)
		resp := decode[domain.TokenResponse](t, rec)
		if resp.TokenType != "bearer" || resp.AccessToken == "" {
			t.Fatalf("unexpected token response: %+v", resp)
		}
		if strings.Contains(rec.Body.String(), "password") {
			t.Errorf("expected no password material in response, got %s", rec.Body.String())
		}

		me := s.do(t, http.MethodGet, "/api/auth/me", "", resp.AccessToken)
		expectStatus(t, me, http.StatusOK)
		user := decode[domain.UserResponse](t, me)
		if user.Email != "ada@example.com" || user.ID != resp.User.ID {
			t.Errorf("unexpected user: %+v", user)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/auth/register",
			`{"email":"ada@example.com","password":"other","name":"Ada Again"}`, "")
		expectError(t, rec, http.StatusBadRequest, "Email already registered")
	})

	t.Run("malformed registration", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"not-an-email","password":"x","name":"x"}`, "")
		expectError(t, rec, http.StatusBadRequest, "invalid input")
	})

	t.Run("login", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"hunter22"}`, "")
		expectStatus(t, rec, http.StatusOK)
		if resp := decode[domain.TokenResponse](t, rec); resp.AccessToken == "" {
			t.Error("expected an access token")
		}
	})

	t.Run("login failures look the same", func(t *testing.T) {
		wrong := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"nope"}`, "")
		expectError(t, wrong, http.StatusUnauthorized, "Invalid credentials")
		unknown := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"ghost@example.com","password":"nope"}`, "")
		expectError(t, unknown, http.StatusUnauthorized, "Invalid credentials")
	})

	t.Run("missing credential", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/auth/me", "", "")
		expectError(t, rec, http.StatusUnauthorized, "Not authenticated")
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/cart", "", "not-a-jwt")
		expectError(t, rec, http.StatusUnauthorized, "Invalid token")
	})
}

func TestAPI_Fallback(t *testing.T) {
	s := newServer(t, true)

	rec := s.do(t, http.MethodGet, "/api/auth/me", "", "")
	expectStatus(t, rec, http.StatusOK)
	first := decode[domain.UserResponse](t, rec)
	if first.Email != "demo@example.com" {
		t.Errorf("expected fallback identity, got %+v", first)
	}

	again := decode[domain.UserResponse](t, s.do(t, http.MethodGet, "/api/auth/me", "", ""))
	if again.ID != first.ID {
		t.Errorf("expected the same fallback user, got %s and %s", first.ID, again.ID)
	}

	bad := s.do(t, http.MethodGet, "/api/auth/me", "", "not-a-jwt")
	expectError(t, bad, http.StatusUnauthorized, "Invalid token")
}

func TestAPI_Products(t *testing.T) {
	s := newServer(t, false)

	rec := s.do(t, http.MethodGet, "/api/products", "", "")
	expectStatus(t, rec, http.StatusOK)
	if products := decode[[]domain.Product](t, rec); len(products) != 8 {
		t.Errorf("expected 8 products, got %d", len(products))
	}

	mat := s.byName["Yoga Mat"]
	one := s.do(t, http.MethodGet, "/api/products/"+mat.ID, "", "")
	expectStatus(t, one, http.StatusOK)
	if p := decode[domain.Product](t, one); p.Price != 29.99 {
		t.Errorf("expected price 29.99, got %v", p.Price)
	}

	missing := s.do(t, http.MethodGet, "/api/products/unknown", "", "")
	expectError(t, missing, http.StatusNotFound, "Product not found")
}

func TestAPI_ShoppingFlow(t *testing.T) {
	s := newServer(t, false)
	token := s.register(t, "shopper@example.com")
	mat := s.byName["Yoga Mat"].ID

	add := s.do(t, http.MethodPost, "/api/cart", `{"product_id":"`+mat+`","quantity":1}`, token)
	expectStatus(t, add, http.StatusOK)
	added := decode[map[string]any](t, add)
	if added["message"] != "Added to cart" {
		t.Errorf("expected 'Added to cart', got %v", added["message"])
	}
	itemID, _ := added["cart_item_id"].(string)

	merge := s.do(t, http.MethodPost, "/api/cart", `{"product_id":"`+mat+`"}`, token)
	expectStatus(t, merge, http.StatusOK)
	merged := decode[map[string]any](t, merge)
	if merged["message"] != "Cart updated" || merged["cart_item_id"] != itemID {
		t.Errorf("expected merge into %s, got %v", itemID, merged)
	}

	cartResp := decode[domain.CartResponse](t, s.do(t, http.MethodGet, "/api/cart", "", token))
	if len(cartResp.Items) != 1 || cartResp.Total != 59.98 {
		t.Fatalf("expected one line totalling 59.98, got %+v", cartResp)
	}

	t.Run("cart errors", func(t *testing.T) {
		expectError(t, s.do(t, http.MethodPost, "/api/cart", `{"product_id":"unknown"}`, token),
			http.StatusNotFound, "Product not found")
		expectError(t, s.do(t, http.MethodPost, "/api/cart", `{"quantity":2}`, token),
			http.StatusBadRequest, "invalid input")
		expectError(t, s.do(t, http.MethodPatch, "/api/cart/"+itemID, `{"quantity":0}`, token),
			http.StatusBadRequest, "Quantity must be greater than 0")
		expectError(t, s.do(t, http.MethodPatch, "/api/cart/"+itemID, `{}`, token),
			http.StatusBadRequest, "invalid input")
		expectError(t, s.do(t, http.MethodPatch, "/api/cart/unknown", `{"quantity":3}`, token),
			http.StatusNotFound, "Cart item not found")
		expectError(t, s.do(t, http.MethodDelete, "/api/cart/unknown", "", token),
			http.StatusNotFound, "Cart item not found")
	})

	t.Run("other users cannot touch the item", func(t *testing.T) {
		other := s.register(t, "other@example.com")
		expectError(t, s.do(t, http.MethodPatch, "/api/cart/"+itemID, `{"quantity":9}`, other),
			http.StatusNotFound, "Cart item not found")
	})

	expectError(t, s.do(t, http.MethodPost, "/api/checkout", `{"name":"Smoke Tester"}`, token),
		http.StatusBadRequest, "invalid input")

	rec := s.do(t, http.MethodPost, "/api/checkout", `{"name":"Smoke Tester","email":"smoketester@example.com"}`, token)
	expectStatus(t, rec, http.StatusOK)
	receipt := decode[domain.Receipt](t, rec)
	if receipt.Total != 59.98 || receipt.CustomerEmail != "smoketester@example.com" {
		t.Errorf("unexpected receipt: %+v", receipt)
	}

	empty := decode[domain.CartResponse](t, s.do(t, http.MethodGet, "/api/cart", "", token))
	if len(empty.Items) != 0 || empty.Total != 0 {
		t.Errorf("expected an empty cart, got %+v", empty)
	}
	expectError(t, s.do(t, http.MethodPost, "/api/checkout", `{"name":"Smoke Tester","email":"smoketester@example.com"}`, token),
		http.StatusBadRequest, "Cart is empty")

	orders := decode[[]domain.Order](t, s.do(t, http.MethodGet, "/api/orders", "", token))
	if len(orders) != 1 || orders[0].ID != receipt.OrderID {
		t.Fatalf("expected the placed order, got %+v", orders)
	}
	order := s.do(t, http.MethodGet, "/api/orders/"+receipt.OrderID, "", token)
	expectStatus(t, order, http.StatusOK)
	expectError(t, s.do(t, http.MethodGet, "/api/orders/unknown", "", token), http.StatusNotFound, "Order not found")
}

func TestAPI_RemoveAndClear(t *testing.T) {
	s := newServer(t, false)
	token := s.register(t, "tidy@example.com")

	var ids []string
	for _, name := range []string{"Coffee Maker", "Water Bottle", "Smart Watch"} {
		rec := s.do(t, http.MethodPost, "/api/cart", `{"product_id":"`+s.byName[name].ID+`"}`, token)
		expectStatus(t, rec, http.StatusOK)
		id, _ := decode[map[string]any](t, rec)["cart_item_id"].(string)
		ids = append(ids, id)
	}

	rec := s.do(t, http.MethodDelete, "/api/cart/"+ids[0], "", token)
	expectStatus(t, rec, http.StatusOK)
	if msg := decode[map[string]any](t, rec)["message"]; msg != "Item removed from cart" {
		t.Errorf("unexpected message %v", msg)
	}

	cleared := s.do(t, http.MethodDelete, "/api/cart", "", token)
	expectStatus(t, cleared, http.StatusOK)
	if removed := decode[map[string]any](t, cleared)["removed"]; removed != float64(2) {
		t.Errorf("expected 2 removed, got %v", removed)
	}
}

type brokenCatalog struct{}

func (brokenCatalog) List(context.Context) ([]domain.Product, error) {
	return nil, errors.New("connection refused")
}

func (brokenCatalog) Get(context.Context, string) (domain.Product, error) {
	return domain.Product{}, errors.New("connection refused")
}

func TestAPI_InternalErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(nil, nil, brokenCatalog{}, nil, nil, logger)
	r := API("/api", nil, nil, h)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	expectError(t, rec, http.StatusInternalServerError, "internal server error")
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("expected internal details to stay out of the response, got %s", rec.Body.String())
	}
}

func TestCORSConfig(t *testing.T) {
	t.Run("wildcard allows all origins", func(t *testing.T) {
		cfg := corsConfig([]string{"*"})
		if !cfg.AllowAllOrigins || cfg.AllowCredentials {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("explicit origins allow credentials", func(t *testing.T) {
		cfg := corsConfig([]string{"https://shop.example.com"})
		if cfg.AllowAllOrigins || !cfg.AllowCredentials || len(cfg.AllowOrigins) != 1 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})
}
