package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/QuantumAegis/internal/api/handler"
)

func TestRateLimiter_429AfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(handler.RateLimiter(ctx, 1, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "192.0.2.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("second client: expected 200, got %d", w.Code)
	}

	// OPTIONS is never limited.
	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("options: expected 200, got %d", w.Code)
	}
}

func TestRequestID_propagatesOrMints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(handler.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(handler.RequestIDHeader); got != "abc-123" {
		t.Errorf("propagated id = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(handler.RequestIDHeader); len(got) != 36 {
		t.Errorf("minted id = %q, want a UUID", got)
	}
}
