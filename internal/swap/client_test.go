package swap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(url string, maxRetries int) *Client {
	return NewClient(url, 2*time.Second, maxRetries, time.Millisecond, zap.NewNop())
}

func TestQuoteRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Quote{RouteID: "r1", InputAmount: 1_500_000, OutputAmount: 900_000, MinOutputAmount: 895_000})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	q, err := c.Quote(context.Background(), QuoteRequest{InputAsset: "usdt", OutputAsset: NativeTON, InputAmount: 1_500_000, SlippageBPS: 50})
	if err != nil {
		t.Fatal(err)
	}
	if q.RouteID != "r1" || q.OutputAmount != 900_000 {
		t.Errorf("unexpected quote: %+v", q)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts (2 transient failures + success), got %d", got)
	}
}

func TestQuoteExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	if _, err := c.Quote(context.Background(), QuoteRequest{}); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected maxRetries+1 = 3 attempts, got %d", got)
	}
}

func TestQuoteDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown asset", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.Quote(context.Background(), QuoteRequest{InputAsset: "bogus"})
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("400 must not be retried, got %d attempts", got)
	}
}

func TestQuoteRetriesRateLimiting(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(Quote{RouteID: "r2", OutputAmount: 1})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	if _, err := c.Quote(context.Background(), QuoteRequest{}); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected a single retry after 429, got %d attempts", got)
	}
}

func TestQuotePassesSlippageThrough(t *testing.T) {
	var received QuoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(Quote{RouteID: "r3"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	_, err := c.Quote(context.Background(), QuoteRequest{InputAsset: NativeTON, OutputAsset: "jetton", InputAmount: 42, SlippageBPS: 500})
	if err != nil {
		t.Fatal(err)
	}
	if received.SlippageBPS != 500 || received.InputAmount != 42 {
		t.Errorf("request body not passed through: %+v", received)
	}
}

func TestQuoteRejectsEmptyRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Quote{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	if _, err := c.Quote(context.Background(), QuoteRequest{}); !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected ErrPermanent for missing route, got %v", err)
	}
}

func TestBuildReturnsMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TxTemplate{
			Messages:   []Message{{Address: "EQrouter", AmountNano: 50_000_000, Payload: "te6cc=="}},
			ValidUntil: 1735689600,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	tpl, err := c.Build(context.Background(), BuildRequest{RouteID: "r1", SenderAddress: "EQplatform"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tpl.Messages) != 1 || tpl.Messages[0].Address != "EQrouter" {
		t.Errorf("unexpected template: %+v", tpl)
	}
}

func TestBuildRejectsEmptyTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TxTemplate{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	if _, err := c.Build(context.Background(), BuildRequest{RouteID: "r1"}); !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected ErrPermanent for empty template, got %v", err)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	// Large base delay so the cancel lands inside the backoff sleep.
	c := NewClient(srv.URL, time.Second, 5, time.Minute, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := c.Quote(ctx, QuoteRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
