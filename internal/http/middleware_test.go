package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/Nithesh414/Bloom-Alert/internal/observability"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	w := env.do(httptest.NewRequest("GET", "/health", nil))

	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := env.do(req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
}

func TestMiddleware_RequestLoggerCarriesCorrelationID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFromContext(r.Context()).Info("pong")
		if observability.CorrelationIDFromContext(r.Context()) != "abc" {
			t.Error("correlation ID not stored in context")
		}
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Correlation-ID", "abc")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("pong").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["correlation_id"]; got != "abc" {
		t.Errorf("correlation_id = %v, want abc", got)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	env := newTestEnv(t, envOptions{limiter: rate.NewLimiter(1, 2)})
	session, _ := env.login(t, "alice")

	for i := 0; i < 3; i++ {
		w := env.do(httptest.NewRequest("GET", "/api/ndvi_monthly", nil), session)
		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		if got := decodeError(t, w).Code; got != CodeRateLimited {
			t.Errorf("error.code = %q, want %s", got, CodeRateLimited)
		}
	}
}

func TestRateLimitMiddleware_PagesNotLimited(t *testing.T) {
	env := newTestEnv(t, envOptions{limiter: rate.NewLimiter(1, 1)})
	session, _ := env.login(t, "alice")

	for i := 0; i < 3; i++ {
		if w := env.do(httptest.NewRequest("GET", "/about", nil), session); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	handler := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 (nil limiter should allow)", w.Code)
	}
}

func TestMiddleware_GetRoute(t *testing.T) {
	var got string
	router := mux.NewRouter()
	router.HandleFunc("/update_report/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = getRoute(r)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/update_report/42", nil))

	if got != "/update_report/{id}" {
		t.Errorf("getRoute() = %q, want /update_report/{id}", got)
	}
	if r := getRoute(httptest.NewRequest("GET", "/nowhere", nil)); r != "unmatched" {
		t.Errorf("getRoute() without route = %q, want unmatched", r)
	}
}

func TestMiddleware_MetricsRoute(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.do(httptest.NewRequest("GET", "/health", nil))

	w := env.do(httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("metrics output missing httpRequestsTotal")
	}
}
