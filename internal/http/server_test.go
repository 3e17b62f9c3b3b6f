package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finbot/internal/log"
)

func serve(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "203.0.113.5:1234"
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv := NewServer(":0", Options{
		Logger: log.Discard(),
		Checks: map[string]Check{"sqlite": func(context.Context) error { return nil }},
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := serve(t, srv, http.MethodGet, path); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestReadyReportsFailingChecks(t *testing.T) {
	srv := NewServer(":0", Options{
		Logger: log.Discard(),
		Checks: map[string]Check{
			"amqp":   func(context.Context) error { return errors.New("circuit open") },
			"sqlite": func(context.Context) error { return nil },
		},
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rr := serve(t, srv, http.MethodGet, "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, "amqp: circuit open") || strings.Contains(body, "sqlite") {
		t.Fatalf("body = %q", body)
	}
}

func TestWebhookRouteIsRateLimited(t *testing.T) {
	hits := 0
	srv := NewServer(":0", Options{
		Logger:            log.Discard(),
		WebhookPath:       "telegram/hook",
		RequestsPerMinute: 2,
		Webhook: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusOK)
		}),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		if rr := serve(t, srv, http.MethodPost, "/telegram/hook"); rr.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i+1, rr.Code, want)
		}
	}
	if hits != 2 {
		t.Fatalf("webhook handler ran %d times, want 2", hits)
	}
	// Health checks are never limited.
	if rr := serve(t, srv, http.MethodGet, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
}

func TestNoWebhookRouteWhenPolling(t *testing.T) {
	srv := NewServer(":0", Options{Logger: log.Discard(), WebhookPath: "/telegram"})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	if rr := serve(t, srv, http.MethodPost, "/telegram"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestProbesAreRejected(t *testing.T) {
	srv := NewServer(":0", Options{Logger: log.Discard()})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	if rr := serve(t, srv, http.MethodGet, "/.git/config"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
