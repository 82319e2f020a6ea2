package sessionapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"quiz-status-gateway/internal/domain"
)

func TestUpdateStatusWithRetrySendsPatch(t *testing.T) {
	var got struct {
		method, path, auth string
		body               map[string]string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/students", "tok", time.Second)
	outcome, err := client.UpdateStatusWithRetry(context.Background(), 123, domain.StatusCompleted, 2)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if got.method != http.MethodPatch || got.path != "/students/quiz-sessions/123/status" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if got.auth != "Bearer tok" {
		t.Fatalf("expected bearer token, got %q", got.auth)
	}
	if got.body["status"] != "COMPLETED" {
		t.Fatalf("expected COMPLETED body, got %v", got.body)
	}
}

func TestUpdateStatusWithRetryRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second, WithBackoff(time.Millisecond, 5*time.Millisecond))
	outcome, err := client.UpdateStatusWithRetry(context.Background(), 1, domain.StatusInProgress, 3)
	if err != nil || !outcome.Success {
		t.Fatalf("expected success after retries, got %+v err=%v", outcome, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestUpdateStatusWithRetryGivesUpAfterRetryCount(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream down"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second, WithBackoff(time.Millisecond, 2*time.Millisecond))
	outcome, err := client.UpdateStatusWithRetry(context.Background(), 1, domain.StatusInProgress, 2)
	if err != nil {
		t.Fatalf("expected rejection in outcome, got error %v", err)
	}
	if outcome.Success || outcome.Error != "session api: status 502: upstream down" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected first attempt plus 2 retries, got %d", calls.Load())
	}
}

func TestUpdateStatusWithRetryDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "session closed", http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second, WithBackoff(time.Millisecond, 2*time.Millisecond))
	outcome, err := client.UpdateStatusWithRetry(context.Background(), 1, domain.StatusCompleted, 5)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if outcome.Success || outcome.Error != "session api: status 409: session closed" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestUpdateStatusWithRetryTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, "", time.Second, WithBackoff(time.Millisecond, 2*time.Millisecond))
	_, err := client.UpdateStatusWithRetry(context.Background(), 1, domain.StatusInProgress, 1)
	if err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestUpdateStatusWithRetryRejectsUnknownStatus(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", "", time.Second)
	_, err := client.UpdateStatusWithRetry(context.Background(), 1, domain.StatusNotStarted, 0)
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}
