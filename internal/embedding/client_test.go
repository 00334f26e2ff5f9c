package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("")
	if !errors.Is(err, ErrAPIKeyRequired) {
		t.Errorf("error = %v, want ErrAPIKeyRequired", err)
	}
}

func TestEmbed(t *testing.T) {
	var gotReq embedRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer ts.Close()

	client, err := NewClient("test-key", WithBaseURL(ts.URL), WithModel("test-model"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vec, err := client.Embed(context.Background(), "calm narration text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("len(vec) = %d, want 3", len(vec))
	}
	if vec[0] != 0.1 || vec[2] != 0.3 {
		t.Errorf("vec = %v", vec)
	}

	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotReq.Model)
	}
	if gotReq.Input != "calm narration text" {
		t.Errorf("input = %q", gotReq.Input)
	}
}

func TestEmbed_EmptyText(t *testing.T) {
	client, _ := NewClient("test-key")

	_, err := client.Embed(context.Background(), "")
	if !errors.Is(err, ErrEmptyText) {
		t.Errorf("error = %v, want ErrEmptyText", err)
	}
}

func TestEmbed_EmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer ts.Close()

	client, _ := NewClient("test-key", WithBaseURL(ts.URL))

	_, err := client.Embed(context.Background(), "text")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestEmbed_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1]}]}`))
	}))
	defer ts.Close()

	client, _ := NewClient("test-key",
		WithBaseURL(ts.URL),
		WithMaxRetries(2),
		WithBaseBackoff(time.Millisecond),
	)

	vec, err := client.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 1 {
		t.Errorf("len(vec) = %d, want 1", len(vec))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestEmbed_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client, _ := NewClient("test-key",
		WithBaseURL(ts.URL),
		WithMaxRetries(3),
		WithBaseBackoff(time.Millisecond),
	)

	_, err := client.Embed(context.Background(), "text")
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("error = %v, want ErrRequestFailed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}
