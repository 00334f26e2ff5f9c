package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
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

func chatReply(content string) string {
	resp := chatResponse{}
	resp.Choices = append(resp.Choices, struct {
		Message chatMessage `json:"message"`
	}{Message: chatMessage{Role: "assistant", Content: content}})
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestGenerate(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(chatReply("Close your eyes and breathe.")))
	}))
	defer ts.Close()

	client, err := NewClient("test-key", WithBaseURL(ts.URL), WithModel("test-model"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, err := client.Generate(context.Background(), "system prompt", "user prompt", 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Close your eyes and breathe." {
		t.Errorf("text = %q", text)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(gotReq.Messages))
	}
	// The word budget travels inside the user prompt.
	if !strings.Contains(gotReq.Messages[1].Content, "approximately 40 words") {
		t.Errorf("user prompt missing word budget: %q", gotReq.Messages[1].Content)
	}
}

func TestGenerate_EmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	client, _ := NewClient("test-key", WithBaseURL(ts.URL))

	_, err := client.Generate(context.Background(), "sys", "user", 0)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(chatReply("ok after retries")))
	}))
	defer ts.Close()

	client, _ := NewClient("test-key",
		WithBaseURL(ts.URL),
		WithMaxRetries(3),
		WithBaseBackoff(time.Millisecond),
	)

	text, err := client.Generate(context.Background(), "sys", "user", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok after retries" {
		t.Errorf("text = %q", text)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestGenerate_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client, _ := NewClient("test-key",
		WithBaseURL(ts.URL),
		WithMaxRetries(3),
		WithBaseBackoff(time.Millisecond),
	)

	_, err := client.Generate(context.Background(), "sys", "user", 0)
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("error = %v, want ErrRequestFailed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestGenerate_TruncatesOverlongReplies(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 100))
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chatReply(long)))
	}))
	defer ts.Close()

	client, _ := NewClient("test-key", WithBaseURL(ts.URL))

	text, err := client.Generate(context.Background(), "sys", "user", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(strings.Fields(text)); got != 50 {
		t.Errorf("word count = %d, want 50", got)
	}
}

func TestTruncateToWords(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		target    int
		wantWords int
	}{
		{"under target", "one two three", 10, 3},
		{"at target", "one two three", 3, 3},
		{"within slack", strings.Repeat("w ", 105), 100, 105},
		{"over slack", strings.Repeat("w ", 120), 100, 100},
		{"zero target", "one two three", 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateToWords(strings.TrimSpace(tt.text), tt.target)
			if n := len(strings.Fields(got)); n != tt.wantWords {
				t.Errorf("word count = %d, want %d", n, tt.wantWords)
			}
		})
	}
}
