package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Static errors for the OpenAI speech client.
var (
	// ErrOpenAIAPIKeyRequired is returned when no API key is provided.
	ErrOpenAIAPIKeyRequired = errors.New("tts: openai API key is required")
	// ErrOpenAIRequestFailed is returned on a non-2xx response.
	ErrOpenAIRequestFailed = errors.New("tts: openai request failed")
)

// openAIVoices maps narrator voice identities to OpenAI voice names so the
// fallback provider can stand in for the primary without caller changes.
var openAIVoices = map[string]string{
	"female": "nova",
	"male":   "onyx",
}

// OpenAIClient synthesizes speech via the OpenAI audio/speech endpoint.
// It serves as the secondary provider in the fallback chain.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Compile-time check that OpenAIClient implements Synthesizer.
var _ Synthesizer = (*OpenAIClient)(nil)

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithOpenAIBaseURL sets a custom base URL.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) { c.baseURL = url }
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAIClient) { c.httpClient = hc }
}

// NewOpenAIClient creates a new OpenAI TTS client.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrOpenAIAPIKeyRequired
	}

	c := &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    "https://api.openai.com/v1",
		model:      "tts-1",
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name implements Synthesizer.
func (c *OpenAIClient) Name() string { return "openai" }

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// Synthesize renders the request to MP3 bytes.
func (c *OpenAIClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	voice, ok := openAIVoices[req.VoiceID]
	if !ok {
		voice = req.VoiceID
	}

	body, err := json.Marshal(speechRequest{
		Model: c.model,
		Input: req.Text,
		Voice: voice,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: create openai request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts: openai request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read openai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w with status %d: %s", ErrOpenAIRequestFailed, resp.StatusCode, string(audio))
	}
	return audio, nil
}
