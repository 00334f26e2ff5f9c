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

// Static errors for the ElevenLabs client.
var (
	// ErrElevenLabsAPIKeyRequired is returned when no API key is provided.
	ErrElevenLabsAPIKeyRequired = errors.New("tts: elevenlabs API key is required")
	// ErrElevenLabsRequestFailed is returned on a non-2xx response.
	ErrElevenLabsRequestFailed = errors.New("tts: elevenlabs request failed")
)

// styleSettings maps delivery styles to ElevenLabs voice settings.
var styleSettings = map[string]voiceSettings{
	"calm":      {Stability: 0.75, SimilarityBoost: 0.75, Style: 0.2},
	"warm":      {Stability: 0.65, SimilarityBoost: 0.80, Style: 0.4},
	"energetic": {Stability: 0.45, SimilarityBoost: 0.75, Style: 0.7},
}

// ElevenLabsClient synthesizes speech via the ElevenLabs HTTP API.
type ElevenLabsClient struct {
	apiKey     string
	baseURL    string
	modelID    string
	httpClient *http.Client
}

// Compile-time check that ElevenLabsClient implements Synthesizer.
var _ Synthesizer = (*ElevenLabsClient)(nil)

// ElevenLabsOption configures an ElevenLabsClient.
type ElevenLabsOption func(*ElevenLabsClient)

// WithElevenLabsBaseURL sets a custom base URL.
func WithElevenLabsBaseURL(url string) ElevenLabsOption {
	return func(c *ElevenLabsClient) { c.baseURL = url }
}

// WithElevenLabsHTTPClient sets a custom HTTP client.
func WithElevenLabsHTTPClient(hc *http.Client) ElevenLabsOption {
	return func(c *ElevenLabsClient) { c.httpClient = hc }
}

// WithElevenLabsModel sets the synthesis model.
func WithElevenLabsModel(model string) ElevenLabsOption {
	return func(c *ElevenLabsClient) { c.modelID = model }
}

// NewElevenLabsClient creates a new ElevenLabs TTS client.
func NewElevenLabsClient(apiKey string, opts ...ElevenLabsOption) (*ElevenLabsClient, error) {
	if apiKey == "" {
		return nil, ErrElevenLabsAPIKeyRequired
	}

	c := &ElevenLabsClient{
		apiKey:     apiKey,
		baseURL:    "https://api.elevenlabs.io/v1",
		modelID:    "eleven_multilingual_v2",
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name implements Synthesizer.
func (c *ElevenLabsClient) Name() string { return "elevenlabs" }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize renders the request to MP3 bytes.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	settings, ok := styleSettings[req.Style]
	if !ok {
		settings = styleSettings["calm"]
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:          req.Text,
		ModelID:       c.modelID,
		VoiceSettings: settings,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, req.VoiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: create elevenlabs request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts: elevenlabs request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read elevenlabs response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w with status %d: %s", ErrElevenLabsRequestFailed, resp.StatusCode, string(audio))
	}
	return audio, nil
}
