// Package tts provides the common interface for text-to-speech providers
// and a fallback chain that retries a secondary provider transparently
// before surfacing an error.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoProviders is returned when a chain is built without providers.
var ErrNoProviders = errors.New("tts: at least one provider is required")

// Request carries the synthesis parameters for one narration clip.
type Request struct {
	// Text is the narration script to speak.
	Text string
	// VoiceID selects the provider voice.
	VoiceID string
	// Style is the delivery style hint ("calm", "warm", "energetic").
	Style string
}

// Synthesizer defines the interface for text-to-speech providers.
type Synthesizer interface {
	// Synthesize renders the request to encoded audio bytes.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
	// Name identifies the provider in logs.
	Name() string
}

// Chain tries providers in order until one succeeds.
// A primary-provider failure is logged and absorbed; only the failure of
// every provider surfaces to the caller.
type Chain struct {
	providers []Synthesizer
	logger    *slog.Logger
}

// Compile-time check that Chain implements Synthesizer.
var _ Synthesizer = (*Chain)(nil)

// NewChain creates a fallback chain over the given providers.
func NewChain(logger *slog.Logger, providers ...Synthesizer) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger}, nil
}

// Name implements Synthesizer.
func (c *Chain) Name() string { return "chain" }

// Synthesize tries each provider in order.
func (c *Chain) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error
	for i, p := range c.providers {
		audio, err := p.Synthesize(ctx, req)
		if err == nil {
			return audio, nil
		}
		lastErr = err

		if i < len(c.providers)-1 {
			c.logger.Warn("tts provider failed, trying fallback",
				slog.String("provider", p.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil, fmt.Errorf("tts: all providers failed: %w", lastErr)
}
