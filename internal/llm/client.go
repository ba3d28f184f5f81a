// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/knightcli/knight/internal/config"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeStatus
	ErrTypeInvalidResponse
)

// ClientError represents an error from a model backend.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// CLIENT INTERFACE
// =============================================================================

// Chunk is one streamed fragment of a model response.
type Chunk struct {
	Content string
	Done    bool
}

// StreamCallback receives each chunk as it arrives. It is called from
// the goroutine driving the HTTP response body; callbacks must be fast.
type StreamCallback func(Chunk)

// Request is a single-turn generation request.
type Request struct {
	System string
	Prompt string
}

// Client is the streaming model interface the engine depends on.
type Client interface {
	// Stream sends the request and invokes cb for each response chunk
	// until the stream completes or ctx is cancelled.
	Stream(ctx context.Context, req Request, cb StreamCallback) error

	// Model returns the backend model name, for logging.
	Model() string
}

// Collect runs Stream and returns the concatenated response text.
func Collect(ctx context.Context, c Client, req Request) (string, error) {
	var sb strings.Builder
	err := c.Stream(ctx, req, func(chunk Chunk) {
		sb.WriteString(chunk.Content)
	})
	return sb.String(), err
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// streamTimeout bounds how long a single generation may run end to end.
const streamTimeout = 10 * time.Minute

// New builds a Client for the given model configuration.
func New(mc config.ModelConfig) (Client, error) {
	httpClient := &http.Client{Timeout: streamTimeout}
	limiter := newLimiter(mc.RequestsPerMinute)

	switch mc.Type {
	case config.ModelTypeOllama:
		return &OllamaClient{
			baseURL:     strings.TrimRight(mc.Endpoint, "/"),
			model:       mc.Name,
			temperature: mc.Temperature,
			maxTokens:   mc.MaxTokens,
			httpClient:  httpClient,
			limiter:     limiter,
		}, nil
	case config.ModelTypeOpenAICompatible:
		return &OpenAIClient{
			baseURL:     strings.TrimRight(mc.Endpoint, "/"),
			model:       mc.Name,
			apiKey:      mc.APIKey,
			temperature: mc.Temperature,
			maxTokens:   mc.MaxTokens,
			httpClient:  httpClient,
			limiter:     limiter,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", mc.Type)
	}
}

// newLimiter returns a per-client rate limiter, or nil when the model
// config does not cap request rate.
func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// wait blocks on the limiter when one is configured.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
