// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/knightcli/knight/internal/util"
)

// =============================================================================
// OLLAMA CLIENT
// =============================================================================

// OllamaClient speaks the native Ollama generate API. Responses stream
// as newline-delimited JSON objects.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string { return c.model }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Stream sends the request to /api/generate and invokes cb per chunk.
func (c *OllamaClient) Stream(ctx context.Context, req Request, cb StreamCallback) error {
	if err := wait(ctx, c.limiter); err != nil {
		return err
	}

	body := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: true,
	}
	opts := map[string]any{}
	if c.temperature > 0 {
		opts["temperature"] = c.temperature
	}
	if c.maxTokens > 0 {
		opts["num_predict"] = c.maxTokens
	}
	if len(opts) > 0 {
		body.Options = opts
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &ClientError{Type: ErrTypeTimeout, Message: "model request timed out", Cause: err}
		}
		return &ClientError{Type: ErrTypeConnection, Message: "cannot reach model endpoint", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ClientError{
			Type:    ErrTypeStatus,
			Message: "model endpoint returned " + resp.Status + ": " + util.FirstLine(string(bytes.TrimSpace(detail))),
		}
	}

	return c.readStream(ctx, resp.Body, cb)
}

// readStream parses newline-delimited JSON chunks until done or EOF.
func (c *OllamaClient) readStream(ctx context.Context, r io.Reader, cb StreamCallback) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Skip malformed lines
			continue
		}
		if chunk.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "model error: " + chunk.Error}
		}

		cb(Chunk{Content: chunk.Response, Done: chunk.Done})
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
	}
	return nil
}
