// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/session"
)

// =============================================================================
// GITHUB CLIENT
// =============================================================================

// GitHub is a minimal REST client for the two things plans need:
// verifying the stored token and get-or-create of a repository.
type GitHub struct {
	baseURL    string
	token      string
	username   string
	console    *display.Console
	httpClient *http.Client
}

// NewGitHub wires a client. baseURL is overridable for tests; empty
// means the public API.
func NewGitHub(token, username, baseURL string, console *display.Console) *GitHub {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHub{
		baseURL:    baseURL,
		token:      token,
		username:   username,
		console:    console,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Username returns the configured or resolved account login.
func (gh *GitHub) Username() string {
	return gh.username
}

type githubRepo struct {
	Name     string `json:"name"`
	CloneURL string `json:"clone_url"`
	Private  bool   `json:"private"`
}

func (gh *GitHub) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, gh.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+gh.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return gh.httpClient.Do(req)
}

// CheckAuth verifies the token and resolves the authenticated username
// when one is not configured.
func (gh *GitHub) CheckAuth(ctx context.Context) error {
	if gh.token == "" {
		return fmt.Errorf("no GitHub token configured")
	}
	resp, err := gh.do(ctx, http.MethodGet, "/user", nil)
	if err != nil {
		return fmt.Errorf("cannot reach GitHub: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub rejected the token: %s", resp.Status)
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return fmt.Errorf("unexpected GitHub response: %w", err)
	}
	if gh.username == "" {
		gh.username = user.Login
	}
	return nil
}

// EnsureRepo creates the repository if it is missing, otherwise reuses
// the existing one. The clone URL is returned and remembered on the
// session for later git steps.
func (gh *GitHub) EnsureRepo(ctx context.Context, rc *session.Context, name, description string, private bool) (string, error) {
	gh.console.Info("Ensuring GitHub repo exists: %s...", name)

	resp, err := gh.do(ctx, http.MethodPost, "/user/repos", map[string]any{
		"name":        name,
		"description": description,
		"private":     private,
	})
	if err != nil {
		return "", fmt.Errorf("cannot reach GitHub: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var repo githubRepo
		if err := json.NewDecoder(resp.Body).Decode(&repo); err != nil {
			return "", fmt.Errorf("unexpected GitHub response: %w", err)
		}
		gh.console.Success("Created repository %s.", name)
		rc.SetRepoURL(repo.CloneURL)
		return repo.CloneURL, nil

	case http.StatusUnprocessableEntity:
		// Name already taken by this account: fetch and reuse it.
		url, err := gh.lookupRepo(ctx, name)
		if err != nil {
			return "", err
		}
		rc.SetRepoURL(url)
		return url, nil

	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("GitHub repo creation failed: %s: %s", resp.Status, bytes.TrimSpace(detail))
	}
}

func (gh *GitHub) lookupRepo(ctx context.Context, name string) (string, error) {
	if gh.username == "" {
		if err := gh.CheckAuth(ctx); err != nil {
			return "", err
		}
	}
	resp, err := gh.do(ctx, http.MethodGet, "/repos/"+gh.username+"/"+name, nil)
	if err != nil {
		return "", fmt.Errorf("cannot reach GitHub: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("repository %s exists but cannot be fetched: %s", name, resp.Status)
	}
	var repo githubRepo
	if err := json.NewDecoder(resp.Body).Decode(&repo); err != nil {
		return "", fmt.Errorf("unexpected GitHub response: %w", err)
	}
	gh.console.Warn("Repository %s already exists. Reusing it.", name)
	return repo.CloneURL, nil
}
