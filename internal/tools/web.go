// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/util"
)

// Pre-compiled HTML parsing patterns.
var (
	ddgTitleRegex   = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.+?)</a>`)
	ddgSnippetRegex = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.+?)</a>`)

	htmlTagRegex        = regexp.MustCompile(`<[^>]*>`)
	htmlScriptRegex     = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlWhitespaceRegex = regexp.MustCompile(`\s+`)
)

var htmlEntityReplacer = strings.NewReplacer(
	"&amp;", "&", "&lt;", "<", "&gt;", ">",
	"&quot;", `"`, "&#x27;", "'", "&#39;", "'", "&nbsp;", " ",
)

const webUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// fetchLimit caps how much page text is returned into model context.
const fetchLimit = 8000

// =============================================================================
// WEB TOOLS
// =============================================================================

// Web provides plan-invocable search and fetch. Search uses the
// DuckDuckGo HTML endpoint, which needs no API key.
type Web struct {
	searchURL  string
	console    *display.Console
	httpClient *http.Client
}

// NewWeb wires the web tools. searchURL is overridable for tests.
func NewWeb(searchURL string, console *display.Console) *Web {
	if searchURL == "" {
		searchURL = "https://html.duckduckgo.com/html/"
	}
	return &Web{
		searchURL: searchURL,
		console:   console,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// searchHit is one parsed result.
type searchHit struct {
	Title   string
	URL     string
	Snippet string
}

// Search queries DuckDuckGo and returns formatted results.
func (w *Web) Search(ctx context.Context, query string, maxResults int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("search query must not be empty")
	}
	if maxResults < 1 || maxResults > 10 {
		maxResults = 5
	}
	w.console.Info("Searching web for: %s...", query)

	body, err := w.get(ctx, w.searchURL+"?q="+url.QueryEscape(query))
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}

	hits := parseSearchHTML(body)
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	if len(hits) == 0 {
		return "No results found.", nil
	}

	var sb strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, hit.Title, hit.URL)
		if hit.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", util.TruncateRunes(hit.Snippet, 300))
		}
	}
	return sb.String(), nil
}

// Fetch reads a URL and returns its visible text, bounded.
func (w *Web) Fetch(ctx context.Context, pageURL string) (string, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return "", fmt.Errorf("invalid URL %q", pageURL)
	}
	w.console.Info("Fetching content from: %s...", pageURL)

	body, err := w.get(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("cannot fetch %s: %w", pageURL, err)
	}

	text := htmlScriptRegex.ReplaceAllString(body, " ")
	text = htmlTagRegex.ReplaceAllString(text, " ")
	text = htmlEntityReplacer.Replace(text)
	text = htmlWhitespaceRegex.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return util.TruncateRunes(text, fetchLimit), nil
}

func (w *Web) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", webUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseSearchHTML extracts results from the DuckDuckGo HTML page:
// result__a anchors carry title and a redirect-wrapped URL, the
// matching result__snippet anchor carries the description.
func parseSearchHTML(html string) []searchHit {
	titleMatches := ddgTitleRegex.FindAllStringSubmatch(html, 30)
	snippetMatches := ddgSnippetRegex.FindAllStringSubmatch(html, 30)

	var hits []searchHit
	for i, match := range titleMatches {
		if len(match) < 3 {
			continue
		}
		actualURL := unwrapRedirect(strings.ReplaceAll(match[1], "&amp;", "&"))
		title := cleanHTMLText(match[2])
		if actualURL == "" || title == "" {
			continue
		}
		snippet := ""
		if i < len(snippetMatches) && len(snippetMatches[i]) >= 2 {
			snippet = cleanHTMLText(snippetMatches[i][1])
		}
		hits = append(hits, searchHit{Title: title, URL: actualURL, Snippet: snippet})
	}
	return hits
}

// unwrapRedirect extracts the destination from DuckDuckGo's
// //duckduckgo.com/l/?uddg=ENCODED wrapper.
func unwrapRedirect(raw string) string {
	if strings.Contains(raw, "uddg=") {
		if strings.HasPrefix(raw, "//") {
			raw = "https:" + raw
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		if dest := parsed.Query().Get("uddg"); dest != "" {
			return dest
		}
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return ""
}

func cleanHTMLText(html string) string {
	text := htmlTagRegex.ReplaceAllString(html, "")
	text = htmlEntityReplacer.Replace(text)
	text = htmlWhitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
