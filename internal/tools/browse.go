package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultBrowseTimeout = 45 * time.Second

// PageRenderer loads a page in a real browser and returns its title and visible text.
type PageRenderer interface {
	PageText(ctx context.Context, url string) (title, text string, err error)
}

// BrowseConfig configures the browse tool.
type BrowseConfig struct {
	MaxChars          int
	Timeout           time.Duration
	AllowPrivateHosts bool
}

// BrowseTool renders a page with scripts enabled. Slower than web_fetch;
// meant for pages that build their content client-side.
type BrowseTool struct {
	pages        PageRenderer
	maxChars     int
	timeout      time.Duration
	allowPrivate bool
}

func NewBrowseTool(pages PageRenderer, cfg BrowseConfig) *BrowseTool {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultFetchMaxChars
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBrowseTimeout
	}
	return &BrowseTool{pages: pages, maxChars: maxChars, timeout: timeout, allowPrivate: cfg.AllowPrivateHosts}
}

func (t *BrowseTool) Name() string { return "browse" }

func (t *BrowseTool) Description() string {
	return "Open a URL in a headless browser, run its scripts and return the rendered page text. Use when web_fetch returns an empty or script-only page."
}

func (t *BrowseTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP or HTTPS URL to open.",
				"pattern":     "^https?://",
			},
		},
		"required": []string{"url"},
	}
}

func (t *BrowseTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	rawURL, _ := args["url"].(string)
	if err := guardURL(rawURL, t.allowPrivate); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	title, text, err := t.pages.PageText(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("browse %s: %w", rawURL, err)
	}

	text = collapseBlankLines(text)
	if r := []rune(text); len(r) > t.maxChars {
		text = string(r[:t.maxChars]) + "\n[content truncated]"
	}

	var sb strings.Builder
	if title != "" {
		sb.WriteString("Title: " + title + "\n\n")
	}
	if text == "" {
		sb.WriteString("(page has no visible text)")
	} else {
		sb.WriteString(text)
	}
	return NewResult(sb.String()), nil
}

func collapseBlankLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := lines[:0]
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
