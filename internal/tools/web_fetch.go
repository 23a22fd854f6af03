package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultFetchMaxChars    = 20000
	defaultFetchMaxRedirect = 3
	defaultFetchTimeout     = 30 * time.Second
	defaultCacheTTL         = 15 * time.Minute
	defaultCacheMaxEntries  = 100
	fetchUserAgent          = "jobagent/1.0 (+web_fetch)"
)

// WebFetchConfig holds configuration for the web fetch tool.
type WebFetchConfig struct {
	MaxChars          int
	CacheTTL          time.Duration
	CacheSize         int
	Timeout           time.Duration
	AllowPrivateHosts bool // disables the SSRF guard; tests and trusted networks only
}

// WebFetchTool fetches a URL and returns its readable content.
type WebFetchTool struct {
	maxChars     int
	allowPrivate bool
	client       *http.Client
	cache        *expirable.LRU[string, string]
}

func NewWebFetchTool(cfg WebFetchConfig) *WebFetchTool {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultFetchMaxChars
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheMaxEntries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	t := &WebFetchTool{
		maxChars:     maxChars,
		allowPrivate: cfg.AllowPrivateHosts,
		cache:        expirable.NewLRU[string, string](size, nil, ttl),
	}
	t.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > defaultFetchMaxRedirect {
				return fmt.Errorf("stopped after %d redirects", defaultFetchMaxRedirect)
			}
			return t.guard(req.URL.String())
		},
	}
	return t
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch an http(s) URL and return its text content. HTML is reduced to text, JSON is pretty-printed. Private and internal hosts are refused."
}

func (t *WebFetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP or HTTPS URL to fetch.",
				"pattern":     "^https?://",
			},
			"maxChars": map[string]any{
				"type":        "integer",
				"description": "Maximum characters to return.",
				"minimum":     100,
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	rawURL, _ := args["url"].(string)
	if err := t.guard(rawURL); err != nil {
		return nil, err
	}

	maxChars := t.maxChars
	if mc, ok := args["maxChars"].(float64); ok && int(mc) >= 100 {
		maxChars = int(mc)
	}

	cacheKey := fmt.Sprintf("%s|%d", strings.TrimSpace(rawURL), maxChars)
	if cached, ok := t.cache.Get(cacheKey); ok {
		loggerFromCtx(ctx).Debug("web_fetch cache hit", "url", rawURL)
		return NewResult(cached), nil
	}

	text, err := t.fetch(ctx, rawURL, maxChars)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	t.cache.Add(cacheKey, text)
	return NewResult(text), nil
}

func (t *WebFetchTool) guard(rawURL string) error {
	return guardURL(rawURL, t.allowPrivate)
}

// guardURL accepts only http(s) URLs whose host is public, unless allowPrivate.
func guardURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http and https URLs are supported")
	}
	if u.Hostname() == "" {
		return fmt.Errorf("missing hostname in URL")
	}
	if allowPrivate {
		return nil
	}
	return checkSSRF(u.Hostname(), net.DefaultResolver.LookupHost)
}

func (t *WebFetchTool) fetch(ctx context.Context, rawURL string, maxChars int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/json,text/plain;q=0.9,*/*;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// HTML carries markup overhead; read more than we return.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars)*4))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	var text string
	switch {
	case strings.Contains(contentType, "application/json"):
		text = prettyJSON(body)
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		text = htmlToText(string(body))
	default:
		text = string(body)
	}

	truncated := false
	if r := []rune(text); len(r) > maxChars {
		text = string(r[:maxChars])
		truncated = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\nStatus: %d\n", resp.Request.URL, resp.StatusCode)
	if truncated {
		fmt.Fprintf(&sb, "Truncated: true (limit: %d chars)\n", maxChars)
	}
	fmt.Fprintf(&sb, "\n<web_content url=%q>\n%s\n</web_content>", resp.Request.URL.String(), text)
	return sb.String(), nil
}

func prettyJSON(body []byte) string {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	out, _ := json.MarshalIndent(data, "", "  ")
	return string(out)
}

var (
	reDropBlock = regexp.MustCompile(`(?is)<(script|style|nav|footer|header|noscript)[^>]*>.*?</(script|style|nav|footer|header|noscript)>`)
	reComment   = regexp.MustCompile(`(?s)<!--.*?-->`)
	reBlockEnd  = regexp.MustCompile(`(?i)</?(p|div|br|li|tr|h[1-6]|section|article)[^>]*>`)
	reTag       = regexp.MustCompile(`<[^>]+>`)
	reMultiSP   = regexp.MustCompile(`[ \t]{2,}`)
)

// htmlToText strips markup and keeps block structure as line breaks.
func htmlToText(s string) string {
	s = reDropBlock.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")
	s = reBlockEnd.ReplaceAllString(s, "\n")
	s = reTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = reMultiSP.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	clean := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, "\n")
}

// --- SSRF protection ---

var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

func isPrivateAddr(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// checkSSRF refuses internal hostnames, private IP literals and names that
// resolve to private addresses.
func checkSSRF(hostname string, lookup func(ctx context.Context, host string) ([]string, error)) error {
	h := strings.ToLower(hostname)
	if blockedHostnames[h] || strings.HasSuffix(h, ".localhost") ||
		strings.HasSuffix(h, ".local") || strings.HasSuffix(h, ".internal") {
		return fmt.Errorf("blocked hostname: %s", hostname)
	}

	if _, err := netip.ParseAddr(h); err == nil {
		if isPrivateAddr(h) {
			return fmt.Errorf("private IP address not allowed: %s", hostname)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	addrs, err := lookup(ctx, h)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", hostname, err)
	}
	for _, a := range addrs {
		if isPrivateAddr(a) {
			return fmt.Errorf("hostname %s resolves to private IP %s", hostname, a)
		}
	}
	return nil
}
