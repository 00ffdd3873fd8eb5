// Package webfetch retrieves web pages on the host and reduces them to clean
// markdown-like text the model can read. Browser automation lives in the
// sandbox; this package backs the plain fetch_url action.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Mikeyy1405/Writgoai.nl/internal/httpclient"
	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 15 * time.Minute
	defaultTimeout   = 30 * time.Second

	maxContentSize = 15000
	maxRedirects   = 10

	userAgent = "WritGo-Agent/1.0 (Web Content Fetcher)"
)

// Config tunes the fetcher. Zero values fall back to defaults.
type Config struct {
	// CacheSize is the maximum number of entries in the LRU page cache.
	CacheSize int
	// CacheTTL is how long a cached page remains valid.
	CacheTTL time.Duration
	// Timeout bounds a single fetch including redirects.
	Timeout time.Duration
}

// Result is a fetched page reduced to readable text.
type Result struct {
	// URL is the final URL after redirects.
	URL string
	// Content is the cleaned page text, or the redirect notice when
	// Redirected is set.
	Content string
	// Cached reports whether the content came from the in-memory cache.
	Cached bool
	// Redirected is set when the page redirected to a different host. The
	// caller is expected to issue a new request for the final URL.
	Redirected bool
}

// pageEntry holds a cached page along with the timestamp it was stored.
type pageEntry struct {
	content  string
	url      string
	storedAt time.Time
}

// Fetcher fetches URLs and caches cleaned page text keyed by normalized URL.
type Fetcher struct {
	client *http.Client
	cache  *lru.Cache[string, pageEntry]
	ttl    time.Duration
	logger logging.Logger
}

// New builds a Fetcher with the given configuration.
func New(cfg Config) *Fetcher {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	logger := logging.NewComponentLogger("webfetch")

	client := httpclient.New(cfg.Timeout, logger)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	// lru.New only errors on a non-positive size, guarded above.
	cache, _ := lru.New[string, pageEntry](cfg.CacheSize)

	return &Fetcher{
		client: client,
		cache:  cache,
		ttl:    cfg.CacheTTL,
		logger: logger,
	}
}

// Fetch retrieves rawURL and returns its cleaned text content. Redirects to a
// different host are not followed blindly; the result carries a notice asking
// for a fresh request against the final URL instead.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	urlStr, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	if entry, ok := f.cacheGet(urlStr); ok {
		f.logger.Debug("Cache hit for %s", urlStr)
		return &Result{URL: entry.url, Content: entry.content, Cached: true}, nil
	}

	content, finalURL, err := f.fetchContent(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	if differentHost(urlStr, finalURL) {
		return &Result{
			URL: finalURL,
			Content: fmt.Sprintf("URL redirected to different domain:\n\n"+
				"Original: %s\n"+
				"Redirect: %s\n\n"+
				"Please make a new request with the redirect URL.", urlStr, finalURL),
			Redirected: true,
		}, nil
	}

	f.cachePut(urlStr, pageEntry{content: content, url: finalURL, storedAt: time.Now()})

	return &Result{URL: finalURL, Content: content}, nil
}

// normalizeURL validates the scheme and upgrades plain HTTP to HTTPS.
// Loopback hosts stay on http so services running next to the agent remain
// reachable.
func normalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("url is required")
	}

	u, err := neturl.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	switch u.Scheme {
	case "https":
		return u.String(), nil
	case "http":
		if isLoopbackHost(u.Hostname()) {
			return u.String(), nil
		}
		u.Scheme = "https"
		return u.String(), nil
	default:
		return "", fmt.Errorf("URL must use http or https scheme, got %q", u.Scheme)
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// fetchContent fetches and processes HTML content. It returns the cleaned
// text and the final URL after redirects.
func (f *Fetcher) fetchContent(ctx context.Context, urlStr string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read response: %w", err)
	}

	content, err := htmlToText(string(body))
	if err != nil {
		return "", "", fmt.Errorf("parse HTML: %w", err)
	}

	return content, resp.Request.URL.String(), nil
}

// htmlToText converts HTML to clean markdown-like text.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	// Remove noise elements
	doc.Find("script, style, nav, footer, header, aside, iframe").Remove()

	var content strings.Builder

	// Extract title
	if title := doc.Find("title").Text(); title != "" {
		content.WriteString("# " + strings.TrimSpace(title) + "\n\n")
	}

	// Extract headings
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			level := s.Get(0).Data[1] - '0' // Extract level from h1,h2,etc
			prefix := strings.Repeat("#", int(level))
			content.WriteString(prefix + " " + text + "\n\n")
		}
	})

	// Extract paragraphs and content blocks
	doc.Find("p, div.content, article, section").Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" && len(text) > 30 {
			content.WriteString(text + "\n\n")
		}
	})

	// Extract lists
	doc.Find("ul, ol").Each(func(i int, s *goquery.Selection) {
		s.Find("li").Each(func(j int, li *goquery.Selection) {
			if text := strings.TrimSpace(li.Text()); text != "" {
				content.WriteString("• " + text + "\n")
			}
		})
		content.WriteString("\n")
	})

	result := content.String()

	if len(result) > maxContentSize {
		result = result[:maxContentSize] + "\n\n[Content truncated...]"
	}

	return result, nil
}

func (f *Fetcher) cacheGet(key string) (pageEntry, bool) {
	entry, ok := f.cache.Get(key)
	if !ok {
		return pageEntry{}, false
	}
	if time.Since(entry.storedAt) >= f.ttl {
		// Expired, evict so the LRU bookkeeping stays clean.
		f.cache.Remove(key)
		return pageEntry{}, false
	}
	return entry, true
}

func (f *Fetcher) cachePut(key string, entry pageEntry) {
	f.cache.Add(key, entry)
}

func differentHost(url1, url2 string) bool {
	return hostOf(url1) != hostOf(url2)
}

func hostOf(urlStr string) string {
	u, err := neturl.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Host
}
