// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

const defaultMaxContentChars = 5000

// maxFetchBytes caps how much of a page body is read.
const maxFetchBytes = 2 << 20

// Fetcher retrieves the readable text of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over HTTP and extracts their visible text.
type HTTPFetcher struct {
	Client   *httputil.Client
	MaxChars int
}

// NewHTTPFetcher returns a fetcher using cfg's user agent and content limit.
func NewHTTPFetcher(hc *http.Client, cfg types.SearchConfig) *HTTPFetcher {
	c := httputil.NewClient(hc, cfg.UserAgent, 0)
	c.MaxRetries = 1
	return &HTTPFetcher{Client: c, MaxChars: cfg.MaxContentChars}
}

// Fetch returns the page text with scripts, styles and navigation removed.
// Plain-text responses are returned as-is.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	resp, err := f.Client.Get(ctx, pageURL, http.Header{"Accept": {"text/html,text/plain;q=0.9"}})
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: HTTP %d", pageURL, resp.StatusCode)
	}

	limit := f.MaxChars
	if limit <= 0 {
		limit = defaultMaxContentChars
	}
	body := io.LimitReader(resp.Body, maxFetchBytes)

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !looksLikeHTML(ct) {
		if !strings.HasPrefix(ct, "text/") {
			return "", fmt.Errorf("fetching %s: unsupported content type %q", pageURL, ct)
		}
		b, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", pageURL, err)
		}
		return truncate(collapseSpace(string(b)), limit), nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	return truncate(extractText(doc), limit), nil
}

func looksLikeHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// extractText prefers <main> or <article> over the whole body.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe").Remove()
	for _, sel := range []string{"main", "article", "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if text := collapseSpace(s.Text()); text != "" {
				return text
			}
		}
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// hydrate fills Content for the top results that lack it. Failures leave
// Content empty; the whole pass is bounded by FetchTimeout.
func (a *Aggregator) hydrate(ctx context.Context, results []types.SearchResult) {
	fctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(fctx)
	g.SetLimit(a.cfg.FetchTopK)
	for i := 0; i < len(results) && i < a.cfg.FetchTopK; i++ {
		if results[i].Content != "" || results[i].URL == "" {
			continue
		}
		g.Go(func() error {
			text, err := a.fetcher.Fetch(gctx, results[i].URL)
			if err != nil {
				a.logger.Debug("content fetch failed", zap.String("url", results[i].URL), zap.Error(err))
				return nil
			}
			results[i].Content = text
			return nil
		})
	}
	_ = g.Wait()
}
