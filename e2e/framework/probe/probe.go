// Package probe fetches routes over plain HTTP, outside the browser session, and summarizes the
// returned document.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultSelector = "main"
	maxTextLength   = 2000
)

// Result summarizes one probed route.
type Result struct {
	URL      string
	Status   int
	Title    string
	Text     string
	Links    []string
	Duration time.Duration
}

// NotFound reports whether the page is an error page: a 404 status, or a document whose
// content region mentions "404" or "not found".
func (r Result) NotFound() bool {
	if r.Status == http.StatusNotFound {
		return true
	}
	text := strings.ToLower(r.Text)
	return strings.Contains(text, "404") || strings.Contains(text, "not found")
}

// OK reports a 2xx response that is not an error page.
func (r Result) OK() bool {
	return r.Status >= 200 && r.Status < 300 && !r.NotFound()
}

// Prober issues probe requests.
type Prober struct {
	client *http.Client
	logger *zap.Logger
}

// New returns a prober. A nil client gets one with DefaultTimeout.
func New(client *http.Client, logger *zap.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{client: client, logger: logger}
}

// Probe GETs target and extracts the title, the text of selector (default main, falling back to
// body) and the hrefs of links inside it.
func (p *Prober) Probe(ctx context.Context, target, selector string) (Result, error) {
	start := time.Now()
	result := Result{URL: target}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return result, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := p.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("probe %s: %w", target, err)
	}
	defer resp.Body.Close()
	result.Status = resp.StatusCode

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return result, fmt.Errorf("parse %s: %w", target, err)
	}
	if strings.TrimSpace(selector) == "" {
		selector = DefaultSelector
	}
	selection := doc.Find(selector)
	if selection.Length() == 0 {
		selection = doc.Find("body")
	}
	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	result.Text = strings.Join(strings.Fields(selection.Text()), " ")
	if len(result.Text) > maxTextLength {
		result.Text = result.Text[:maxTextLength]
	}
	result.Links = collectLinks(selection, resp.Request.URL)
	result.Duration = time.Since(start)
	p.logger.Debug("route probed",
		zap.String("url", target),
		zap.Int("status", result.Status),
		zap.String("title", result.Title),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func collectLinks(selection *goquery.Selection, base *url.URL) []string {
	var links []string
	seen := map[string]bool{}
	selection.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		value := link.String()
		if !seen[value] {
			seen[value] = true
			links = append(links, value)
		}
	})
	return links
}
