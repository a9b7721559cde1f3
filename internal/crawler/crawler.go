package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/analysis"
	"github.com/BroWo1/factcheck-backend/pkg/config"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
	"github.com/BroWo1/factcheck-backend/pkg/utils"
)

const maxCrawlDelay = 5 * time.Second

var errClosed = errors.New("crawler closed")

// Factory hands out crawlers that share robots.txt data and per-host pacing.
type Factory struct {
	cfg     config.CrawlerConfig
	robots  *robotsChecker
	limiter *domainLimiter
}

var _ analysis.CrawlerFactory = (*Factory)(nil)

func NewFactory(cfg config.CrawlerConfig) *Factory {
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 15
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	if cfg.SummaryChars <= 0 {
		cfg.SummaryChars = 1000
	}

	return &Factory{
		cfg:     cfg,
		robots:  newRobotsChecker(cfg.UserAgent, cfg.Timeout()),
		limiter: newDomainLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}
}

// NewCrawler opens a crawler with its own connection pool. Close releases it.
func (f *Factory) NewCrawler(ctx context.Context) (analysis.Crawler, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4

	return &Crawler{
		factory:   f,
		transport: transport,
		client: &http.Client{
			Timeout:   f.cfg.Timeout(),
			Transport: transport,
		},
	}, nil
}

type Crawler struct {
	factory   *Factory
	transport *http.Transport
	client    *http.Client
	closed    atomic.Bool
}

// Crawl fetches one page and extracts its readable text. Robots exclusions,
// non-200 statuses, non-HTML bodies and empty articles wrap
// analysis.ErrPageSkipped; anything else is a transport failure.
func (c *Crawler) Crawl(ctx context.Context, rawURL string) (*analysis.Page, error) {
	if c.closed.Load() {
		return nil, errClosed
	}
	cfg := c.factory.cfg

	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return nil, fmt.Errorf("unsupported url %q: %w", rawURL, analysis.ErrPageSkipped)
	}

	var delay time.Duration
	if cfg.RespectRobots {
		allowed, crawlDelay, err := c.factory.robots.canFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots check: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("disallowed by robots.txt: %w", analysis.ErrPageSkipped)
		}
		delay = min(crawlDelay, maxCrawlDelay)
	}

	if err := c.factory.limiter.wait(ctx, rawURL, delay); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, analysis.ErrPageSkipped)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !isHTML(resp.Header.Get("Content-Type"), body) {
		return nil, fmt.Errorf("content type %q: %w", resp.Header.Get("Content-Type"), analysis.ErrPageSkipped)
	}

	page, err := extract(pageURL, body, cfg.SummaryChars)
	if err != nil {
		return nil, err
	}

	logger.Debug("Page crawled",
		zap.String("url", rawURL),
		zap.Int("text_length", len(page.Text)),
		zap.Duration("duration", time.Since(start)),
	)

	return page, nil
}

func (c *Crawler) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.transport.CloseIdleConnections()
	return nil
}

func isHTML(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func extract(pageURL *url.URL, body []byte, summaryChars int) (*analysis.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	text := ""
	if err == nil {
		text = collapseSpace(article.TextContent)
	} else {
		logger.Debug("Readability failed, using body text", zap.String("url", pageURL.String()), zap.Error(err))
	}
	if text == "" {
		doc.Find("script, style, noscript").Remove()
		text = collapseSpace(doc.Find("body").Text())
	}
	if text == "" {
		return nil, fmt.Errorf("no readable text: %w", analysis.ErrPageSkipped)
	}

	title := firstNonEmpty(
		metaContent(doc, "property", "og:title"),
		strings.TrimSpace(article.Title),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)
	publisher := firstNonEmpty(
		metaContent(doc, "property", "og:site_name"),
		strings.TrimSpace(article.SiteName),
		analysis.PublisherName(pageURL.String()),
	)
	published := firstNonEmpty(
		metaContent(doc, "property", "article:published_time"),
		metaContent(doc, "name", "date"),
		attr(doc.Find("time[datetime]").First(), "datetime"),
	)

	return &analysis.Page{
		URL:         pageURL.String(),
		Title:       title,
		Publisher:   publisher,
		PublishDate: published,
		Summary:     utils.Truncate(text, summaryChars),
		Text:        text,
	}, nil
}

func metaContent(doc *goquery.Document, key, value string) string {
	return attr(doc.Find(fmt.Sprintf(`meta[%s=%q]`, key, value)).First(), "content")
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
