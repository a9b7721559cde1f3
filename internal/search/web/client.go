package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/analysis"
	"github.com/BroWo1/factcheck-backend/internal/cache"
	"github.com/BroWo1/factcheck-backend/internal/metrics"
	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/pkg/config"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
	"github.com/BroWo1/factcheck-backend/pkg/retry"
	"github.com/BroWo1/factcheck-backend/pkg/utils"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var siteFilters = map[models.SearchType]string{
	models.SearchNews:      "(site:reuters.com OR site:apnews.com OR site:bbc.com OR site:cnn.com OR site:npr.org)",
	models.SearchFactCheck: "(site:snopes.com OR site:politifact.com OR site:factcheck.org OR site:reuters.com/fact-check)",
	models.SearchAcademic:  `(site:edu OR site:gov OR filetype:pdf OR "peer reviewed" OR "research study")`,
}

type Client struct {
	serpAPIKey  string
	baseURL     string
	fallbackURL string
	httpClient  *http.Client
	cache       cache.Cache
	cacheTTL    time.Duration
	retryConfig retry.Config
}

var _ analysis.Searcher = (*Client)(nil)

func NewClient(cfg config.SearchConfig, c cache.Cache, cacheTTL time.Duration) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if c == nil {
		c = cache.Nop{}
	}

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = 2
	retryConfig.InitialDelay = 300 * time.Millisecond
	retryConfig.Logger = logger.GetLogger()

	return &Client{
		serpAPIKey:  cfg.SerpAPIKey,
		baseURL:     cfg.BaseURL,
		fallbackURL: cfg.FallbackURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:       c,
		cacheTTL:    cacheTTL,
		retryConfig: retryConfig,
	}
}

// ScopedQuery adds the site filter for a search type to the query.
func ScopedQuery(query string, searchType models.SearchType) string {
	if filter, ok := siteFilters[searchType]; ok {
		return query + " " + filter
	}
	return query
}

// Search runs one scoped query, through the cache. SerpAPI is used when a
// key is configured; otherwise the HTML fallback endpoint is scraped.
func (c *Client) Search(ctx context.Context, query string, searchType models.SearchType, limit int) ([]analysis.SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}
	scoped := ScopedQuery(query, searchType)
	key := utils.CacheKey("search", string(searchType), query, strconv.Itoa(limit))

	var hits []analysis.SearchHit
	hit, err := c.cache.GetJSON(ctx, key, &hits)
	if err != nil {
		logger.Warn("Search cache read failed", zap.Error(err))
	}
	if hit {
		metrics.CacheHits.WithLabelValues("search").Inc()
		return hits, nil
	}
	metrics.CacheMisses.WithLabelValues("search").Inc()

	logger.Info("Performing web search",
		zap.String("query", query),
		zap.String("search_type", string(searchType)),
	)

	err = retry.Do(ctx, c.retryConfig, func() error {
		var err error
		if c.serpAPIKey != "" {
			hits, err = c.searchWithSerpAPI(ctx, scoped, limit)
		} else {
			hits, err = c.searchWithHTML(ctx, scoped, limit)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := range hits {
		hits[i].Query = query
		hits[i].SearchType = searchType
		hits[i].Publisher = analysis.PublisherName(hits[i].URL)
	}

	if len(hits) > 0 {
		if err := c.cache.SetJSON(ctx, key, hits, c.cacheTTL); err != nil {
			logger.Warn("Search cache write failed", zap.Error(err))
		}
	}

	return hits, nil
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string, limit int) ([]analysis.SearchHit, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("engine", "google")
	params.Add("num", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searchResp struct {
		Error          string `json:"error"`
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}

	err = json.Unmarshal(body, &searchResp)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	if searchResp.Error != "" && len(searchResp.OrganicResults) == 0 {
		if strings.Contains(strings.ToLower(searchResp.Error), "hasn't returned any results") {
			return nil, nil
		}
		return nil, retry.Permanent(fmt.Errorf("search API error: %s", searchResp.Error))
	}

	results := make([]analysis.SearchHit, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		if r.Link == "" {
			continue
		}
		results = append(results, analysis.SearchHit{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
		})
		if len(results) == limit {
			break
		}
	}

	logger.Debug("SerpAPI search completed", zap.Int("results", len(results)))

	return results, nil
}

func (c *Client) searchWithHTML(ctx context.Context, query string, limit int) ([]analysis.SearchHit, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.fallbackURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := make([]analysis.SearchHit, 0, limit)
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		anchor := s.Find("a.result__a").First()
		title := strings.TrimSpace(anchor.Text())
		href, _ := anchor.Attr("href")
		link := resolveRedirect(href)

		if title != "" && link != "" {
			results = append(results, analysis.SearchHit{
				Title:   title,
				URL:     link,
				Snippet: strings.TrimSpace(s.Find(".result__snippet").Text()),
			})
		}
		return len(results) < limit
	})

	logger.Debug("HTML search completed", zap.Int("results", len(results)))

	return results, nil
}

// resolveRedirect unwraps result links of the form /l/?uddg=<target>.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	err := fmt.Errorf("search returned status %d", resp.StatusCode)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}
