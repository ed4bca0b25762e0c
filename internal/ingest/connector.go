// Package ingest polls the news source, normalizes raw articles into the
// canonical form and feeds novel ones onto the normalized_events stream.
package ingest

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

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const newsAPIBaseURL = "https://newsapi.org/v2"

// NewsAPI page size ceiling.
const maxPageSize = 100

// RawArticle is one article as returned by the NewsAPI /everything endpoint.
type RawArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

type everythingResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []RawArticle `json:"articles"`
}

// NewsClient calls the NewsAPI.org /everything endpoint. Calls are rate
// limited and guarded by a circuit breaker so a vendor outage trips fast
// instead of burning the request quota.
type NewsClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewNewsClient builds a client with the 30s per-call budget.
func NewNewsClient(apiKey string) *NewsClient {
	st := gobreaker.Settings{Name: "newsapi"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	return &NewsClient{
		apiKey:  apiKey,
		baseURL: newsAPIBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// SetBaseURL points the client at a test server.
func (c *NewsClient) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// FetchEverything searches recent English articles matching the query,
// newest first.
func (c *NewsClient) FetchEverything(ctx context.Context, query string, pageSize int) ([]RawArticle, error) {
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("apiKey", c.apiKey)

	fullURL := fmt.Sprintf("%s/everything?%s", c.baseURL, params.Encode())

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, fullURL)
	})
	if err != nil {
		return nil, err
	}
	return out.([]RawArticle), nil
}

func (c *NewsClient) fetch(ctx context.Context, fullURL string) ([]RawArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr everythingResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != "" {
			return nil, fmt.Errorf("newsapi error %s (HTTP %d): %s", apiErr.Code, resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("newsapi HTTP %d: %s", resp.StatusCode, snippet(string(raw), 200))
	}

	var body everythingResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode newsapi response: %w", err)
	}
	if body.Status != "ok" {
		return nil, fmt.Errorf("newsapi error %s: %s", body.Code, body.Message)
	}

	log.Debug().Int("articles", len(body.Articles)).Int("total", body.TotalResults).Msg("newsapi fetch complete")
	return body.Articles, nil
}

func snippet(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// BuildQuery quotes and OR-joins the top keywords. NewsAPI caps query
// length around 500 chars, so only the highest-priority terms are sent.
func BuildQuery(keywords []string, topN int) string {
	if topN > len(keywords) {
		topN = len(keywords)
	}
	quoted := make([]string, 0, topN)
	for _, kw := range keywords[:topN] {
		quoted = append(quoted, `"`+kw+`"`)
	}
	return strings.Join(quoted, " OR ")
}
