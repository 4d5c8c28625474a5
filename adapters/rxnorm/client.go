// Package rxnorm normalizes reported drug names to ingredient names using
// openFDA harmonized fields and the RxNav REST API.
package rxnorm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"faersignal/domain/faers"
	"faersignal/internal"
	"faersignal/internal/errors"
	"faersignal/ports"
)

const DefaultBaseURL = "https://rxnav.nlm.nih.gov/REST"

// Config represents configuration for the RxNav client
type Config struct {
	BaseURL     string        `json:"base_url"`
	Timeout     time.Duration `json:"timeout"`
	RateLimit   float64       `json:"rate_limit"` // requests per second
	CacheSize   int           `json:"cache_size"`
	MaxFailures uint32        `json:"max_failures"`
}

// Client resolves names through the RxNav API. Every HTTP call waits on a
// rate limiter and runs inside a circuit breaker; results, including
// unmapped ones, are cached.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      ports.NameCache
	logger     *internal.Logger
}

var _ ports.DrugNormalizer = (*Client)(nil)

// NewClient creates a new RxNav client. A nil cache gets an LRU of
// config.CacheSize entries.
func NewClient(config Config, cache ports.NameCache, logger *internal.Logger) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 15 // RxNav allows 20/s per IP
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 5000
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if cache == nil {
		lc, err := NewLRUCache(config.CacheSize)
		if err != nil {
			return nil, err
		}
		cache = lc
	}

	maxFailures := config.MaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "RxNav",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("[rxnorm] circuit breaker %s changed from %v to %v", name, from, to)
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:    breaker,
		cache:      cache,
		logger:     logger,
	}, nil
}

// Normalize resolves raw in order: openFDA harmonized fields, then the RxNav
// approximate match mapped to its ingredient, then the lower-cased raw name.
// On a transport error the unmapped name is returned with the error and is
// not cached.
func (c *Client) Normalize(ctx context.Context, raw string, fields *faers.OpenFDAFields) (faers.Normalization, error) {
	if fields != nil {
		if name, ok := fields.Harmonized(); ok {
			return faers.Normalization{Name: name, Source: faers.SourceOpenFDA}, nil
		}
	}

	key := faers.CacheKey(raw)
	if key == "" {
		return faers.Unmapped(raw), nil
	}
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	name, err := c.ingredientFor(ctx, key)
	if err != nil {
		return faers.Unmapped(raw), errors.ExternalServiceError("RxNav", err)
	}

	result := faers.Unmapped(raw)
	if name != "" {
		result = faers.Normalization{Name: strings.ToLower(name), Source: faers.SourceRxNorm}
	}
	c.cache.Add(key, result)
	return result, nil
}

// CacheLen reports how many names are cached.
func (c *Client) CacheLen() int {
	return c.cache.Len()
}

// ingredientFor returns "" when RxNav has no match for term.
func (c *Client) ingredientFor(ctx context.Context, term string) (string, error) {
	params := url.Values{"term": {term}, "maxEntries": {"1"}}
	approx, err := c.getJSON(ctx, "/approximateTerm.json?"+params.Encode())
	if err != nil {
		return "", err
	}
	rxcui := gjson.GetBytes(approx, "approximateGroup.candidate.0.rxcui").String()
	if rxcui == "" {
		return "", nil
	}
	rxcui = url.PathEscape(rxcui)

	related, err := c.getJSON(ctx, "/rxcui/"+rxcui+"/related.json?tty=IN")
	if err != nil {
		return "", err
	}
	for _, name := range gjson.GetBytes(related, "relatedGroup.conceptGroup.#.conceptProperties.#.name|@flatten").Array() {
		if name.String() != "" {
			return name.String(), nil
		}
	}

	// No ingredient relation: the concept itself is used.
	props, err := c.getJSON(ctx, "/rxcui/"+rxcui+"/properties.json")
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(props, "properties.name").String(), nil
}

// getJSON fetches path and returns the raw body after checking it is JSON.
func (c *Client) getJSON(ctx context.Context, path string) ([]byte, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("RxNav returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("failed to parse JSON response: %s", truncate(string(body), 200))
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
