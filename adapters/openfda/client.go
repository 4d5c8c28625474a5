package openfda

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
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

const DefaultBaseURL = "https://api.fda.gov/drug/event.json"

// openFDA paging limits: at most 1000 records per page and a skip of at
// most 25000, so one search yields at most 26000 records.
const (
	MaxPageSize = 1000
	MaxSkip     = 25000
)

// Config represents configuration for the openFDA client
type Config struct {
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"api_key"`
	Timeout     time.Duration `json:"timeout"`
	RateLimit   float64       `json:"rate_limit"` // requests per second
	MaxFailures uint32        `json:"max_failures"`
	Retries     int           `json:"retries"`
	Backoff     time.Duration `json:"backoff"`
	PageSize    int           `json:"page_size"`
}

// Client pages through drug/event search results. Requests are rate
// limited and run inside a circuit breaker; 429 and 5xx responses are
// retried with a linear backoff.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	retries    int
	backoff    time.Duration
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *internal.Logger
}

var _ ports.ReportFeed = (*Client)(nil)

// NewClient creates a new openFDA client
func NewClient(config Config, logger *internal.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 4 // 240 requests per minute per key
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.Backoff <= 0 {
		config.Backoff = 2 * time.Second
	}
	if config.PageSize <= 0 || config.PageSize > MaxPageSize {
		config.PageSize = MaxPageSize
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}

	maxFailures := config.MaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openFDA",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("[openfda] circuit breaker %s changed from %v to %v", name, from, to)
		},
	})

	return &Client{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		pageSize:   config.PageSize,
		retries:    config.Retries,
		backoff:    config.Backoff,
		httpClient: &http.Client{Timeout: config.Timeout},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:    breaker,
		logger:     logger,
	}
}

// SearchQuery builds the openFDA search expression for q, or "" when q
// selects everything.
func SearchQuery(q faers.IngestQuery) string {
	var parts []string
	if drug := strings.ReplaceAll(strings.TrimSpace(q.Drug), `"`, ""); drug != "" {
		parts = append(parts, fmt.Sprintf(`patient.drug.medicinalproduct:"%s"`, drug))
	}
	if q.Since != nil || q.Until != nil {
		from, to := "20040101", "20991231"
		if q.Since != nil {
			from = q.Since.Format("20060102")
		}
		if q.Until != nil {
			to = q.Until.Format("20060102")
		}
		parts = append(parts, fmt.Sprintf("receivedate:[%s TO %s]", from, to))
	}
	return strings.Join(parts, " AND ")
}

// Stream implements ports.ReportFeed. It stops at q.Limit, at the openFDA
// skip ceiling, or at the first short page.
func (c *Client) Stream(ctx context.Context, q faers.IngestQuery, sink func([]faers.Report) error) error {
	maxRecords := MaxSkip + MaxPageSize
	if q.Limit > 0 && q.Limit < maxRecords {
		maxRecords = q.Limit
	}
	search := SearchQuery(q)

	fetched, skip := 0, 0
	for fetched < maxRecords && skip <= MaxSkip {
		pageLimit := min(c.pageSize, maxRecords-fetched)
		params := url.Values{
			"limit": {strconv.Itoa(pageLimit)},
			"skip":  {strconv.Itoa(skip)},
		}
		if search != "" {
			params.Set("search", search)
		}
		if c.apiKey != "" {
			params.Set("api_key", c.apiKey)
		}

		body, err := c.getPage(ctx, params)
		if err != nil {
			return errors.ExternalServiceError("openFDA", err)
		}
		if body == nil {
			break
		}

		page := int(gjson.GetBytes(body, "results.#").Int())
		reports, skipped, err := ParseEvents(body)
		if err != nil {
			return err
		}
		if skipped > 0 {
			c.logger.Warn("[openfda] skipped %d events without an ID or receive date (skip=%d)", skipped, skip)
		}
		if len(reports) > 0 {
			if err := sink(reports); err != nil {
				return err
			}
		}
		c.logger.Debug("[openfda] page skip=%d returned %d events", skip, page)

		fetched += page
		if page < pageLimit {
			break
		}
		skip += pageLimit
	}
	return nil
}

// statusError is a non-200 response other than 404.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openFDA returned status %d: %s", e.code, e.body)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *statusError
	if stderrors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// getPage returns nil, nil when the search matches nothing; openFDA answers
// that with 404.
func (c *Client) getPage(ctx context.Context, params url.Values) ([]byte, error) {
	// openFDA expects %20 rather than + inside search expressions.
	target := c.baseURL + "?" + strings.ReplaceAll(params.Encode(), "+", "%20")

	for attempt := 0; ; attempt++ {
		if err := c.rateLimit.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}

		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.fetch(ctx, target)
		})
		if err == nil {
			body, _ := out.([]byte)
			return body, nil
		}
		if attempt >= c.retries || !retryable(ctx, err) {
			return nil, err
		}

		wait := c.backoff * time.Duration(attempt+1)
		c.logger.Debug("[openfda] attempt %d failed (%v), retrying in %s", attempt+1, err, wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
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
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
