// Package swdi fetches storm cell detections from the NOAA Severe Weather
// Data Inventory web service.
package swdi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

const (
	// DefaultBaseURL is the public SWDI web service root.
	DefaultBaseURL = "https://www.ncdc.noaa.gov/swdiws"

	breakerFailures = 5
	breakerCooldown = 30 * time.Second
	maxErrorBody    = 512
)

// Client implements pipeline.Fetcher against the SWDI JSON endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a SWDI client. Consecutive transient failures open a
// circuit breaker that fails fetches fast until the cooldown passes.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "swdi",
		Timeout: breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		// a rejected request says nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

type response struct {
	Result []domain.SWDIRecord `json:"result"`
}

// Fetch downloads one dataset for region over window. Network errors,
// throttling, 5xx responses and an open breaker are transient; anything
// else is permanent. Records without a usable shape are skipped.
func (c *Client) Fetch(ctx context.Context, region domain.Region, dataset string, window domain.TimeWindow) ([]domain.PointObservation, error) {
	u := c.requestURL(region, dataset, window)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, u)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.Transient(fmt.Errorf("swdi %s: %w", dataset, err))
		}
		return nil, err
	}

	records := out.([]domain.SWDIRecord)
	points := make([]domain.PointObservation, 0, len(records))
	skipped := 0
	for _, rec := range records {
		p, err := domain.ParseSWDIRecord(rec)
		if err != nil {
			skipped++
			continue
		}
		points = append(points, p)
	}
	if skipped > 0 {
		c.logger.Warn("skipped unparseable SWDI records",
			"dataset", dataset,
			"region", region.Code,
			"window", window.String(),
			"skipped", skipped,
		)
	}
	return points, nil
}

func (c *Client) requestURL(region domain.Region, dataset string, w domain.TimeWindow) string {
	dateRange := w.Start.Format(domain.DateLayout) + ":" + w.End.Format(domain.DateLayout)
	u := fmt.Sprintf("%s/json/%s/%s", c.baseURL, url.PathEscape(strings.ToLower(dataset)), dateRange)
	if !region.BBox.IsZero() {
		u += "?" + url.Values{"bbox": {region.BBoxParam()}}.Encode()
	}
	return u
}

func (c *Client) get(ctx context.Context, u string) ([]domain.SWDIRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.Transient(fmt.Errorf("swdi request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		fe := &domain.FetchError{
			Category:   classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("swdi API error: %s", strings.TrimSpace(string(body))),
		}
		return nil, fe
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.Permanent(fmt.Errorf("decode swdi response: %w", err))
	}
	return body.Result, nil
}

func classifyStatus(code int) domain.FailureCategory {
	if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 {
		return domain.FailureTransient
	}
	return domain.FailurePermanent
}
