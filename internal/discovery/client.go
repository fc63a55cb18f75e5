// Package discovery fetches event listings from the upstream feed and
// provides the built-in fallback list.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

// ErrFeedStatus is returned when the feed answers with a non-2xx status.
var ErrFeedStatus = errors.New("discovery feed returned an error status")

const maxFeedBytes = 4 << 20

// Client reads events from an HTTP JSON feed. The feed may return either a
// bare array or an object with an "events" array.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewClient creates a feed client. Requests are limited to rps per second
// with a burst of three; rps <= 0 means one per second.
func NewClient(url string, timeout time.Duration, rps float64, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 3),
		logger:     log,
	}
}

type feedEvent struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Title  string   `json:"title"`
	Venue  string   `json:"venue"`
	Date   string   `json:"date"`
	Time   string   `json:"time"`
	Price  *float64 `json:"price"`
	IsFree *bool    `json:"is_free"`
	Genre  string   `json:"genre"`
	URL    string   `json:"url"`
}

// Discover fetches the current listings.
func (c *Client) Discover(ctx context.Context) ([]model.Event, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("discovery rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrFeedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery feed: %w", err)
	}

	raw, err := decodeFeed(body)
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0, len(raw))
	for i, fe := range raw {
		ev, ok := fe.toEvent(i)
		if !ok {
			c.logger.Debug("skipping unnamed feed entry", zap.Int("index", i))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeFeed(body []byte) ([]feedEvent, error) {
	trimmed := strings.TrimSpace(string(body))
	var raw []feedEvent
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode discovery feed: %w", err)
		}
		return raw, nil
	}
	var wrapped struct {
		Events []feedEvent `json:"events"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode discovery feed: %w", err)
	}
	return wrapped.Events, nil
}

// toEvent normalizes a feed entry. A missing price is kept distinct from a
// confirmed free listing: only an explicit flag or a literal 0 marks free.
func (fe feedEvent) toEvent(i int) (model.Event, bool) {
	name := strings.TrimSpace(fe.Name)
	if name == "" {
		name = strings.TrimSpace(fe.Title)
	}
	if name == "" {
		return model.Event{}, false
	}
	ev := model.Event{
		ID:    fe.ID,
		Name:  name,
		Venue: strings.TrimSpace(fe.Venue),
		Date:  strings.TrimSpace(fe.Date),
		Time:  strings.TrimSpace(fe.Time),
		Genre: strings.TrimSpace(fe.Genre),
		URL:   fe.URL,
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("evt-%d", i+1)
	}
	if fe.Price != nil {
		ev.Price = *fe.Price
	}
	switch {
	case fe.IsFree != nil:
		ev.IsFree = *fe.IsFree
	case fe.Price != nil && *fe.Price == 0:
		ev.IsFree = true
	}
	return ev, true
}
