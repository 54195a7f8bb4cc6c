package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"shiftwatch/internal/platform/metrics"
)

const (
	searchPath = "/ISAPI/AccessControl/AcsEvent?format=json"
	maxPages   = 500
	timeLayout = "2006-01-02T15:04:05-07:00"
)

type Options struct {
	Timeout        time.Duration
	PageSize       int
	MaxRetries     int
	InitialBackoff time.Duration
	BreakerTimeout time.Duration
	BreakerTrip    uint32
	HTTPClient     *http.Client
	Metrics        *metrics.Collector
}

// Client pulls access-control events from zone devices. Each device host
// gets its own circuit breaker so one unreachable device fails fast
// without affecting the others.
type Client struct {
	http           *http.Client
	pageSize       int
	maxRetries     int
	initialBackoff time.Duration
	breakerTimeout time.Duration
	breakerTrip    uint32
	metrics        *metrics.Collector

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 30
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 250 * time.Millisecond
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.BreakerTrip == 0 {
		opts.BreakerTrip = 5
	}
	return &Client{
		http:           httpClient,
		pageSize:       opts.PageSize,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		breakerTimeout: opts.BreakerTimeout,
		breakerTrip:    opts.BreakerTrip,
		metrics:        opts.Metrics,
		breakers:       map[string]*gobreaker.CircuitBreaker{},
	}
}

// FetchEvents pages through every verified event in [since, until).
func (c *Client) FetchEvents(ctx context.Context, t Target, since, until time.Time) ([]Event, error) {
	q := Query{SearchID: uuid.NewString(), Since: since, Until: until}
	var events []Event
	for i := 0; i < maxPages; i++ {
		page, err := c.FetchPage(ctx, t, q)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Events...)
		if !page.HasMore {
			return events, nil
		}
		q.Position = page.NextPosition
	}
	slog.Warn("device search truncated", "zoneId", t.ZoneID, "role", t.Role, "pages", maxPages)
	return events, nil
}

// FetchPage requests one page of results, retrying transient failures.
func (c *Client) FetchPage(ctx context.Context, t Target, q Query) (Page, error) {
	if q.SearchID == "" {
		q.SearchID = uuid.NewString()
	}
	cb, err := c.breaker(t.BaseURL)
	if err != nil {
		return Page{}, err
	}

	var page Page
	op := func() error {
		out, err := cb.Execute(func() (interface{}, error) {
			return c.search(ctx, t, q)
		})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		page = out.(Page)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxElapsedTime = 0
	notify := func(err error, wait time.Duration) {
		slog.Warn("device request failed, retrying", "zoneId", t.ZoneID, "role", t.Role, "wait", wait, "err", err)
	}
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)
	if err := backoff.RetryNotify(op, retry, notify); err != nil {
		return Page{}, err
	}
	return page, nil
}

func (c *Client) search(ctx context.Context, t Target, q Query) (Page, error) {
	body, err := json.Marshal(searchRequest{Cond: searchCond{
		SearchID:   q.SearchID,
		Position:   q.Position,
		MaxResults: c.pageSize,
		Major:      majorAccessEvent,
		Minor:      0,
		StartTime:  q.Since.Format(timeLayout),
		EndTime:    q.Until.Format(timeLayout),
	}})
	if err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(t.BaseURL, "/")+searchPath, bytes.NewReader(body))
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Username != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Page{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return decodePage(raw, q.Position)
}

func decodePage(raw []byte, position int) (Page, error) {
	var decoded searchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	result := decoded.Event
	if result == nil {
		return Page{}, fmt.Errorf("%w: missing AcsEvent", ErrMalformedPayload)
	}
	switch result.Status {
	case statusMore, statusOK, statusNoMatch:
	default:
		return Page{}, fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, result.Status)
	}

	page := Page{
		HasMore:      result.Status == statusMore && result.NumOfMatches > 0,
		NextPosition: position + result.NumOfMatches,
		Total:        result.TotalMatches,
	}
	for _, info := range result.InfoList {
		workerID, err := strconv.ParseInt(strings.TrimSpace(info.EmployeeNo), 10, 64)
		if err != nil {
			slog.Debug("skipping event with unknown employee number", "employeeNo", info.EmployeeNo)
			continue
		}
		at, err := time.Parse(time.RFC3339, info.Time)
		if err != nil {
			slog.Debug("skipping event with bad time", "time", info.Time)
			continue
		}
		ev := Event{WorkerID: workerID, Time: at, VerifyMode: info.VerifyMode}
		if !ev.Verified() {
			continue
		}
		page.Events = append(page.Events, ev)
	}
	return page, nil
}

func (c *Client) breaker(baseURL string) (*gobreaker.CircuitBreaker, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid device url %q", baseURL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[u.Host]; ok {
		return cb, nil
	}
	trip := c.breakerTrip
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        u.Host,
		MaxRequests: 1,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("device breaker state changed", "device", name, "from", from.String(), "to", to.String())
			c.metrics.BreakerChanged(name, to.String())
		},
	})
	c.breakers[u.Host] = cb
	return cb, nil
}

// isPermanent marks errors that retrying cannot fix. The device answered,
// so these do not count against its breaker either.
func isPermanent(err error) bool {
	if errors.Is(err, ErrMalformedPayload) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Permanent()
}
