package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/enerbox/pkg/httpx"
	"github.com/HatiCode/enerbox/pkg/interval"
	"github.com/HatiCode/enerbox/pkg/storage"
)

// ErrBadResponse is returned when a downstream answer has no usable report.
var ErrBadResponse = errors.New("bad downstream response")

// Client calls downstream boxes.
type Client struct {
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates a client. A nil httpClient gets a 10 second timeout.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = httpx.NewClient(10 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, logger: logger, now: time.Now}
}

// Call invokes the handler of target with args. A non-negative objective is
// sent in the objective header; headers are copied onto the request. The
// returned report carries the target's name whatever the answer says.
func (c *Client) Call(ctx context.Context, target Target, objective float64, args []float64, headers http.Header) (storage.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL+"/handle", nil)
	if err != nil {
		return storage.Report{}, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("args", httpx.FormatFloats(args))
	req.URL.RawQuery = q.Encode()

	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if objective >= 0 {
		req.Header.Set(httpx.ObjectiveHeader, fmt.Sprintf("%g", objective))
	}

	return c.report(req, target.Name)
}

// Fetch reads the current combined report of a downstream box.
func (c *Client) Fetch(ctx context.Context, target Target) (storage.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL+"/intervals", nil)
	if err != nil {
		return storage.Report{}, fmt.Errorf("create request: %w", err)
	}
	return c.report(req, target.Name)
}

// Push sends report to the parent box at parentURL.
func (c *Client) Push(ctx context.Context, parentURL string, report storage.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parentURL+"/report", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

func (c *Client) report(req *http.Request, name string) (storage.Report, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return storage.Report{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return storage.Report{}, fmt.Errorf("http status %d: %s", resp.StatusCode, string(msg))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return storage.Report{}, fmt.Errorf("read response: %w", err)
	}

	set, service, err := ParseReport(body)
	if err != nil {
		return storage.Report{}, err
	}
	if service != "" && service != name {
		c.logger.Warn("downstream answered under another name", "remote", name, "answered", service)
	}

	return storage.Report{Service: name, Intervals: set, ReportedAt: c.now()}, nil
}

// ParseReport extracts the "intervals" and "service" fields of a box answer.
func ParseReport(body []byte) (interval.Set, string, error) {
	if !gjson.ValidBytes(body) {
		return interval.Set{}, "", fmt.Errorf("%w: not JSON", ErrBadResponse)
	}

	result := gjson.ParseBytes(body)
	raw := result.Get("intervals")
	if !raw.Exists() || !raw.IsArray() {
		return interval.Set{}, "", fmt.Errorf("%w: intervals missing", ErrBadResponse)
	}

	items := raw.Array()
	pairs := make([][2]float64, 0, len(items))
	for i, item := range items {
		bounds := item.Array()
		if !item.IsArray() || len(bounds) != 2 || bounds[0].Type != gjson.Number || bounds[1].Type != gjson.Number {
			return interval.Set{}, "", fmt.Errorf("%w: intervals[%d] is not a [lo,hi] pair", ErrBadResponse, i)
		}
		pairs = append(pairs, [2]float64{bounds[0].Float(), bounds[1].Float()})
	}

	set, err := interval.Parse(pairs)
	if err != nil {
		return interval.Set{}, "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return set, result.Get("service").String(), nil
}
