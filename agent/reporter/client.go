package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trinnode/Sentinel/api"
)

const reportPath = "/api/report"

// ErrUnauthorized covers 401 responses: unknown agent, inactive agent,
// or api key mismatch. Retrying cannot heal these.
var ErrUnauthorized = errors.New("collector rejected credentials")

// ErrForbidden covers 403 responses: agent/validator scope mismatch or
// inactive validator. Equally terminal.
var ErrForbidden = errors.New("collector rejected report scope")

// Client submits agent reports to the collector with bounded retries.
type Client struct {
	hc          *http.Client
	reportURL   string
	maxRetries  int
	backoffBase time.Duration
}

// NewClient builds a collector client. Each attempt is bounded by
// requestTimeout; failed attempts are retried up to maxRetries times
// with exponential backoff.
func NewClient(collectorURL string, requestTimeout time.Duration, maxRetries int) (*Client, error) {
	u, err := url.Parse(collectorURL)
	if err != nil || u.Host == "" {
		return nil, errors.Errorf("invalid collector url %q", collectorURL)
	}
	return &Client{
		hc:          &http.Client{Timeout: requestTimeout},
		reportURL:   u.ResolveReference(&url.URL{Path: reportPath}).String(),
		maxRetries:  maxRetries,
		backoffBase: time.Second,
	}, nil
}

// SubmitReport posts a report, retrying transport and server faults
// with exponential backoff (1s, 2s, 4s...). Auth and scope rejections
// are returned immediately; they do not heal on retry.
func (c *Client) SubmitReport(ctx context.Context, req *api.ReportRequest) (*api.ReportResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal report")
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
			return nil, err
		}
		lastErr = err
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"status":  req.Status,
		}).Debug("Report submission attempt failed")
		if attempt < c.maxRetries {
			backoff := c.backoffBase * (1 << (attempt - 1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "report submission aborted")
			}
		}
	}
	return nil, errors.Wrapf(lastErr, "report submission failed after %d attempts", c.maxRetries)
}

func (c *Client) post(ctx context.Context, body []byte) (*api.ReportResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.reportURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	r, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Body.Close()
	}()

	respBody, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "error reading collector response")
	}

	switch {
	case r.StatusCode >= 200 && r.StatusCode <= 299:
		out := &api.ReportResponse{}
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, errors.Wrap(err, "error decoding collector response")
		}
		return out, nil
	case r.StatusCode == http.StatusUnauthorized:
		return nil, errors.Wrap(ErrUnauthorized, rejectionReason(respBody))
	case r.StatusCode == http.StatusForbidden:
		return nil, errors.Wrap(ErrForbidden, rejectionReason(respBody))
	default:
		return nil, errors.Errorf("collector returned %d: %s", r.StatusCode, rejectionReason(respBody))
	}
}

func rejectionReason(body []byte) string {
	e := &api.ErrorResponse{}
	if err := json.Unmarshal(body, e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
