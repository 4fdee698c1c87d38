// Package gpserver implements the HTTP client for the upstream GPServer
// (GIPIES) tracking platform, which exposes the raw GPS objects of every
// tracked vehicle for a municipality's account token.
package gpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mininter-gps-proxy/backend/internal/gps"
	"mininter-gps-proxy/backend/internal/logging"
)

const (
	userAgent = "MininterGPSProxy/1.0"
	// cmdGetObjects is the GPServer API command returning all GPS objects
	// visible to the account identified by the API key.
	cmdGetObjects = "USER_GET_OBJECTS"

	healthTimeout = 5 * time.Second
	// maxClockSkew is how far into the future a capture time may be before
	// the record is considered structurally broken.
	maxClockSkew = time.Hour
)

// Client talks to the GPServer API. Connection errors and 5xx responses are
// retried a bounded number of times with a fixed delay; 4xx responses are not.
type Client struct {
	BaseURL       string
	HTTPClient    *http.Client
	RetryAttempts int
	RetryDelay    time.Duration
	Logger        *logging.Logger

	now func() time.Time
}

// NewClient returns a Client for the given base URL with the given retry
// policy. timeout bounds each individual HTTP attempt.
func NewClient(baseURL string, timeout time.Duration, retryAttempts int, retryDelay time.Duration, logger *logging.Logger) *Client {
	return &Client{
		BaseURL:       baseURL,
		HTTPClient:    &http.Client{Timeout: timeout},
		RetryAttempts: retryAttempts,
		RetryDelay:    retryDelay,
		Logger:        logger,
		now:           time.Now,
	}
}

// Fetch retrieves all GPS objects for the account identified by token and
// returns the records that pass the structural filter. A response body that
// is not a JSON array yields an empty slice with a warning, not an error:
// the upstream returns plain-text error strings for bad tokens and the
// pipeline treats those as "no data". Transport failures and non-2xx status
// codes after retries are returned as errors.
func (c *Client) Fetch(ctx context.Context, token string) ([]gps.Record, error) {
	reqURL, err := c.buildURL(token)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		c.Logger.Warning(ctx, logging.ChannelTelemetry, "gpserver returned a non-array body, treating as empty", map[string]any{
			"body_prefix": prefix(body, 200),
		})
		return []gps.Record{}, nil
	}

	records := make([]gps.Record, 0, len(raw))
	dropped := 0
	for _, m := range raw {
		rec := gps.Record(m)
		if c.structurallySound(rec) {
			records = append(records, rec)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		c.Logger.Debug(ctx, logging.ChannelTelemetry, "dropped structurally broken records", map[string]any{
			"dropped": dropped,
			"kept":    len(records),
		})
	}
	return records, nil
}

// HealthCheck reports whether GPServer is reachable and not failing hard.
// Any response below 500 counts as healthy since the endpoint rejects
// unauthenticated probes with 4xx.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BaseURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.client().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (c *Client) buildURL(token string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("gpserver: invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("api", "user")
	q.Set("key", token)
	q.Set("cmd", cmdGetObjects)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// get performs the GET with the client's retry policy. Connection errors and
// 5xx responses are retried; a 4xx fails immediately.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	attempts := c.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client().Do(req)
		if err != nil {
			lastErr = fmt.Errorf("gpserver: request failed: %w", err)
			c.Logger.Warning(ctx, logging.ChannelTelemetry, "gpserver request failed, retrying", map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			})
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("gpserver: server returned %d", resp.StatusCode)
			c.Logger.Warning(ctx, logging.ChannelTelemetry, "gpserver returned a server error, retrying", map[string]any{
				"attempt": attempt,
				"status":  resp.StatusCode,
			})
			continue
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("gpserver: request rejected with %d", resp.StatusCode)
		}
		if readErr != nil {
			lastErr = fmt.Errorf("gpserver: reading response: %w", readErr)
			continue
		}
		return body, nil
	}
	if lastErr == nil {
		lastErr = errors.New("gpserver: request failed")
	}
	c.Logger.ConnectionError(ctx, "gpserver", lastErr)
	return nil, lastErr
}

// structurallySound applies the pre-validation shape filter. Records failing
// it are garbage at the protocol level (truncated rows, placeholder devices)
// and are dropped before business validation even sees them.
func (c *Client) structurallySound(rec gps.Record) bool {
	imei := gps.DigitsOnly(rec.String("imei"))
	if len(imei) < 10 {
		return false
	}

	lat, ok := rec.Float("lat")
	if !ok || lat < -90 || lat > 90 {
		return false
	}
	lng, ok := rec.Float("lng")
	if !ok || lng < -180 || lng > 180 {
		return false
	}

	dt := rec.String("dt_server")
	if dt == "" {
		return false
	}
	if epoch, err := strconv.ParseFloat(dt, 64); err == nil {
		if epoch <= 0 {
			return false
		}
		t := time.Unix(int64(epoch), 0)
		return !t.After(c.clock().Add(maxClockSkew))
	}
	_, err := time.Parse(gps.DateTimeLayout, dt)
	return err == nil
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func prefix(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
