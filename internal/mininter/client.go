// Package mininter implements the HTTP client delivering transformed GPS
// payloads to the government MININTER reception endpoints, one record per
// request, with bounded retries on transient failures.
package mininter

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mininter-gps-proxy/backend/internal/logging"
	"mininter-gps-proxy/backend/internal/municipality/domain"
	"mininter-gps-proxy/backend/internal/transform"
)

const (
	userAgent     = "MininterGPSProxy/1.0"
	healthTimeout = 5 * time.Second
	// maxBodyCapture bounds how much of a response body is kept for audit.
	maxBodyCapture = 4096
)

// Client posts payloads to the MININTER endpoints. Connection errors and 5xx
// responses retry with a fixed delay; 4xx responses are terminal since the
// payload will not get better by resending it.
type Client struct {
	SerenazgoEndpoint string
	PolicialEndpoint  string
	HTTPClient        *http.Client
	RetryAttempts     int
	RetryDelay        time.Duration
	Logger            *logging.Logger
}

// NewClient builds a Client with TLS configured per minTLS and verifySSL.
// timeout bounds each individual HTTP attempt.
func NewClient(serenazgoEndpoint, policialEndpoint string, timeout time.Duration, retryAttempts int, retryDelay time.Duration, minTLS uint16, verifySSL bool, logger *logging.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         minTLS,
		InsecureSkipVerify: !verifySSL,
	}
	return &Client{
		SerenazgoEndpoint: serenazgoEndpoint,
		PolicialEndpoint:  policialEndpoint,
		HTTPClient:        &http.Client{Timeout: timeout, Transport: transport},
		RetryAttempts:     retryAttempts,
		RetryDelay:        retryDelay,
		Logger:            logger,
	}
}

// Send delivers each payload to the endpoint for the municipality kind. The
// batch succeeds only when every record is accepted; the first failure is
// captured for the audit trail but delivery continues so one bad record does
// not starve the rest.
func (c *Client) Send(ctx context.Context, kind domain.Kind, payloads []transform.Payload) BatchResult {
	endpoint := c.endpointFor(kind)
	batch := BatchResult{Total: len(payloads)}
	if endpoint == "" {
		batch.FirstError = &SendResult{
			Kind:    ErrorKindUnexpected,
			Message: fmt.Sprintf("no endpoint configured for %s", kind),
		}
		batch.Failed = len(payloads)
		return batch
	}

	for i, p := range payloads {
		result := c.sendOne(ctx, endpoint, p)
		batch.Results = append(batch.Results, result)
		if result.Success {
			batch.Successful++
			continue
		}
		batch.Failed++
		if batch.FirstError == nil {
			r := result
			batch.FirstError = &r
		}
		c.Logger.Error(ctx, logging.ChannelTransmission, "record delivery failed", map[string]any{
			"index":  i,
			"imei":   p.IMEI,
			"kind":   result.Kind,
			"status": result.StatusCode,
			"error":  result.Message,
		})
	}
	batch.Success = batch.Failed == 0 && batch.Total > 0
	return batch
}

// sendOne posts a single payload with the retry policy.
func (c *Client) sendOne(ctx context.Context, endpoint string, p transform.Payload) SendResult {
	body, err := json.Marshal(p)
	if err != nil {
		return SendResult{Kind: ErrorKindUnexpected, Message: fmt.Sprintf("marshaling payload: %v", err)}
	}

	attempts := c.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var last SendResult
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return SendResult{Kind: ErrorKindConnection, Message: ctx.Err().Error()}
			case <-time.After(c.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return SendResult{Kind: ErrorKindUnexpected, Message: err.Error()}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.client().Do(req)
		if err != nil {
			last = SendResult{Kind: ErrorKindConnection, Message: err.Error()}
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyCapture))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return SendResult{Success: true, StatusCode: resp.StatusCode, Body: string(respBody)}
		case resp.StatusCode >= 500:
			last = SendResult{
				StatusCode: resp.StatusCode,
				Body:       string(respBody),
				Kind:       ErrorKindServer,
				Message:    fmt.Sprintf("server returned %d", resp.StatusCode),
			}
		case resp.StatusCode >= 400:
			return SendResult{
				StatusCode: resp.StatusCode,
				Body:       string(respBody),
				Kind:       ErrorKindClient,
				Message:    fmt.Sprintf("request rejected with %d", resp.StatusCode),
			}
		default:
			return SendResult{
				StatusCode: resp.StatusCode,
				Body:       string(respBody),
				Kind:       ErrorKindUnexpected,
				Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
			}
		}
	}
	return last
}

// HealthCheck probes the endpoint for the given kind with a HEAD request.
// Any response below 500 counts as healthy.
func (c *Client) HealthCheck(ctx context.Context, kind domain.Kind) bool {
	endpoint := c.endpointFor(kind)
	if endpoint == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
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

func (c *Client) endpointFor(kind domain.Kind) string {
	switch kind {
	case domain.KindSerenazgo:
		return c.SerenazgoEndpoint
	case domain.KindPolicial:
		return c.PolicialEndpoint
	default:
		return ""
	}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
