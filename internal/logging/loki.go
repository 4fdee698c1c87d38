package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// lokiPushRequest is the Loki push API request body (v1).
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

// lokiStream is a single stream with labels and log entries.
type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters that are invalid in Loki label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// LokiSink pushes log events to a Grafana Loki instance, labeled by channel
// and level for querying.
type LokiSink struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewLokiSink returns a sink pushing to the given base URL (e.g.
// http://localhost:3100), or nil when the URL is unset.
func NewLokiSink(baseURL string) *LokiSink {
	if baseURL == "" {
		return nil
	}
	return &LokiSink{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: emitTimeout}}
}

// Emit sends the event as one log line to Loki. Returns an error if the HTTP
// request fails or Loki returns non-2xx.
func (s *LokiSink) Emit(ctx context.Context, e Event) error {
	if s == nil {
		return nil
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	labels := map[string]string{"job": "gps-proxy"}
	for k, v := range map[string]string{"channel": e.Channel, "level": string(e.Level)} {
		if sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); sanitized != "" {
			labels[k] = sanitized
		}
	}
	body := lokiPushRequest{
		Streams: []lokiStream{{
			Stream: labels,
			Values: [][]string{{fmt.Sprintf("%d", e.CreatedAt.UnixNano()), string(line)}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(s.BaseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
