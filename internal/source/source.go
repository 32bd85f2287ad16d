// Package source wraps the three upstream systems (appointment scheduler,
// voucher issuer, e-invoicer) behind a common adapter contract. Each adapter
// translates its native schema into consolidated records and tags every field
// it sets with its own origin.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/atencion"
)

// Adapter is the contract every upstream source implements.
type Adapter interface {
	Name() string
	Enabled() bool
	// FetchWindow returns normalized records for appointments/documents in
	// [start, end].
	FetchWindow(ctx context.Context, start, end time.Time) ([]*atencion.Atencion, error)
	// CheckConnection probes the upstream API.
	CheckConnection(ctx context.Context) error
}

// RetryConfig wraps fetch calls in a bounded attempts/delay retry.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// withRetry runs fn up to cfg.Attempts times, pausing cfg.Delay between
// attempts. Context cancellation stops the loop.
func withRetry(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		logger.Warn().Err(err).Int("attempt", i).Msg("fetch failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}
	return err
}

// getJSON performs a GET with the given headers and decodes the JSON body
// into out. Non-2xx responses are errors.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkHealth probes the conventional /health endpoint.
func checkHealth(ctx context.Context, client *http.Client, baseURL string, headers map[string]string) error {
	return getJSON(ctx, client, baseURL+"/health", headers, nil)
}

// rawPayload re-decodes the wire message for the audit trail, keyed by the
// adapter's origin so merged records keep one payload per source.
func rawPayload(origin string, msg json.RawMessage) map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil
	}
	return map[string]interface{}{origin: m}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseTime accepts the timestamp formats seen across the three upstreams.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
