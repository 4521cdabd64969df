package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/veristream/callshield/internal/observability"
	"github.com/veristream/callshield/internal/resilience"
)

// HTTPClientConfig configures the model server client
type HTTPClientConfig struct {
	URL          string
	Timeout      time.Duration
	ModelVersion string
	Breaker      *resilience.CircuitBreaker // Optional, nil disables breaker protection
}

// HTTPClient scores tensors against a remote model server over JSON.
// The wire format is a single POST per window; at 3 second windows and one
// score per second the request rate is low enough that connection pooling
// in the default transport is all the batching needed.
type HTTPClient struct {
	cfg     HTTPClientConfig
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

type scoreRequest struct {
	ModelVersion string    `json:"model_version,omitempty"`
	Shape        []int64   `json:"shape"`
	Data         []float32 `json:"data"`
}

type scoreResponse struct {
	Logit float32 `json:"logit"`
	Error string  `json:"error,omitempty"`
}

// NewHTTPClient creates a scorer client for the given model server
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: cfg.Breaker,
		logger:  observability.GetLogger().With().Str("component", "scorer_client").Logger(),
	}
}

// Score sends one tensor to the model server and returns the raw logit
func (c *HTTPClient) Score(ctx context.Context, t Tensor) (float32, error) {
	var logit float32
	call := func() error {
		var err error
		logit, err = c.score(ctx, t)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(call)
	} else {
		err = call()
	}
	return logit, err
}

func (c *HTTPClient) score(ctx context.Context, t Tensor) (float32, error) {
	body, err := json.Marshal(scoreRequest{
		ModelVersion: c.cfg.ModelVersion,
		Shape:        t.Shape[:],
		Data:         t.Data,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Model server request failed")
		return 0, fmt.Errorf("model server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(msg)).
			Msg("Model server returned non-OK status")
		return 0, fmt.Errorf("model server returned status %d", resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode score response: %w", err)
	}
	if out.Error != "" {
		return 0, fmt.Errorf("model server error: %s", out.Error)
	}

	c.logger.Debug().
		Dur("latency", time.Since(start)).
		Float32("logit", out.Logit).
		Msg("Scored window")
	return out.Logit, nil
}

// Healthy probes the model server for readiness checks. It reuses the score
// endpoint's host with a GET to /healthz.
func (c *HTTPClient) Healthy(ctx context.Context) error {
	url := healthURL(c.cfg.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections held by the transport
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// healthURL rewrites a score endpoint URL to its server's /healthz path
func healthURL(scoreURL string) string {
	if i := strings.Index(scoreURL, "://"); i >= 0 {
		rest := scoreURL[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return scoreURL[:i+3+j] + "/healthz"
		}
	}
	return scoreURL + "/healthz"
}
