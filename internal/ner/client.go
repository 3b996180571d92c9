// Package ner is the HTTP client for the external entity-extraction
// service. It implements entity.Oracle; a failing or tripped service
// degrades the pipeline to pattern+NLP extraction only.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/internalerr"
)

// Config locates and tunes the NER service client.
type Config struct {
	// BaseURL of the service, without a trailing slash.
	BaseURL string

	// APIKey sent as x-api-key. Empty omits the header.
	APIKey string

	// Model requested from the service.
	// Default: en_core_web_sm
	Model string

	// MinConfidence filter applied service-side.
	// Default: 0.5
	MinConfidence float64

	// Timeout per HTTP call.
	// Default: 15s
	Timeout time.Duration
}

// DefaultConfig returns the stock client settings for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		Model:         "en_core_web_sm",
		MinConfidence: 0.5,
		Timeout:       15 * time.Second,
	}
}

// Client talks to the NER service behind a circuit breaker: once the
// service fails often enough the breaker opens and calls fail fast
// instead of stacking up timeouts.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// New builds a client. The logger may be nil.
func New(cfg Config, log *zap.Logger) *Client {
	def := DefaultConfig(cfg.BaseURL)
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ner",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("ner breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

type extractRequest struct {
	Text          string  `json:"text"`
	Model         string  `json:"model"`
	MinConfidence float64 `json:"min_confidence"`
}

type extractResponse struct {
	Entities         []entity.Span `json:"entities"`
	ModelUsed        string        `json:"model_used"`
	ProcessingTimeMS float64       `json:"processing_time_ms"`
}

type batchRequest struct {
	Texts         []string `json:"texts"`
	Model         string   `json:"model"`
	MinConfidence float64  `json:"min_confidence"`
}

type batchResponse struct {
	Results   []extractResponse `json:"results"`
	BatchSize int               `json:"batch_size"`
}

// Extract implements entity.Oracle.
func (c *Client) Extract(ctx context.Context, text string) ([]entity.Span, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		var resp extractResponse
		err := c.post(ctx, "/ner", extractRequest{
			Text:          text,
			Model:         c.cfg.Model,
			MinConfidence: c.cfg.MinConfidence,
		}, &resp)
		if err != nil {
			return nil, err
		}
		return resp.Entities, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ner extract: %v", internalerr.ErrOracleUnavailable, err)
	}
	return out.([]entity.Span), nil
}

// ExtractBatch extracts spans for several texts in one round trip. The
// result slice is positionally aligned with texts.
func (c *Client) ExtractBatch(ctx context.Context, texts []string) ([][]entity.Span, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out, err := c.breaker.Execute(func() (any, error) {
		var resp batchResponse
		err := c.post(ctx, "/ner/batch", batchRequest{
			Texts:         texts,
			Model:         c.cfg.Model,
			MinConfidence: c.cfg.MinConfidence,
		}, &resp)
		if err != nil {
			return nil, err
		}
		if len(resp.Results) != len(texts) {
			return nil, fmt.Errorf("batch size mismatch: sent %d, got %d", len(texts), len(resp.Results))
		}
		spans := make([][]entity.Span, len(resp.Results))
		for i, r := range resp.Results {
			spans[i] = r.Entities
		}
		return spans, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ner batch extract: %v", internalerr.ErrOracleUnavailable, err)
	}
	return out.([][]entity.Span), nil
}

// Health reports whether the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ner health: %v", internalerr.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ner health: http %d", internalerr.ErrOracleUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, into any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ner service: http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode ner response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}
}
