package ner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cognicore/redline/pkg/redline/internalerr"
)

func TestExtract(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")

		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "Anna Smith joined Acme Corp" {
			t.Errorf("unexpected text %q", req.Text)
		}
		if req.Model != "en_core_web_sm" {
			t.Errorf("unexpected model %q", req.Model)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"entities": []map[string]any{
				{"text": "Anna Smith", "label": "PERSON", "start": 0, "end": 10, "confidence": 1.0},
				{"text": "Acme Corp", "label": "ORG", "start": 18, "end": 27, "confidence": 0.9},
			},
			"model_used":         "en_core_web_sm",
			"processing_time_ms": 12.5,
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "secret"}, nil)
	spans, err := c.Extract(context.Background(), "Anna Smith joined Acme Corp")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if gotPath != "/ner" {
		t.Errorf("path = %q, want /ner", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("x-api-key = %q, want secret", gotKey)
	}
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Label != "PERSON" || spans[0].Text != "Anna Smith" {
		t.Errorf("unexpected first span %+v", spans[0])
	}
	if spans[1].Confidence != 0.9 {
		t.Errorf("second span confidence = %v, want 0.9", spans[1].Confidence)
	}
}

func TestExtractServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(DefaultConfig(srv.URL), nil)
	_, err := c.Extract(context.Background(), "some text")
	if !errors.Is(err, internalerr.ErrOracleUnavailable) {
		t.Fatalf("err = %v, want ErrOracleUnavailable", err)
	}
}

func TestExtractBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ner/batch" {
			t.Errorf("path = %q, want /ner/batch", r.URL.Path)
		}
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		results := make([]map[string]any, len(req.Texts))
		for i := range req.Texts {
			results[i] = map[string]any{
				"entities": []map[string]any{
					{"text": "Acme", "label": "ORG", "start": 0, "end": 4, "confidence": 0.8},
				},
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results, "batch_size": len(results)})
	}))
	defer srv.Close()

	c := New(DefaultConfig(srv.URL), nil)
	spans, err := c.ExtractBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("got %d results, want 3", len(spans))
	}
	for i, s := range spans {
		if len(s) != 1 || s[0].Text != "Acme" {
			t.Errorf("result %d = %+v", i, s)
		}
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(DefaultConfig(srv.URL), nil)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		c.Extract(ctx, "text")
	}

	// The breaker should now fail fast without a round trip.
	srv.Close()
	_, err := c.Extract(ctx, "text")
	if !errors.Is(err, internalerr.ErrOracleUnavailable) {
		t.Fatalf("err = %v, want ErrOracleUnavailable", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	defer srv.Close()

	c := New(DefaultConfig(srv.URL), nil)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
