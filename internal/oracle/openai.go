package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/internalerr"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

// OpenAI implements suggest.Oracle against any OpenAI-compatible
// chat-completions endpoint, which is how self-hosted gateways are
// reached.
type OpenAI struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

// NewOpenAI builds the adapter. baseURL is the server root; the
// chat-completions path is appended unless already present. The logger
// may be nil.
func NewOpenAI(baseURL, apiKey, model string, log *zap.Logger) *OpenAI {
	if log == nil {
		log = zap.NewNop()
	}
	endpoint := strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(endpoint, "/chat/completions") {
		endpoint += "/v1/chat/completions"
	}
	return &OpenAI{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: 30 * time.Second},
		breaker:  newBreaker("openai", log),
		log:      log,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Suggest implements suggest.Oracle.
func (o *OpenAI) Suggest(ctx context.Context, text string, req suggest.Request, max int) ([]suggest.Candidate, error) {
	return o.call(ctx, suggestPrompt(text, req, max))
}

// Alternatives implements suggest.Oracle.
func (o *OpenAI) Alternatives(ctx context.Context, rule suggest.ReplaceRule, window string, max int) ([]suggest.Candidate, error) {
	return o.call(ctx, alternativesPrompt(rule, window, max))
}

func (o *OpenAI) call(ctx context.Context, userPrompt string) ([]suggest.Candidate, error) {
	out, err := o.breaker.Execute(func() (any, error) {
		reply, err := o.send(ctx, userPrompt)
		if err != nil {
			return nil, err
		}
		return parseCandidates(reply)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", internalerr.ErrOracleUnavailable, err)
	}
	return out.([]suggest.Candidate), nil
}

func (o *OpenAI) send(ctx context.Context, userPrompt string) (string, error) {
	if o.model == "" {
		return "", fmt.Errorf("model required")
	}
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.Error != nil {
		return "", fmt.Errorf("api error: %s", payload.Error.Message)
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return payload.Choices[0].Message.Content, nil
}
