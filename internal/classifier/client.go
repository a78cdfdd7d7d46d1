// Package classifier calls an OpenAI-compatible chat-completions endpoint to
// judge whether user content is abusive.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tangled.org/studyhub.social/warden/internal/apperr"
	"tangled.org/studyhub.social/warden/internal/tracing"
)

// Severity grades flagged content.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Verdict is the structured answer of the classifier.
type Verdict struct {
	IsBad    bool     `json:"isBad"`
	BadWords []string `json:"badWords"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

// ErrMalformed is wrapped when the classifier answers with something that is
// not a verdict.
var ErrMalformed = errors.New("malformed classifier response")

const instruction = `You are a content moderator for an online study community.
Users write in Vietnamese and English. Decide whether the message below contains
profanity, insults, harassment, hate speech, sexual content or threats.
Respond with JSON only (no markdown, no code fences):
{"isBad": true|false, "badWords": ["each offending word as written; a short phrase only when none of its words is offensive alone"], "severity": "medium"|"high", "reason": "one short sentence"}
Use "high" for hate speech, threats and sexual content, "medium" otherwise.
When the message is clean respond {"isBad": false, "badWords": [], "severity": "medium", "reason": ""}.`

// Config configures a Client.
type Config struct {
	Endpoint string // full chat-completions URL
	APIKey   string
	Model    string
	Timeout  time.Duration

	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// Client classifies content with a single request per call; it never retries.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     hc,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify asks the classifier for a verdict on text. All failures are
// external-service errors.
func (c *Client) Classify(ctx context.Context, contentID, text string) (verdict *Verdict, err error) {
	const op = "classify_content"
	ctx, span := tracing.ClassifierSpan(ctx, c.model, contentID)
	defer func() { tracing.EndWithError(span, err); span.End() }()

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: text},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, apperr.External(op, fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.External(op, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.External(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.External(op, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, apperr.External(op, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if len(chat.Choices) == 0 {
		return nil, apperr.External(op, fmt.Errorf("%w: no choices", ErrMalformed))
	}

	verdict, err = ParseVerdict(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, apperr.External(op, err)
	}
	return verdict, nil
}

// ParseVerdict decodes the model's answer. Markdown code fences and text
// around the JSON object are tolerated.
func ParseVerdict(content string) (*Verdict, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		content = content[start : end+1]
	}

	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	v.Severity = Severity(strings.ToLower(strings.TrimSpace(string(v.Severity))))
	switch v.Severity {
	case SeverityMedium, SeverityHigh:
	case "":
		v.Severity = SeverityMedium
	default:
		return nil, fmt.Errorf("%w: unknown severity %q", ErrMalformed, v.Severity)
	}

	words := v.BadWords[:0]
	for _, w := range v.BadWords {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	v.BadWords = words
	return &v, nil
}
