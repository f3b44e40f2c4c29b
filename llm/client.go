// Package llm speaks the chat-completions dialects of locally hosted model
// servers: Ollama, LM Studio, and anything else OpenAI-compatible. The
// client normalizes their response shapes into plain assistant text; tool
// calling happens in-band through the text, not through the wire protocol.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ChatMessage is the wire form of one conversation entry. Images carry
// base64 payloads for vision-capable models and are omitted otherwise.
type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatResponse is the normalized reply.
type ChatResponse struct {
	Text         string
	Model        string
	FinishReason string
	Usage        map[string]int
}

const (
	defaultAttempts  = 3
	defaultRetryBase = 500 * time.Millisecond
)

// Client posts chat requests to one configured endpoint. Endpoint is the
// full chat-completions URL, e.g. http://localhost:11434/v1/chat/completions.
type Client struct {
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	Debug       bool

	client    *http.Client
	attempts  int
	retryBase time.Duration
}

// NewClient builds a client for the given chat endpoint and model.
func NewClient(endpoint, model string) *Client {
	return &Client{
		Endpoint: endpoint,
		Model:    model,
		client: &http.Client{
			Timeout: 3 * time.Minute,
		},
		attempts:  defaultAttempts,
		retryBase: defaultRetryBase,
	}
}

// SetTimeout bounds each individual request attempt.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.getHTTPClient().Timeout = d
	}
}

// SetDebugLogging enables or disables verbose request/response logging.
func (c *Client) SetDebugLogging(enabled bool) {
	c.Debug = enabled
}

// Chat sends the conversation and returns the assistant reply. Connection
// failures are retried with doubling backoff; timeouts and bad responses
// surface immediately. All failures come back as *Error wrapping one of the
// sentinel classes.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	payload := map[string]interface{}{
		"model":    c.Model,
		"messages": messages,
		"stream":   false,
	}
	if c.Temperature != 0 {
		payload["temperature"] = c.Temperature
	}
	if c.MaxTokens != 0 {
		payload["max_tokens"] = c.MaxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Endpoint: c.Endpoint, Op: "chat", Err: err}
	}
	c.logPayload(body)

	var lastErr error
	backoff := c.backoffBase()
	for attempt := 0; attempt < c.maxAttempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &Error{Endpoint: c.Endpoint, Op: "chat", Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		resp, err := c.once(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return nil, &Error{Endpoint: c.Endpoint, Op: "chat", Err: lastErr}
}

func (c *Client) once(ctx context.Context, body []byte) (*ChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(msg))
		if detail != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrBadResponse, resp.Status, detail)
		}
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, resp.Status)
	}
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	c.logResponse(responseBody)
	return decodeChatResponse(responseBody)
}

// wireMessage is the message object shared by the OpenAI and Ollama chat
// shapes.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireChoice struct {
	Message      *wireMessage `json:"message"`
	FinishReason string       `json:"finish_reason"`
}

type wireResponse struct {
	Choices         []wireChoice   `json:"choices"`
	Message         *wireMessage   `json:"message"`
	Response        string         `json:"response"`
	Text            string         `json:"text"`
	Model           string         `json:"model"`
	DoneReason      string         `json:"done_reason"`
	Usage           map[string]int `json:"usage"`
	EvalCount       int            `json:"eval_count"`
	PromptEvalCount int            `json:"prompt_eval_count"`
}

// decodeChatResponse accepts, in order of preference: OpenAI
// choices[0].message.content, Ollama chat message.content, Ollama generate
// response, and a bare text field.
func decodeChatResponse(body []byte) (*ChatResponse, error) {
	var raw wireResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	resp := &ChatResponse{
		Model: raw.Model,
		Usage: normalizeUsage(raw),
	}
	switch {
	case len(raw.Choices) > 0 && raw.Choices[0].Message != nil:
		resp.Text = raw.Choices[0].Message.Content
		resp.FinishReason = raw.Choices[0].FinishReason
	case raw.Message != nil:
		resp.Text = raw.Message.Content
		resp.FinishReason = raw.DoneReason
	case raw.Response != "":
		resp.Text = raw.Response
		resp.FinishReason = raw.DoneReason
	case raw.Text != "":
		resp.Text = raw.Text
	default:
		return nil, fmt.Errorf("%w: no assistant message in response", ErrBadResponse)
	}
	return resp, nil
}

func normalizeUsage(raw wireResponse) map[string]int {
	if raw.Usage != nil {
		return raw.Usage
	}
	usage := make(map[string]int)
	if raw.EvalCount > 0 {
		usage["completion_tokens"] = raw.EvalCount
	}
	if raw.PromptEvalCount > 0 {
		usage["prompt_tokens"] = raw.PromptEvalCount
	}
	if len(usage) == 0 {
		return nil
	}
	return usage
}

func (c *Client) getHTTPClient() *http.Client {
	if c.client != nil {
		return c.client
	}
	c.client = &http.Client{Timeout: 60 * time.Second}
	return c.client
}

func (c *Client) maxAttempts() int {
	if c.attempts > 0 {
		return c.attempts
	}
	return defaultAttempts
}

func (c *Client) backoffBase() time.Duration {
	if c.retryBase > 0 {
		return c.retryBase
	}
	return defaultRetryBase
}

func (c *Client) logPayload(payload []byte) {
	if !c.Debug {
		return
	}
	log.Printf("[llm] request %s payload: %s", c.Endpoint, truncate(string(payload), 2048))
}

func (c *Client) logResponse(resp []byte) {
	if !c.Debug {
		return
	}
	log.Printf("[llm] response %s payload: %s", c.Endpoint, truncate(string(resp), 2048))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
