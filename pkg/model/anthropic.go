package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicOptions configures AnthropicClient.
type AnthropicOptions struct {
	APIKey  string
	BaseURL string
	// RateLimit caps outgoing requests per second. Zero disables the limiter.
	RateLimit float64
	Burst     int
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// AnthropicClient streams responses from the Claude Messages API.
type AnthropicClient struct {
	apiKey      string
	baseURL     string
	version     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewAnthropicClient builds a client. The HTTP client has no overall timeout;
// callers bound each stream through its context.
func NewAnthropicClient(opts AnthropicOptions) *AnthropicClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	c := &AnthropicClient{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		version:    anthropicVersion,
		httpClient: &http.Client{Transport: transport},
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.rateLimiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// HasCredential reports whether an API key is configured.
func (c *AnthropicClient) HasCredential() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

// StreamMessages implements Streamer.
func (c *AnthropicClient) StreamMessages(ctx context.Context, req MessagesRequest) (<-chan StreamEvent, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseError(resp)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		parseSSEStream(ctx, resp.Body, events)
	}()
	return events, nil
}

func (c *AnthropicClient) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
}

// sseFrame is the union of the data payloads the Messages stream sends.
type sseFrame struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
		Text string `json:"text"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Message *struct {
		Usage Usage `json:"usage"`
	} `json:"message"`
	Usage *Usage       `json:"usage"`
	Error *ErrorDetail `json:"error"`
}

// parseSSEStream translates the wire stream into StreamEvents. It returns
// without sending anything once ctx is done.
func parseSSEStream(ctx context.Context, r io.Reader, events chan<- StreamEvent) {
	send := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fault := func(err error) {
		if ctx.Err() != nil {
			return
		}
		send(StreamFault{Err: err})
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line

	var (
		usage      Usage
		stopReason string
		toolBlocks = make(map[int]bool)
	)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var frame sseFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			fault(fmt.Errorf("malformed upstream frame: %w", err))
			return
		}

		switch frame.Type {
		case "message_start":
			if frame.Message != nil {
				usage = frame.Message.Usage
			}
		case "content_block_start":
			if frame.ContentBlock == nil {
				continue
			}
			switch frame.ContentBlock.Type {
			case "tool_use":
				toolBlocks[frame.Index] = true
				if !send(ToolCallDelta{Index: frame.Index, ID: frame.ContentBlock.ID, Name: frame.ContentBlock.Name}) {
					return
				}
			case "text":
				if frame.ContentBlock.Text != "" {
					if !send(ContentDelta{Index: frame.Index, Text: frame.ContentBlock.Text}) {
						return
					}
				}
			}
		case "content_block_delta":
			if frame.Delta == nil {
				continue
			}
			var ev StreamEvent
			switch frame.Delta.Type {
			case "text_delta":
				ev = ContentDelta{Index: frame.Index, Text: frame.Delta.Text}
			case "input_json_delta":
				ev = ToolCallDelta{Index: frame.Index, PartialJSON: frame.Delta.PartialJSON}
			default:
				continue
			}
			if !send(ev) {
				return
			}
		case "content_block_stop":
			if toolBlocks[frame.Index] {
				delete(toolBlocks, frame.Index)
				if !send(ToolCallDelta{Index: frame.Index, Stop: true}) {
					return
				}
			}
		case "message_delta":
			if frame.Delta != nil && frame.Delta.StopReason != "" {
				stopReason = frame.Delta.StopReason
			}
			if frame.Usage != nil {
				usage.OutputTokens = frame.Usage.OutputTokens
			}
		case "message_stop":
			send(StreamEnd{StopReason: stopReason, Usage: usage})
			return
		case "error":
			apiErr := &APIError{Type: "error", Message: "unknown stream error"}
			if frame.Error != nil {
				apiErr.Type = frame.Error.Type
				apiErr.Message = frame.Error.Message
			}
			fault(apiErr)
			return
		case "ping":
		}
	}

	if err := scanner.Err(); err != nil {
		fault(fmt.Errorf("reading stream: %w", err))
		return
	}
	fault(fmt.Errorf("stream ended before message_stop: %w", io.ErrUnexpectedEOF))
}

// parseError turns a non-2xx response into an *APIError.
func parseError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		RequestID:  resp.Header.Get("request-id"),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		rawBody := strings.TrimSpace(string(body))
		if len(rawBody) > 500 {
			rawBody = rawBody[:500] + "..."
		}
		if rawBody != "" {
			apiErr.Message = fmt.Sprintf("%s (raw: %s)", resp.Status, rawBody)
		}
		return apiErr
	}

	apiErr.Type = errResp.Error.Type
	apiErr.Message = errResp.Error.Message
	return apiErr
}

// parseRetryAfter parses the Retry-After header as whole seconds.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
