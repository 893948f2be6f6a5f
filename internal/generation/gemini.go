package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-1.5-flash"

	// HealthPrompt asks the model for a short answer proving it can reply in Chinese.
	HealthPrompt = "请简单回复'连接成功'，证明你可以正常响应中文。"

	maxErrorBody  = 64 << 10
	maxStreamLine = 1 << 20
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
	UsageMetadata *geminiUsage `json:"usageMetadata,omitempty"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func (u *geminiUsage) usage() Usage {
	if u == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  u.PromptTokenCount,
		OutputTokens: u.CandidatesTokenCount,
		TotalTokens:  u.TotalTokenCount,
	}
}

// GeminiClient talks to the Gemini generateContent REST API.
type GeminiClient struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

type GeminiOption func(*GeminiClient)

func WithGeminiBaseURL(baseURL string) GeminiOption {
	return func(c *GeminiClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithGeminiModel(model string) GeminiOption {
	return func(c *GeminiClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithHTTPClient(client *http.Client) GeminiOption {
	return func(c *GeminiClient) {
		c.client = client
	}
}

func NewGeminiClient(apiKey string, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		baseURL: DefaultGeminiBaseURL,
		model:   DefaultGeminiModel,
		apiKey:  apiKey,
		client:  http.DefaultClient,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GeminiClient) endpoint(method string, query url.Values) string {
	query.Set("key", c.apiKey)
	return fmt.Sprintf("%s/models/%s:%s?%s", c.baseURL, c.model, method, query.Encode())
}

func (c *GeminiClient) post(ctx context.Context, endpoint string, req *Request) (*http.Response, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Config.Temperature,
			MaxOutputTokens: req.Config.MaxOutputTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	var body geminiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.post(ctx, c.endpoint("generateContent", url.Values{}), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	text := strings.TrimSpace(out.text())
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{
		Text:      text,
		Usage:     out.UsageMetadata.usage(),
		Timestamp: c.now().UTC(),
	}, nil
}

func (c *GeminiClient) Stream(ctx context.Context, req *Request, onDelta func(string) error) (*Response, error) {
	resp, err := c.post(ctx, c.endpoint("streamGenerateContent", url.Values{"alt": {"sse"}}), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		full  strings.Builder
		usage Usage
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxStreamLine)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if chunk.UsageMetadata != nil {
			usage = chunk.UsageMetadata.usage()
		}
		delta := chunk.text()
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	// Deltas are forwarded as received; the result matches Generate.
	text := strings.TrimSpace(full.String())
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{
		Text:      text,
		Usage:     usage,
		Timestamp: c.now().UTC(),
	}, nil
}

// Ping sends HealthPrompt and returns the model's answer.
func (c *GeminiClient) Ping(ctx context.Context) (string, error) {
	resp, err := c.Generate(ctx, &Request{
		Prompt: HealthPrompt,
		Config: Config{Temperature: 0.7, MaxOutputTokens: 100},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
