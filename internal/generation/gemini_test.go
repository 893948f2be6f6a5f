package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiGenerate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"  你好，"},{"text":"世界  "}]}}],`+
			`"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":4,"totalTokenCount":7}}`)
	}))
	defer srv.Close()

	c := NewGeminiClient("secret", WithGeminiBaseURL(srv.URL+"/"), WithGeminiModel("test-model"))
	resp, err := c.Generate(context.Background(), &Request{
		Prompt: "打个招呼",
		Config: Config{Temperature: 0.3, MaxOutputTokens: 1024},
	})
	require.NoError(t, err)

	assert.Equal(t, "你好，世界", resp.Text)
	assert.Equal(t, Usage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7}, resp.Usage)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "打个招呼", got.Contents[0].Parts[0].Text)
	assert.Equal(t, 0.3, got.GenerationConfig.Temperature)
	assert.Equal(t, 1024, got.GenerationConfig.MaxOutputTokens)
}

func TestGeminiAPIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json error body", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, "API key not valid"},
		{"plain body", http.StatusBadGateway, "upstream down", "upstream down"},
		{"empty body", http.StatusServiceUnavailable, "", "Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewGeminiClient("k", WithGeminiBaseURL(srv.URL)).Generate(context.Background(), &Request{Prompt: "x"})
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, fmt.Sprintf("API Error: %d - %s", tt.status, tt.wantMsg), apiErr.Error())
		})
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	_, err := NewGeminiClient("k", WithGeminiBaseURL(srv.URL)).Generate(context.Background(), &Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"第一"}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"第二"}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"章"}]}}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":3,"totalTokenCount":8}}`+"\n\n")
	}))
	defer srv.Close()

	var deltas []string
	resp, err := NewGeminiClient("k", WithGeminiBaseURL(srv.URL)).Stream(context.Background(), &Request{Prompt: "x"},
		func(d string) error {
			deltas = append(deltas, d)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"第一", "第二", "章"}, deltas)
	assert.Equal(t, "第一第二章", resp.Text)
	assert.Equal(t, 8, resp.Usage.TotalTokens)
}

func TestGeminiStreamAbortedByCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"a"}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"b"}]}}]}`+"\n\n")
	}))
	defer srv.Close()

	stop := fmt.Errorf("client went away")
	calls := 0
	_, err := NewGeminiClient("k", WithGeminiBaseURL(srv.URL)).Stream(context.Background(), &Request{Prompt: "x"},
		func(string) error {
			calls++
			return stop
		})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestGeminiGenerateAndStreamAgree(t *testing.T) {
	parts := []string{"\n  你好，", "世界  \n"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "sse" {
			for _, p := range parts {
				b, err := json.Marshal(p)
				require.NoError(t, err)
				fmt.Fprintf(w, `data: {"candidates":[{"content":{"parts":[{"text":%s}]}}]}`+"\n\n", b)
			}
			return
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"\n  你好，"},{"text":"世界  \n"}]}}]}`)
	}))
	defer srv.Close()
	c := NewGeminiClient("k", WithGeminiBaseURL(srv.URL))

	gen, err := c.Generate(context.Background(), &Request{Prompt: "x"})
	require.NoError(t, err)

	var deltas []string
	streamed, err := c.Stream(context.Background(), &Request{Prompt: "x"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "你好，世界", gen.Text)
	assert.Equal(t, gen.Text, streamed.Text)
	assert.Equal(t, parts, deltas)
}

func TestGeminiStreamWhitespaceOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"  \n"}]}}]}`+"\n\n")
	}))
	defer srv.Close()

	_, err := NewGeminiClient("k", WithGeminiBaseURL(srv.URL)).Stream(context.Background(), &Request{Prompt: "x"},
		func(string) error { return nil })
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
