package llm_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/testutil"
	"github.com/BaSui01/studybuddy/types"
)

// chatRequestBody 出站请求体的镜像，用于断言序列化结果
type chatRequestBody struct {
	Model          string        `json:"model"`
	Messages       []llm.Message `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func groqTestConfig(baseURL string) llm.GroqConfig {
	cfg := llm.DefaultGroqConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = "gsk-test"
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestGroqProvider_Complete(t *testing.T) {
	var gotReq chatRequestBody
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"model": "llama-3.3-70b-versatile",
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Paging divides memory into fixed-size frames."}},
			},
			"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 17},
		})
	}))
	t.Cleanup(srv.Close)

	p := llm.NewGroqProvider(groqTestConfig(srv.URL), nil)
	got, err := p.Complete(testutil.TestContext(t), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You are a study assistant."},
			{Role: "user", Content: "Explain paging."},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer gsk-test", gotAuth)
	assert.Equal(t, "llama-3.3-70b-versatile", gotReq.Model)
	assert.InDelta(t, 0.3, gotReq.Temperature, 1e-9)
	assert.Len(t, gotReq.Messages, 2)
	assert.Nil(t, gotReq.ResponseFormat)

	assert.Equal(t, "Paging divides memory into fixed-size frames.", got.Content)
	assert.Equal(t, 42, got.PromptTokens)
	assert.Equal(t, 17, got.OutputTokens)
}

func TestGroqProvider_JSONMode(t *testing.T) {
	var gotReq chatRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"category":"quiz"}`}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	p := llm.NewGroqProvider(groqTestConfig(srv.URL), nil)
	_, err := p.Complete(testutil.TestContext(t), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "classify"}},
		JSONMode: true,
	})
	require.NoError(t, err)

	require.NotNil(t, gotReq.ResponseFormat)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)
}

func TestGroqProvider_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	p := llm.NewGroqProvider(groqTestConfig(srv.URL), nil)
	_, err := p.Complete(testutil.TestContext(t), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrGenerationUnavailable, types.GetErrorCode(err))
}

func TestGroqProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	t.Cleanup(srv.Close)

	p := llm.NewGroqProvider(groqTestConfig(srv.URL), nil)
	_, err := p.Complete(testutil.TestContext(t), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrGenerationUnavailable, types.GetErrorCode(err))
}
