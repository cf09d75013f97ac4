package embedding_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/studybuddy/llm/embedding"
	"github.com/BaSui01/studybuddy/testutil"
	"github.com/BaSui01/studybuddy/types"
)

func httpTestConfig(baseURL string) embedding.HTTPConfig {
	return embedding.HTTPConfig{
		BaseURL:    baseURL,
		Model:      "test-model",
		Dimensions: 3,
		Timeout:    2 * time.Second,
	}
}

func TestHTTPProvider_EmbedDocuments(t *testing.T) {
	var gotReq struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		// 响应乱序返回，客户端必须按 index 重排
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{0, 1, 0}},
				{"index": 0, "embedding": []float64{1, 0, 0}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	p := embedding.NewHTTPProvider(httpTestConfig(srv.URL), nil)
	vectors, err := p.EmbedDocuments(testutil.TestContext(t), []string{"first", "second"})
	require.NoError(t, err)

	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, []string{"first", "second"}, gotReq.Input)

	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{1, 0, 0}, vectors[0])
	assert.Equal(t, []float64{0, 1, 0}, vectors[1])
}

func TestHTTPProvider_EmptyInput(t *testing.T) {
	p := embedding.NewHTTPProvider(httpTestConfig("http://unused"), nil)
	vectors, err := p.EmbedDocuments(testutil.TestContext(t), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestHTTPProvider_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float64{1, 0}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	p := embedding.NewHTTPProvider(httpTestConfig(srv.URL), nil)
	_, err := p.EmbedQuery(testutil.TestContext(t), "text")
	require.Error(t, err)
	assert.Equal(t, types.ErrEmbeddingUnavailable, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "dimensions")
}

func TestHTTPProvider_ServerErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p := embedding.NewHTTPProvider(httpTestConfig(srv.URL), nil)
	_, err := p.EmbedQuery(testutil.TestContext(t), "text")
	require.Error(t, err)
	assert.Equal(t, types.ErrEmbeddingUnavailable, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestHTTPProvider_ClientErrorNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	p := embedding.NewHTTPProvider(httpTestConfig(srv.URL), nil)
	_, err := p.EmbedQuery(testutil.TestContext(t), "text")
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
}

func TestHTTPProvider_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float64{1, 0, 0}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	p := embedding.NewHTTPProvider(httpTestConfig(srv.URL), nil)
	_, err := p.EmbedDocuments(testutil.TestContext(t), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}
