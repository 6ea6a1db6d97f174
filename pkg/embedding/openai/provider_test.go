package openai

import (
	"concept-digest-be/pkg/apperr"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Generate(t *testing.T) {
	tests := []struct {
		name       string
		dimensions int
		wantDims   bool
	}{
		{name: "with dimensions", dimensions: 768, wantDims: true},
		{name: "native dimensions", dimensions: 0, wantDims: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/embeddings", r.URL.Path)
				assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

				var raw map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
				assert.Equal(t, "text-embedding-3-small", raw["model"])
				assert.Equal(t, []interface{}{"mutex"}, raw["input"])
				_, hasDims := raw["dimensions"]
				assert.Equal(t, tt.wantDims, hasDims)

				_, _ = w.Write([]byte(`{"data":[{"object":"embedding","index":0,"embedding":[0,0,2]}]}`))
			}))
			defer srv.Close()

			p := NewProvider("openai", "key", srv.URL+"/", "text-embedding-3-small", tt.dimensions)
			res, err := p.Generate(context.Background(), "mutex", "")
			require.NoError(t, err)
			assert.Equal(t, []float32{0, 0, 1}, res.Embedding.Values)
		})
	}
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{name: "empty data", status: http.StatusOK, body: `{"data":[]}`},
		{name: "error body", status: http.StatusOK, body: `{"error":{"message":"quota"}}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, transient: true},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewProvider("jina", "", srv.URL, "m", 0).Generate(context.Background(), "x", "")
			require.Error(t, err)
			assert.Equal(t, tt.transient, apperr.IsTransient(err))
		})
	}
}

func TestNewJinaProvider_Defaults(t *testing.T) {
	p := NewJinaProvider("k", "")
	assert.Equal(t, "jina", p.name)
	assert.Equal(t, JinaBaseURL, p.baseURL)
	assert.Equal(t, "jina-embeddings-v2-base-en", p.model)
	assert.Zero(t, p.dimensions)
}
