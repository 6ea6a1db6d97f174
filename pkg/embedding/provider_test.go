package embedding

import (
	"concept-digest-be/pkg/apperr"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, out[0], 1e-6)
	assert.InDelta(t, 0.8, out[1], 1e-6)

	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, Normalize(zero))
}

func TestOllamaProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var body ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nomic-embed-text", body.Model)
		assert.Equal(t, "goroutine scheduling", body.Prompt)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[1.0, 2.0, 2.0]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "")
	res, err := p.Generate(context.Background(), "goroutine scheduling", TaskRetrievalDocument)
	require.NoError(t, err)
	require.Len(t, res.Embedding.Values, 3)
	assert.InDelta(t, 1.0, magnitude(res.Embedding.Values), 1e-6)
	assert.InDelta(t, 1.0/3.0, res.Embedding.Values[0], 1e-6)
}

func TestOllamaProvider_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"server unavailable", http.StatusServiceUnavailable, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"model missing", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := NewOllamaProvider(srv.URL, "m").Generate(context.Background(), "x", "")
			require.Error(t, err)

			var pe *apperr.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.transient, apperr.IsTransient(err))
		})
	}
}

func TestOllamaProvider_TransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOllamaProvider(url, "m").Generate(context.Background(), "x", "")
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
	assert.Equal(t, apperr.KindProviderTransient, apperr.KindOf(err))
}

func TestGeminiProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/text-embedding-004:embedContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var body EmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, TaskRetrievalQuery, body.TaskType)
		require.Len(t, body.Content.Parts, 1)
		assert.Equal(t, "channels", body.Content.Parts[0].Text)

		_, _ = w.Write([]byte(`{"embedding":{"values":[0, 5, 0]}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("secret")
	p.BaseURL = srv.URL

	res, err := p.Generate(context.Background(), "channels", TaskRetrievalQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, res.Embedding.Values)
}

func TestGeminiProvider_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewGeminiProvider("k")
	p.BaseURL = srv.URL

	_, err := p.Generate(context.Background(), "x", "")
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}
