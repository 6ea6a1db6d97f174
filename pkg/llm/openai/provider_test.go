package openai

import (
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/llm"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Chat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"answer"}}]}`))
	}))
	defer srv.Close()

	p := NewProvider("key", srv.URL, "gpt-4o-mini")
	out, err := p.Chat(context.Background(), []llm.Message{{Role: "user", Content: "q"}}, llm.WithJSON(), llm.WithTemperature(0.2))
	require.NoError(t, err)
	assert.Equal(t, "answer", out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 2048, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind apperr.Kind
	}{
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantKind: apperr.KindInternal},
		{name: "api error", status: http.StatusOK, body: `{"error":{"message":"bad"}}`, wantKind: apperr.KindInternal},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantKind: apperr.KindProviderTransient},
		{name: "forbidden", status: http.StatusForbidden, body: `{}`, wantKind: apperr.KindProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewProvider("", srv.URL, "m").Generate(context.Background(), "q")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}
