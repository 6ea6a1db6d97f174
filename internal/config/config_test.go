package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{name: "empty", raw: "", want: map[string]string{}},
		{name: "pairs", raw: "ml:machine learning, db : databases", want: map[string]string{"ml": "machine learning", "db": "databases"}},
		{name: "malformed entries skipped", raw: "ml,:x,y:,cs:computer science", want: map[string]string{"cs": "computer science"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAliases(tt.raw))
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SIMILARITY_THRESHOLD", "")
	t.Setenv("RUN_TIMEOUT", "")
	t.Setenv("EMBEDDING_DIMENSION", "")
	t.Setenv("STORE_MAX_STALENESS", "")

	cfg := Load()
	assert.Equal(t, 0.6, cfg.Pipeline.SimilarityThreshold)
	assert.Equal(t, 3*time.Minute, cfg.Pipeline.RunTimeout)
	assert.Equal(t, 768, cfg.Store.EmbeddingDimension)
	assert.Equal(t, 5*time.Second, cfg.Store.MaxStaleness)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SIMILARITY_THRESHOLD", "0.75")
	t.Setenv("MAX_CONCEPTS", "8")
	t.Setenv("RUN_TIMEOUT", "45s")
	t.Setenv("PROVIDER_MAX_TRIES", "not-a-number")
	t.Setenv("DOMAIN_ALIASES", "ai:machine learning")
	t.Setenv("STORE_MAX_STALENESS", "2s")

	cfg := Load()
	assert.Equal(t, 0.75, cfg.Pipeline.SimilarityThreshold)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcepts)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.RunTimeout)
	assert.Equal(t, uint(4), cfg.Retry.MaxTries)
	assert.Equal(t, "machine learning", cfg.Pipeline.DomainAliases["ai"])
	assert.Equal(t, 2*time.Second, cfg.Store.MaxStaleness)
}
