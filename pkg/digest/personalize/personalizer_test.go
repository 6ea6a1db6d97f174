package personalize

import (
	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/llm"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM answers based on the concept name found in the prompt.
type scriptedLLM struct {
	mu      sync.Mutex
	answers map[string]string
	fail    map[string]error
	calls   int
}

func (s *scriptedLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	body := history[len(history)-1].Content
	for name, err := range s.fail {
		if strings.Contains(body, `name="`+name+`"`) {
			return "", err
		}
	}
	for name, answer := range s.answers {
		if strings.Contains(body, `name="`+name+`"`) {
			return answer, nil
		}
	}
	return `{"analogy":"generic"}`, nil
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return s.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func TestPersonalizer_Run(t *testing.T) {
	stub := &scriptedLLM{
		answers: map[string]string{
			"Columnar storage": `{"analogy":"Like sorting your pantry by ingredient instead of by recipe."}`,
			"Vectorization":    "Analogy: Like a chef chopping ten onions at once.",
		},
		fail: map[string]error{"Compaction": errors.New("boom")},
	}
	p := New(stub, 2, logger.NewNopLogger())

	in := []digest.Concept{
		{Name: "B-tree", Status: digest.StatusKnown, Analogy: "stored analogy"},
		{Name: "Columnar storage", Status: digest.StatusNew},
		{Name: "Compaction", Status: digest.StatusNew},
		{Name: "Vectorization", Status: digest.StatusNew},
	}
	out, err := p.Run(context.Background(), entity.GenericProfile(uuid.New()), in)
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, "stored analogy", out[0].Analogy)
	assert.Equal(t, "Like sorting your pantry by ingredient instead of by recipe.", out[1].Analogy)
	assert.True(t, out[2].AnalogyMissing)
	assert.Empty(t, out[2].Analogy)
	assert.Equal(t, "Like a chef chopping ten onions at once.", out[3].Analogy)
	assert.Equal(t, 3, stub.calls, "known concepts are not personalized")
	assert.Empty(t, in[1].Analogy, "input must not be mutated")
}

func TestPersonalizer_CancellationFailsStage(t *testing.T) {
	stub := &scriptedLLM{fail: map[string]error{"A": context.Canceled}}
	p := New(stub, 1, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, entity.GenericProfile(uuid.New()), []digest.Concept{{Name: "A", Status: digest.StatusNew}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseAnalogy(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{"json", `{"analogy":" A "}`, "A", false},
		{"fenced json", "```json\n{\"analogy\":\"B\"}\n```", "B", false},
		{"prose", "Think of it like a relay race.", "Think of it like a relay race.", false},
		{"empty json", `{"analogy":""}`, "", true},
		{"blank", "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalogy(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
