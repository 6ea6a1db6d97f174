package personalize

import (
	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/digest/prompt"
	"concept-digest-be/pkg/llm"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"
)

type Personalizer struct {
	llm         llm.LLMProvider
	concurrency int
	logger      logger.ILogger
}

func New(provider llm.LLMProvider, concurrency int, log logger.ILogger) *Personalizer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Personalizer{llm: provider, concurrency: concurrency, logger: log}
}

// Run writes an analogy onto every new concept. Known concepts pass
// through untouched. A failed concept keeps an empty analogy and is
// flagged AnalogyMissing; only cancellation fails the stage.
func (p *Personalizer) Run(ctx context.Context, profile *entity.UserProfile, concepts []digest.Concept) ([]digest.Concept, error) {
	out := make([]digest.Concept, len(concepts))
	copy(out, concepts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range out {
		if out[i].Status != digest.StatusNew {
			continue
		}
		g.Go(func() error {
			analogy, err := p.analogy(gctx, profile, out[i])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Warn("PERSONALIZE", "Analogy generation failed", map[string]interface{}{
					"concept": out[i].Name,
					"error":   err.Error(),
				})
				out[i].Analogy = ""
				out[i].AnalogyMissing = true
				return nil
			}
			out[i].Analogy = analogy
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var errEmptyAnalogy = errors.New("model returned no analogy")

type analogyResponse struct {
	Analogy string `json:"analogy"`
}

func (p *Personalizer) analogy(ctx context.Context, profile *entity.UserProfile, c digest.Concept) (string, error) {
	msgs := prompt.PersonalizationBuilder{Concept: c, Profile: profile}.Messages()
	response, err := p.llm.Chat(ctx, msgs, llm.WithJSON(), llm.WithTemperature(0.7))
	if err != nil {
		return "", err
	}
	return ParseAnalogy(response)
}

// ParseAnalogy accepts {"analogy": "..."} or, failing that, plain prose.
func ParseAnalogy(response string) (string, error) {
	if raw := prompt.ExtractJSON(response); raw != "" {
		var parsed analogyResponse
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			if a := strings.TrimSpace(parsed.Analogy); a != "" {
				return a, nil
			}
			return "", errEmptyAnalogy
		}
	}
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(response), "Analogy:"))
	if text == "" {
		return "", errEmptyAnalogy
	}
	return text, nil
}
