package question

import (
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/digest/prompt"
	"concept-digest-be/pkg/llm"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var numbered = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•]|Q\d+[:.])\s*(.+)$`)

type Generator struct {
	llm    llm.LLMProvider
	count  int
	logger logger.ILogger
}

func New(provider llm.LLMProvider, count int, log logger.ILogger) *Generator {
	if count <= 0 {
		count = 5
	}
	return &Generator{llm: provider, count: count, logger: log}
}

// Generate produces recall questions from the run's sections and concepts.
// It never touches the concept store.
func (g *Generator) Generate(ctx context.Context, sections []digest.Section, concepts []digest.Concept) ([]digest.Question, error) {
	msgs := prompt.QuestionBuilder{Sections: sections, Concepts: concepts, Count: g.count}.Messages()
	response, err := g.llm.Chat(ctx, msgs, llm.WithJSON(), llm.WithTemperature(0.3))
	if err != nil {
		return nil, fmt.Errorf("question call: %w", err)
	}

	questions := Parse(response, g.count)
	if len(questions) == 0 {
		g.logger.Warn("QUESTION", "Model response contained no questions", map[string]interface{}{
			"response_chars": len(response),
		})
		return []digest.Question{}, nil
	}

	g.logger.Info("QUESTION", "Questions generated", map[string]interface{}{
		"count": len(questions),
	})
	return questions, nil
}

type questionEnvelope struct {
	Questions []json.RawMessage `json:"questions"`
}

// Parse reads {"questions":[...]} where each entry is an object or a bare
// string, falling back to a numbered or bulleted list and then to any
// line ending in a question mark. At most limit questions are returned.
func Parse(response string, limit int) []digest.Question {
	var out []digest.Question

	var env questionEnvelope
	if raw := prompt.ExtractJSON(response); raw != "" && json.Unmarshal([]byte(raw), &env) == nil && len(env.Questions) > 0 {
		for _, item := range env.Questions {
			var q digest.Question
			if err := json.Unmarshal(item, &q); err != nil {
				var text string
				if json.Unmarshal(item, &text) != nil {
					continue
				}
				q.Question = text
			}
			q.Question = strings.TrimSpace(q.Question)
			q.Concept = strings.TrimSpace(q.Concept)
			if q.Question != "" {
				out = append(out, q)
			}
		}
	} else {
		for _, line := range strings.Split(response, "\n") {
			m := numbered.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			text := strings.TrimSpace(strings.Trim(m[1], "*"))
			if text != "" {
				out = append(out, digest.Question{Question: text})
			}
		}
		if len(out) == 0 {
			for _, line := range strings.Split(response, "\n") {
				if text := strings.TrimSpace(line); strings.HasSuffix(text, "?") {
					out = append(out, digest.Question{Question: text})
				}
			}
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
