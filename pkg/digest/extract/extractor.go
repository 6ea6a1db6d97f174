package extract

import (
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/digest/prompt"
	"concept-digest-be/pkg/llm"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Config struct {
	MinSections     int
	MaxSections     int
	MaxConcepts     int
	MaxArticleChars int
}

type Result struct {
	Sections   []digest.Section
	Candidates []digest.Candidate
	Dropped    []digest.Dropped
	Truncated  bool
}

type Extractor struct {
	llm        llm.LLMProvider
	normalizer *digest.DomainNormalizer
	cfg        Config
	logger     logger.ILogger
}

func New(provider llm.LLMProvider, normalizer *digest.DomainNormalizer, cfg Config, log logger.ILogger) *Extractor {
	if cfg.MinSections <= 0 {
		cfg.MinSections = 3
	}
	if cfg.MaxSections < cfg.MinSections {
		cfg.MaxSections = cfg.MinSections
	}
	if cfg.MaxConcepts <= 0 {
		cfg.MaxConcepts = 5
	}
	return &Extractor{llm: provider, normalizer: normalizer, cfg: cfg, logger: log}
}

// Extract asks the generation service for sections and candidate concepts.
// Malformed entries are dropped; the call only fails when the provider
// fails or nothing at all can be parsed.
func (e *Extractor) Extract(ctx context.Context, text string) (*Result, error) {
	body, truncated := Truncate(text, e.cfg.MaxArticleChars)
	if truncated {
		e.logger.Warn("EXTRACTOR", "Article truncated before prompting", map[string]interface{}{
			"original_chars": len(text),
			"kept_chars":     len(body),
		})
	}

	msgs := prompt.ExtractionBuilder{
		Text:        body,
		MinSections: e.cfg.MinSections,
		MaxSections: e.cfg.MaxSections,
		MaxConcepts: e.cfg.MaxConcepts,
	}.Messages()

	response, err := e.llm.Chat(ctx, msgs, llm.WithJSON(), llm.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	res := e.Parse(response)
	res.Truncated = truncated
	if len(res.Sections) == 0 && len(res.Candidates) == 0 {
		return nil, apperr.Extraction("model response contained no sections or concepts", nil)
	}

	e.logger.Info("EXTRACTOR", "Extraction parsed", map[string]interface{}{
		"sections":   len(res.Sections),
		"candidates": len(res.Candidates),
		"dropped":    len(res.Dropped),
	})
	return res, nil
}

type envelope struct {
	Sections []json.RawMessage `json:"sections"`
	Concepts []json.RawMessage `json:"concepts"`
}

// Parse turns a raw model response into typed output. It prefers the JSON
// contract and falls back to "- Name | Domain | explanation" lines.
func (e *Extractor) Parse(response string) *Result {
	res := &Result{}

	var env envelope
	raw := prompt.ExtractJSON(response)
	if raw != "" && json.Unmarshal([]byte(raw), &env) == nil && (len(env.Sections) > 0 || len(env.Concepts) > 0) {
		e.parseEnvelope(env, res)
	} else {
		if raw != "" {
			e.logger.Warn("EXTRACTOR", "JSON contract not honoured, using line format", nil)
		}
		e.parseLines(response, res)
	}

	res.Candidates = e.merge(res.Candidates)
	if len(res.Candidates) > e.cfg.MaxConcepts {
		res.Candidates = res.Candidates[:e.cfg.MaxConcepts]
	}
	if len(res.Sections) > e.cfg.MaxSections {
		res.Sections = res.Sections[:e.cfg.MaxSections]
	}
	return res
}

func (e *Extractor) parseEnvelope(env envelope, res *Result) {
	for i, rawSection := range env.Sections {
		var s digest.Section
		if err := json.Unmarshal(rawSection, &s); err != nil {
			e.logger.Warn("EXTRACTOR", "Dropping malformed section", map[string]interface{}{"index": i, "error": err.Error()})
			continue
		}
		if section, ok := cleanSection(s, len(res.Sections)+1); ok {
			res.Sections = append(res.Sections, section)
		}
	}

	for i, rawConcept := range env.Concepts {
		var c digest.Candidate
		if err := json.Unmarshal(rawConcept, &c); err != nil {
			e.logger.Warn("EXTRACTOR", "Dropping malformed concept", map[string]interface{}{"index": i, "error": err.Error()})
			res.Dropped = append(res.Dropped, digest.Dropped{Reason: digest.ReasonUnparseable, Detail: err.Error()})
			continue
		}
		e.addCandidate(c, res)
	}
}

func (e *Extractor) parseLines(response string, res *Result) {
	var current *digest.Section
	flush := func() {
		if current == nil {
			return
		}
		if section, ok := cleanSection(*current, len(res.Sections)+1); ok {
			res.Sections = append(res.Sections, section)
		}
		current = nil
	}

	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			flush()
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if idx := strings.Index(title, ":"); idx != -1 && strings.HasPrefix(strings.ToLower(title), "section") {
				title = strings.TrimSpace(title[idx+1:])
			}
			current = &digest.Section{Title: title}
		case strings.Contains(trimmed, "|"):
			flush()
			parts := strings.Split(strings.TrimLeft(trimmed, "-*• "), "|")
			if len(parts) < 2 {
				continue
			}
			c := digest.Candidate{
				Name:   parts[0],
				Domain: parts[1],
			}
			if len(parts) > 2 {
				c.Explanation = strings.Join(parts[2:], "|")
			}
			e.addCandidate(c, res)
		case trimmed != "" && current != nil:
			if current.Summary != "" {
				current.Summary += " "
			}
			current.Summary += trimmed
		}
	}
	flush()
}

func (e *Extractor) addCandidate(c digest.Candidate, res *Result) {
	c.Name = strings.Trim(strings.TrimSpace(c.Name), "*`\"")
	c.Explanation = strings.TrimSpace(c.Explanation)
	c.Domain = e.normalizer.Normalize(c.Domain)
	if c.Name == "" {
		res.Dropped = append(res.Dropped, digest.Dropped{Domain: c.Domain, Reason: digest.ReasonUnparseable, Detail: "blank name"})
		return
	}
	if c.Explanation == "" {
		c.Explanation = c.Name
	}
	res.Candidates = append(res.Candidates, c)
}

// merge collapses repeats of the same name within a domain, keeping the
// first occurrence and the longest explanation.
func (e *Extractor) merge(candidates []digest.Candidate) []digest.Candidate {
	seen := make(map[string]int, len(candidates))
	out := make([]digest.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := c.Domain + "\x00" + strings.ToLower(c.Name)
		if idx, ok := seen[key]; ok {
			if len(c.Explanation) > len(out[idx].Explanation) {
				out[idx].Explanation = c.Explanation
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, c)
	}
	return out
}

func cleanSection(s digest.Section, position int) (digest.Section, bool) {
	s.Title = strings.TrimSpace(s.Title)
	s.Summary = strings.TrimSpace(s.Summary)
	if s.Title == "" && s.Summary == "" {
		return s, false
	}
	if s.Title == "" {
		s.Title = fmt.Sprintf("Section %d", position)
	}
	return s, true
}

// Truncate cuts text to at most limit bytes, backing off to the last
// whitespace so no word is split. limit <= 0 disables truncation.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || len(text) <= limit {
		return text, false
	}
	end := limit
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	cut := text[:end]
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace), true
}
