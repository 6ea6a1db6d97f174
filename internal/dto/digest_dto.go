package dto

import (
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/digest/pipeline"

	"github.com/google/uuid"
)

// DigestRequest carries either the article text or a URL to fetch it from.
type DigestRequest struct {
	Title      string  `json:"title" validate:"max=300"`
	Text       string  `json:"text" validate:"required_without=URL"`
	URL        string  `json:"url" validate:"omitempty,url"`
	SourceType string  `json:"source_type" validate:"omitempty,oneof=text html pdf markdown"`
	Threshold  float64 `json:"threshold" validate:"omitempty,gt=0,lte=1"`
}

type DigestResponse struct {
	RunId       uuid.UUID             `json:"run_id"`
	Title       string                `json:"title"`
	SourceURL   string                `json:"source_url,omitempty"`
	Sections    []digest.Section      `json:"sections"`
	Concepts    []digest.Concept      `json:"concepts"`
	Questions   []digest.Question     `json:"questions"`
	Dropped     []digest.Dropped      `json:"dropped"`
	Stats       pipeline.RunStats     `json:"stats"`
	Transitions []pipeline.Transition `json:"transitions"`
}

func NewDigestResponse(res *pipeline.Result) *DigestResponse {
	return &DigestResponse{
		RunId:       res.RunId,
		Title:       res.Title,
		SourceURL:   res.SourceURL,
		Sections:    nonNil(res.Sections),
		Concepts:    nonNil(res.Concepts),
		Questions:   nonNil(res.Questions),
		Dropped:     nonNil(res.Dropped),
		Stats:       res.Stats,
		Transitions: res.Transitions,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// DigestCompletedMessage is what the digest service puts on the in-process
// bus after a successful run.
type DigestCompletedMessage struct {
	RunId       uuid.UUID `json:"run_id"`
	UserId      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	SourceURL   string    `json:"source_url"`
	New         int       `json:"new"`
	Known       int       `json:"known"`
	NewConcepts []string  `json:"new_concepts"`
}
