// Package digest holds the types shared by the pipeline stages.
package digest

import (
	"github.com/google/uuid"
)

type Status string

const (
	StatusNew   Status = "new"
	StatusKnown Status = "known"
)

// Reasons a candidate leaves a run without being reported as a concept.
const (
	ReasonUnparseable     = "unparseable"
	ReasonEmbeddingFailed = "embedding_failed"
	ReasonDuplicateInRun  = "duplicate_in_run"
)

type Section struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Candidate is a concept as the extractor proposed it, before dedup.
type Candidate struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Explanation string `json:"explanation"`
}

// CanonicalText is the string whose embedding identifies the concept.
func (c Candidate) CanonicalText() string {
	return c.Name + ": " + c.Explanation
}

// Concept is a candidate after dedup. For known concepts Id, Explanation
// and Analogy come from the stored match; for new ones Id is set on commit.
type Concept struct {
	Id             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Domain         string    `json:"domain"`
	Explanation    string    `json:"explanation"`
	Analogy        string    `json:"analogy"`
	Status         Status    `json:"status"`
	Similarity     float64   `json:"similarity"`
	MatchedName    string    `json:"matched_name,omitempty"`
	RelatedTo      string    `json:"related_to,omitempty"`
	AnalogyMissing bool      `json:"analogy_missing,omitempty"`
	Embedding      []float32 `json:"-"`
}

type Question struct {
	Question string `json:"question"`
	Concept  string `json:"concept,omitempty"`
}

type Dropped struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}
