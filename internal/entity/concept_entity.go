package entity

import (
	"time"

	"github.com/google/uuid"
)

// Concept is one committed unit of knowledge in a user's store. Embedding
// never changes after commit.
type Concept struct {
	Id          uuid.UUID
	UserId      uuid.UUID
	Name        string
	Domain      string
	Embedding   []float32
	Explanation string
	Analogy     string
	Source      string
	SourceUrl   string
	RunId       uuid.UUID
	LearnedDate time.Time
	CreatedAt   time.Time
}

// Clone returns a deep copy, embedding included.
func (c *Concept) Clone() *Concept {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Embedding != nil {
		cp.Embedding = make([]float32, len(c.Embedding))
		copy(cp.Embedding, c.Embedding)
	}
	return &cp
}
