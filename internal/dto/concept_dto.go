package dto

import (
	"time"

	"github.com/google/uuid"
)

type ConceptResponse struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Domain      string    `json:"domain"`
	Explanation string    `json:"explanation"`
	Analogy     string    `json:"analogy"`
	Source      string    `json:"source"`
	SourceUrl   string    `json:"source_url,omitempty"`
	LearnedDate time.Time `json:"learned_date"`
}

type ConceptSearchRequest struct {
	Query  string `query:"q" validate:"required,min=2"`
	Domain string `query:"domain"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=50"`
}

type ConceptSearchResponse struct {
	ConceptResponse
	Score float64 `json:"score"`
}

type DomainCountResponse struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

type ConceptStatsResponse struct {
	TotalConcepts  int                   `json:"total_concepts"`
	TotalArticles  int                   `json:"total_articles"`
	RecentConcepts []string              `json:"recent_concepts"`
	Domains        []DomainCountResponse `json:"domains"`
}
