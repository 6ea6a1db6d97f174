package mapper

import (
	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/model"

	"github.com/pgvector/pgvector-go"
)

type ConceptMapper struct{}

func NewConceptMapper() *ConceptMapper {
	return &ConceptMapper{}
}

func (m *ConceptMapper) ToEntity(c *model.Concept) *entity.Concept {
	if c == nil {
		return nil
	}

	return &entity.Concept{
		Id:          c.Id,
		UserId:      c.UserId,
		Name:        c.Name,
		Domain:      c.Domain,
		Embedding:   c.Embedding.Slice(),
		Explanation: c.Explanation,
		Analogy:     c.Analogy,
		Source:      c.Source,
		SourceUrl:   c.SourceUrl,
		RunId:       c.RunId,
		LearnedDate: c.LearnedDate,
		CreatedAt:   c.CreatedAt,
	}
}

func (m *ConceptMapper) ToModel(c *entity.Concept) *model.Concept {
	if c == nil {
		return nil
	}

	return &model.Concept{
		Id:          c.Id,
		UserId:      c.UserId,
		Name:        c.Name,
		Domain:      c.Domain,
		Embedding:   pgvector.NewVector(c.Embedding),
		Explanation: c.Explanation,
		Analogy:     c.Analogy,
		Source:      c.Source,
		SourceUrl:   c.SourceUrl,
		RunId:       c.RunId,
		LearnedDate: c.LearnedDate,
		CreatedAt:   c.CreatedAt,
	}
}

func (m *ConceptMapper) ToEntities(concepts []*model.Concept) []*entity.Concept {
	entities := make([]*entity.Concept, len(concepts))
	for i, c := range concepts {
		entities[i] = m.ToEntity(c)
	}
	return entities
}

func (m *ConceptMapper) ToModels(concepts []*entity.Concept) []*model.Concept {
	models := make([]*model.Concept, len(concepts))
	for i, c := range concepts {
		models[i] = m.ToModel(c)
	}
	return models
}
