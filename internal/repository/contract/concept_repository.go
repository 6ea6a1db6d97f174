package contract

import (
	"context"

	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/repository/specification"
)

type ConceptRepository interface {
	CreateBulk(ctx context.Context, concepts []*entity.Concept) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Concept, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
