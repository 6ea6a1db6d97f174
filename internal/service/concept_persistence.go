package service

import (
	"context"
	"fmt"

	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/repository/specification"
	"concept-digest-be/internal/repository/unitofwork"
	"concept-digest-be/pkg/conceptstore"

	"github.com/google/uuid"
)

// conceptPersistence backs the in-memory concept store with Postgres.
type conceptPersistence struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewConceptPersistence(uowFactory unitofwork.RepositoryFactory) conceptstore.Persistence {
	return &conceptPersistence{uowFactory: uowFactory}
}

func (p *conceptPersistence) LoadConcepts(ctx context.Context, userId uuid.UUID) ([]*entity.Concept, error) {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	concepts, err := uow.ConceptRepository().FindAll(ctx,
		specification.ByUserID{UserID: userId},
		specification.OrderBy{Field: "learned_date"},
	)
	if err != nil {
		return nil, fmt.Errorf("load concepts for user %s: %w", userId, err)
	}
	return concepts, nil
}

// InsertConcepts writes the whole batch in one transaction.
func (p *conceptPersistence) InsertConcepts(ctx context.Context, userId uuid.UUID, concepts []*entity.Concept) error {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer uow.Rollback()

	for _, c := range concepts {
		if c.UserId != userId {
			return fmt.Errorf("concept %s belongs to another user", c.Id)
		}
	}

	if err := uow.ConceptRepository().CreateBulk(ctx, concepts); err != nil {
		return fmt.Errorf("insert concepts: %w", err)
	}
	return uow.Commit()
}
