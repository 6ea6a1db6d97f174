package unitofwork

import (
	"context"

	"concept-digest-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ConceptRepository() contract.ConceptRepository
	UserProfileRepository() contract.UserProfileRepository
}
