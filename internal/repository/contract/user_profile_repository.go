package contract

import (
	"context"

	"concept-digest-be/internal/entity"

	"github.com/google/uuid"
)

type UserProfileRepository interface {
	// FindByUserId returns nil, nil when the user has no profile.
	FindByUserId(ctx context.Context, userId uuid.UUID) (*entity.UserProfile, error)
	Upsert(ctx context.Context, profile *entity.UserProfile) error
}
