package memory

import (
	"context"
	"time"

	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// UserProfileRepository keeps profiles in process memory. Used when the
// service runs without a database.
type UserProfileRepository struct {
	cache *cache.Cache
}

var _ contract.UserProfileRepository = (*UserProfileRepository)(nil)

func NewUserProfileRepository() *UserProfileRepository {
	return &UserProfileRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (r *UserProfileRepository) FindByUserId(ctx context.Context, userId uuid.UUID) (*entity.UserProfile, error) {
	if x, found := r.cache.Get(userId.String()); found {
		cp := *x.(*entity.UserProfile)
		return &cp, nil
	}
	return nil, nil
}

func (r *UserProfileRepository) Upsert(ctx context.Context, profile *entity.UserProfile) error {
	now := time.Now()
	stored := *profile
	if existing, found := r.cache.Get(profile.UserId.String()); found {
		stored.CreatedAt = existing.(*entity.UserProfile).CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = &now
	r.cache.Set(profile.UserId.String(), &stored, cache.NoExpiration)
	*profile = stored
	return nil
}
