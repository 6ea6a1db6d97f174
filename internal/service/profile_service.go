package service

import (
	"context"
	"strings"
	"time"

	"concept-digest-be/internal/dto"
	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/repository/contract"
	"concept-digest-be/pkg/apperr"

	"github.com/google/uuid"
)

type IProfileService interface {
	Get(ctx context.Context, userId uuid.UUID) (*dto.ProfileResponse, error)
	Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateProfileRequest) (*dto.ProfileResponse, error)
	// Profile is read by the pipeline; it fails with KindProfileMissing
	// when the user never saved one.
	Profile(ctx context.Context, userId uuid.UUID) (*entity.UserProfile, error)
}

type profileService struct {
	repo contract.UserProfileRepository
}

func NewProfileService(repo contract.UserProfileRepository) IProfileService {
	return &profileService{repo: repo}
}

func (s *profileService) Profile(ctx context.Context, userId uuid.UUID) (*entity.UserProfile, error) {
	profile, err := s.repo.FindByUserId(ctx, userId)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperr.ProfileMissing("user " + userId.String() + " has no profile")
	}
	return profile, nil
}

func (s *profileService) Get(ctx context.Context, userId uuid.UUID) (*dto.ProfileResponse, error) {
	profile, err := s.repo.FindByUserId(ctx, userId)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		res := toProfileResponse(entity.GenericProfile(userId))
		res.IsDefault = true
		return res, nil
	}
	return toProfileResponse(profile), nil
}

func (s *profileService) Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateProfileRequest) (*dto.ProfileResponse, error) {
	now := time.Now()
	profile := &entity.UserProfile{
		UserId:         userId,
		Background:     strings.TrimSpace(req.Background),
		Interests:      strings.TrimSpace(req.Interests),
		LearningStyle:  strings.TrimSpace(req.LearningStyle),
		TechnicalLevel: req.TechnicalLevel,
		CreatedAt:      now,
		UpdatedAt:      &now,
	}
	if err := s.repo.Upsert(ctx, profile); err != nil {
		return nil, err
	}
	return s.Get(ctx, userId)
}

func toProfileResponse(p *entity.UserProfile) *dto.ProfileResponse {
	res := &dto.ProfileResponse{
		Background:     p.Background,
		Interests:      p.Interests,
		LearningStyle:  p.LearningStyle,
		TechnicalLevel: p.TechnicalLevel,
		UpdatedAt:      p.UpdatedAt,
	}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt
		res.CreatedAt = &created
	}
	return res
}
