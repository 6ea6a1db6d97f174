package mapper

import (
	"time"

	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/model"
)

type UserProfileMapper struct{}

func NewUserProfileMapper() *UserProfileMapper {
	return &UserProfileMapper{}
}

func (m *UserProfileMapper) ToEntity(p *model.UserProfile) *entity.UserProfile {
	if p == nil {
		return nil
	}

	var updatedAt *time.Time
	if !p.UpdatedAt.IsZero() {
		t := p.UpdatedAt
		updatedAt = &t
	}

	return &entity.UserProfile{
		UserId:         p.UserId,
		Background:     p.Background,
		Interests:      p.Interests,
		LearningStyle:  p.LearningStyle,
		TechnicalLevel: p.TechnicalLevel,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      updatedAt,
	}
}

func (m *UserProfileMapper) ToModel(p *entity.UserProfile) *model.UserProfile {
	if p == nil {
		return nil
	}

	var updatedAt time.Time
	if p.UpdatedAt != nil {
		updatedAt = *p.UpdatedAt
	}

	return &model.UserProfile{
		UserId:         p.UserId,
		Background:     p.Background,
		Interests:      p.Interests,
		LearningStyle:  p.LearningStyle,
		TechnicalLevel: p.TechnicalLevel,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      updatedAt,
	}
}
