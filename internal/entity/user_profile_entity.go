package entity

import (
	"time"

	"github.com/google/uuid"
)

type UserProfile struct {
	UserId         uuid.UUID
	Background     string
	Interests      string
	LearningStyle  string
	TechnicalLevel string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// GenericProfile stands in when a user has never saved a profile.
func GenericProfile(userId uuid.UUID) *UserProfile {
	return &UserProfile{
		UserId:         userId,
		Background:     "a curious general reader",
		Interests:      "everyday life, technology, how things work",
		LearningStyle:  "concrete examples",
		TechnicalLevel: "intermediate",
	}
}
