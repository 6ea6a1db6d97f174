package dto

import "time"

type UpdateProfileRequest struct {
	Background     string `json:"background" validate:"required,max=2000"`
	Interests      string `json:"interests" validate:"max=2000"`
	LearningStyle  string `json:"learning_style" validate:"max=200"`
	TechnicalLevel string `json:"technical_level" validate:"omitempty,oneof=beginner intermediate advanced expert"`
}

type ProfileResponse struct {
	Background     string     `json:"background"`
	Interests      string     `json:"interests"`
	LearningStyle  string     `json:"learning_style"`
	TechnicalLevel string     `json:"technical_level"`
	IsDefault      bool       `json:"is_default"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}
