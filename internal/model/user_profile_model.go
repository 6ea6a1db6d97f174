package model

import (
	"time"

	"github.com/google/uuid"
)

type UserProfile struct {
	UserId         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Background     string    `gorm:"type:text"`
	Interests      string    `gorm:"type:text"`
	LearningStyle  string    `gorm:"type:varchar(64)"`
	TechnicalLevel string    `gorm:"type:varchar(64)"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}
