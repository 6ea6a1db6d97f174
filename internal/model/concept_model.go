package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type Concept struct {
	Id          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId      uuid.UUID       `gorm:"type:uuid;not null;index:idx_concepts_user_domain,priority:1"`
	Domain      string          `gorm:"type:varchar(128);not null;index:idx_concepts_user_domain,priority:2"`
	Name        string          `gorm:"type:varchar(255);not null"`
	Embedding   pgvector.Vector `gorm:"type:vector(768)"`
	Explanation string          `gorm:"type:text"`
	Analogy     string          `gorm:"type:text"`
	Source      string          `gorm:"type:varchar(512)"`
	SourceUrl   string          `gorm:"type:text"`
	RunId       uuid.UUID       `gorm:"type:uuid;index"`
	LearnedDate time.Time       `gorm:"not null;index"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
}

func (Concept) TableName() string {
	return "concepts"
}
