package implementation

import (
	"context"

	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/mapper"
	"concept-digest-be/internal/model"
	"concept-digest-be/internal/repository/contract"
	"concept-digest-be/internal/repository/specification"

	"gorm.io/gorm"
)

type ConceptRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConceptMapper
}

func NewConceptRepository(db *gorm.DB) contract.ConceptRepository {
	return &ConceptRepositoryImpl{
		db:     db,
		mapper: mapper.NewConceptMapper(),
	}
}

func (r *ConceptRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ConceptRepositoryImpl) CreateBulk(ctx context.Context, concepts []*entity.Concept) error {
	if len(concepts) == 0 {
		return nil
	}
	models := r.mapper.ToModels(concepts)

	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}

	// Update IDs back to entities
	for i, m := range models {
		*concepts[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

func (r *ConceptRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Concept, error) {
	var models []*model.Concept
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ConceptRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	err := query.Model(&model.Concept{}).Count(&count).Error
	return count, err
}
