package repository

import (
	"errors"
	"fmt"

	"physiosync-go/internal/model"

	"gorm.io/gorm"
)

// AnalysisRepository is the data-access contract for saved analyses.
type AnalysisRepository interface {
	Create(analysis *model.Analysis) error
	GetByID(id string) (*model.Analysis, error)
	ListByPatient(patientID string) ([]*model.Analysis, error)
	List(page, pageSize int) ([]*model.Analysis, int64, error)
	Delete(id string) error
}

// analysisRepository is the gorm implementation of AnalysisRepository.
type analysisRepository struct {
	db *gorm.DB
}

// NewAnalysisRepository creates a gorm-backed AnalysisRepository.
func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{
		db: db,
	}
}

// Create inserts a new analysis record.
func (r *analysisRepository) Create(analysis *model.Analysis) error {
	if err := r.db.Create(analysis).Error; err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

// GetByID returns the analysis with the given ID.
func (r *analysisRepository) GetByID(id string) (*model.Analysis, error) {
	var analysis model.Analysis
	err := r.db.Where("id = ?", id).First(&analysis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("analysis with id %s not found", id)
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return &analysis, nil
}

// ListByPatient returns all analyses for one patient, newest first.
func (r *analysisRepository) ListByPatient(patientID string) ([]*model.Analysis, error) {
	var analyses []*model.Analysis
	err := r.db.Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses for patient %s: %w", patientID, err)
	}
	return analyses, nil
}

// List returns analyses with pagination, newest first.
func (r *analysisRepository) List(page, pageSize int) ([]*model.Analysis, int64, error) {
	var analyses []*model.Analysis
	var total int64

	if err := r.db.Model(&model.Analysis{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	offset := (page - 1) * pageSize
	err := r.db.Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&analyses).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}

	return analyses, total, nil
}

// Delete removes the analysis with the given ID.
func (r *analysisRepository) Delete(id string) error {
	result := r.db.Where("id = ?", id).Delete(&model.Analysis{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete analysis: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("analysis with id %s not found", id)
	}
	return nil
}
