package service

import (
	"fmt"

	"physiosync-go/internal/model"
	"physiosync-go/internal/repository"
	"physiosync-go/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ResultService persists finished analyses and serves the therapist's
// read-side dashboard over them.
type ResultService struct {
	repo   repository.AnalysisRepository
	logger *logrus.Logger
}

// NewResultService creates a ResultService.
func NewResultService(repo repository.AnalysisRepository, logger *logrus.Logger) *ResultService {
	return &ResultService{
		repo:   repo,
		logger: logger,
	}
}

// AnalysisResponse is the read-side view of a saved analysis, with the
// per-axis columns reassembled into arrays.
type AnalysisResponse struct {
	ID            string            `json:"id"`
	PatientID     string            `json:"patient_id"`
	PatientName   string            `json:"patient_name"`
	TherapistID   string            `json:"therapist_id"`
	ExerciseName  string            `json:"exercise_name"`
	TemplateFile  string            `json:"template_file"`
	PatientFile   string            `json:"patient_file"`
	Score         float64           `json:"score"`
	GlobalRMSE    float64           `json:"global_rmse"`
	AxisRMSE      models.AxisValues `json:"axis_rmse"`
	ROMRatio      float64           `json:"rom_ratio"`
	ROMRatios     []float64         `json:"rom_ratios"`
	ROMAxisGrades []float64         `json:"rom_axis_grades"`
	AvgROMGrade   float64           `json:"avg_rom_grade"`
	ShapeGrade    float64           `json:"shape_grade"`
	ReportText    string            `json:"report_text"`
	PlotImageB64  string            `json:"plot_image_b64"`
	CreatedAt     string            `json:"created_at"`
}

// ListAnalysesResponse is a paginated list of saved analyses.
type ListAnalysesResponse struct {
	Analyses []AnalysisResponse `json:"analyses"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

// Save writes one analysis result keyed by patient and therapist identity.
func (s *ResultService) Save(therapistID string, cfg Configuration, result *models.AnalysisResult) (*model.Analysis, error) {
	s.logger.Infof("Saving analysis for patient %s, exercise %q", cfg.PatientID, cfg.ExerciseName)

	record := &model.Analysis{
		ID:           uuid.New().String(),
		PatientID:    cfg.PatientID,
		PatientName:  cfg.PatientName,
		TherapistID:  therapistID,
		ExerciseName: cfg.ExerciseName,
		TemplateFile: result.TemplateFile,
		PatientFile:  result.PatientFile,
		Score:        result.Score,
		GlobalRMSE:   result.GlobalRMSE,
		AxisRMSEX:    result.AxisRMSE.X,
		AxisRMSEY:    result.AxisRMSE.Y,
		AxisRMSEZ:    result.AxisRMSE.Z,
		ROMRatio:     result.ROMRatio,
		AvgROMGrade:  result.AvgROMGrade,
		ShapeGrade:   result.ShapeGrade,
		ReportText:   result.ReportText,
		PlotImageB64: result.PlotImageB64,
	}
	record.ROMRatioX, record.ROMRatioY, record.ROMRatioZ = axisTriple(result.ROMRatios)
	record.ROMGradeX, record.ROMGradeY, record.ROMGradeZ = axisTriple(result.ROMAxisGrades)

	if err := s.repo.Create(record); err != nil {
		s.logger.Errorf("Failed to save analysis: %v", err)
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	s.logger.Infof("Analysis %s saved for patient %s", record.ID, cfg.PatientID)
	return record, nil
}

// GetByID returns one saved analysis.
func (s *ResultService) GetByID(id string) (*AnalysisResponse, error) {
	record, err := s.repo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return s.modelToResponse(record), nil
}

// ListByPatient returns all saved analyses for one patient, newest first.
func (s *ResultService) ListByPatient(patientID string) ([]AnalysisResponse, error) {
	records, err := s.repo.ListByPatient(patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}

	responses := make([]AnalysisResponse, len(records))
	for i, record := range records {
		responses[i] = *s.modelToResponse(record)
	}
	return responses, nil
}

// List returns saved analyses with pagination.
func (s *ResultService) List(page, pageSize int) ([]AnalysisResponse, int64, error) {
	records, total, err := s.repo.List(page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}

	responses := make([]AnalysisResponse, len(records))
	for i, record := range records {
		responses[i] = *s.modelToResponse(record)
	}
	return responses, total, nil
}

// Delete removes one saved analysis.
func (s *ResultService) Delete(id string) error {
	if err := s.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	s.logger.Infof("Deleted analysis %s", id)
	return nil
}

// modelToResponse converts the stored record into the API view.
func (s *ResultService) modelToResponse(record *model.Analysis) *AnalysisResponse {
	return &AnalysisResponse{
		ID:           record.ID,
		PatientID:    record.PatientID,
		PatientName:  record.PatientName,
		TherapistID:  record.TherapistID,
		ExerciseName: record.ExerciseName,
		TemplateFile: record.TemplateFile,
		PatientFile:  record.PatientFile,
		Score:        record.Score,
		GlobalRMSE:   record.GlobalRMSE,
		AxisRMSE: models.AxisValues{
			X: record.AxisRMSEX,
			Y: record.AxisRMSEY,
			Z: record.AxisRMSEZ,
		},
		ROMRatio:      record.ROMRatio,
		ROMRatios:     []float64{record.ROMRatioX, record.ROMRatioY, record.ROMRatioZ},
		ROMAxisGrades: []float64{record.ROMGradeX, record.ROMGradeY, record.ROMGradeZ},
		AvgROMGrade:   record.AvgROMGrade,
		ShapeGrade:    record.ShapeGrade,
		ReportText:    record.ReportText,
		PlotImageB64:  record.PlotImageB64,
		CreatedAt:     record.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// axisTriple splits a per-axis slice into x, y, z values.
func axisTriple(values []float64) (x, y, z float64) {
	if len(values) > 0 {
		x = values[0]
	}
	if len(values) > 1 {
		y = values[1]
	}
	if len(values) > 2 {
		z = values[2]
	}
	return x, y, z
}
