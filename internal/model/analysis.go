package model

import (
	"time"

	"gorm.io/gorm"
)

// Analysis is one saved motion-assessment result, keyed by patient and
// therapist identity. The store is append-only from the workflow's side;
// no dedup key is enforced here.
type Analysis struct {
	ID           string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PatientID    string `gorm:"type:varchar(64);not null;index" json:"patient_id"`
	PatientName  string `gorm:"type:varchar(255)" json:"patient_name"`
	TherapistID  string `gorm:"type:varchar(64);not null;index" json:"therapist_id"`
	ExerciseName string `gorm:"type:varchar(255);not null" json:"exercise_name"`
	TemplateFile string `gorm:"type:varchar(255);not null" json:"template_file"`
	PatientFile  string `gorm:"type:varchar(255);not null" json:"patient_file"`

	// Comparison metrics
	Score       float64 `gorm:"not null" json:"score"`
	GlobalRMSE  float64 `gorm:"column:global_rmse;not null" json:"global_rmse"`
	AxisRMSEX   float64 `gorm:"column:axis_rmse_x;not null" json:"axis_rmse_x"`
	AxisRMSEY   float64 `gorm:"column:axis_rmse_y;not null" json:"axis_rmse_y"`
	AxisRMSEZ   float64 `gorm:"column:axis_rmse_z;not null" json:"axis_rmse_z"`
	ROMRatio    float64 `gorm:"column:rom_ratio;not null" json:"rom_ratio"`
	ROMRatioX   float64 `gorm:"column:rom_ratio_x;not null;default:0" json:"rom_ratio_x"`
	ROMRatioY   float64 `gorm:"column:rom_ratio_y;not null;default:0" json:"rom_ratio_y"`
	ROMRatioZ   float64 `gorm:"column:rom_ratio_z;not null;default:0" json:"rom_ratio_z"`
	ROMGradeX   float64 `gorm:"column:rom_grade_x;not null;default:0" json:"rom_grade_x"`
	ROMGradeY   float64 `gorm:"column:rom_grade_y;not null;default:0" json:"rom_grade_y"`
	ROMGradeZ   float64 `gorm:"column:rom_grade_z;not null;default:0" json:"rom_grade_z"`
	AvgROMGrade float64 `gorm:"column:avg_rom_grade;not null" json:"avg_rom_grade"`
	ShapeGrade  float64 `gorm:"not null" json:"shape_grade"`

	ReportText   string `gorm:"type:text" json:"report_text"`
	PlotImageB64 string `gorm:"type:text" json:"plot_image_b64"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName sets the table name for Analysis.
func (Analysis) TableName() string {
	return "analyses"
}
