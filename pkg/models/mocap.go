package models

// Recording states reported by the mocap service status endpoint.
const (
	RecordingStateRecording = "recording"
	RecordingStateDone      = "done"
	RecordingStateError     = "error"
)

// HealthResponse is the mocap service health payload.
type HealthResponse struct {
	Status  string `json:"status"`  // Service status (ok when reachable)
	Version string `json:"version"` // Service version
}

// TemplatesResponse lists the reference template files available for comparison.
type TemplatesResponse struct {
	Templates []string `json:"templates"`
}

// RecordingsResponse lists the recorded capture files available for analysis.
type RecordingsResponse struct {
	Files []string `json:"files"`
}

// StartRecordingRequest asks the mocap service to begin a capture.
type StartRecordingRequest struct {
	DurationSeconds int `json:"durationSeconds"` // Capture length in seconds
}

// RecordingStatus is one snapshot of an in-flight capture.
// OutputFile is empty until State is done.
type RecordingStatus struct {
	State      string `json:"state"`       // recording | done | error
	Message    string `json:"message"`     // Human-readable progress or failure text
	OutputFile string `json:"output_file"` // Produced recording file, set on done
}

// AnalyzeRequest asks the mocap service to compare a recording against a template.
type AnalyzeRequest struct {
	PatientFile    string  `json:"patientFile"`    // Recorded capture file
	TemplateFile   string  `json:"templateFile"`   // Reference template file
	Sensitivity    float64 `json:"sensitivity"`    // DTW sensitivity
	ShapeTolerance float64 `json:"shapeTolerance"` // Shape tolerance in meters
}

// AxisValues holds one value per motion axis.
type AxisValues struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// AnalysisResult is the full comparison output returned by the mocap service.
type AnalysisResult struct {
	Score         float64    `json:"score"`           // Overall score, 0-100
	GlobalRMSE    float64    `json:"global_rmse"`     // Global error magnitude
	AxisRMSE      AxisValues `json:"axis_rmse"`       // Per-axis error magnitudes
	ROMRatio      float64    `json:"rom_ratio"`       // Range-of-motion ratio
	ROMRatios     []float64  `json:"rom_ratios"`      // Per-axis range-of-motion ratios
	ROMAxisGrades []float64  `json:"rom_axis_grades"` // Per-axis grades, 0-10
	AvgROMGrade   float64    `json:"avg_rom_grade"`   // Averaged range-of-motion grade
	ShapeGrade    float64    `json:"shape_grade"`     // Shape-fidelity grade, 0-10
	ReportText    string     `json:"report_text"`     // Therapist report
	PlotImageB64  string     `json:"plot_image_b64"`  // Comparison plot, base64 PNG
	TemplateFile  string     `json:"template_file"`   // Template used
	PatientFile   string     `json:"patient_file"`    // Recording analyzed
}
