package service

import (
	"sync"

	"physiosync-go/pkg/models"
)

// Stage is one discrete phase of the assessment workflow.
// Exactly one stage is active per session at any time.
type Stage int

const (
	StageServiceCheck Stage = iota
	StageConfigure
	StageRecording
	StageAnalyzing
	StageResults
)

// String returns the wire name of the stage.
func (s Stage) String() string {
	switch s {
	case StageServiceCheck:
		return "service_check"
	case StageConfigure:
		return "configure"
	case StageRecording:
		return "recording"
	case StageAnalyzing:
		return "analyzing"
	case StageResults:
		return "results"
	default:
		return "unknown"
	}
}

// Configuration bounds and defaults.
const (
	DefaultDurationSeconds = 8
	MinDurationSeconds     = 3
	MaxDurationSeconds     = 60

	DefaultSensitivity = 3.0
	MinSensitivity     = 0.5
	MaxSensitivity     = 10.0

	DefaultShapeTolerance = 0.20
	MinShapeTolerance     = 0.05
	MaxShapeTolerance     = 1.0
)

// Configuration is the operator's draft setup for one assessment run.
type Configuration struct {
	PatientID       string  `json:"patient_id"`
	PatientName     string  `json:"patient_name"`
	TemplateFile    string  `json:"template_file"`
	ExerciseName    string  `json:"exercise_name"`
	DurationSeconds int     `json:"duration_seconds"`
	Sensitivity     float64 `json:"sensitivity"`
	ShapeTolerance  float64 `json:"shape_tolerance"`
}

// DefaultConfiguration returns a configuration with the standard defaults.
func DefaultConfiguration() Configuration {
	return Configuration{
		DurationSeconds: DefaultDurationSeconds,
		Sensitivity:     DefaultSensitivity,
		ShapeTolerance:  DefaultShapeTolerance,
	}
}

// Validate checks the bounded fields.
func (c *Configuration) Validate() error {
	if c.DurationSeconds < MinDurationSeconds || c.DurationSeconds > MaxDurationSeconds {
		return &ValidationError{Message: "duration_seconds must be between 3 and 60"}
	}
	if c.Sensitivity < MinSensitivity || c.Sensitivity > MaxSensitivity {
		return &ValidationError{Message: "sensitivity must be between 0.5 and 10"}
	}
	if c.ShapeTolerance < MinShapeTolerance || c.ShapeTolerance > MaxShapeTolerance {
		return &ValidationError{Message: "shape_tolerance must be between 0.05 and 1.0"}
	}
	return nil
}

// ReadyToRecord checks that a capture can be started with this configuration.
func (c *Configuration) ReadyToRecord() error {
	if c.PatientID == "" {
		return &ValidationError{Message: "a patient must be selected before recording"}
	}
	if c.TemplateFile == "" {
		return &ValidationError{Message: "a reference template must be selected before recording"}
	}
	if c.ExerciseName == "" {
		return &ValidationError{Message: "exercise_name must not be empty"}
	}
	return nil
}

// ConfigurationUpdate is a partial configuration patch. Nil fields are untouched.
type ConfigurationUpdate struct {
	PatientID       *string  `json:"patient_id"`
	PatientName     *string  `json:"patient_name"`
	TemplateFile    *string  `json:"template_file"`
	ExerciseName    *string  `json:"exercise_name"`
	DurationSeconds *int     `json:"duration_seconds"`
	Sensitivity     *float64 `json:"sensitivity"`
	ShapeTolerance  *float64 `json:"shape_tolerance"`
}

// apply returns a copy of cfg with the patch applied.
func (u *ConfigurationUpdate) apply(cfg Configuration) Configuration {
	if u.PatientID != nil {
		cfg.PatientID = *u.PatientID
	}
	if u.PatientName != nil {
		cfg.PatientName = *u.PatientName
	}
	if u.TemplateFile != nil {
		cfg.TemplateFile = *u.TemplateFile
	}
	if u.ExerciseName != nil {
		cfg.ExerciseName = *u.ExerciseName
	}
	if u.DurationSeconds != nil {
		cfg.DurationSeconds = *u.DurationSeconds
	}
	if u.Sensitivity != nil {
		cfg.Sensitivity = *u.Sensitivity
	}
	if u.ShapeTolerance != nil {
		cfg.ShapeTolerance = *u.ShapeTolerance
	}
	return cfg
}

// saveState tracks the persist lifecycle of the current result.
type saveState int

const (
	saveIdle saveState = iota
	saveInProgress
	saveDone
)

// Session is one operator workflow run. All state is mutated only under mu;
// nothing is shared between sessions.
type Session struct {
	ID          string
	TherapistID string

	mu         sync.Mutex
	stage      Stage
	config     Configuration
	templates  []string
	recordings []string
	status     *models.RecordingStatus
	result     *models.AnalysisResult
	lastError  string
	saveState  saveState
	savedID    string

	// epoch tags in-flight async work; a completion carrying a stale
	// epoch is discarded when it resolves.
	epoch  int
	poller *recordingPoller
}

// SessionSnapshot is the read-only view of a session returned to the operator.
type SessionSnapshot struct {
	ID          string                  `json:"id"`
	TherapistID string                  `json:"therapist_id"`
	Stage       string                  `json:"stage"`
	Config      Configuration           `json:"config"`
	Templates   []string                `json:"templates"`
	Recordings  []string                `json:"recordings"`
	Recording   *models.RecordingStatus `json:"recording,omitempty"`
	Result      *models.AnalysisResult  `json:"result,omitempty"`
	LastError   string                  `json:"last_error,omitempty"`
	Saving      bool                    `json:"saving"`
	Saved       bool                    `json:"saved"`
	SavedID     string                  `json:"saved_id,omitempty"`
}

// snapshotLocked builds the snapshot; callers must hold sess.mu.
func (sess *Session) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{
		ID:          sess.ID,
		TherapistID: sess.TherapistID,
		Stage:       sess.stage.String(),
		Config:      sess.config,
		Templates:   append([]string(nil), sess.templates...),
		Recordings:  append([]string(nil), sess.recordings...),
		LastError:   sess.lastError,
		Saving:      sess.saveState == saveInProgress,
		Saved:       sess.saveState == saveDone,
		SavedID:     sess.savedID,
	}
	if sess.status != nil {
		status := *sess.status
		snap.Recording = &status
	}
	if sess.result != nil {
		result := *sess.result
		snap.Result = &result
	}
	return snap
}
