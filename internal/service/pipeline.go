package service

import (
	"time"

	"physiosync-go/pkg/models"

	"github.com/sirupsen/logrus"
)

// MocapClient is the request/response surface of the remote mocap backend.
type MocapClient interface {
	CheckHealth() (*models.HealthResponse, error)
	ListTemplates() ([]string, error)
	ListRecordings() ([]string, error)
	StartRecording(durationSeconds int) error
	RecordingStatus() (*models.RecordingStatus, error)
	StopRecording() error
	Analyze(req models.AnalyzeRequest) (*models.AnalysisResult, error)
}

// PipelineService sequences one assessment workflow per session:
// service check, configuration, recording, analysis, results. It owns every
// stage transition and all retry/fallback policy around the mocap client.
type PipelineService struct {
	client  MocapClient
	results *ResultService
	logger  *logrus.Logger

	pollInterval time.Duration
	closeDelay   time.Duration

	// onComplete is invoked closeDelay after a successful save.
	onComplete func(sessionID string)
}

// NewPipelineService creates the workflow orchestrator.
func NewPipelineService(client MocapClient, results *ResultService, logger *logrus.Logger) *PipelineService {
	return &PipelineService{
		client:       client,
		results:      results,
		logger:       logger,
		pollInterval: time.Second,
		closeDelay:   2500 * time.Millisecond,
	}
}

// Connect runs the service check: probe the mocap backend and, on success,
// preload the template and recording lists and advance to configure.
// A failed probe leaves the session in service_check for the operator to retry.
func (s *PipelineService) Connect(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.stage != StageServiceCheck {
		return &StageError{Action: "connect", Stage: sess.stage}
	}

	if _, err := s.client.CheckHealth(); err != nil {
		s.logger.Warnf("Mocap service health probe failed: %v", err)
		connErr := &ConnectivityError{Err: err}
		sess.lastError = connErr.Error()
		return connErr
	}

	templates, err := s.client.ListTemplates()
	if err != nil {
		connErr := &ConnectivityError{Err: err}
		sess.lastError = connErr.Error()
		return connErr
	}

	recordings, err := s.client.ListRecordings()
	if err != nil {
		connErr := &ConnectivityError{Err: err}
		sess.lastError = connErr.Error()
		return connErr
	}

	sess.templates = templates
	sess.recordings = recordings
	// First template is the default; an empty list leaves it unset.
	if sess.config.TemplateFile == "" && len(templates) > 0 {
		sess.config.TemplateFile = templates[0]
	}
	sess.lastError = ""
	sess.stage = StageConfigure

	s.logger.Infof("Session %s connected: %d templates, %d recordings", sess.ID, len(templates), len(recordings))
	return nil
}

// UpdateConfiguration applies a partial configuration patch during configure.
func (s *PipelineService) UpdateConfiguration(sess *Session, update ConfigurationUpdate) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.stage != StageConfigure {
		return &StageError{Action: "update configuration", Stage: sess.stage}
	}

	updated := update.apply(sess.config)
	if err := updated.Validate(); err != nil {
		return err
	}

	sess.config = updated
	return nil
}

// StartRecording issues the start request and begins polling. The session
// moves to recording only after the backend acknowledges the start.
func (s *PipelineService) StartRecording(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.stage != StageConfigure {
		return &StageError{Action: "start recording", Stage: sess.stage}
	}
	if err := sess.config.ReadyToRecord(); err != nil {
		return err
	}

	if err := s.client.StartRecording(sess.config.DurationSeconds); err != nil {
		connErr := &ConnectivityError{Err: err}
		sess.lastError = connErr.Error()
		return connErr
	}

	sess.epoch++
	epoch := sess.epoch
	sess.stage = StageRecording
	sess.lastError = ""
	sess.status = &models.RecordingStatus{State: models.RecordingStateRecording}

	poller := newRecordingPoller(s.client.RecordingStatus, s.pollInterval, s.logger,
		func(status models.RecordingStatus) {
			s.handleRecordingStatus(sess, epoch, status)
		},
		func(status models.RecordingStatus) {
			s.handleRecordingTerminal(sess, epoch, status)
		},
	)
	sess.poller = poller
	poller.Start()

	s.logger.Infof("Session %s recording started for %ds", sess.ID, sess.config.DurationSeconds)
	return nil
}

// StopRecording cancels the poll loop, asks the backend to stop the capture,
// and returns the session to configure.
func (s *PipelineService) StopRecording(sess *Session) error {
	sess.mu.Lock()

	if sess.stage != StageRecording {
		sess.mu.Unlock()
		return &StageError{Action: "stop recording", Stage: sess.stage}
	}

	poller := sess.poller
	sess.poller = nil
	sess.epoch++ // in-flight poll results are stale from here on
	sess.stage = StageConfigure
	sess.status = nil
	sess.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if err := s.client.StopRecording(); err != nil {
		// The session is already back in configure; the backend stops
		// on its own when the capture window elapses.
		s.logger.Warnf("Session %s stop request failed: %v", sess.ID, err)
	}

	s.logger.Infof("Session %s recording stopped early", sess.ID)
	return nil
}

// AcknowledgeRecordingFailure returns the session to configure after the
// capture reported an error status.
func (s *PipelineService) AcknowledgeRecordingFailure(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.stage != StageRecording || sess.status == nil || sess.status.State != models.RecordingStateError {
		return &StageError{Action: "acknowledge recording failure", Stage: sess.stage}
	}

	sess.epoch++
	sess.lastError = (&RecordingError{Message: sess.status.Message}).Error()
	sess.status = nil
	sess.stage = StageConfigure
	return nil
}

// AnalyzeRecording is the manual entry into analysis: the operator picks an
// already-recorded file during configure and triggers the comparison.
func (s *PipelineService) AnalyzeRecording(sess *Session, fileID string) error {
	sess.mu.Lock()

	if sess.stage != StageConfigure {
		sess.mu.Unlock()
		return &StageError{Action: "analyze", Stage: sess.stage}
	}
	if fileID == "" {
		sess.mu.Unlock()
		return &ValidationError{Message: "a recorded file must be selected for analysis"}
	}
	if sess.config.TemplateFile == "" {
		sess.mu.Unlock()
		return &ValidationError{Message: "a reference template must be selected for analysis"}
	}

	sess.stage = StageAnalyzing
	sess.lastError = ""
	epoch := sess.epoch
	req := analyzeRequest(sess.config, fileID)
	sess.mu.Unlock()

	return s.runAnalysis(sess, epoch, req)
}

// handleRecordingStatus applies a non-terminal poll tick.
func (s *PipelineService) handleRecordingStatus(sess *Session, epoch int, status models.RecordingStatus) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if epoch != sess.epoch || sess.stage != StageRecording {
		s.logger.Debugf("Session %s discarding stale recording status", sess.ID)
		return
	}
	sess.status = &status
}

// handleRecordingTerminal applies the single terminal transition of a
// recording attempt. On done it refreshes the recording list before leaving
// the recording stage, then runs the analysis; on error it stays in
// recording until the operator acknowledges.
func (s *PipelineService) handleRecordingTerminal(sess *Session, epoch int, status models.RecordingStatus) {
	sess.mu.Lock()

	if epoch != sess.epoch || sess.stage != StageRecording {
		sess.mu.Unlock()
		s.logger.Debugf("Session %s discarding stale terminal status", sess.ID)
		return
	}

	sess.status = &status
	sess.poller = nil

	if status.State == models.RecordingStateError {
		// Terminal within the stage: no silent retry, the operator
		// must acknowledge before returning to configure.
		s.logger.Warnf("Session %s recording failed: %s", sess.ID, status.Message)
		sess.mu.Unlock()
		return
	}
	sess.mu.Unlock()

	// Refresh the file list before leaving recording so the new capture is
	// visible to the manual-analysis path as well.
	recordings, err := s.client.ListRecordings()

	sess.mu.Lock()
	if epoch != sess.epoch || sess.stage != StageRecording {
		sess.mu.Unlock()
		return
	}
	if err != nil {
		s.logger.Warnf("Session %s recording list refresh failed: %v", sess.ID, err)
	} else {
		sess.recordings = recordings
	}
	sess.stage = StageAnalyzing
	req := analyzeRequest(sess.config, status.OutputFile)
	sess.mu.Unlock()

	s.logger.Infof("Session %s recording complete: %s", sess.ID, status.OutputFile)
	if err := s.runAnalysis(sess, epoch, req); err != nil {
		s.logger.Warnf("Session %s analysis after recording failed: %v", sess.ID, err)
	}
}

// runAnalysis issues exactly one comparison call and applies its outcome.
// A failure returns the session to configure with the configuration intact;
// a completion whose epoch went stale while in flight is dropped.
func (s *PipelineService) runAnalysis(sess *Session, epoch int, req models.AnalyzeRequest) error {
	result, err := s.client.Analyze(req)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if epoch != sess.epoch || sess.stage != StageAnalyzing {
		s.logger.Debugf("Session %s discarding stale analysis result", sess.ID)
		return nil
	}

	if err != nil {
		analysisErr := &AnalysisError{Err: err}
		sess.stage = StageConfigure
		sess.lastError = analysisErr.Error()
		return analysisErr
	}

	sess.result = result
	sess.status = nil
	sess.lastError = ""
	sess.stage = StageResults

	s.logger.Infof("Session %s analysis complete: score %.1f", sess.ID, result.Score)
	return nil
}

// Save persists the current result exactly once. A second save while one is
// outstanding or already completed is a no-op. On failure the results stage
// is retained so the save can be retried without recomputation.
func (s *PipelineService) Save(sess *Session) error {
	sess.mu.Lock()

	if sess.stage != StageResults {
		sess.mu.Unlock()
		return &StageError{Action: "save", Stage: sess.stage}
	}
	if sess.saveState != saveIdle {
		sess.mu.Unlock()
		return nil
	}

	sess.saveState = saveInProgress
	result := *sess.result
	cfg := sess.config
	therapistID := sess.TherapistID
	sess.mu.Unlock()

	saved, err := s.results.Save(therapistID, cfg, &result)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err != nil {
		persistErr := &PersistError{Err: err}
		sess.saveState = saveIdle
		sess.lastError = persistErr.Error()
		return persistErr
	}

	sess.saveState = saveDone
	sess.savedID = saved.ID
	sess.lastError = ""

	if s.onComplete != nil {
		sessionID := sess.ID
		time.AfterFunc(s.closeDelay, func() {
			s.onComplete(sessionID)
		})
	}

	s.logger.Infof("Session %s analysis saved as %s", sess.ID, saved.ID)
	return nil
}

// StartOver clears the result and returns to configure for a fresh sub-run.
// Refused while a save is outstanding.
func (s *PipelineService) StartOver(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.stage != StageResults {
		return &StageError{Action: "start over", Stage: sess.stage}
	}
	if sess.saveState == saveInProgress {
		return ErrSaveInProgress
	}

	sess.epoch++
	sess.result = nil
	sess.status = nil
	sess.lastError = ""
	sess.saveState = saveIdle
	sess.savedID = ""
	sess.stage = StageConfigure
	return nil
}

// Teardown cancels any outstanding polling and invalidates in-flight work.
// Called when a session is closed regardless of its stage.
func (s *PipelineService) Teardown(sess *Session) error {
	sess.mu.Lock()

	if sess.saveState == saveInProgress {
		sess.mu.Unlock()
		return ErrSaveInProgress
	}

	poller := sess.poller
	sess.poller = nil
	sess.epoch++
	stopCapture := sess.stage == StageRecording
	sess.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if stopCapture {
		if err := s.client.StopRecording(); err != nil {
			s.logger.Warnf("Session %s stop request on teardown failed: %v", sess.ID, err)
		}
	}
	return nil
}

// Snapshot returns the operator-facing view of the session.
func (s *PipelineService) Snapshot(sess *Session) SessionSnapshot {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked()
}

// CheckHealth probes the mocap backend outside of any session.
func (s *PipelineService) CheckHealth() error {
	if _, err := s.client.CheckHealth(); err != nil {
		return &ConnectivityError{Err: err}
	}
	return nil
}

// analyzeRequest builds the comparison request from the configuration and
// the chosen recording.
func analyzeRequest(cfg Configuration, fileID string) models.AnalyzeRequest {
	return models.AnalyzeRequest{
		PatientFile:    fileID,
		TemplateFile:   cfg.TemplateFile,
		Sensitivity:    cfg.Sensitivity,
		ShapeTolerance: cfg.ShapeTolerance,
	}
}
