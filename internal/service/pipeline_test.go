package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"physiosync-go/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMocap is a scripted stand-in for the mocap backend.
type fakeMocap struct {
	mu sync.Mutex

	healthErrs    []error // consumed one per CheckHealth call; empty means success
	templates     []string
	recordings    []string
	startErr      error
	stopErr       error
	analyzeErr    error
	analyzeResult *models.AnalysisResult

	// statusScript entries are consumed one per poll; the last repeats.
	statusScript []statusStep

	healthCalls     int
	startCalls      int
	stopCalls       int
	statusCalls     int
	analyzeCalls    int
	listFilesCalls  int
	startDurations  []int
	analyzeRequests []models.AnalyzeRequest
}

type statusStep struct {
	status models.RecordingStatus
	err    error
}

func (f *fakeMocap) CheckHealth() (*models.HealthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthCalls++
	if len(f.healthErrs) > 0 {
		err := f.healthErrs[0]
		f.healthErrs = f.healthErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.HealthResponse{Status: "ok", Version: "1.0"}, nil
}

func (f *fakeMocap) ListTemplates() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.templates...), nil
}

func (f *fakeMocap) ListRecordings() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFilesCalls++
	return append([]string(nil), f.recordings...), nil
}

func (f *fakeMocap) StartRecording(durationSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.startDurations = append(f.startDurations, durationSeconds)
	return f.startErr
}

func (f *fakeMocap) RecordingStatus() (*models.RecordingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if len(f.statusScript) == 0 {
		return &models.RecordingStatus{State: models.RecordingStateRecording}, nil
	}
	step := f.statusScript[0]
	if len(f.statusScript) > 1 {
		f.statusScript = f.statusScript[1:]
	}
	if step.err != nil {
		return nil, step.err
	}
	status := step.status
	return &status, nil
}

func (f *fakeMocap) StopRecording() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeMocap) Analyze(req models.AnalyzeRequest) (*models.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	f.analyzeRequests = append(f.analyzeRequests, req)
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	result := *f.analyzeResult
	return &result, nil
}

func (f *fakeMocap) counters() (status, analyze, stop, files int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.analyzeCalls, f.stopCalls, f.listFilesCalls
}

func fixedResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		Score:         82,
		GlobalRMSE:    0.031,
		AxisRMSE:      models.AxisValues{X: 0.02, Y: 0.01, Z: 0.03},
		ROMRatio:      0.91,
		ROMRatios:     []float64{0.95, 0.88, 0.90},
		ROMAxisGrades: []float64{8, 7, 9},
		AvgROMGrade:   8,
		ShapeGrade:    7,
		ReportText:    "OK",
		PlotImageB64:  "abc123",
		TemplateFile:  "tmpl.xlsx",
		PatientFile:   "rec1.csv",
	}
}

func newTestPipeline(client MocapClient, repo *fakeRepo) *PipelineService {
	p := NewPipelineService(client, NewResultService(repo, testLogger()), testLogger())
	p.pollInterval = 5 * time.Millisecond
	p.closeDelay = 10 * time.Millisecond
	return p
}

func newSession() *Session {
	return &Session{
		ID:          "sess-1",
		TherapistID: "ther-1",
		stage:       StageServiceCheck,
		config:      DefaultConfiguration(),
	}
}

func sessionAtConfigure() *Session {
	sess := newSession()
	sess.stage = StageConfigure
	sess.config.PatientID = "pat-1"
	sess.config.PatientName = "Pat One"
	sess.config.TemplateFile = "t1.xlsx"
	sess.config.ExerciseName = "Wrist flexion"
	sess.recordings = []string{"rec1.csv"}
	return sess
}

func sessionAtResults() *Session {
	sess := sessionAtConfigure()
	sess.stage = StageResults
	sess.result = fixedResult()
	return sess
}

func strPtr(s string) *string    { return &s }
func intPtr(i int) *int          { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestConnectFailureStaysInServiceCheck(t *testing.T) {
	client := &fakeMocap{healthErrs: []error{errors.New("connection refused")}}
	p := newTestPipeline(client, &fakeRepo{})
	sess := newSession()

	err := p.Connect(sess)

	var connErr *ConnectivityError
	require.ErrorAs(t, err, &connErr)
	snap := p.Snapshot(sess)
	assert.Equal(t, "service_check", snap.Stage)
	assert.NotEmpty(t, snap.LastError)

	// An explicit retry succeeds and advances to configure.
	client.templates = []string{"t1.xlsx"}
	require.NoError(t, p.Connect(sess))
	snap = p.Snapshot(sess)
	assert.Equal(t, "configure", snap.Stage)
	assert.Equal(t, "t1.xlsx", snap.Config.TemplateFile)
	assert.Empty(t, snap.LastError)
}

func TestConnectWithEmptyTemplateListLeavesTemplateUnset(t *testing.T) {
	client := &fakeMocap{}
	p := newTestPipeline(client, &fakeRepo{})
	sess := newSession()

	require.NoError(t, p.Connect(sess))

	snap := p.Snapshot(sess)
	assert.Equal(t, "configure", snap.Stage)
	assert.Empty(t, snap.Config.TemplateFile)
}

func TestStartRecordingRequiresPatientAndTemplate(t *testing.T) {
	client := &fakeMocap{}
	p := newTestPipeline(client, &fakeRepo{})

	sess := sessionAtConfigure()
	sess.config.PatientID = ""

	err := p.StartRecording(sess)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "configure", p.Snapshot(sess).Stage)
	assert.Zero(t, client.startCalls)

	sess = sessionAtConfigure()
	sess.config.TemplateFile = ""
	err = p.StartRecording(sess)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "configure", p.Snapshot(sess).Stage)
	assert.Zero(t, client.startCalls)
}

func TestUpdateConfigurationRejectsOutOfBoundsValues(t *testing.T) {
	p := newTestPipeline(&fakeMocap{}, &fakeRepo{})
	sess := sessionAtConfigure()
	before := p.Snapshot(sess).Config

	var validationErr *ValidationError
	err := p.UpdateConfiguration(sess, ConfigurationUpdate{DurationSeconds: intPtr(2)})
	require.ErrorAs(t, err, &validationErr)

	err = p.UpdateConfiguration(sess, ConfigurationUpdate{Sensitivity: floatPtr(11)})
	require.ErrorAs(t, err, &validationErr)

	err = p.UpdateConfiguration(sess, ConfigurationUpdate{ShapeTolerance: floatPtr(0.01)})
	require.ErrorAs(t, err, &validationErr)

	assert.Equal(t, before, p.Snapshot(sess).Config)

	require.NoError(t, p.UpdateConfiguration(sess, ConfigurationUpdate{
		DurationSeconds: intPtr(12),
		ExerciseName:    strPtr("Shoulder raise"),
	}))
	cfg := p.Snapshot(sess).Config
	assert.Equal(t, 12, cfg.DurationSeconds)
	assert.Equal(t, "Shoulder raise", cfg.ExerciseName)
}

func TestActionsOutsideTheirStageAreRejected(t *testing.T) {
	p := newTestPipeline(&fakeMocap{}, &fakeRepo{})
	sess := newSession()

	var stageErr *StageError
	require.ErrorAs(t, p.StartRecording(sess), &stageErr)
	require.ErrorAs(t, p.StopRecording(sess), &stageErr)
	require.ErrorAs(t, p.Save(sess), &stageErr)
	require.ErrorAs(t, p.StartOver(sess), &stageErr)
	require.ErrorAs(t, p.AnalyzeRecording(sess, "rec1.csv"), &stageErr)
	require.ErrorAs(t, p.AcknowledgeRecordingFailure(sess), &stageErr)

	assert.Equal(t, "service_check", p.Snapshot(sess).Stage)
}

func TestWorkflowEndToEnd(t *testing.T) {
	client := &fakeMocap{
		healthErrs: []error{errors.New("connection refused")},
		templates:  []string{"t1.xlsx"},
		recordings: []string{"rec1.csv"},
		statusScript: []statusStep{
			{status: models.RecordingStatus{State: models.RecordingStateRecording, Message: "Recording for 8s"}},
			{status: models.RecordingStatus{State: models.RecordingStateRecording, Message: "Recording for 8s"}},
			{status: models.RecordingStatus{State: models.RecordingStateDone, Message: "Recording complete.", OutputFile: "rec2.csv"}},
		},
		analyzeResult: fixedResult(),
	}
	p := newTestPipeline(client, &fakeRepo{})
	sess := newSession()

	// First probe fails, the operator retries, the second succeeds.
	var connErr *ConnectivityError
	require.ErrorAs(t, p.Connect(sess), &connErr)
	require.NoError(t, p.Connect(sess))

	snap := p.Snapshot(sess)
	require.Equal(t, "configure", snap.Stage)
	require.Equal(t, "t1.xlsx", snap.Config.TemplateFile)

	require.NoError(t, p.UpdateConfiguration(sess, ConfigurationUpdate{
		PatientID:    strPtr("pat-1"),
		PatientName:  strPtr("Pat One"),
		ExerciseName: strPtr("Wrist flexion"),
	}))

	require.NoError(t, p.StartRecording(sess))
	require.Equal(t, "recording", p.Snapshot(sess).Stage)
	assert.Equal(t, []int{8}, client.startDurations)

	require.Eventually(t, func() bool {
		return p.Snapshot(sess).Stage == "results"
	}, time.Second, 5*time.Millisecond)

	client.mu.Lock()
	require.Len(t, client.analyzeRequests, 1)
	assert.Equal(t, models.AnalyzeRequest{
		PatientFile:    "rec2.csv",
		TemplateFile:   "t1.xlsx",
		Sensitivity:    3.0,
		ShapeTolerance: 0.20,
	}, client.analyzeRequests[0])
	client.mu.Unlock()

	snap = p.Snapshot(sess)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 82.0, snap.Result.Score)
	// The recording list was refreshed before leaving the recording stage.
	_, _, _, files := client.counters()
	assert.GreaterOrEqual(t, files, 2)
}

func TestStopRecordingCancelsPollerAndIssuesStop(t *testing.T) {
	client := &fakeMocap{}
	p := newTestPipeline(client, &fakeRepo{})
	sess := sessionAtConfigure()

	require.NoError(t, p.StartRecording(sess))
	require.Eventually(t, func() bool {
		status, _, _, _ := client.counters()
		return status >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.StopRecording(sess))

	snap := p.Snapshot(sess)
	assert.Equal(t, "configure", snap.Stage)
	assert.Nil(t, snap.Recording)

	_, _, stops, _ := client.counters()
	assert.Equal(t, 1, stops)

	// After the transition no further status queries are issued.
	time.Sleep(20 * time.Millisecond)
	status, _, _, _ := client.counters()
	time.Sleep(50 * time.Millisecond)
	statusAfter, _, _, _ := client.counters()
	assert.Equal(t, status, statusAfter)
}

func TestLateStatusAfterStopIsDiscarded(t *testing.T) {
	client := &fakeMocap{analyzeResult: fixedResult()}
	p := newTestPipeline(client, &fakeRepo{})
	sess := sessionAtConfigure()

	require.NoError(t, p.StartRecording(sess))
	sess.mu.Lock()
	staleEpoch := sess.epoch
	sess.mu.Unlock()

	require.NoError(t, p.StopRecording(sess))

	// A terminal status resolving long after the early stop must not
	// move the session or trigger an analysis.
	p.handleRecordingTerminal(sess, staleEpoch, models.RecordingStatus{
		State:      models.RecordingStateDone,
		Message:    "Recording complete.",
		OutputFile: "rec9.csv",
	})

	snap := p.Snapshot(sess)
	assert.Equal(t, "configure", snap.Stage)
	assert.Nil(t, snap.Result)
	_, analyzes, _, _ := client.counters()
	assert.Zero(t, analyzes)
}

func TestRecordingErrorIsTerminalWithinStage(t *testing.T) {
	client := &fakeMocap{
		statusScript: []statusStep{
			{status: models.RecordingStatus{State: models.RecordingStateRecording}},
			{status: models.RecordingStatus{State: models.RecordingStateError, Message: "device disconnected"}},
		},
	}
	p := newTestPipeline(client, &fakeRepo{})
	sess := sessionAtConfigure()

	require.NoError(t, p.StartRecording(sess))

	require.Eventually(t, func() bool {
		snap := p.Snapshot(sess)
		return snap.Recording != nil && snap.Recording.State == models.RecordingStateError
	}, time.Second, 5*time.Millisecond)

	// No silent retry: the session holds in recording until acknowledged.
	snap := p.Snapshot(sess)
	assert.Equal(t, "recording", snap.Stage)

	require.NoError(t, p.AcknowledgeRecordingFailure(sess))
	snap = p.Snapshot(sess)
	assert.Equal(t, "configure", snap.Stage)
	assert.Contains(t, snap.LastError, "device disconnected")
}

func TestManualAnalysisRunsFromConfigure(t *testing.T) {
	client := &fakeMocap{analyzeResult: fixedResult()}
	p := newTestPipeline(client, &fakeRepo{})
	sess := sessionAtConfigure()

	require.NoError(t, p.AnalyzeRecording(sess, "rec1.csv"))

	snap := p.Snapshot(sess)
	assert.Equal(t, "results", snap.Stage)
	require.NotNil(t, snap.Result)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.analyzeRequests, 1)
	assert.Equal(t, "rec1.csv", client.analyzeRequests[0].PatientFile)
	assert.Equal(t, "t1.xlsx", client.analyzeRequests[0].TemplateFile)
}

func TestManualAnalysisValidation(t *testing.T) {
	p := newTestPipeline(&fakeMocap{analyzeResult: fixedResult()}, &fakeRepo{})

	var validationErr *ValidationError
	sess := sessionAtConfigure()
	require.ErrorAs(t, p.AnalyzeRecording(sess, ""), &validationErr)
	assert.Equal(t, "configure", p.Snapshot(sess).Stage)

	sess = sessionAtConfigure()
	sess.config.TemplateFile = ""
	require.ErrorAs(t, p.AnalyzeRecording(sess, "rec1.csv"), &validationErr)
	assert.Equal(t, "configure", p.Snapshot(sess).Stage)
}

func TestAnalysisFailureReturnsToConfigureWithConfigIntact(t *testing.T) {
	client := &fakeMocap{analyzeErr: errors.New("template unreadable")}
	p := newTestPipeline(client, &fakeRepo{})
	sess := sessionAtConfigure()
	before := p.Snapshot(sess).Config

	err := p.AnalyzeRecording(sess, "rec1.csv")

	var analysisErr *AnalysisError
	require.ErrorAs(t, err, &analysisErr)

	snap := p.Snapshot(sess)
	assert.Equal(t, "configure", snap.Stage)
	assert.Equal(t, before, snap.Config)
	assert.Contains(t, snap.LastError, "template unreadable")
	assert.Nil(t, snap.Result)
}

func TestSavePersistsExactlyOnce(t *testing.T) {
	repo := &fakeRepo{}
	p := newTestPipeline(&fakeMocap{}, repo)
	sess := sessionAtResults()

	require.NoError(t, p.Save(sess))

	created := repo.all()
	require.Len(t, created, 1)
	saved := created[0]
	assert.Equal(t, "pat-1", saved.PatientID)
	assert.Equal(t, "ther-1", saved.TherapistID)
	assert.Equal(t, "Wrist flexion", saved.ExerciseName)
	assert.Equal(t, 82.0, saved.Score)
	assert.Equal(t, 0.031, saved.GlobalRMSE)
	assert.Equal(t, 0.02, saved.AxisRMSEX)
	assert.Equal(t, 0.01, saved.AxisRMSEY)
	assert.Equal(t, 0.03, saved.AxisRMSEZ)
	assert.Equal(t, 0.91, saved.ROMRatio)
	assert.Equal(t, 8.0, saved.ROMGradeX)
	assert.Equal(t, 7.0, saved.ROMGradeY)
	assert.Equal(t, 9.0, saved.ROMGradeZ)
	assert.Equal(t, 8.0, saved.AvgROMGrade)
	assert.Equal(t, 7.0, saved.ShapeGrade)
	assert.Equal(t, "OK", saved.ReportText)
	assert.Equal(t, "abc123", saved.PlotImageB64)
	assert.Equal(t, "tmpl.xlsx", saved.TemplateFile)
	assert.Equal(t, "rec1.csv", saved.PatientFile)

	snap := p.Snapshot(sess)
	assert.True(t, snap.Saved)
	assert.Equal(t, saved.ID, snap.SavedID)

	// A second save click is a no-op.
	require.NoError(t, p.Save(sess))
	assert.Len(t, repo.all(), 1)
}

func TestSaveWhileOutstandingIsNoOpAndBlocksStartOver(t *testing.T) {
	repo := &fakeRepo{blockCreate: make(chan struct{})}
	p := newTestPipeline(&fakeMocap{}, repo)
	sess := sessionAtResults()

	done := make(chan error, 1)
	go func() {
		done <- p.Save(sess)
	}()

	require.Eventually(t, func() bool {
		return p.Snapshot(sess).Saving
	}, time.Second, 5*time.Millisecond)

	// Second click while the first is outstanding issues nothing.
	require.NoError(t, p.Save(sess))
	assert.Empty(t, repo.all())

	// Navigation away from results is blocked mid-save.
	assert.ErrorIs(t, p.StartOver(sess), ErrSaveInProgress)

	close(repo.blockCreate)
	require.NoError(t, <-done)
	assert.Len(t, repo.all(), 1)
	assert.True(t, p.Snapshot(sess).Saved)
}

func TestSaveFailureRetainsResultsForRetry(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("store unavailable")}
	p := newTestPipeline(&fakeMocap{}, repo)
	sess := sessionAtResults()

	err := p.Save(sess)

	var persistErr *PersistError
	require.ErrorAs(t, err, &persistErr)

	snap := p.Snapshot(sess)
	assert.Equal(t, "results", snap.Stage)
	assert.False(t, snap.Saved)
	require.NotNil(t, snap.Result)

	// The save can be retried without recomputation.
	repo.setCreateErr(nil)
	require.NoError(t, p.Save(sess))
	assert.Len(t, repo.all(), 1)
}

func TestStartOverClearsResultAndKeepsConfiguration(t *testing.T) {
	p := newTestPipeline(&fakeMocap{}, &fakeRepo{})
	sess := sessionAtResults()
	before := p.Snapshot(sess).Config

	require.NoError(t, p.StartOver(sess))

	snap := p.Snapshot(sess)
	assert.Equal(t, "configure", snap.Stage)
	assert.Nil(t, snap.Result)
	assert.False(t, snap.Saved)
	assert.Equal(t, before, snap.Config)
}

func TestSuccessfulSaveSchedulesSessionClose(t *testing.T) {
	repo := &fakeRepo{}
	client := &fakeMocap{}
	p := newTestPipeline(client, repo)
	manager := NewSessionManager(p, testLogger())

	sess := manager.Create("ther-1", "pat-1", "Pat One")
	sess.mu.Lock()
	sess.stage = StageResults
	sess.config.TemplateFile = "t1.xlsx"
	sess.config.ExerciseName = "Wrist flexion"
	sess.result = fixedResult()
	sess.mu.Unlock()

	require.NoError(t, p.Save(sess))
	require.Equal(t, 1, manager.Count())

	require.Eventually(t, func() bool {
		return manager.Count() == 0
	}, time.Second, 5*time.Millisecond)

	_, err := manager.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerCloseTearsDownRecordingSession(t *testing.T) {
	client := &fakeMocap{}
	p := newTestPipeline(client, &fakeRepo{})
	manager := NewSessionManager(p, testLogger())

	sess := manager.Create("ther-1", "pat-1", "Pat One")
	sess.mu.Lock()
	sess.stage = StageConfigure
	sess.config.TemplateFile = "t1.xlsx"
	sess.config.ExerciseName = "Wrist flexion"
	sess.mu.Unlock()

	require.NoError(t, p.StartRecording(sess))
	require.NoError(t, manager.Close(sess.ID))

	// The capture was stopped and the poll loop torn down.
	_, _, stops, _ := client.counters()
	assert.Equal(t, 1, stops)

	time.Sleep(20 * time.Millisecond)
	status, _, _, _ := client.counters()
	time.Sleep(50 * time.Millisecond)
	statusAfter, _, _, _ := client.counters()
	assert.Equal(t, status, statusAfter)
}
