package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionManager holds the active workflow sessions, one per operator run.
// Sessions share nothing with each other.
type SessionManager struct {
	pipeline *PipelineService
	logger   *logrus.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates the registry and hooks the pipeline's
// after-save completion to session removal.
func NewSessionManager(pipeline *PipelineService, logger *logrus.Logger) *SessionManager {
	m := &SessionManager{
		pipeline: pipeline,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
	pipeline.onComplete = func(sessionID string) {
		if err := m.Close(sessionID); err != nil {
			m.logger.Warnf("Failed to close session %s after save: %v", sessionID, err)
		}
	}
	return m
}

// Create opens a new workflow session in the service-check stage.
// A pre-selected patient is inherited into the configuration draft.
func (m *SessionManager) Create(therapistID, patientID, patientName string) *Session {
	cfg := DefaultConfiguration()
	cfg.PatientID = patientID
	cfg.PatientName = patientName

	sess := &Session{
		ID:          uuid.New().String(),
		TherapistID: therapistID,
		stage:       StageServiceCheck,
		config:      cfg,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Infof("Created session %s for therapist %s", sess.ID, therapistID)
	return sess
}

// Get returns the session with the given ID.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Close tears a session down and removes it from the registry.
// Refused while the session's save is outstanding.
func (m *SessionManager) Close(id string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}

	if err := m.pipeline.Teardown(sess); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.logger.Infof("Closed session %s", id)
	return nil
}

// Count returns the number of active sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
