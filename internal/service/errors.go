package service

import (
	"errors"
	"fmt"
)

// ErrSaveInProgress is returned when the operator tries to leave the
// results stage while a save has neither succeeded nor failed.
var ErrSaveInProgress = errors.New("a save is still in progress")

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// ValidationError blocks the triggering action locally; the stage is unchanged.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConnectivityError means the mocap service could not be reached.
// Retryable by explicit operator action only.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("mocap service unreachable: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// RecordingError means the capture device or service reported a failure
// during recording. The operator must acknowledge it explicitly.
type RecordingError struct {
	Message string
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("recording failed: %s", e.Message)
}

// AnalysisError means the comparison call failed. Control returns to the
// configure stage with the configuration intact.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// PersistError means the save failed. The results stage is retained so the
// save can be retried without recomputation.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to save analysis: %v", e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// StageError means the requested action is not valid in the session's
// current stage.
type StageError struct {
	Action string
	Stage  Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("cannot %s while in stage %s", e.Action, e.Stage)
}
