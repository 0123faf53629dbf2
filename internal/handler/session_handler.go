package handler

import (
	"errors"
	"net/http"

	"physiosync-go/internal/database"
	"physiosync-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SessionHandler exposes the operator action surface of the assessment
// workflow over HTTP.
type SessionHandler struct {
	sessions *service.SessionManager
	pipeline *service.PipelineService
	logger   *logrus.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions *service.SessionManager, pipeline *service.PipelineService, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		pipeline: pipeline,
		logger:   logger,
	}
}

// RegisterRoutes registers the session API routes.
func (h *SessionHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.CheckHealth)

	api := router.Group("/api/v1")
	{
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.CloseSession)
		api.POST("/sessions/:id/connect", h.Connect)
		api.PATCH("/sessions/:id/config", h.UpdateConfiguration)
		api.POST("/sessions/:id/recording/start", h.StartRecording)
		api.POST("/sessions/:id/recording/stop", h.StopRecording)
		api.POST("/sessions/:id/recording/ack", h.AcknowledgeRecordingFailure)
		api.POST("/sessions/:id/analyze", h.Analyze)
		api.POST("/sessions/:id/save", h.Save)
		api.POST("/sessions/:id/restart", h.StartOver)
	}
}

// CreateSessionRequest opens a new workflow session.
type CreateSessionRequest struct {
	TherapistID string `json:"therapist_id" binding:"required"`
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
}

// CreateSession opens a new workflow session in the service-check stage.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid create session request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "therapist_id is required"})
		return
	}

	sess := h.sessions.Create(req.TherapistID, req.PatientID, req.PatientName)
	c.JSON(http.StatusCreated, h.pipeline.Snapshot(sess))
}

// GetSession returns the current session state.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.pipeline.Snapshot(sess))
}

// CloseSession tears the session down and removes it.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session closed"})
}

// Connect runs (or retries) the service check.
func (h *SessionHandler) Connect(c *gin.Context) {
	h.action(c, h.pipeline.Connect)
}

// UpdateConfiguration applies a partial configuration patch.
func (h *SessionHandler) UpdateConfiguration(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var update service.ConfigurationUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid configuration payload"})
		return
	}

	if err := h.pipeline.UpdateConfiguration(sess, update); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.pipeline.Snapshot(sess))
}

// StartRecording starts a capture and the status polling loop.
func (h *SessionHandler) StartRecording(c *gin.Context) {
	h.action(c, h.pipeline.StartRecording)
}

// StopRecording stops the capture early and returns to configure.
func (h *SessionHandler) StopRecording(c *gin.Context) {
	h.action(c, h.pipeline.StopRecording)
}

// AcknowledgeRecordingFailure returns to configure after a failed capture.
func (h *SessionHandler) AcknowledgeRecordingFailure(c *gin.Context) {
	h.action(c, h.pipeline.AcknowledgeRecordingFailure)
}

// AnalyzeRequest selects an existing recording for the manual analysis path.
type AnalyzeRequest struct {
	File string `json:"file" binding:"required"`
}

// Analyze runs the comparison on an existing recorded file.
func (h *SessionHandler) Analyze(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	if err := h.pipeline.AnalyzeRecording(sess, req.File); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.pipeline.Snapshot(sess))
}

// Save persists the current result.
func (h *SessionHandler) Save(c *gin.Context) {
	h.action(c, h.pipeline.Save)
}

// StartOver clears the result and returns to configure.
func (h *SessionHandler) StartOver(c *gin.Context) {
	h.action(c, h.pipeline.StartOver)
}

// CheckHealth reports the health of this server and its collaborators.
func (h *SessionHandler) CheckHealth(c *gin.Context) {
	status := gin.H{
		"status":   "healthy",
		"database": "up",
		"mocap":    "up",
	}
	code := http.StatusOK

	if err := database.HealthCheck(); err != nil {
		h.logger.Errorf("Database health check failed: %v", err)
		status["status"] = "unhealthy"
		status["database"] = "down"
		code = http.StatusServiceUnavailable
	}
	if err := h.pipeline.CheckHealth(); err != nil {
		h.logger.Warnf("Mocap service health check failed: %v", err)
		status["status"] = "unhealthy"
		status["mocap"] = "down"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, status)
}

// session resolves the session from the path, answering 404 when unknown.
func (h *SessionHandler) session(c *gin.Context) (*service.Session, bool) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return sess, true
}

// action runs a parameterless pipeline operation and answers with the
// updated session snapshot.
func (h *SessionHandler) action(c *gin.Context, op func(*service.Session) error) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if err := op(sess); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.pipeline.Snapshot(sess))
}

// writeError maps workflow errors onto HTTP statuses.
func (h *SessionHandler) writeError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var stageErr *service.StageError
	var connErr *service.ConnectivityError
	var analysisErr *service.AnalysisError
	var persistErr *service.PersistError

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &stageErr), errors.Is(err, service.ErrSaveInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &connErr), errors.As(err, &analysisErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.As(err, &persistErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.logger.Errorf("Unhandled workflow error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
