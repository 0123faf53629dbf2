package handler

import (
	"net/http"
	"strconv"

	"physiosync-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AnalysisHandler serves the read-side dashboard over saved analyses.
type AnalysisHandler struct {
	results *service.ResultService
	logger  *logrus.Logger
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(results *service.ResultService, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		results: results,
		logger:  logger,
	}
}

// RegisterRoutes registers the analysis API routes.
func (h *AnalysisHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/analyses", h.ListAnalyses)
		api.GET("/analyses/:id", h.GetAnalysis)
		api.DELETE("/analyses/:id", h.DeleteAnalysis)
		api.GET("/patients/:patientId/analyses", h.ListPatientAnalyses)
	}
}

// ListAnalyses returns saved analyses with pagination.
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil || size < 1 || size > 100 {
		size = 10
	}

	analyses, total, err := h.results.List(page, size)
	if err != nil {
		h.logger.Errorf("Failed to list analyses: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list analyses"})
		return
	}

	c.JSON(http.StatusOK, service.ListAnalysesResponse{
		Analyses: analyses,
		Total:    total,
		Page:     page,
		Size:     size,
	})
}

// GetAnalysis returns one saved analysis by ID.
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	analysis, err := h.results.GetByID(c.Param("id"))
	if err != nil {
		h.logger.Errorf("Failed to get analysis: %v", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// DeleteAnalysis removes one saved analysis.
func (h *AnalysisHandler) DeleteAnalysis(c *gin.Context) {
	if err := h.results.Delete(c.Param("id")); err != nil {
		h.logger.Errorf("Failed to delete analysis: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete analysis"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "analysis deleted"})
}

// ListPatientAnalyses returns all saved analyses for one patient.
func (h *AnalysisHandler) ListPatientAnalyses(c *gin.Context) {
	analyses, err := h.results.ListByPatient(c.Param("patientId"))
	if err != nil {
		h.logger.Errorf("Failed to list patient analyses: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list analyses"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analyses": analyses,
		"total":    len(analyses),
	})
}
