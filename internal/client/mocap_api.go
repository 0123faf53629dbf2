package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"physiosync-go/pkg/models"

	"github.com/sirupsen/logrus"
)

// MocapAPIClient wraps the mocap backend's HTTP surface.
// It performs no retries; all retry and fallback policy lives in the caller.
type MocapAPIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewMocapAPIClient creates a client for the mocap backend.
func NewMocapAPIClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *MocapAPIClient {
	return &MocapAPIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// CheckHealth probes the mocap backend.
func (c *MocapAPIClient) CheckHealth() (*models.HealthResponse, error) {
	c.logger.Debug("Checking mocap service health")

	body, err := c.get("/health")
	if err != nil {
		return nil, err
	}

	var health models.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}

	return &health, nil
}

// ListTemplates returns the reference template files available for comparison.
func (c *MocapAPIClient) ListTemplates() ([]string, error) {
	body, err := c.get("/templates")
	if err != nil {
		return nil, err
	}

	var resp models.TemplatesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse templates response: %w", err)
	}

	return resp.Templates, nil
}

// ListRecordings returns the recorded capture files available for analysis.
func (c *MocapAPIClient) ListRecordings() ([]string, error) {
	body, err := c.get("/files/patient")
	if err != nil {
		return nil, err
	}

	var resp models.RecordingsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse recordings response: %w", err)
	}

	return resp.Files, nil
}

// StartRecording asks the mocap backend to begin a capture of the given length.
func (c *MocapAPIClient) StartRecording(durationSeconds int) error {
	c.logger.Infof("Starting mocap recording for %ds", durationSeconds)

	req := models.StartRecordingRequest{DurationSeconds: durationSeconds}
	if _, err := c.post("/mocap/start", req); err != nil {
		return err
	}

	return nil
}

// RecordingStatus returns the current capture status.
func (c *MocapAPIClient) RecordingStatus() (*models.RecordingStatus, error) {
	body, err := c.get("/mocap/status")
	if err != nil {
		return nil, err
	}

	var status models.RecordingStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse recording status: %w", err)
	}

	return &status, nil
}

// StopRecording asks the mocap backend to terminate the active capture.
// A stop against an idle recorder is acknowledged the same way.
func (c *MocapAPIClient) StopRecording() error {
	c.logger.Info("Stopping mocap recording")

	if _, err := c.post("/mocap/stop", nil); err != nil {
		return err
	}

	return nil
}

// Analyze runs the comparison analysis of a recording against a template.
func (c *MocapAPIClient) Analyze(req models.AnalyzeRequest) (*models.AnalysisResult, error) {
	c.logger.Infof("Requesting analysis of %s against %s", req.PatientFile, req.TemplateFile)

	body, err := c.post("/analyze", req)
	if err != nil {
		return nil, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	c.logger.Infof("Analysis complete: score %.1f", result.Score)
	return &result, nil
}

// get issues a GET request and returns the response body on HTTP 200.
func (c *MocapAPIClient) get(path string) ([]byte, error) {
	url := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	return c.do(req)
}

// post issues a POST request with an optional JSON body.
func (c *MocapAPIClient) post(path string, payload interface{}) ([]byte, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	url := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *MocapAPIClient) do(req *http.Request) ([]byte, error) {
	c.logger.Debugf("Sending %s request to %s", req.Method, req.URL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach mocap service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mocap service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
