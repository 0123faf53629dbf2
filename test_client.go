package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const serverURL = "http://localhost:8080"

func main() {
	fmt.Println("Checking health endpoint...")
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		fmt.Printf("Failed to reach health endpoint: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Failed to read response: %v\n", err)
		return
	}

	fmt.Printf("Health check response (status %d):\n%s\n\n", resp.StatusCode, string(body))

	if len(os.Args) > 1 && os.Args[1] == "workflow" {
		if err := runWorkflow(); err != nil {
			fmt.Printf("Workflow run failed: %v\n", err)
		}
	} else {
		fmt.Println("To drive a full assessment run: go run test_client.go workflow")
	}
}

// runWorkflow walks one session through connect, configure, record and save.
func runWorkflow() error {
	client := &http.Client{Timeout: 5 * time.Minute}

	session, err := postJSON(client, "/api/v1/sessions", map[string]string{
		"therapist_id": "therapist-demo",
		"patient_id":   "patient-demo",
		"patient_name": "Demo Patient",
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	id, _ := session["id"].(string)
	fmt.Printf("Created session %s\n", id)

	session, err = postJSON(client, "/api/v1/sessions/"+id+"/connect", nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	fmt.Printf("Connected, stage: %v, templates: %v\n", session["stage"], session["templates"])

	_, err = patchJSON(client, "/api/v1/sessions/"+id+"/config", map[string]interface{}{
		"exercise_name": "Right wrist flexion",
	})
	if err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}

	session, err = postJSON(client, "/api/v1/sessions/"+id+"/recording/start", nil)
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	fmt.Printf("Recording started, stage: %v\n", session["stage"])

	// Poll the session until the workflow reaches results or falls back.
	for i := 0; i < 120; i++ {
		time.Sleep(time.Second)
		session, err = getJSON(client, "/api/v1/sessions/"+id)
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		stage, _ := session["stage"].(string)
		fmt.Printf("  stage: %s\n", stage)
		if stage == "results" || stage == "configure" {
			break
		}
	}

	if session["stage"] == "results" {
		session, err = postJSON(client, "/api/v1/sessions/"+id+"/save", nil)
		if err != nil {
			return fmt.Errorf("failed to save: %w", err)
		}
		fmt.Printf("Saved analysis: %v\n", session["saved_id"])
	} else {
		fmt.Printf("Workflow fell back to configure: %v\n", session["last_error"])
	}

	return nil
}

func getJSON(client *http.Client, path string) (map[string]interface{}, error) {
	resp, err := client.Get(serverURL + path)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func postJSON(client *http.Client, path string, payload interface{}) (map[string]interface{}, error) {
	return sendJSON(client, http.MethodPost, path, payload)
}

func patchJSON(client *http.Client, path string, payload interface{}) (map[string]interface{}, error) {
	return sendJSON(client, http.MethodPatch, path, payload)
}

func sendJSON(client *http.Client, method, path string, payload interface{}) (map[string]interface{}, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(method, serverURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (map[string]interface{}, error) {
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
