package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mstrand/trainfleet/internal/models"
)

// Client is the agent's typed view of the coordinator HTTP API. It maps the
// protocol's distinct no-data signals (204 no job, 404 unknown worker) to Go
// values and keeps transport failures as plain errors for the caller to skip
// and retry on the next tick.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the coordinator at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Register announces the worker and returns the coordinator-assigned worker
// ID (the worker's address as the coordinator sees it).
func (c *Client) Register(ctx context.Context, hostname string, caps models.Capabilities) (string, error) {
	var resp models.RegisterResponse
	if err := c.postJSON(ctx, "/register", models.RegisterRequest{
		Hostname:     hostname,
		Capabilities: caps,
	}, &resp); err != nil {
		return "", err
	}
	return resp.WorkerID, nil
}

// Heartbeat reports liveness and current status. Returns ErrUnknownWorker
// when the coordinator no longer knows this worker.
func (c *Client) Heartbeat(ctx context.Context, status, progress string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/heartbeat", models.HeartbeatRequest{
		Status:   status,
		Progress: progress,
	})
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return models.ErrUnknownWorker
	default:
		return httpError("heartbeat", resp)
	}
}

// Lease asks for the next job. Returns (nil, nil) when no job is available.
func (c *Client) Lease(ctx context.Context) (*models.Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/job", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var job models.Job
		if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		return &job, nil
	case http.StatusNoContent:
		return nil, nil
	case http.StatusNotFound:
		return nil, models.ErrUnknownWorker
	default:
		return nil, httpError("lease", resp)
	}
}

// Report sends the result of a finished job.
func (c *Client) Report(ctx context.Context, report models.ReportResultRequest) error {
	var ack models.Ack
	return c.postJSON(ctx, "/result", report, &ack)
}

// newRequest builds a request with an optional JSON body
func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// postJSON posts a body and decodes a 200 response into out
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpError(path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func httpError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, string(body))
}
