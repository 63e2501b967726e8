package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gridmesh/gpumarket/internal/api/dto"
)

// Client talks to the coordinator API on behalf of a provider. Every request
// carries the provider address in the X-Caller-Address header, which stands
// in for the wallet-verified identity in a full deployment.
type Client struct {
	baseURL string
	caller  string
	http    *http.Client
}

func NewClient(baseURL, caller string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		caller:  caller,
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError carries the HTTP status so callers can tell permanent rejections
// (lost races, invalid state) from transient failures worth retrying.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coordinator api error (status %d): %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request is worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-Address", c.caller)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = string(raw)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// RegisterNode registers this agent's node with the coordinator.
func (c *Client) RegisterNode(ctx context.Context, req dto.RegisterNodeRequest) (*dto.NodeDTO, error) {
	var node dto.NodeDTO
	if err := c.do(ctx, http.MethodPost, "/api/v1/nodes", req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// GetJob fetches a job view.
func (c *Client) GetJob(ctx context.Context, jobID string) (*dto.JobDTO, error) {
	var job dto.JobDTO
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+jobID, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimJob claims a pending job for this provider.
func (c *Client) ClaimJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+jobID+"/claim", struct{}{}, nil)
}

// SubmitResult submits the result hash for an assigned job.
func (c *Client) SubmitResult(ctx context.Context, jobID, resultHash string) error {
	req := dto.SubmitResultRequest{ResultHash: resultHash}
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+jobID+"/result", req, nil)
}
