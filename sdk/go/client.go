package transcriptgensdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal transcript generator HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
	// PollInterval paces WaitJob.
	PollInterval time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:      baseURL,
		BasePath:     "/api/v1",
		Timeout:      30 * time.Second,
		PollInterval: time.Second,
	}
}

// GenerationConfig mirrors the request body of the generate endpoints.
type GenerationConfig struct {
	Industry        string   `json:"industry"`
	Scenarios       []string `json:"scenarios"`
	CallTypes       []string `json:"callTypes,omitempty"`
	Sentiments      []string `json:"sentiments,omitempty"`
	NumRecords      int      `json:"numRecords,omitempty"`
	MinTurns        int      `json:"minTurns,omitempty"`
	MaxTurns        int      `json:"maxTurns,omitempty"`
	IncludeMetadata *bool    `json:"includeMetadata,omitempty"`
}

// Job represents a batch generation job.
type Job struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	Config           GenerationConfig `json:"config"`
	Progress         float64          `json:"progress"`
	TotalRecords     int              `json:"totalRecords"`
	CompletedRecords int              `json:"completedRecords"`
	CreatedAt        string           `json:"createdAt"`
	CompletedAt      *string          `json:"completedAt,omitempty"`
	Error            *string          `json:"error,omitempty"`
}

// Terminal reports whether the job can no longer change.
func (j Job) Terminal() bool {
	return j.Status == "completed" || j.Status == "failed"
}

// Turn is one utterance in a transcript.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Transcript represents a generated call (partial).
type Transcript struct {
	ID       string `json:"id"`
	Industry string `json:"industry"`
	Scenario string `json:"scenario"`
	CallType string `json:"callType"`
	Customer struct {
		Name      string `json:"name"`
		Age       int    `json:"age"`
		Sentiment string `json:"sentiment"`
	} `json:"customer"`
	Agent struct {
		Name            string `json:"name"`
		ExperienceLevel string `json:"experienceLevel"`
	} `json:"agent"`
	Conversation []Turn         `json:"conversation"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    string         `json:"createdAt"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Preview generates up to five transcripts synchronously.
func (c *Client) Preview(ctx context.Context, cfg GenerationConfig) ([]Transcript, error) {
	var resp struct {
		Transcripts []Transcript `json:"transcripts"`
	}
	err := c.do(ctx, http.MethodPost, "generate/preview", normalize(cfg), &resp)
	return resp.Transcripts, err
}

// StartBatch queues a background job.
func (c *Client) StartBatch(ctx context.Context, cfg GenerationConfig) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, "generate/batch", normalize(cfg), &resp)
	return resp, err
}

// Job fetches a job by id.
func (c *Client) Job(ctx context.Context, id string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Jobs lists jobs newest first.
func (c *Client) Jobs(ctx context.Context, limit int) ([]Job, error) {
	endpoint := "jobs"
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}
	var resp []Job
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DeleteJob removes a job and its results.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "jobs/"+url.PathEscape(id), nil, nil)
}

// Results fetches the saved transcripts of a job.
func (c *Client) Results(ctx context.Context, id string) ([]Transcript, error) {
	var resp struct {
		Transcripts []Transcript `json:"transcripts"`
	}
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(id)+"/results", nil, &resp)
	return resp.Transcripts, err
}

// Download returns the export file body for format json, jsonl or csv.
func (c *Client) Download(ctx context.Context, id, format string) ([]byte, error) {
	endpoint := fmt.Sprintf("jobs/%s/download?format=%s", url.PathEscape(id), url.QueryEscape(format))
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, endpoint, nil, &buf)
	return buf.Bytes(), err
}

// WaitJob polls until the job is completed or failed.
func (c *Client) WaitJob(ctx context.Context, id string) (Job, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return job, err
		}
		if job.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// normalize sends an empty scenario list rather than null.
func normalize(cfg GenerationConfig) GenerationConfig {
	if cfg.Scenarios == nil {
		cfg.Scenarios = []string{}
	}
	return cfg
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case io.Writer:
		_, err := io.Copy(dst, resp.Body)
		return err
	default:
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
