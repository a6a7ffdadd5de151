package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// doer interface for HTTP execution (allows mocking in tests).
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements the Generator interface over the service's HTTP API.
type Client struct {
	config Config
	http   doer
	logger *slog.Logger
}

// NewClient creates a new dialogue service client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.MaxPollAttempts == 0 {
		config.MaxPollAttempts = DefaultMaxPollAttempts
	}

	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.RequestTimeout},
		logger: slog.Default().With(slog.String("component", "backend.client")),
	}, nil
}

// setDoer injects a mock HTTP executor for tests.
func (c *Client) setDoer(d doer) {
	c.http = d
}

// Wire shapes for the service API.

type createSessionResponse struct {
	ConversationID string `json:"conversation_id"`
}

type generateRequestBody struct {
	Topic        string        `json:"topic"`
	Participants []wireSpeaker `json:"participants"`
	UserMessage  string        `json:"user_message,omitempty"`
	SpeakerName  string        `json:"speaker_name,omitempty"`
	Language     string        `json:"language"`
	Model        string        `json:"model,omitempty"`
}

type wireSpeaker struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Personality string `json:"personality"`
	Bio         string `json:"bio,omitempty"`
}

type generateResponseBody struct {
	Status  string         `json:"status"`
	JobID   string         `json:"job_id,omitempty"`
	Content string         `json:"content,omitempty"`
	Error   *wireErrorInfo `json:"error,omitempty"`
}

type wireErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateSession requests a new remote conversational context.
// Fails with BackendUnavailableError when credentials are missing or the
// transport fails; the caller owns any retry decision.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	if c.config.APIKey == "" {
		return "", &BackendUnavailableError{Reason: "API key is not configured"}
	}

	body, err := c.roundTrip(ctx, http.MethodPost, "/v1/conversations", nil)
	if err != nil {
		return "", err
	}

	var resp createSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &BackendUnavailableError{Reason: fmt.Sprintf("bad create-session response: %v", err)}
	}
	if resp.ConversationID == "" {
		return "", &BackendUnavailableError{Reason: "create-session response missing conversation_id"}
	}

	c.logger.DebugContext(ctx, "Created remote conversation",
		slog.String("external_id", resp.ConversationID),
	)
	return resp.ConversationID, nil
}

// Generate submits one turn on an existing remote conversation and returns
// the parsed dialogue batch. A "processing" response is polled at a fixed
// interval up to MaxPollAttempts; exhaustion is a GenerationTimeoutError.
// No error is retried inside this method.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if c.config.APIKey == "" {
		return nil, &BackendUnavailableError{Reason: "API key is not configured"}
	}
	if req.ExternalID == "" {
		return nil, fmt.Errorf("external session ID cannot be empty")
	}
	if len(req.Participants) == 0 {
		return nil, fmt.Errorf("participant roster cannot be empty")
	}

	reqBody := generateRequestBody{
		Topic:       req.Topic,
		UserMessage: req.UserMessage,
		SpeakerName: req.SpeakerName,
		Language:    req.Language,
		Model:       c.config.Model,
	}
	for _, p := range req.Participants {
		reqBody.Participants = append(reqBody.Participants, wireSpeaker{
			ID:          p.ID,
			Name:        p.Name,
			Personality: p.Personality,
			Bio:         p.Bio,
		})
	}

	path := fmt.Sprintf("/v1/conversations/%s/dialogue", req.ExternalID)
	body, err := c.roundTrip(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return nil, err
	}

	var resp generateResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &UnparseableResponseError{Reason: fmt.Sprintf("bad generate response: %v", err)}
	}

	content, err := c.resolveContent(ctx, resp)
	if err != nil {
		return nil, err
	}

	lines, err := parseDialogue(content)
	if err != nil {
		return nil, err
	}

	return &GenerateResult{Lines: lines}, nil
}

// resolveContent returns the dialogue text, polling the job endpoint when the
// service answered asynchronously.
func (c *Client) resolveContent(ctx context.Context, resp generateResponseBody) (string, error) {
	if resp.Status != "processing" {
		if resp.Content == "" {
			return "", &UnparseableResponseError{Reason: "completed response has no content"}
		}
		return resp.Content, nil
	}

	if resp.JobID == "" {
		return "", &UnparseableResponseError{Reason: "processing response has no job_id"}
	}
	return c.pollJob(ctx, resp.JobID)
}

// pollJob checks job status at a fixed interval with an explicit attempt
// counter. An exhausted budget is GenerationTimeout, never expiry.
func (c *Client) pollJob(ctx context.Context, jobID string) (string, error) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.config.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("generation canceled while polling: %w", ctx.Err())
		case <-ticker.C:
		}

		body, err := c.roundTrip(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil)
		if err != nil {
			return "", err
		}

		var status generateResponseBody
		if err := json.Unmarshal(body, &status); err != nil {
			return "", &UnparseableResponseError{Reason: fmt.Sprintf("bad job status: %v", err)}
		}

		switch status.Status {
		case "processing", "queued":
			c.logger.DebugContext(ctx, "Job still processing",
				slog.String("job_id", jobID),
				slog.Int("attempt", attempt),
			)
		case "failed":
			if status.Error != nil {
				return "", &RemoteError{Code: status.Error.Code, Message: status.Error.Message}
			}
			return "", &RemoteError{Message: "job failed without detail"}
		default:
			if status.Content == "" {
				return "", &UnparseableResponseError{Reason: "completed job has no content"}
			}
			return status.Content, nil
		}
	}

	return "", &GenerationTimeoutError{Attempts: c.config.MaxPollAttempts}
}

// roundTrip performs one HTTP exchange and maps transport and service errors
// to the package taxonomy.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &BackendUnavailableError{Reason: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &BackendUnavailableError{Reason: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, remoteErrorFromBody(resp.StatusCode, body)
	}

	return body, nil
}

// remoteErrorFromBody extracts the service's structured error when present,
// falling back to the raw status.
func remoteErrorFromBody(statusCode int, body []byte) error {
	var wrapper struct {
		Error *wireErrorInfo `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil {
		return &RemoteError{Code: wrapper.Error.Code, Message: wrapper.Error.Message}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return &RemoteError{
		Code:    fmt.Sprintf("HTTP_%d", statusCode),
		Message: msg,
	}
}
