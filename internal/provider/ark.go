package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/driftframe/backend/internal/models"
)

const defaultModel = "doubao-seedance-1-5-pro-251215"

// ArkClient talks to the Volcengine Ark content-generation API.
type ArkClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewArkClient builds a client against the given endpoint. The /api/v3 path
// segment is appended unless the endpoint already carries it.
func NewArkClient(endpoint, apiKey, model string) *ArkClient {
	base := strings.TrimRight(endpoint, "/")
	if !strings.HasSuffix(base, "/api/v3") {
		base += "/api/v3"
	}
	if model == "" {
		model = defaultModel
	}
	return &ArkClient{
		baseURL:    base,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type arkContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *arkImageURL `json:"image_url,omitempty"`
}

type arkImageURL struct {
	URL string `json:"url"`
}

type arkSubmitRequest struct {
	Model                 string           `json:"model"`
	Content               []arkContentPart `json:"content"`
	Ratio                 string           `json:"ratio,omitempty"`
	Resolution            string           `json:"resolution,omitempty"`
	Duration              int              `json:"duration,omitempty"`
	Frames                int              `json:"frames,omitempty"`
	Seed                  int              `json:"seed,omitempty"`
	CameraFixed           bool             `json:"camera_fixed,omitempty"`
	Watermark             bool             `json:"watermark,omitempty"`
	GenerateAudio         bool             `json:"generate_audio,omitempty"`
	Draft                 bool             `json:"draft,omitempty"`
	ServiceTier           string           `json:"service_tier,omitempty"`
	ExecutionExpiresAfter int              `json:"execution_expires_after,omitempty"`
	ReturnLastFrame       bool             `json:"return_last_frame,omitempty"`
}

func (c *ArkClient) Submit(ctx context.Context, mode models.JobMode, params models.GenerationParams) (string, error) {
	content := []arkContentPart{{Type: "text", Text: params.Prompt}}
	if mode == models.ModeImage {
		content = append(content, arkContentPart{
			Type:     "image_url",
			ImageURL: &arkImageURL{URL: params.ImageURL},
		})
	}

	body, err := json.Marshal(arkSubmitRequest{
		Model:                 c.model,
		Content:               content,
		Ratio:                 params.Ratio,
		Resolution:            params.Resolution,
		Duration:              params.Duration,
		Frames:                params.Frames,
		Seed:                  params.Seed,
		CameraFixed:           params.CameraFixed,
		Watermark:             params.Watermark,
		GenerateAudio:         params.GenerateAudio,
		Draft:                 params.Draft,
		ServiceTier:           params.ServiceTier,
		ExecutionExpiresAfter: params.ExecutionExpiresAfter,
		ReturnLastFrame:       params.ReturnLastFrame,
	})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/contents/generations/tasks", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrSubmission, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSubmission, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: response carried no task id", ErrSubmission)
	}
	return out.ID, nil
}

// arkPollResponse covers the response shapes the provider has been observed
// to return; the video URL can surface under output, content or result.
type arkPollResponse struct {
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
	Output  *arkVideoPayload `json:"output"`
	Content *arkVideoPayload `json:"content"`
	Result  *arkVideoPayload `json:"result"`
}

type arkVideoPayload struct {
	VideoURL  string   `json:"video_url"`
	VideoURLs []string `json:"video_urls"`
	Videos    []struct {
		URL string `json:"url"`
	} `json:"videos"`
}

func (p *arkVideoPayload) url() string {
	if p == nil {
		return ""
	}
	if p.VideoURL != "" {
		return p.VideoURL
	}
	if len(p.VideoURLs) > 0 {
		return p.VideoURLs[0]
	}
	if len(p.Videos) > 0 {
		return p.Videos[0].URL
	}
	return ""
}

func (c *ArkClient) Poll(ctx context.Context, providerJobID string) (PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/contents/generations/tasks/"+providerJobID, nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PollResult{}, fmt.Errorf("poll task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return PollResult{}, fmt.Errorf("poll task: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var body arkPollResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PollResult{}, fmt.Errorf("decode poll response: %w", err)
	}

	result := PollResult{Status: normalizeStatus(body.Status)}
	for _, p := range []*arkVideoPayload{body.Output, body.Content, body.Result} {
		if url := p.url(); url != "" {
			result.ResultURL = url
			break
		}
	}
	if body.Error != nil {
		result.ErrorDetail = body.Error.Message
	}
	return result, nil
}

func normalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending":
		return StatusQueued
	case "running", "processing":
		return StatusRunning
	case "succeeded":
		return StatusSucceeded
	case "failed", "canceled", "cancelled", "expired":
		return StatusFailed
	default:
		return StatusUnknown
	}
}
