package image

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felichat/felichat/internal/felichat/apicall"
)

const (
	defaultBaseURL = "https://api.stability.ai"
	defaultEngine  = "stable-diffusion-xl-1024-v1-0"
	defaultSteps   = 30
	defaultSamples = 1
)

// Artifact finish reasons reported by the generation endpoint.
const (
	finishSuccess  = "SUCCESS"
	finishFiltered = "CONTENT_FILTERED"
)

// Config configures the image-generation client.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Defaults to the Stability API.
	BaseURL string

	// Engine is the generation engine identifier embedded in the URL path.
	Engine string

	// Steps is the number of diffusion steps per image.
	Steps int

	// Samples is the number of images requested per call.
	Samples int
}

// GenerateResult is the envelope-shaped outcome of one generation call.
// ImageB64 is populated only when Status is apicall.StatusOK and the prompt
// was not filtered.
type GenerateResult struct {
	Status  apicall.Status
	Message string
	// ImageB64 is the base64-encoded PNG, empty when Filtered.
	ImageB64 string
	// Filtered reports that the endpoint accepted the call but withheld the
	// image for content-policy reasons.  A filtered result is a success at
	// the transport level; callers surface it as a warning.
	Filtered bool
}

// OK reports whether the generation call succeeded.
func (r GenerateResult) OK() bool {
	return r.Status == apicall.StatusOK
}

// Client calls a Stability-compatible text-to-image endpoint.  Safe for
// concurrent use.
type Client struct {
	cfg    Config
	caller *apicall.Client
}

// New returns a Client that issues generation calls through the executor.
func New(cfg Config, caller *apicall.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Engine == "" {
		cfg.Engine = defaultEngine
	}
	if cfg.Steps <= 0 {
		cfg.Steps = defaultSteps
	}
	if cfg.Samples <= 0 {
		cfg.Samples = defaultSamples
	}
	return &Client{cfg: cfg, caller: caller}
}

type generateRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	Steps       int          `json:"steps"`
	Samples     int          `json:"samples"`
}

type textPrompt struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Artifacts []artifact `json:"artifacts"`
}

type artifact struct {
	Base64       string `json:"base64"`
	FinishReason string `json:"finishReason"`
	Seed         int64  `json:"seed"`
}

// Generate renders prompt and returns the first usable artifact.  A prompt
// rejected by the content filter is not an error: the result carries
// Filtered=true and no image so the caller can warn and continue text-only.
func (c *Client) Generate(ctx context.Context, prompt string) GenerateResult {
	body := generateRequest{
		TextPrompts: []textPrompt{{Text: prompt}},
		Steps:       c.cfg.Steps,
		Samples:     c.cfg.Samples,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
		"Accept":        "application/json",
	}

	url := fmt.Sprintf("%s/v1/generation/%s/text-to-image", c.cfg.BaseURL, c.cfg.Engine)
	env := c.caller.PostJSON(ctx, url, headers, body)
	if !env.OK() {
		return GenerateResult{Status: env.Status, Message: env.Message}
	}

	var resp generateResponse
	if err := json.Unmarshal(env.Body, &resp); err != nil {
		return GenerateResult{
			Status:  apicall.StatusMalformed,
			Message: fmt.Sprintf("image: decode API response: %v", err),
		}
	}

	if len(resp.Artifacts) == 0 {
		return GenerateResult{
			Status:  apicall.StatusMalformed,
			Message: "image: no artifacts returned in generation response",
		}
	}

	filtered := false
	for _, a := range resp.Artifacts {
		switch a.FinishReason {
		case finishSuccess:
			return GenerateResult{
				Status:   apicall.StatusOK,
				Message:  "success",
				ImageB64: a.Base64,
			}
		case finishFiltered:
			filtered = true
		}
	}

	if filtered {
		return GenerateResult{
			Status:   apicall.StatusOK,
			Message:  "image withheld by content filter",
			Filtered: true,
		}
	}

	return GenerateResult{
		Status:  apicall.StatusMalformed,
		Message: "image: no successful artifact in generation response",
	}
}
