// Package gemini wraps the two-stage hairstyle transfer against the
// generative language API: a description-extraction call on the style image
// followed by a synthesis call on the person's image.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/keshin-shop/api/internal/config"
	"github.com/keshin-shop/api/pkg/retry"
)

const (
	descriptionTemperature = 0.6
	synthesisTemperature   = 1.0

	descriptionFailedMsg = "Could not generate hairstyle description from the provided style image."
	synthesisFailedMsg   = "Failed to generate the new hairstyle image."
	internalErrorMsg     = "An internal server error occurred."
)

// Output is the synthesized image returned by a successful transfer.
type Output struct {
	ImageBase64 string
	MimeType    string
}

// TransformError is a terminal transfer failure carrying curated user-facing
// text. UserSubMessage is only set for the capacity-exhaustion case.
type TransformError struct {
	Message        string
	UserSubMessage string
	cause          error
}

func (e *TransformError) Error() string { return e.Message }
func (e *TransformError) Unwrap() error { return e.cause }

// Client calls the generative language REST API directly.
type Client struct {
	apiKey          string
	endpoint        string
	model           string
	generateTimeout time.Duration
	retryOpts       retry.Options
	httpClient      *http.Client
}

func NewClient(cfg config.GeminiConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	return &Client{
		apiKey:          cfg.APIKey,
		endpoint:        strings.TrimSuffix(cfg.Endpoint, "/"),
		model:           cfg.Model,
		generateTimeout: cfg.GenerateTimeout,
		retryOpts: retry.Options{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.InitialDelay,
			ShouldRetry:  shouldRetry,
		},
		httpClient: &http.Client{},
	}, nil
}

// Wire types for the generateContent endpoint.

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

// apiError preserves the upstream status code so the retry classifier and
// the capacity translation can inspect it.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.status, e.body)
}

// shouldRetry treats 5xx responses and transport failures as transient;
// client-side rejections are never retried.
func shouldRetry(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Transform runs the two-stage transfer. Failures are returned as a
// *TransformError with curated user-facing text.
func (c *Client) Transform(ctx context.Context, sourceImage []byte, sourceMime string, targetImage []byte, targetMime string) (*Output, error) {
	if c.generateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.generateTimeout)
		defer cancel()
	}

	// Stage 1: extract a textual hairstyle description from the style image.
	slog.Info("generating hairstyle description from style image")
	description, err := c.describeHairstyle(ctx, sourceImage, sourceMime)
	if err != nil {
		return nil, asTransformError(err)
	}
	if strings.TrimSpace(description) == "" {
		slog.Error("description stage returned empty text")
		return nil, &TransformError{Message: descriptionFailedMsg}
	}

	// Stage 2: apply the described hairstyle to the person's image.
	slog.Info("applying hairstyle to person image", "description_len", len(description))
	out, err := c.synthesize(ctx, targetImage, targetMime, description)
	if err != nil {
		return nil, asTransformError(err)
	}
	return out, nil
}

func (c *Client) describeHairstyle(ctx context.Context, image []byte, mimeType string) (string, error) {
	req := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				imagePart(image, mimeType),
				{Text: descriptionPrompt},
			},
		}},
		GenerationConfig: &generationConfig{Temperature: descriptionTemperature},
	}

	var resp *generateResponse
	err := retry.Do(ctx, c.retryOpts, func() error {
		var callErr error
		resp, callErr = c.generateContent(ctx, req)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return firstText(resp), nil
}

func (c *Client) synthesize(ctx context.Context, image []byte, mimeType, description string) (*Output, error) {
	req := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				imagePart(image, mimeType),
				{Text: synthesisPrompt(description)},
			},
		}},
		GenerationConfig: &generationConfig{Temperature: synthesisTemperature},
	}

	var resp *generateResponse
	err := retry.Do(ctx, c.retryOpts, func() error {
		var callErr error
		resp, callErr = c.generateContent(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	// The response must carry a part with inline image data.
	img := firstInlineImage(resp)
	if img == nil {
		slog.Error("synthesis response contained no inline image data")
		return nil, &TransformError{Message: synthesisFailedMsg}
	}
	return &Output{ImageBase64: img.Data, MimeType: img.MimeType}, nil
}

func (c *Client) generateContent(ctx context.Context, payload generateRequest) (*generateResponse, error) {
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &apiError{status: resp.StatusCode, body: string(body)}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func imagePart(data []byte, mimeType string) part {
	return part{InlineData: &inlineData{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}}
}

func firstText(resp *generateResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func firstInlineImage(resp *generateResponse) *inlineData {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return p.InlineData
		}
	}
	return nil
}

// asTransformError maps retry-layer failures onto curated user-facing
// errors. Capacity exhaustion keeps its two-part message; everything else
// collapses to the generic internal error with the cause retained for logs.
func asTransformError(err error) error {
	var te *TransformError
	if errors.As(err, &te) {
		return te
	}
	var capErr *retry.CapacityError
	if errors.As(err, &capErr) {
		return &TransformError{
			Message:        capErr.UserMessage,
			UserSubMessage: capErr.UserSubMessage,
			cause:          capErr,
		}
	}
	return &TransformError{Message: internalErrorMsg, cause: err}
}
