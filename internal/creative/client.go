package creative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/adforge/backend/config"
)

// Client wraps the GenAI API for brief generation, caption scoring, product
// image analysis, and image rendering. All calls carry a per-call timeout and
// retry quota errors with exponential backoff.
type Client struct {
	client      *genai.Client
	textModel   string
	imageModel  string
	callTimeout time.Duration
	maxRetries  int
	logger      *zap.Logger
}

// NewClient creates a generation client from config.
func NewClient(ctx context.Context, cfg config.GenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GENAI_API_KEY is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := time.Duration(cfg.CallTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		client:      gc,
		textModel:   cfg.TextModel,
		imageModel:  cfg.ImageModel,
		callTimeout: timeout,
		maxRetries:  maxRetries,
		logger:      logger,
	}, nil
}

// AnalyzeProductImage extracts exact visual product details from an uploaded
// photo as a JSON description, used to anchor image prompts to the real
// product. Returns the raw JSON text.
func (c *Client) AnalyzeProductImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(imageAnalysisPrompt),
		}, genai.RoleUser),
	}
	raw, err := c.generateText(ctx, contents)
	if err != nil {
		return "", fmt.Errorf("analyze product image: %w", err)
	}
	// Validate that the response carries a JSON object before handing it on.
	if _, err := extractJSON(raw); err != nil {
		return "", fmt.Errorf("analyze product image: %w", err)
	}
	return raw, nil
}

// CreativeBrief generates the campaign brief: product name plus per-platform
// caption and image prompt.
func (c *Client) CreativeBrief(ctx context.Context, productText, imageAnalysis string, platforms []string) (*Brief, error) {
	contents := genai.Text(briefPrompt(productText, imageAnalysis, platforms))
	raw, err := c.generateText(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("creative brief: %w", err)
	}
	brief, err := parseBrief(raw)
	if err != nil {
		return nil, fmt.Errorf("creative brief: %w", err)
	}
	c.logger.Debug("creative brief generated",
		zap.String("product_name", brief.ProductName),
		zap.Int("platforms", len(brief.Platforms)))
	return brief, nil
}

// ScoreCaption returns persuasiveness/clarity scores and feedback for one caption.
func (c *Client) ScoreCaption(ctx context.Context, caption string) (*CaptionScore, error) {
	raw, err := c.generateText(ctx, genai.Text(scorePrompt(caption)))
	if err != nil {
		return nil, fmt.Errorf("score caption: %w", err)
	}
	score, err := parseScore(raw)
	if err != nil {
		return nil, fmt.Errorf("score caption: %w", err)
	}
	return score, nil
}

// GenerateImage renders a 1:1 PNG for the prompt and returns its bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "1:1",
		OutputMIMEType: "image/png",
	}
	var data []byte
	err := c.withRetry(ctx, "generate image", func(callCtx context.Context) error {
		resp, err := c.client.Models.GenerateImages(callCtx, c.imageModel, enhanceImagePrompt(prompt), cfg)
		if err != nil {
			return err
		}
		if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
			return fmt.Errorf("empty image response")
		}
		data = resp.GeneratedImages[0].Image.ImageBytes
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	return data, nil
}

// generateText runs a structured-JSON text generation call with retry.
func (c *Client) generateText(ctx context.Context, contents []*genai.Content) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	var text string
	err := c.withRetry(ctx, "generate content", func(callCtx context.Context) error {
		resp, err := c.client.Models.GenerateContent(callCtx, c.textModel, contents, cfg)
		if err != nil {
			return err
		}
		out := resp.Text()
		if out == "" {
			return fmt.Errorf("empty text response")
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// withRetry runs fn with the per-call timeout, retrying transient failures.
// Quota errors back off exponentially; other errors retry after a short wait.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Second
			if isQuotaError(lastErr) {
				wait = time.Duration(1<<uint(attempt-1)) * time.Second
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("genai call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return fmt.Errorf("after %d attempts: %w", c.maxRetries, lastErr)
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted")
}
