// Package classifier implements integration with Google's Gemini API.
// It moderates reviews, summarizes them, and powers the AI assistant.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/madiyar/cityguidebot/internal/config"
)

// Verdict is the structured moderation result for a single review.
type Verdict struct {
	IsSpam  bool   `json:"is_spam"`
	Summary string `json:"summary"`
}

// Client defines the AI operations used throughout the application.
// Callers treat every error as a soft failure and degrade to safe defaults.
type Client interface {
	// AnalyzeReview moderates a review text and returns a verdict.
	AnalyzeReview(ctx context.Context, text string) (Verdict, error)

	// SummarizeReviews condenses published review texts into a short
	// aggregate description of the place.
	SummarizeReviews(ctx context.Context, texts []string) (string, error)

	// GenerateRecommendation answers an assistant query grounded on a
	// pre-built city context block.
	GenerateRecommendation(ctx context.Context, query, cityContext, cityName string) (string, error)
}

type sdkClient struct {
	genaiClient      *genai.Client
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	maxRetries       int
	retryDelay       time.Duration
}

// NewClient creates a new Gemini client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "classifier")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:      gi,
		log:              logger,
		contentConfig:    baseCfg,
		defaultModelName: cfg.ModelName,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.defaultModelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry",
			"attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError",
					"delay", c.retryDelay, "code", apiErr.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries with APIError",
				"error", err, "code", apiErr.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w",
				c.maxRetries, apiErr.Code, err)
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"is_spam": {Type: genai.TypeBoolean, Description: "Whether the review looks like spam."},
		"summary": {Type: genai.TypeString, Description: "One-sentence summary of the review. Empty when spam."},
	},
	Required: []string{"is_spam", "summary"},
}

func (c *sdkClient) AnalyzeReview(ctx context.Context, text string) (Verdict, error) {
	c.log.DebugContext(ctx, "Analyzing review", "text_len", len(text))

	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf(moderationPromptTemplate, text), genai.RoleUser),
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: moderationSystemInstruction}}}
	copyCfg.ResponseMIMEType = "application/json"
	copyCfg.ResponseSchema = verdictSchema

	resp, err := c.generateContentWithRetries(ctx, contents, &copyCfg)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to analyze review: %w", err)
	}

	jsonText, err := c.extractTextFromResponse(ctx, resp, "analyze_review")
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to extract verdict response: %w", err)
	}

	verdict, err := ParseVerdict(jsonText)
	if err != nil {
		c.log.ErrorContext(ctx, "Failed to parse verdict JSON", "error", err, "response_text", jsonText)
		return Verdict{}, fmt.Errorf("invalid verdict JSON received: %w", err)
	}

	c.log.DebugContext(ctx, "Review analyzed", "is_spam", verdict.IsSpam)
	return verdict, nil
}

// ParseVerdict decodes a moderation verdict from the model's JSON output.
func ParseVerdict(raw string) (Verdict, error) {
	var verdict Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &verdict); err != nil {
		return Verdict{}, err
	}
	verdict.Summary = strings.TrimSpace(verdict.Summary)
	return verdict, nil
}

func (c *sdkClient) SummarizeReviews(ctx context.Context, texts []string) (string, error) {
	c.log.DebugContext(ctx, "Summarizing reviews", "count", len(texts))
	if len(texts) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, text)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf(summaryPromptTemplate, sb.String()), genai.RoleUser),
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: summarySystemInstruction}}}

	resp, err := c.generateContentWithRetries(ctx, contents, &copyCfg)
	if err != nil {
		return "", fmt.Errorf("failed to summarize reviews: %w", err)
	}

	summary, err := c.extractTextFromResponse(ctx, resp, "summarize_reviews")
	if err != nil {
		return "", fmt.Errorf("failed to extract summary response: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

func (c *sdkClient) GenerateRecommendation(ctx context.Context, query, cityContext, cityName string) (string, error) {
	c.log.DebugContext(ctx, "Generating recommendation", "city", cityName, "query_len", len(query))

	contents := []*genai.Content{
		genai.NewContentFromText(
			fmt.Sprintf(assistantPromptTemplate, query, cityName, cityContext),
			genai.RoleUser,
		),
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: assistantSystemInstruction}}}
	copyCfg.Tools = append(copyCfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})

	resp, err := c.generateContentWithRetries(ctx, contents, &copyCfg)
	if err != nil {
		return "", fmt.Errorf("failed to generate recommendation: %w", err)
	}

	text, err := c.extractTextFromResponse(ctx, resp, "generate_recommendation")
	if err != nil {
		return "", fmt.Errorf("failed to extract recommendation response: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse, op string) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", fmt.Errorf("%s blocked by safety filter: %s", op, reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content",
			"operation", op, "finish_reason", finishReason)
		return "", fmt.Errorf("%s returned empty content (finish reason: %s)", op, finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%s returned empty text", op)
	}
	return text, nil
}
