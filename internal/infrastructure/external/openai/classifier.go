package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/port"
)

// Config holds OpenAI classifier settings
type Config struct {
	APIKey  string
	BaseURL string // empty uses the public API
	Model   string
}

// Classifier implements port.Classifier with a chat completion call
type Classifier struct {
	client  *openai.Client
	model   string
	prompts *PromptConfig
	logger  *zap.Logger
}

var _ port.Classifier = (*Classifier)(nil)

// classificationResponse is the JSON object the model is asked to return
type classificationResponse struct {
	CandidateIndex *int    `json:"candidate_index"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// NewClassifier creates a new OpenAI classifier. prompts may be nil.
func NewClassifier(cfg Config, prompts *PromptConfig, logger *zap.Logger) *Classifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}

	return &Classifier{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		prompts: prompts,
		logger:  logger,
	}
}

// Classify asks the model which shortlisted candidate the invoice line belongs to
func (c *Classifier) Classify(ctx context.Context, req port.ClassificationRequest) (*port.ClassificationResult, error) {
	if len(req.Candidates) == 0 {
		return nil, errors.New("no candidates to classify")
	}

	spec := c.prompts.Classification
	prompt, err := renderTemplate(spec.UserTemplate, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: spec.Temperature,
		MaxTokens:   spec.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: spec.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	parsed, err := parseResponse(content)
	if err != nil {
		c.logger.Error("Failed to parse OpenAI response",
			zap.Error(err),
			zap.String("content", content))
		return nil, err
	}

	c.logger.Debug("Classification completed",
		zap.String("description", req.Description),
		zap.Int("candidate_index", *parsed.CandidateIndex),
		zap.Float64("confidence", parsed.Confidence))

	return &port.ClassificationResult{
		CandidateIndex: *parsed.CandidateIndex,
		Confidence:     clamp01(parsed.Confidence),
		Reasoning:      strings.TrimSpace(parsed.Reasoning),
	}, nil
}

// parseResponse decodes the model output, falling back to the first JSON
// object embedded in prose or a fenced block
func parseResponse(content string) (*classificationResponse, error) {
	var result classificationResponse
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	if result.CandidateIndex == nil {
		return nil, errors.New("response is missing candidate_index")
	}
	if math.IsNaN(result.Confidence) {
		return nil, errors.New("response confidence is not a number")
	}
	return &result, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// extractJSON returns the first balanced JSON object in content
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
