// Package analyzer asks a language model for a security review of a workflow run.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ryo246912/gh-actions-scan/internal/metrics"
	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxLogChars = 60000
	// ProviderName tags cache entries produced by this analyzer
	ProviderName = "openai"
)

// Config configures the OpenAI analyzer
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxLogChars int
	Logger      *slog.Logger
}

// OpenAI analyzes workflows with an OpenAI-compatible chat completion endpoint
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxLogChars int
	validate    *validator.Validate
	now         func() time.Time
	logger      *slog.Logger
}

// response is the JSON document the model is asked to produce
type response struct {
	OverallRisk models.RiskLevel       `json:"overallRisk" validate:"required,oneof=critical high medium low"`
	Summary     string                 `json:"summary" validate:"required"`
	Issues      []models.SecurityIssue `json:"issues" validate:"required,dive"`
}

// NewOpenAI creates an analyzer
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, &models.Error{Kind: models.KindInvalidInput, Message: "analyzer API key is not set (OPENAI_API_KEY)"}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxLogChars := cfg.MaxLogChars
	if maxLogChars == 0 {
		maxLogChars = DefaultMaxLogChars
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxLogChars: maxLogChars,
		validate:    validator.New(),
		now:         time.Now,
		logger:      logger,
	}, nil
}

// Provider returns the tag stored alongside cached results
func (o *OpenAI) Provider() string {
	return ProviderName
}

// Analyze reviews a workflow definition and the logs of its latest run
func (o *OpenAI) Analyze(ctx context.Context, workflowContent, logs, workflowName string) (*models.AnalysisResult, error) {
	start := time.Now()
	result, err := o.analyze(ctx, workflowContent, logs, workflowName)
	metrics.AnalyzerDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalyzerCalls.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.AnalyzerCalls.WithLabelValues("ok").Inc()
	return result, nil
}

func (o *OpenAI) analyze(ctx context.Context, workflowContent, logs, workflowName string) (*models.AnalysisResult, error) {
	o.logger.Debug("requesting security analysis", "model", o.model, "workflow", workflowName)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(workflowName, workflowContent, logs, o.maxLogChars)},
		},
		Temperature: o.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, models.NewError(models.KindAnalysis, "analyzer request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, models.NewError(models.KindAnalysis, "analyzer returned no choices", nil)
	}

	parsed, err := o.parse(resp.Choices[0].Message.Content)
	if err != nil {
		o.logger.Warn("unusable analyzer response",
			"workflow", workflowName,
			"finish_reason", resp.Choices[0].FinishReason,
			"length", len(resp.Choices[0].Message.Content),
			"error", err)
		return nil, models.NewError(models.KindAnalysis, "analyzer returned an unusable response", err)
	}

	return &models.AnalysisResult{
		AnalysisID:  uuid.NewString(),
		Timestamp:   o.now().UTC(),
		OverallRisk: parsed.OverallRisk,
		Summary:     parsed.Summary,
		Issues:      parsed.Issues,
	}, nil
}

// parse extracts the outermost JSON object from text and validates it.
// Control characters inside the object are blanked on a second attempt.
func (o *OpenAI) parse(text string) (*response, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in response")
	}
	raw := text[start : end+1]

	var parsed response
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		cleaned := strings.Map(func(r rune) rune {
			if r < 0x20 || r == 0x7f {
				return ' '
			}
			return r
		}, raw)
		parsed = response{}
		if err2 := json.Unmarshal([]byte(cleaned), &parsed); err2 != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
	}

	if parsed.Issues == nil {
		return nil, errors.New("response has no issues array")
	}
	if err := o.validate.Struct(parsed); err != nil {
		return nil, fmt.Errorf("invalid response structure: %w", err)
	}
	return &parsed, nil
}
