package analysis

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dagpulse/dagpulse/internal/config"
	"github.com/dagpulse/dagpulse/internal/models"
)

const systemPrompt = `You are an expert data engineer analyzing workflow orchestrator failures.
Analyze the failed runs and provide:
1. A concise executive summary (2-3 sentences)
2. Categories of failures (group similar failures)
3. Specific action items to resolve the issues, prioritized by impact

Respond with JSON in this exact format:
{
  "summary": "executive summary",
  "categories": [
    {"name": "Category Name", "count": 1, "dag_ids": ["dag1"], "description": "cause"}
  ],
  "action_items": [
    {"priority": "high|medium|low", "title": "Action", "description": "details", "affected_dags": ["dag1"]}
  ]
}`

// OpenAIProvider is the chat-completion analysis provider.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider builds a provider, or nil when analysis is disabled or
// no API key is configured.
func NewOpenAIProvider(cfg config.AnalysisConfig) *OpenAIProvider {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

func (p *OpenAIProvider) Analyze(ctx context.Context, prompt string) (models.FailureAnalysis, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
		MaxTokens:   2000,
	})
	if err != nil {
		return models.FailureAnalysis{}, errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return models.FailureAnalysis{}, errors.New("provider returned no choices")
	}

	var analysis models.FailureAnalysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return models.FailureAnalysis{}, errors.Wrap(err, "decode analysis response")
	}
	return analysis, nil
}
