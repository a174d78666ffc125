// internal/llmclient/genai_client.go
package llmclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	genai "google.golang.org/genai"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// GenAIClient implements schemas.LLMClient using the official Google GenAI
// SDK. Functionally equivalent to GoogleClient; useful where the SDK's
// transport handling (ADC, Vertex backends) is preferred over raw REST.
type GenAIClient struct {
	client *genai.Client
	logger *zap.Logger
	config config.ModelConfig
}

var _ schemas.LLMClient = (*GenAIClient)(nil)

// NewGenAIClient initializes the SDK client against the Gemini API backend.
func NewGenAIClient(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{
		client: client,
		logger: logger.Named("llm_client.genai"),
		config: cfg,
	}, nil
}

// Generate sends the request through the SDK and adapts the response.
func (c *GenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.UserPrompt)}
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Options.Temperature),
		MaxOutputTokens: int32(c.config.MaxTokens),
	}
	if c.config.TopP > 0 {
		genCfg.TopP = genai.Ptr(c.config.TopP)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	startTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, genCfg)
	if err != nil {
		return schemas.GenerationResult{}, schemas.NewAgentError(schemas.ErrProviderError, "genai generation failed", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return schemas.GenerationResult{}, schemas.NewAgentError(schemas.ErrProviderError, "genai returned no candidates", nil)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	var promptTokens, completionTokens int
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	c.logger.Info("LLM generation complete (GenAI SDK)",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", completionTokens),
	)

	return schemas.GenerationResult{
		Content: sb.String(),
		Usage: schemas.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			EstimatedCost:    estimateCost(c.config, promptTokens, completionTokens),
		},
	}, nil
}
