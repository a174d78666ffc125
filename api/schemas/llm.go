// api/schemas/llm.go
package schemas

import "context"

// -- LLM Client Schemas --

// ModelTier selects which configured model a request is routed to.
type ModelTier string

const (
	// TierFast is for cheap auxiliary work (history summarization).
	TierFast ModelTier = "fast"
	// TierPowerful is for the main decision requests.
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions tunes a single generation request.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// ImageAttachment is an opaque image handed to a vision-capable model.
type ImageAttachment struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// GenerationRequest is the provider-independent request shape.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Images       []ImageAttachment `json:"images,omitempty"`
	Options      GenerationOptions `json:"options"`
	Tier         ModelTier         `json:"tier,omitempty"`
}

// GenerationResult carries the model output plus the usage accounting the
// task-level cost ceiling is enforced against.
type GenerationResult struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
}

// LLMClient abstracts a single LLM provider endpoint (or a router over
// several). Implementations own their transport, retries and timeouts.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}
