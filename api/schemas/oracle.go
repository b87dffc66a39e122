package schemas

import "context"

// ModelTier selects between the configured oracle backends.
type ModelTier string

const (
	// TierFast is the cheap, low-latency model for routine decisions.
	TierFast ModelTier = "fast"
	// TierPowerful is the strongest configured model, used for planning.
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions tunes a single oracle generation call.
type GenerationOptions struct {
	ForceJSONFormat bool    `json:"force_json_format,omitempty"`
	Temperature     float32 `json:"temperature,omitempty"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
}

// GenerationRequest is a single prompt round-trip to an oracle backend.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier,omitempty"`
	Options      GenerationOptions `json:"options,omitempty"`
}

// OracleClient is the raw text-generation contract implemented by the model
// backends. The decision layer built on top of it turns free-form model text
// into ActionProposals.
type OracleClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
