package planner

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/forgebot/internal/config"
)

// BedrockGenerator runs completions through AWS Bedrock using the
// Anthropic messages payload.
type BedrockGenerator struct {
	client    *bedrockruntime.Client
	modelName string
}

var _ Generator = (*BedrockGenerator)(nil)

// NewBedrockGenerator creates a Bedrock-backed generator. Credentials
// come from the standard AWS chain.
func NewBedrockGenerator(cfg config.Config) (*BedrockGenerator, error) {
	if cfg.BedrockRegion == "" {
		return nil, fmt.Errorf("%w: Bedrock region required", ErrConfig)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, fmt.Errorf("%w: load AWS config: %v", ErrConfig, err)
	}
	return &BedrockGenerator{
		client:    bedrockruntime.NewFromConfig(awsCfg),
		modelName: cfg.LLMModel,
	}, nil
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Temperature      float64          `json:"temperature"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// GenerateWithSystem invokes the model and returns the first text block.
func (g *BedrockGenerator) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        8192,
		System:           systemPrompt,
		Temperature:      0.3,
		Messages: []bedrockMessage{
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal bedrock request: %w", err)
	}

	contentType := "application/json"
	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &g.modelName,
		ContentType: &contentType,
		Accept:      &contentType,
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("%w: bedrock invoke: %v", ErrTransport, err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode bedrock response: %v", ErrTransport, err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("%w: empty bedrock response", ErrTransport)
	}
	return resp.Content[0].Text, nil
}

// Model returns the Bedrock model id.
func (g *BedrockGenerator) Model() string {
	return g.modelName
}
