// Package ai holds the provider clients behind the decision engine: an
// Anthropic-backed status classifier and an HTTP embedding client, each
// wrapped in shared retry, rate-limit, and circuit-breaker discipline.
package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Model selection for classification.
//
// Status classification is a tiny task (the reply is a single digit), so the
// default is the cost-efficient model.
//
// Environment variable override:
// - TALLY_CLASSIFIER_MODEL: Override the classifier model
const (
	// ModelSonnet is the high-end model for complex reasoning tasks
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model for simple tasks
	ModelHaiku = "claude-3-5-haiku-20241022"
)

// GetClassifierModel returns the classifier model, checking the
// TALLY_CLASSIFIER_MODEL env var first.
func GetClassifierModel() string {
	if model := os.Getenv("TALLY_CLASSIFIER_MODEL"); model != "" {
		return model
	}
	return ModelHaiku
}

// classifierMaxTokens caps the reply; the expected answer is one digit.
const classifierMaxTokens = 10

// Classifier asks a model whether a message reports a new issue or announces
// a resolution. It returns the model's raw text; interpreting it (including
// fail-safing garbage to "new") is the decision engine's job.
type Classifier struct {
	client *anthropic.Client
	model  string
	caller *caller
}

// ClassifierConfig holds classifier configuration.
type ClassifierConfig struct {
	APIKey string      // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model  string      // Model to use (default: GetClassifierModel())
	Retry  RetryConfig // Retry configuration (uses defaults if not specified)
}

// NewClassifier creates a status classifier backed by the Anthropic API.
func NewClassifier(cfg *ClassifierConfig) (*Classifier, error) {
	if cfg == nil {
		cfg = &ClassifierConfig{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetClassifierModel()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Classifier{
		client: &client,
		model:  model,
		caller: newCaller("classifier", cfg.Retry),
	}, nil
}

// buildStatusPrompt asks for a bare digit so the reply parses trivially.
func buildStatusPrompt(message string) string {
	return fmt.Sprintf(`You are a message classifier that determines if a message is reporting a new issue or indicating completion.

Analyze this message and determine if it's reporting a new issue or indicating completion.
Message: %s

Return only:
0 for new issue
2 for completion/resolution`, message)
}

// ClassifyStatus returns the model's verdict on the message as raw text,
// normally "0" or "2". Transport failures wrap ErrClassificationFailed.
func (c *Classifier) ClassifyStatus(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message must not be empty", ErrClassificationFailed)
	}

	prompt := buildStatusPrompt(message)

	var response *anthropic.Message
	err := c.caller.do(ctx, "status classification", func(attemptCtx context.Context) error {
		resp, apiErr := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: classifierMaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrClassificationFailed, err)
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}
	return responseText, nil
}

// HealthCheck reports whether the classifier will accept requests.
func (c *Classifier) HealthCheck(ctx context.Context) error {
	return c.caller.health()
}
