package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/conch/pkg/provider/llm"
)

// errEmptyCompletion is returned by [Generate] when the model answered with
// nothing but whitespace.
var errEmptyCompletion = errors.New("oracle: generate: empty completion")

// Generate sends prompt to gen as a single user turn with an optional system
// prompt and returns the trimmed reply. It makes exactly one attempt.
func Generate(ctx context.Context, gen llm.Provider, prompt, systemPrompt string) (string, error) {
	if gen == nil {
		return "", errors.New("oracle: generate: no text generator configured")
	}
	resp, err := gen.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("oracle: generate: %w", err)
	}
	if resp == nil {
		return "", errEmptyCompletion
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}
