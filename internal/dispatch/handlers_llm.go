package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

// newLLMHandler wires an llm node to go-openai's chat completion API.
func newLLMHandler(deps Dependencies) Handler {
	return HandlerFunc(func(ctx context.Context, node *builder.ExecutableNode, resolved map[string]any, _ *ctxstore.Snapshot) (Result, error) {
		if deps.LLM == nil {
			return Result{}, &domain.NodeError{Type: domain.NodeErrOther, Message: "no LLM client configured"}
		}

		prompt, _ := resolved["prompt"].(string)
		if prompt == "" {
			return Result{}, &domain.NodeError{Type: domain.NodeErrValidation, Message: "llm node has no prompt"}
		}
		model, _ := resolved["model"].(string)
		if model == "" {
			model = openai.GPT4oMini
		}
		system, _ := resolved["systemPrompt"].(string)

		var messages []openai.ChatCompletionMessage
		if system != "" {
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

		resp, err := deps.LLM.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    model,
			Messages: messages,
		})
		if err != nil {
			return Result{}, classifyLLMError(err)
		}
		if len(resp.Choices) == 0 {
			return Result{}, &domain.NodeError{Type: domain.NodeErrServer, Message: "llm returned no choices", Retryable: true}
		}

		return Result{Output: map[string]any{
			"text":  resp.Choices[0].Message.Content,
			"model": resp.Model,
			"usage": map[string]any{
				"promptTokens":     resp.Usage.PromptTokens,
				"completionTokens": resp.Usage.CompletionTokens,
			},
		}}, nil
	})
}

func classifyLLMError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &domain.NodeError{Type: domain.NodeErrRateLimit, Message: apiErr.Message, Retryable: true}
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return &domain.NodeError{Type: domain.NodeErrPermission, Message: apiErr.Message}
		case apiErr.HTTPStatusCode == http.StatusNotFound:
			return &domain.NodeError{Type: domain.NodeErrNotFound, Message: apiErr.Message}
		case apiErr.HTTPStatusCode >= 500:
			return &domain.NodeError{Type: domain.NodeErrServer, Message: apiErr.Message, Retryable: true}
		case apiErr.HTTPStatusCode >= 400:
			return &domain.NodeError{Type: domain.NodeErrValidation, Message: apiErr.Message}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &domain.NodeError{Type: domain.NodeErrNetwork, Message: netErr.Error(), Retryable: true}
	}
	return &domain.NodeError{Type: domain.NodeErrOther, Message: fmt.Sprintf("llm call failed: %s", err)}
}
