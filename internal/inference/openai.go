package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI serves hosted models through any OpenAI-compatible endpoint.
type OpenAI struct {
	client      *openai.Client
	temperature float32
}

// NewOpenAI builds a client for apiKey; baseURL overrides the public API
// when non-empty.
func NewOpenAI(apiKey, baseURL string, temperature float64) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), temperature: float32(temperature)}
}

func (o *OpenAI) Generate(ctx context.Context, model string, history []Turn) (Reply, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, t := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}
	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: o.temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
			return Reply{}, &Error{Kind: KindUnsupportedModel, Model: model, Err: err}
		}
		return Reply{}, classify(model, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Reply{}, &Error{Kind: KindRemote, Model: model, Err: fmt.Errorf("openai: empty reply")}
	}
	return Reply{Text: resp.Choices[0].Message.Content, Elapsed: time.Since(start)}, nil
}
