package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
)

// HTTPGenerator 呼叫相容 OpenAI /chat/completions 的服務
type HTTPGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

type HTTPGeneratorConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewHTTPGenerator BaseURL 為空時使用 OpenAI 官方位址
func NewHTTPGenerator(cfg HTTPGeneratorConfig, client *http.Client) *HTTPGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if client != nil {
		clientCfg.HTTPClient = client
	}
	return &HTTPGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}
}

// Generate 回傳第一個 choice 的原始文字，trim 由 Assistant 處理
func (g *HTTPGenerator) Generate(ctx context.Context, turns []Turn) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: lo.Map(turns, func(turn Turn, _ int) openai.ChatCompletionMessage {
			return openai.ChatCompletionMessage{Role: string(turn.Role), Content: turn.Content}
		}),
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrGenerationFailed)
	}
	return resp.Choices[0].Message.Content, nil
}
