package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// AnthropicConfig configures the Claude Messages API adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Settings
}

// AnthropicChatModel implements model.BaseChatModel on the Messages API.
type AnthropicChatModel struct {
	client   anthropic.Client
	settings Settings
}

var _ model.BaseChatModel = (*AnthropicChatModel)(nil)

// NewAnthropicChatModel creates the adapter; the API key is mandatory.
func NewAnthropicChatModel(cfg AnthropicConfig) (*AnthropicChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicChatModel{
		client:   anthropic.NewClient(opts...),
		settings: cfg.Settings,
	}, nil
}

// Generate performs a blocking completion.
func (m *AnthropicChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.Messages.New(ctx, m.buildParams(input, opts...))
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return schema.AssistantMessage(text.String(), nil), nil
}

// Stream relays text deltas as they arrive. Non-text events are skipped.
func (m *AnthropicChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	stream := m.client.Messages.NewStreaming(ctx, m.buildParams(input, opts...))

	sr, sw := schema.Pipe[*schema.Message](streamBuffer)
	go func() {
		defer sw.Close()
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			if closed := sw.Send(schema.AssistantMessage(text.Text, nil), nil); closed {
				return
			}
		}
		if err := stream.Err(); err != nil {
			sw.Send(nil, fmt.Errorf("anthropic stream: %w", err))
		}
	}()

	return sr, nil
}

func (m *AnthropicChatModel) buildParams(input []*schema.Message, opts ...model.Option) anthropic.MessageNewParams {
	options := m.settings.resolve(opts...)
	system, turns := splitSystem(input)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(*options.Model),
		MaxTokens: int64(*options.MaxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*options.Temperature))
	}
	if options.TopP != nil {
		params.TopP = anthropic.Float(float64(*options.TopP))
	}

	for _, msg := range turns {
		switch msg.Role {
		case schema.User:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case schema.Assistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return params
}
