package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
)

// OpenAIConfig configures the chat completions adapter. BaseURL allows any
// OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Settings
}

// OpenAIChatModel implements model.BaseChatModel on chat completions.
type OpenAIChatModel struct {
	client   openai.Client
	settings Settings
}

var _ model.BaseChatModel = (*OpenAIChatModel)(nil)

func NewOpenAIChatModel(cfg OpenAIConfig) (*OpenAIChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	opts := []openaiopt.RequestOption{openaiopt.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIChatModel{
		client:   openai.NewClient(opts...),
		settings: cfg.Settings,
	}, nil
}

func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(input, opts...))
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai generate: empty choices")
	}
	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, m.buildParams(input, opts...))

	sr, sw := schema.Pipe[*schema.Message](streamBuffer)
	go func() {
		defer sw.Close()
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if closed := sw.Send(schema.AssistantMessage(choice.Delta.Content, nil), nil); closed {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			sw.Send(nil, fmt.Errorf("openai stream: %w", err))
		}
	}()

	return sr, nil
}

func (m *OpenAIChatModel) buildParams(input []*schema.Message, opts ...model.Option) openai.ChatCompletionNewParams {
	options := m.settings.resolve(opts...)
	system, turns := splitSystem(input)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, msg := range turns {
		switch msg.Role {
		case schema.User:
			messages = append(messages, openai.UserMessage(msg.Content))
		case schema.Assistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(*options.Model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(*options.MaxTokens)),
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Temperature))
	}
	if options.TopP != nil {
		params.TopP = openai.Float(float64(*options.TopP))
	}
	return params
}
