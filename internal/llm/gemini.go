package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini API adapter.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Settings
}

// GeminiChatModel implements model.BaseChatModel on GenerateContent.
type GeminiChatModel struct {
	client   *genai.Client
	settings Settings
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)

func NewGeminiChatModel(ctx context.Context, cfg GeminiConfig) (*GeminiChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiChatModel{client: client, settings: cfg.Settings}, nil
}

func (m *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	modelName, contents, config := m.buildRequest(input, opts...)

	resp, err := m.client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return schema.AssistantMessage(resp.Text(), nil), nil
}

func (m *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	modelName, contents, config := m.buildRequest(input, opts...)

	sr, sw := schema.Pipe[*schema.Message](streamBuffer)
	go func() {
		defer sw.Close()

		for resp, err := range m.client.Models.GenerateContentStream(ctx, modelName, contents, config) {
			if err != nil {
				sw.Send(nil, fmt.Errorf("gemini stream: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if closed := sw.Send(schema.AssistantMessage(text, nil), nil); closed {
				return
			}
		}
	}()

	return sr, nil
}

func (m *GeminiChatModel) buildRequest(input []*schema.Message, opts ...model.Option) (string, []*genai.Content, *genai.GenerateContentConfig) {
	options := m.settings.resolve(opts...)
	system, turns := splitSystem(input)

	contents := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		switch msg.Role {
		case schema.User:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		}
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(*options.MaxTokens),
		Temperature:     options.Temperature,
		TopP:            options.TopP,
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return *options.Model, contents, config
}
