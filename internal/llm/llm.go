// Package llm adapts hosted model APIs to eino's chat model interface so the
// interview chain can run against any of them.
package llm

import (
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// streamBuffer is the capacity of the pipe between a provider stream and the
// eino StreamReader handed to callers.
const streamBuffer = 16

// Settings are the generation defaults shared by every adapter. Per-call eino
// options (model.WithMaxTokens, ...) override them.
type Settings struct {
	Model       string
	MaxTokens   int
	Temperature *float32
	TopP        *float32
}

func (s Settings) resolve(opts ...model.Option) *model.Options {
	modelName := s.Model
	maxTokens := s.MaxTokens
	return model.GetCommonOptions(&model.Options{
		Model:       &modelName,
		MaxTokens:   &maxTokens,
		Temperature: s.Temperature,
		TopP:        s.TopP,
	}, opts...)
}

// splitSystem separates system instructions from the conversation turns.
// Multiple system messages are joined with a blank line.
func splitSystem(input []*schema.Message) (string, []*schema.Message) {
	var (
		system []string
		turns  = make([]*schema.Message, 0, len(input))
	)
	for _, msg := range input {
		if msg == nil {
			continue
		}
		if msg.Role == schema.System {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	return strings.Join(system, "\n\n"), turns
}
