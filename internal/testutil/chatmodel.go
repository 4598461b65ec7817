package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// FakeChatModel is a scripted model.BaseChatModel. Stream emits Fragments one
// by one and then StreamErr if set; Generate returns the joined fragments or
// GenerateErr.
type FakeChatModel struct {
	Fragments   []string
	StreamErr   error
	GenerateErr error

	// Gate, when set, blocks the stream before each fragment until a value is
	// received or the context ends.
	Gate chan struct{}

	mu     sync.Mutex
	inputs [][]*schema.Message
}

// Generate implements model.BaseChatModel.
func (f *FakeChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.record(input)
	if f.GenerateErr != nil {
		return nil, f.GenerateErr
	}
	return schema.AssistantMessage(strings.Join(f.Fragments, ""), nil), nil
}

// Stream implements model.BaseChatModel.
func (f *FakeChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.record(input)

	sr, sw := schema.Pipe[*schema.Message](len(f.Fragments) + 1)
	go func() {
		defer sw.Close()
		for _, fragment := range f.Fragments {
			if f.Gate != nil {
				select {
				case <-f.Gate:
				case <-ctx.Done():
					sw.Send(nil, ctx.Err())
					return
				}
			}
			if closed := sw.Send(schema.AssistantMessage(fragment, nil), nil); closed {
				return
			}
		}
		if f.StreamErr != nil {
			sw.Send(nil, f.StreamErr)
		}
	}()
	return sr, nil
}

// Inputs returns the message lists the model has been called with.
func (f *FakeChatModel) Inputs() [][]*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]*schema.Message, len(f.inputs))
	copy(out, f.inputs)
	return out
}

// LastInput returns the most recent message list, or nil.
func (f *FakeChatModel) LastInput() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return nil
	}
	return f.inputs[len(f.inputs)-1]
}

func (f *FakeChatModel) record(input []*schema.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := make([]*schema.Message, len(input))
	copy(snapshot, input)
	f.inputs = append(f.inputs, snapshot)
}
