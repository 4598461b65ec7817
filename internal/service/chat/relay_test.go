package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/interview-coach/backend/internal/config"
	"github.com/zhouzirui/interview-coach/backend/internal/model/interview"
	"github.com/zhouzirui/interview-coach/backend/internal/service/ai"
	chat "github.com/zhouzirui/interview-coach/backend/internal/service/chat"
	"github.com/zhouzirui/interview-coach/backend/internal/service/session"
	"github.com/zhouzirui/interview-coach/backend/internal/testutil"
	"github.com/zhouzirui/interview-coach/backend/pkg/utils"
)

type fixture struct {
	store    *interview.MemoryStore
	sessions *session.Service
	model    *testutil.FakeChatModel
	relay    *chat.Relay
}

func newFixture(t *testing.T, fake *testutil.FakeChatModel, cfg config.AIConfig) *fixture {
	t.Helper()
	store := interview.NewMemoryStore()
	sessions := session.NewService(store, nil)

	svc, err := ai.NewService(context.Background(), fake, cfg, nil)
	require.NoError(t, err)

	return &fixture{
		store:    store,
		sessions: sessions,
		model:    fake,
		relay:    chat.NewRelay(sessions, svc),
	}
}

func (f *fixture) seed(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), interview.Session{
		ID:             id,
		ResumeText:     "Jane Doe, Software Engineer, 5 years Go",
		JobDescription: "Backend engineer, Go, distributed systems",
		CreatedAt:      time.Now().UTC(),
	}))
}

func (f *fixture) transcript(t *testing.T, id string) []interview.Turn {
	t.Helper()
	s, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return s.Transcript
}

func collect(t *testing.T, ch <-chan chat.Chunk) ([]string, chat.Chunk) {
	t.Helper()
	var (
		texts []string
		last  chat.Chunk
	)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return texts, last
			}
			if c.Done || c.Err != nil {
				last = c
				continue
			}
			texts = append(texts, c.Text)
		case <-timeout:
			t.Fatal("timed out waiting for reply stream")
		}
	}
}

func streaming() config.AIConfig {
	return config.AIConfig{StreamResponse: true}
}

func TestSendMessageJaneDoeScenario(t *testing.T) {
	fake := &testutil.FakeChatModel{Fragments: []string{"Hi Jane! ", "Tell me about ", "a Go service you built."}}
	f := newFixture(t, fake, streaming())
	f.seed(t, "s-1")

	ch, err := f.relay.SendMessage(context.Background(), "s-1", "Hello, I'm ready.")
	require.NoError(t, err)

	texts, last := collect(t, ch)
	require.True(t, last.Done)
	assert.Equal(t, []string{"Hi Jane! ", "Tell me about ", "a Go service you built."}, texts)

	transcript := f.transcript(t, "s-1")
	require.Len(t, transcript, 2)
	assert.Equal(t, interview.Turn{Role: interview.RoleUser, Content: "Hello, I'm ready."}, transcript[0])
	assert.Equal(t, interview.RoleAssistant, transcript[1].Role)
	assert.Equal(t, strings.Join(texts, ""), transcript[1].Content)

	input := fake.LastInput()
	require.Len(t, input, 2)
	assert.Contains(t, input[0].Content, "Jane Doe, Software Engineer, 5 years Go")
	assert.Contains(t, input[0].Content, "Backend engineer, Go, distributed systems")
	assert.Equal(t, "Hello, I'm ready.", input[1].Content)
}

func TestSendMessageReplaysWholeTranscript(t *testing.T) {
	fake := &testutil.FakeChatModel{Fragments: []string{"Next question."}}
	f := newFixture(t, fake, streaming())
	f.seed(t, "s-1")

	for _, msg := range []string{"Hello", "I built a queue", "It used Redis"} {
		ch, err := f.relay.SendMessage(context.Background(), "s-1", msg)
		require.NoError(t, err)
		_, last := collect(t, ch)
		require.True(t, last.Done)
	}

	assert.Len(t, f.transcript(t, "s-1"), 6)
	// system + 5 prior turns on the third call
	assert.Len(t, fake.LastInput(), 6)
}

func TestSendMessageUnknownSession(t *testing.T) {
	fake := &testutil.FakeChatModel{Fragments: []string{"unused"}}
	f := newFixture(t, fake, streaming())

	ch, err := f.relay.SendMessage(context.Background(), "nonexistent-id", "Hi")
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
	assert.Empty(t, fake.Inputs())
}

func TestSendMessageUnknownSessionCheckedBeforeEmptyMessage(t *testing.T) {
	f := newFixture(t, &testutil.FakeChatModel{}, streaming())

	_, err := f.relay.SendMessage(context.Background(), "nonexistent-id", "   ")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestSendMessageRejectsBlankMessage(t *testing.T) {
	fake := &testutil.FakeChatModel{Fragments: []string{"unused"}}
	f := newFixture(t, fake, streaming())
	f.seed(t, "s-1")

	for _, msg := range []string{"", "   ", "\n\t"} {
		ch, err := f.relay.SendMessage(context.Background(), "s-1", msg)
		require.Error(t, err)
		assert.Nil(t, ch)
		assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
		assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	}
	assert.Empty(t, f.transcript(t, "s-1"))
	assert.Empty(t, fake.Inputs())
}

func TestSendMessageStoresRawUserMessage(t *testing.T) {
	f := newFixture(t, &testutil.FakeChatModel{Fragments: []string{"ok"}}, streaming())
	f.seed(t, "s-1")

	ch, err := f.relay.SendMessage(context.Background(), "s-1", "  padded answer \n")
	require.NoError(t, err)
	collect(t, ch)

	assert.Equal(t, "  padded answer \n", f.transcript(t, "s-1")[0].Content)
}

func TestSendMessageUpstreamFailure(t *testing.T) {
	fake := &testutil.FakeChatModel{
		Fragments: []string{"Hi ", "Jane"},
		StreamErr: errors.New("upstream overloaded"),
	}
	f := newFixture(t, fake, streaming())
	f.seed(t, "s-1")

	ch, err := f.relay.SendMessage(context.Background(), "s-1", "Hello")
	require.NoError(t, err)

	texts, last := collect(t, ch)
	assert.Equal(t, []string{"Hi ", "Jane"}, texts)
	require.Error(t, last.Err)
	assert.False(t, last.Done)
	assert.Contains(t, last.Err.Error(), "upstream overloaded")

	transcript := f.transcript(t, "s-1")
	require.Len(t, transcript, 1)
	assert.Equal(t, interview.RoleUser, transcript[0].Role)
}

func TestSendMessageCallerCancelDiscardsPartialReply(t *testing.T) {
	gate := make(chan struct{})
	fake := &testutil.FakeChatModel{Fragments: []string{"Hi ", "Jane", "!"}, Gate: gate}
	f := newFixture(t, fake, streaming())
	f.seed(t, "s-1")

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := f.relay.SendMessage(ctx, "s-1", "Hello")
	require.NoError(t, err)

	gate <- struct{}{}
	first := <-ch
	assert.Equal(t, "Hi ", first.Text)

	cancel()
	for c := range ch {
		assert.False(t, c.Done)
	}

	transcript := f.transcript(t, "s-1")
	require.Len(t, transcript, 1)
	assert.Equal(t, "Hello", transcript[0].Content)
}

func TestSendMessageSessionDeletedMidStream(t *testing.T) {
	gate := make(chan struct{})
	fake := &testutil.FakeChatModel{Fragments: []string{"Hi ", "Jane"}, Gate: gate}
	f := newFixture(t, fake, streaming())
	f.seed(t, "s-1")

	ch, err := f.relay.SendMessage(context.Background(), "s-1", "Hello")
	require.NoError(t, err)

	gate <- struct{}{}
	<-ch
	require.NoError(t, f.sessions.End(context.Background(), "s-1"))
	gate <- struct{}{}

	_, last := collect(t, ch)
	require.Error(t, last.Err)
	assert.ErrorIs(t, last.Err, interview.ErrSessionNotFound)
	assert.Zero(t, f.store.Len())
}

func TestSendMessageRequestTimeout(t *testing.T) {
	fake := &testutil.FakeChatModel{Fragments: []string{"never"}, Gate: make(chan struct{})}
	cfg := streaming()
	cfg.RequestTimeout = 20 * time.Millisecond
	f := newFixture(t, fake, cfg)
	f.seed(t, "s-1")

	ch, err := f.relay.SendMessage(context.Background(), "s-1", "Hello")
	require.NoError(t, err)

	texts, last := collect(t, ch)
	assert.Empty(t, texts)
	require.Error(t, last.Err)
	assert.Len(t, f.transcript(t, "s-1"), 1)
}

func TestSendMessageNonStreamingEmitsSingleFragment(t *testing.T) {
	fake := &testutil.FakeChatModel{Fragments: []string{"Welcome, ", "Jane."}}
	f := newFixture(t, fake, config.AIConfig{StreamResponse: false})
	f.seed(t, "s-1")

	ch, err := f.relay.SendMessage(context.Background(), "s-1", "Hello")
	require.NoError(t, err)

	texts, last := collect(t, ch)
	require.True(t, last.Done)
	assert.Equal(t, []string{"Welcome, Jane."}, texts)
	assert.Equal(t, "Welcome, Jane.", f.transcript(t, "s-1")[1].Content)
}

func TestSendMessageConcurrentSessions(t *testing.T) {
	f := newFixture(t, &testutil.FakeChatModel{Fragments: []string{"a", "b"}}, streaming())
	ids := []string{"s-1", "s-2", "s-3", "s-4"}
	for _, id := range ids {
		f.seed(t, id)
	}

	done := make(chan chat.Chunk, len(ids))
	for _, id := range ids {
		go func(id string) {
			ch, err := f.relay.SendMessage(context.Background(), id, "Hello "+id)
			if err != nil {
				done <- chat.Chunk{Err: err}
				return
			}
			var last chat.Chunk
			for c := range ch {
				last = c
			}
			done <- last
		}(id)
	}

	for range ids {
		assert.True(t, (<-done).Done)
	}
	for _, id := range ids {
		transcript := f.transcript(t, id)
		require.Len(t, transcript, 2)
		assert.Equal(t, "Hello "+id, transcript[0].Content)
		assert.Equal(t, "ab", transcript[1].Content)
	}
}
