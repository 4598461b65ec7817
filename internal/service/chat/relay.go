package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/interview-coach/backend/internal/model/interview"
	"github.com/zhouzirui/interview-coach/backend/internal/telemetry"
	"github.com/zhouzirui/interview-coach/backend/pkg/utils"
)

// ErrEmptyMessage 表示用户消息去除空白后为空。
var ErrEmptyMessage = errors.New("message cannot be empty")

// Chunk is one element of a reply stream. Exactly one of the fields is set:
// Text for a fragment, Done for the completion sentinel, Err for a failure.
// Done and Err are terminal; the channel is closed right after them.
type Chunk struct {
	Text string
	Done bool
	Err  error
}

// Sessions is the slice of the session service the relay depends on.
type Sessions interface {
	Get(ctx context.Context, id string) (interview.Session, error)
	AppendTurn(ctx context.Context, id string, role interview.Role, content string) error
}

// Replier produces the interviewer's next message for a session.
type Replier interface {
	StreamingEnabled() bool
	RequestTimeout() time.Duration
	Reply(ctx context.Context, session interview.Session) (*schema.Message, error)
	StreamReply(ctx context.Context, session interview.Session) (*schema.StreamReader[*schema.Message], error)
}

// Relay 负责把用户消息转发给模型，并把模型的流式回复逐段交还给调用方。
type Relay struct {
	sessions  Sessions
	replier   Replier
	telemetry *telemetry.Manager
	logger    *logrus.Logger
}

// Option customises a Relay.
type Option func(*Relay)

// WithTelemetry records a span and metrics for each turn.
func WithTelemetry(m *telemetry.Manager) Option {
	return func(r *Relay) { r.telemetry = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// NewRelay 创建聊天转发器。
func NewRelay(sessions Sessions, replier Replier, opts ...Option) *Relay {
	r := &Relay{
		sessions: sessions,
		replier:  replier,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendMessage validates the request, records the user turn and starts the
// model call. Validation errors are returned directly and leave the transcript
// untouched. On success the returned channel yields the reply fragments in
// order followed by a single Done or Err chunk, and is then closed.
//
// Cancelling ctx stops the upstream call; the partial reply is discarded.
func (r *Relay) SendMessage(ctx context.Context, sessionID, message string) (<-chan Chunk, error) {
	const op = "ChatRelay.SendMessage"

	if _, err := r.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "Message cannot be empty.", ErrEmptyMessage)
	}

	if err := r.sessions.AppendTurn(ctx, sessionID, interview.RoleUser, message); err != nil {
		return nil, err
	}

	session, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk)
	go r.produce(ctx, session, out)
	return out, nil
}

func (r *Relay) produce(ctx context.Context, session interview.Session, out chan<- Chunk) {
	defer close(out)

	var (
		started   = time.Now()
		fragments int
		err       error
	)

	ctx, span := r.telemetry.StartTurn(ctx, session.ID)
	defer func() {
		telemetry.EndSpan(span, err)
		r.telemetry.RecordTurn(ctx, telemetry.TurnData{
			SessionID: session.ID,
			Fragments: fragments,
			Duration:  time.Since(started),
			Err:       err,
		})
	}()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := r.replier.RequestTimeout(); timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	var reply string
	if r.replier.StreamingEnabled() {
		reply, fragments, err = r.relayStream(callCtx, session, out)
	} else {
		reply, fragments, err = r.relayReply(callCtx, session, out)
	}

	if err == nil {
		err = r.sessions.AppendTurn(ctx, session.ID, interview.RoleAssistant, reply)
	}

	entry := r.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"fragments":  fragments,
		"latency_ms": time.Since(started).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("chat turn failed")
		send(ctx, out, Chunk{Err: err})
		return
	}

	entry.WithField("reply_chars", len(reply)).Info("chat turn completed")
	send(ctx, out, Chunk{Done: true})
}

func (r *Relay) relayStream(ctx context.Context, session interview.Session, out chan<- Chunk) (string, int, error) {
	stream, err := r.replier.StreamReply(ctx, session)
	if err != nil {
		return "", 0, err
	}
	defer stream.Close()

	var (
		builder   strings.Builder
		fragments int
	)
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return builder.String(), fragments, nil
		}
		if err != nil {
			return "", fragments, fmt.Errorf("model stream: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}

		builder.WriteString(msg.Content)
		fragments++
		if !send(ctx, out, Chunk{Text: msg.Content}) {
			return "", fragments, ctx.Err()
		}
	}
}

func (r *Relay) relayReply(ctx context.Context, session interview.Session, out chan<- Chunk) (string, int, error) {
	msg, err := r.replier.Reply(ctx, session)
	if err != nil {
		return "", 0, err
	}
	if msg.Content == "" {
		return "", 0, nil
	}
	if !send(ctx, out, Chunk{Text: msg.Content}) {
		return "", 1, ctx.Err()
	}
	return msg.Content, 1, nil
}

// send 在调用方仍在接收时投递 chunk，返回是否投递成功。
func send(ctx context.Context, out chan<- Chunk, chunk Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
