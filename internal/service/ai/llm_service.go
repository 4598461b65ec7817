package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/interview-coach/backend/internal/config"
	"github.com/zhouzirui/interview-coach/backend/internal/model/interview"
)

// Service runs the interviewer prompt chain against the configured chat model.
type Service struct {
	cfg    config.AIConfig
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *logrus.Logger
}

// NewService compiles the interviewer chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig, logger *logrus.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(interviewerPrompt),
		schema.MessagesPlaceholder(varTranscript, false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile interview chain: %w", err)
	}

	return &Service{
		cfg:    cfg,
		chain:  runnable,
		logger: logger,
	}, nil
}

// StreamingEnabled 指示是否开启流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// RequestTimeout 返回单次模型调用的超时时间，0 表示不限制。
func (s *Service) RequestTimeout() time.Duration {
	return s.cfg.RequestTimeout
}

// Reply 阻塞地生成面试官的下一条回复。
func (s *Service) Reply(ctx context.Context, session interview.Session) (*schema.Message, error) {
	response, err := s.chain.Invoke(ctx, buildChainInput(session, s.cfg.HistoryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to run interview chain: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"turns":      len(session.Transcript),
		"length":     len(response.Content),
	}).Debug("generated interviewer reply")
	return response, nil
}

// StreamReply 以流的形式返回面试官的下一条回复。调用方负责关闭返回的 StreamReader。
func (s *Service) StreamReply(ctx context.Context, session interview.Session) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, buildChainInput(session, s.cfg.HistoryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to stream interview chain output: %w", err)
	}
	return stream, nil
}
