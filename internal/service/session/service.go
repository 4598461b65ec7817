package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/interview-coach/backend/internal/analysis/resume"
	"github.com/zhouzirui/interview-coach/backend/internal/model/interview"
	"github.com/zhouzirui/interview-coach/backend/internal/storage"
	"github.com/zhouzirui/interview-coach/backend/internal/telemetry"
	"github.com/zhouzirui/interview-coach/backend/pkg/utils"
)

// PDFContentType 是简历上传唯一接受的声明类型。
const PDFContentType = "application/pdf"

// archiveTimeout 限制单次简历归档上传的时长。
const archiveTimeout = 30 * time.Second

// StartInput 描述创建面试会话所需的数据。
type StartInput struct {
	Resume         []byte
	ContentType    string
	JobDescription string
}

// Service 管理面试会话的生命周期。
type Service struct {
	store     interview.Store
	extractor resume.Extractor
	archive   storage.Uploader
	telemetry *telemetry.Manager
	logger    *logrus.Logger

	archives sync.WaitGroup
}

// Option customises the session service.
type Option func(*Service)

// WithArchive uploads every accepted résumé to u in the background after the
// session is stored.
func WithArchive(u storage.Uploader) Option {
	return func(s *Service) { s.archive = u }
}

// WithTelemetry records session metrics on m.
func WithTelemetry(m *telemetry.Manager) Option {
	return func(s *Service) { s.telemetry = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService 创建会话服务。
func NewService(store interview.Store, extractor resume.Extractor, opts ...Option) *Service {
	s := &Service{
		store:     store,
		extractor: extractor,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 解析简历并创建新会话，返回会话 ID。任何校验失败都不会留下会话。
func (s *Service) Start(ctx context.Context, in StartInput) (string, error) {
	const op = "SessionService.Start"

	if !isPDF(in.ContentType) {
		return "", utils.E(utils.CodeInvalidArgument, op, "Resume must be a PDF file.", nil)
	}

	text, err := s.extractor.Extract(in.Resume)
	switch {
	case errors.Is(err, resume.ErrNoText):
		return "", utils.E(utils.CodeInvalidArgument, op, "Could not extract text from the PDF.", err)
	case errors.Is(err, resume.ErrMalformed):
		return "", utils.E(utils.CodeInvalidArgument, op, "Resume is not a readable PDF file.", err)
	case err != nil:
		return "", utils.E(utils.CodeInternal, op, "failed to read resume", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "Could not extract text from the PDF.", resume.ErrNoText)
	}

	session := interview.Session{
		ID:             uuid.NewString(),
		ResumeText:     text,
		JobDescription: strings.TrimSpace(in.JobDescription),
		Transcript:     []interview.Turn{},
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.store.Create(ctx, session); err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to store session", err)
	}

	s.telemetry.RecordSessionCreated(ctx)
	s.archiveResume(ctx, session.ID, in.Resume)

	s.logger.WithFields(logrus.Fields{
		"session_id":   session.ID,
		"resume_chars": len(text),
		"jd_chars":     len(session.JobDescription),
	}).Info("interview session started")

	return session.ID, nil
}

// Get 返回会话快照。
func (s *Service) Get(ctx context.Context, id string) (interview.Session, error) {
	const op = "SessionService.Get"

	session, err := s.store.Get(ctx, id)
	if err != nil {
		return interview.Session{}, mapStoreError(op, err)
	}
	return session, nil
}

// AppendTurn 追加一条对话记录。
func (s *Service) AppendTurn(ctx context.Context, id string, role interview.Role, content string) error {
	const op = "SessionService.AppendTurn"

	if err := s.store.AppendTurn(ctx, id, interview.Turn{Role: role, Content: content}); err != nil {
		return mapStoreError(op, err)
	}
	return nil
}

// End 删除会话；会话不存在时同样视为成功。
func (s *Service) End(ctx context.Context, id string) error {
	const op = "SessionService.End"

	if err := s.store.Delete(ctx, id); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to delete session", err)
	}
	s.logger.WithField("session_id", id).Info("interview session ended")
	return nil
}

// WaitArchives blocks until every pending résumé upload has finished.
func (s *Service) WaitArchives() {
	s.archives.Wait()
}

// archiveResume uploads in the background; the upload outlives the request
// that created the session but not archiveTimeout.
func (s *Service) archiveResume(ctx context.Context, id string, data []byte) {
	if s.archive == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	s.archives.Add(1)
	go func() {
		defer s.archives.Done()
		defer cancel()

		key, err := s.archive.Upload(ctx, id+".pdf", PDFContentType, bytes.NewReader(data))
		if err != nil {
			s.logger.WithError(err).WithField("session_id", id).Warn("failed to archive resume")
			return
		}
		s.logger.WithFields(logrus.Fields{"session_id": id, "key": key}).Debug("resume archived")
	}()
}

func mapStoreError(op string, err error) error {
	if errors.Is(err, interview.ErrSessionNotFound) {
		return utils.E(utils.CodeNotFound, op, "Session not found.", err)
	}
	return utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
}

// isPDF 只比较媒体类型本身，忽略 charset 等参数。
func isPDF(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), PDFContentType)
}
