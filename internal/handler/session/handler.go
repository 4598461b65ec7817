package session

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/interview-coach/backend/internal/model/interview"
	sessionService "github.com/zhouzirui/interview-coach/backend/internal/service/session"
	"github.com/zhouzirui/interview-coach/backend/pkg/utils"
)

const (
	fieldResume         = "resume"
	fieldJobDescription = "job_description"
)

// Service 是处理器依赖的会话服务。
type Service interface {
	Start(ctx context.Context, in sessionService.StartInput) (string, error)
	Get(ctx context.Context, id string) (interview.Session, error)
	End(ctx context.Context, id string) error
}

// Handler 会话生命周期的HTTP处理器
type Handler struct {
	svc            Service
	maxUploadBytes int64
	logger         *logrus.Logger
}

// New 创建会话处理器
func New(svc Service, maxUploadBytes int64, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes, logger: logger}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/start", h.handleStart)
	r.Get("/session/{sessionID}", h.handleGet)
	r.Delete("/session/{sessionID}", h.handleEnd)
}

// handleStart 上传简历并创建面试会话
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, utils.CodeInvalidArgument, "Resume upload is too large.")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, utils.CodeInvalidArgument, "Expected a multipart form with resume and job_description.")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(fieldResume)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.CodeInvalidArgument, "resume file is required")
		return
	}
	defer file.Close()

	values, ok := r.MultipartForm.Value[fieldJobDescription]
	if !ok || len(values) == 0 {
		utils.RespondError(w, http.StatusBadRequest, utils.CodeInvalidArgument, "job_description is required")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.CodeInvalidArgument, "failed to read resume upload")
		return
	}

	id, err := h.svc.Start(r.Context(), sessionService.StartInput{
		Resume:         data,
		ContentType:    header.Header.Get("Content-Type"),
		JobDescription: values[0],
	})
	if err != nil {
		h.logger.WithError(err).WithField("filename", header.Filename).Warn("failed to start interview session")
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

// handleGet 返回会话的对话记录
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	if session.Transcript == nil {
		session.Transcript = []interview.Turn{}
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleEnd 结束会话，无论会话是否存在都返回成功
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.logger.WithError(err).Error("failed to end interview session")
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
