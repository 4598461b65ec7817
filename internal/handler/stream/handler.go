package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	chatService "github.com/zhouzirui/interview-coach/backend/internal/service/chat"
	"github.com/zhouzirui/interview-coach/backend/pkg/utils"
)

// Relay 是处理器依赖的聊天转发器。
type Relay interface {
	SendMessage(ctx context.Context, sessionID, message string) (<-chan chatService.Chunk, error)
}

// Handler streams interviewer replies as Server-Sent Events.
type Handler struct {
	relay  Relay
	logger *logrus.Logger
}

// New creates a new stream handler
func New(relay Relay, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{relay: relay, logger: logger}
}

// RegisterRoutes 注册流式聊天路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// textChunk 是每个回复片段的 SSE 负载。
type textChunk struct {
	Text string `json:"text"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, utils.CodeInternal, "streaming unsupported")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.CodeInvalidArgument, "invalid request body")
		return
	}

	chunks, err := h.relay.SendMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := h.logger.WithField("session_id", req.SessionID)
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			if err := utils.SendSSEEvent(w, flusher, "error", StreamError(chunk.Err)); err != nil {
				log.WithError(err).Debug("failed to write sse error event")
			}
			return
		case chunk.Done:
			if err := utils.SendSSEDone(w, flusher); err != nil {
				log.WithError(err).Debug("failed to write sse sentinel")
			}
			return
		default:
			if err := utils.SendSSEChunk(w, flusher, textChunk{Text: chunk.Text}); err != nil {
				// 客户端已断开；请求上下文随之取消，转发器会丢弃这次回复。
				log.WithError(err).Info("client went away mid-stream")
				return
			}
		}
	}
}

// StreamError converts a failure reported on the reply stream into the
// payload sent to clients. Upstream details are not exposed.
func StreamError(err error) utils.APIError {
	var ae *utils.AppError
	switch {
	case errors.As(err, &ae):
		return utils.APIError{Code: ae.Code, Message: ae.Message}
	case errors.Is(err, context.DeadlineExceeded):
		return utils.APIError{Code: utils.CodeUnavailable, Message: "The interviewer took too long to respond."}
	default:
		return utils.APIError{Code: utils.CodeUnavailable, Message: "The interviewer is unavailable right now."}
	}
}
