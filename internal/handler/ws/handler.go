package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/interview-coach/backend/internal/handler/stream"
	"github.com/zhouzirui/interview-coach/backend/internal/model/interview"
	chatService "github.com/zhouzirui/interview-coach/backend/internal/service/chat"
	"github.com/zhouzirui/interview-coach/backend/pkg/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second

	// inboundBuffer 是一轮回复进行中最多可排队的客户端消息数。
	inboundBuffer = 8
)

// Relay 是处理器依赖的聊天转发器。
type Relay interface {
	SendMessage(ctx context.Context, sessionID, message string) (<-chan chatService.Chunk, error)
}

// SessionLookup checks that a session exists before upgrading.
type SessionLookup interface {
	Get(ctx context.Context, id string) (interview.Session, error)
}

// Handler WebSocket面试对话处理器
type Handler struct {
	relay    Relay
	sessions SessionLookup
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// New 创建WebSocket处理器。allowedOrigins 为空时接受任意来源。
func New(relay Relay, sessions SessionLookup, allowedOrigins []string, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		relay:    relay,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Message string `json:"message"`
}

type outgoingMessage struct {
	Type    string     `json:"type"`
	Text    string     `json:"text,omitempty"`
	Code    utils.Code `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.WithField("session_id", sessionID)
	log.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go pingLoop(ctx, conn)

	messages := make(chan []byte, inboundBuffer)
	go readLoop(ctx, cancel, conn, messages, log)

	for {
		var data []byte
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			data = msg
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := writeJSON(conn, outgoingMessage{Type: "error", Code: utils.CodeInvalidArgument, Message: "invalid message payload"}); err != nil {
				return
			}
			continue
		}

		if err := h.relayTurn(ctx, conn, sessionID, msg.Message); err != nil {
			log.WithError(err).Info("websocket closed mid-turn")
			return
		}
	}
}

// readLoop is the only reader of conn. It keeps reading while a turn is being
// relayed so a closed or broken socket cancels ctx, and with it the turn.
func readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- []byte, log *logrus.Entry) {
	defer close(out)
	defer cancel()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket read failed")
			}
			return
		}

		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}

// relayTurn 转发一轮对话；只有写连接失败时才返回错误。
func (h *Handler) relayTurn(ctx context.Context, conn *websocket.Conn, sessionID, message string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := h.relay.SendMessage(turnCtx, sessionID, message)
	if err != nil {
		apiErr := stream.StreamError(err)
		return writeJSON(conn, outgoingMessage{Type: "error", Code: apiErr.Code, Message: apiErr.Message})
	}

	var reply strings.Builder
	for chunk := range chunks {
		var out outgoingMessage
		switch {
		case chunk.Err != nil:
			apiErr := stream.StreamError(chunk.Err)
			out = outgoingMessage{Type: "error", Code: apiErr.Code, Message: apiErr.Message}
		case chunk.Done:
			out = outgoingMessage{Type: "done", Text: reply.String()}
		default:
			reply.WriteString(chunk.Text)
			out = outgoingMessage{Type: "delta", Text: chunk.Text}
		}

		if err := writeJSON(conn, out); err != nil {
			cancel()
			for range chunks {
			}
			return err
		}
	}
	return nil
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(origin)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}
