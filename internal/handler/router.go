package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/interview-coach/backend/internal/handler/session"
	"github.com/zhouzirui/interview-coach/backend/internal/handler/stream"
	"github.com/zhouzirui/interview-coach/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/interview-coach/backend/internal/middleware"
	chatService "github.com/zhouzirui/interview-coach/backend/internal/service/chat"
	sessionService "github.com/zhouzirui/interview-coach/backend/internal/service/session"
	"github.com/zhouzirui/interview-coach/backend/pkg/utils"
)

// RouterOptions 描述路由层的可调参数。
type RouterOptions struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	Logger         *logrus.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(sessions *sessionService.Service, relay *chatService.Relay, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	session.New(sessions, opts.MaxUploadBytes, logger).RegisterRoutes(r)
	stream.New(relay, logger).RegisterRoutes(r)
	ws.New(relay, sessions, opts.AllowedOrigins, logger).RegisterRoutes(r)

	return r
}
