package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"securechat/internal/chat"
	"securechat/internal/handlers"
	"securechat/internal/handlers/messages"
	"securechat/internal/handlers/pages"
	"securechat/internal/middleware"
	"securechat/internal/store"
	"securechat/internal/ws"
)

type Server struct {
	Addr           string
	Chat           *chat.Service
	Store          store.Store
	Pages          *pages.Pages
	AllowedOrigins []string
	Log            logrus.FieldLogger

	registry *ws.Registry
	http     *http.Server
}

func NewServer(addr string, svc *chat.Service, p *pages.Pages, allowedOrigins []string, log logrus.FieldLogger) *Server {
	return &Server{
		Addr:           addr,
		Chat:           svc,
		Store:          svc.Store(),
		Pages:          p,
		AllowedOrigins: allowedOrigins,
		Log:            log,
		registry:       ws.NewRegistry(log),
	}
}

func HandlerFunc(h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}
}

// Routes builds the router; exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.Log))
	r.Use(middleware.Recoverer(s.Log))

	// pages
	r.Get("/", s.Pages.Landing)
	r.Get("/chat", s.Pages.Chat)
	r.Get("/health", HandlerFunc(&handlers.HealthHandler{Store: s.Store, Log: s.Log}))

	// live chat session
	r.Get("/ws", HandlerFunc(handlers.NewWSHandler(s.Chat, s.registry, s.AllowedOrigins, s.Log)))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(s.AllowedOrigins))
		r.Get("/messages", HandlerFunc(&messages.ListMessagesHandler{Chat: s.Chat}))
		r.Post("/messages", HandlerFunc(&messages.SendMessageHandler{
			Chat:     s.Chat,
			Validate: validator.New(validator.WithRequiredStructEnabled()),
		}))
	})
	return r
}

// Run listens on Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve accepts on ln until ctx is cancelled, then shuts down gracefully.
// When it returns, every chat session has been unmounted unless the
// shutdown deadline passed first.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	s.http = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.WithField("addr", ln.Addr().String()).Info("server running")
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by http.Server
	s.registry.CloseAll()
	if err := s.registry.Wait(shutdownCtx); err != nil {
		s.Log.WithError(err).WithField("open", s.registry.Len()).Warn("chat sessions still open at shutdown deadline")
	}
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Sessions() int { return s.registry.Len() }
