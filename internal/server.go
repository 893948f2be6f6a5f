package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/novelguild/api/novelguild/v1/novelguildv1connect"
	"github.com/kazz187/novelguild/internal/config"
	"github.com/kazz187/novelguild/internal/conversation"
	"github.com/kazz187/novelguild/internal/generation"
	"github.com/kazz187/novelguild/internal/pushnotification"
	"github.com/kazz187/novelguild/internal/stream"
	"github.com/kazz187/novelguild/internal/workflow"
	"github.com/kazz187/novelguild/pkg/cerr"
	"github.com/kazz187/novelguild/pkg/clog"
)

// Pinger checks that the generation backend answers.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

type Server struct {
	server                 *http.Server
	env                    *config.Env
	personaServer          *conversation.Server
	workflowServer         *workflow.Server
	pushNotificationServer *pushnotification.Server
	streamHandler          *stream.Handler
	pinger                 Pinger
}

// NewServer wires the RPC services and the stream routes. pinger may be nil
// when the provider has no cheap health probe.
func NewServer(
	env *config.Env,
	personaServer *conversation.Server,
	workflowServer *workflow.Server,
	pushNotificationServer *pushnotification.Server,
	streamHandler *stream.Handler,
	pinger Pinger,
) *Server {
	return &Server{
		env:                    env,
		personaServer:          personaServer,
		workflowServer:         workflowServer,
		pushNotificationServer: pushNotificationServer,
		streamHandler:          streamHandler,
		pinger:                 pinger,
	}
}

// Handler builds the full HTTP handler tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewConvertConnectErrorChiMiddleware(),
		)
		s.streamHandler.Register(r)
		r.Get("/health/generation", s.handleGenerationHealth)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()

	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker(
		novelguildv1connect.PersonaServiceName,
		novelguildv1connect.WorkflowServiceName,
		novelguildv1connect.PushNotificationServiceName,
	)))

	handlerOpts := connect.WithInterceptors(s.interceptors()...)

	mux.Handle(novelguildv1connect.NewPersonaServiceHandler(s.personaServer, handlerOpts))
	mux.Handle(novelguildv1connect.NewWorkflowServiceHandler(s.workflowServer, handlerOpts))
	mux.Handle(novelguildv1connect.NewPushNotificationServiceHandler(s.pushNotificationServer, handlerOpts))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of
// every request, so cancelling it ends the remaining streams.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type generationHealth struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
	Reply    string `json:"reply,omitempty"`
}

func (s *Server) handleGenerationHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.pinger == nil {
		cerr.SetJSONResponse(ctx, &generationHealth{Provider: s.env.Provider, Status: "unchecked"})
		return
	}
	reply, err := s.pinger.Ping(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, generation.Wrap(err))
		return
	}
	cerr.SetJSONResponse(ctx, &generationHealth{Provider: s.env.Provider, Status: "ok", Reply: reply})
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip API key check for health endpoints.
		if r.URL.Path == "/health" || r.URL.Path == "/grpc.health.v1.Health/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if apiKey != s.env.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
