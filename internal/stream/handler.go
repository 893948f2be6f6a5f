package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/novelguild/internal/conversation"
	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/pkg/cerr"
	"github.com/kazz187/novelguild/pkg/clog"
)

// SessionTimeout bounds a single stream session.
const SessionTimeout = 5 * time.Minute

const maxRequestBytes = 1 << 20

// ChatValidator checks a chat request without side effects.
type ChatValidator interface {
	Validate(personaID, message string, opts conversation.Options) (*persona.Persona, error)
}

type Handler struct {
	dispatcher *Dispatcher
	registry   *Registry
	chat       ChatValidator
	workflows  PhaseRunner
	timeout    time.Duration
}

func NewHandler(dispatcher *Dispatcher, registry *Registry, chat ChatValidator, workflows PhaseRunner) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		registry:   registry,
		chat:       chat,
		workflows:  workflows,
		timeout:    SessionTimeout,
	}
}

// Register mounts the stream routes on r, which is expected to sit under /api.
func (h *Handler) Register(r chi.Router) {
	r.Post("/stream/personas/{personaID}", h.handleChat)
	r.Post("/stream/workflows/{workflowID}", h.handleWorkflow)
}

type ChatRequest struct {
	Message     string                    `json:"message"`
	Scenario    string                    `json:"scenario,omitempty"`
	ProjectInfo string                    `json:"projectInfo,omitempty"`
	CurrentFile *conversation.FileContext `json:"currentFile,omitempty"`
}

type WorkflowRequest struct {
	Message string `json:"message"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "请求格式无效", err)
	}
	return nil
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personaID := chi.URLParam(r, "personaID")

	var req ChatRequest
	if err := decode(w, r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	opts := conversation.Options{
		Scenario:    persona.ParseScenario(req.Scenario),
		ProjectInfo: req.ProjectInfo,
		CurrentFile: req.CurrentFile,
	}
	if _, err := h.chat.Validate(personaID, req.Message, opts); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttribute(ctx, "persona_id", personaID)

	h.serve(w, r, "chat", personaID, func(ctx context.Context, sink Sink) error {
		return h.dispatcher.DispatchChat(ctx, sink, personaID, req.Message, opts)
	})
}

func (h *Handler) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workflowID := chi.URLParam(r, "workflowID")

	var req WorkflowRequest
	if err := decode(w, r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := conversation.ValidateMessage(req.Message); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if _, err := h.workflows.Executable(ctx, workflowID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttribute(ctx, "workflow_id", workflowID)

	h.serve(w, r, "workflow", workflowID, func(ctx context.Context, sink Sink) error {
		return h.dispatcher.DispatchWorkflow(ctx, sink, workflowID, req.Message)
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, kind, target string, run func(context.Context, Sink) error) {
	ctx, release, err := h.registry.Begin(r.Context(), kind, target)
	if err != nil {
		cerr.SetNewJSONError(r.Context(), cerr.Unavailable, "服务正在关闭，请稍后重试", err)
		return
	}
	defer release()

	sw, err := NewSSEWriter(w)
	if err != nil {
		cerr.SetNewJSONError(r.Context(), cerr.Internal, "server error", err)
		return
	}
	sw.Open()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := run(ctx, sw); err != nil {
		slog.DebugContext(ctx, "stream: session ended with error", "kind", kind, "target", target, "error", err)
	}
}
