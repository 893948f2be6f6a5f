package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kazz187/novelguild/internal/conversation"
	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/internal/workflow"
	"github.com/kazz187/novelguild/pkg/cerr"
	"github.com/kazz187/novelguild/pkg/panicerr"
)

var errSessionClosed = errors.New("stream: session already terminated")

// Chatter streams a persona exchange.
type Chatter interface {
	ConverseStream(ctx context.Context, personaID, message string, opts conversation.Options, onDelta func(string) error) (*conversation.Result, error)
}

// PhaseRunner streams the current phase of a workflow.
type PhaseRunner interface {
	Executable(ctx context.Context, id string) (*workflow.Workflow, error)
	ExecuteCurrentPhaseStream(ctx context.Context, id, message string, onStart func(workflow.Definition) error, onDelta func(string) error) (*workflow.ExecuteResult, error)
}

type Dispatcher struct {
	chat      Chatter
	workflows PhaseRunner
	now       func() time.Time
}

func NewDispatcher(chat Chatter, workflows PhaseRunner) *Dispatcher {
	return &Dispatcher{chat: chat, workflows: workflows, now: time.Now}
}

// session guards a sink so that nothing follows the terminal event. A
// failed write cancels the session context.
type session struct {
	sink    Sink
	cancel  context.CancelFunc
	now     func() time.Time
	done    bool
	sendErr error
}

func (s *session) emit(t Type, data any) error {
	if s.done {
		return errSessionClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	if t.Terminal() {
		s.done = true
	}
	if err := s.sink.Send(&Event{Type: t, Data: data, Timestamp: s.now().UTC()}); err != nil {
		s.cancel()
		// Reported as cancellation so callers do not treat it as an
		// upstream failure.
		s.sendErr = fmt.Errorf("%w: %v", context.Canceled, err)
		return s.sendErr
	}
	return nil
}

// finish emits the error event for err unless the session already ended or
// the client went away.
func (s *session) finish(ctx context.Context, err error, code string) error {
	if err == nil {
		return nil
	}
	if s.done || s.sendErr != nil {
		return err
	}
	switch {
	case errors.Is(err, panicerr.ErrPanic):
		slog.ErrorContext(ctx, "stream: producer panicked", "code", code, "error", err)
	case !errors.Is(err, context.Canceled):
		slog.WarnContext(ctx, "stream: session failed", "code", code, "error", err)
	}
	_ = s.emit(TypeError, ErrorData{Message: errorMessage(err), Code: code})
	return err
}

func errorMessage(err error) string {
	if errors.Is(err, panicerr.ErrPanic) {
		return "server error"
	}
	var ce *cerr.Error
	if errors.As(err, &ce) {
		return ce.Msg
	}
	return err.Error()
}

// DispatchChat streams one persona exchange to sink as chat-start, zero or
// more content-chunk events and a single chat-complete or error event.
func (d *Dispatcher) DispatchChat(ctx context.Context, sink Sink, personaID, message string, opts conversation.Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s := &session{sink: sink, cancel: cancel, now: d.now}
	id := persona.ID(personaID)

	err := panicerr.Try(func() error {
		if err := s.emit(TypeChatStart, ChatStart{Role: id, Timestamp: d.now().UTC()}); err != nil {
			return err
		}
		res, err := d.chat.ConverseStream(ctx, personaID, message, opts, func(delta string) error {
			return s.emit(TypeContentChunk, ContentChunk{Content: delta, Role: id})
		})
		if err != nil {
			return err
		}
		return s.emit(TypeChatComplete, ChatComplete{
			Role:       res.PersonaID,
			Content:    res.Response,
			Timestamp:  res.Timestamp,
			TokenUsage: res.Usage,
		})
	})
	return s.finish(ctx, err, CodeRoleStream)
}

// DispatchWorkflow streams the current phase of a workflow to sink as
// phase-start, zero or more content-chunk events and exactly one of
// phase-complete, workflow-complete or error.
func (d *Dispatcher) DispatchWorkflow(ctx context.Context, sink Sink, workflowID, message string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s := &session{sink: sink, cancel: cancel, now: d.now}

	err := panicerr.Try(func() error {
		// The phase is fixed by the orchestrator once it holds the
		// workflow; a concurrent session may have advanced it.
		var def workflow.Definition
		onStart := func(started workflow.Definition) error {
			def = started
			return s.emit(TypePhaseStart, PhaseStart{
				WorkflowID: workflowID,
				Phase:      def.Phase,
				PhaseName:  def.Name,
				Role:       def.Persona,
				Timestamp:  d.now().UTC(),
			})
		}
		res, err := d.workflows.ExecuteCurrentPhaseStream(ctx, workflowID, message, onStart, func(delta string) error {
			return s.emit(TypeContentChunk, ContentChunk{Content: delta, Role: def.Persona, Phase: def.Phase})
		})
		if err != nil {
			return err
		}
		if res.Status.Status == workflow.StatusCompleted {
			return s.emit(TypeWorkflowComplete, WorkflowComplete{
				WorkflowID:  workflowID,
				Content:     res.Step.Output,
				CompletedAt: res.Step.Timestamp,
			})
		}
		var next workflow.Phase
		if res.NextAction.Action == workflow.ActionProceed {
			next = res.NextAction.TargetPhase
		}
		return s.emit(TypePhaseComplete, PhaseComplete{
			CurrentPhase: res.Step.Phase,
			NextPhase:    next,
			CanContinue:  res.NextAction.CanProceed,
			Content:      res.Step.Output,
			Quality:      res.Step.Quality,
			NextAction:   res.NextAction,
			Progress:     res.Status.Progress,
		})
	})
	return s.finish(ctx, err, CodeWorkflowStream)
}
