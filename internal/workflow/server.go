package workflow

import (
	"context"

	"connectrpc.com/connect"

	novelguildv1 "github.com/kazz187/novelguild/api/novelguild/v1"
	"github.com/kazz187/novelguild/api/novelguild/v1/novelguildv1connect"
)

var _ novelguildv1connect.WorkflowServiceHandler = (*Server)(nil)

type Server struct {
	orchestrator *Orchestrator
}

func NewServer(orchestrator *Orchestrator) *Server {
	return &Server{orchestrator: orchestrator}
}

func (s *Server) StartWorkflow(ctx context.Context, req *connect.Request[novelguildv1.StartWorkflowRequest]) (*connect.Response[novelguildv1.StartWorkflowResponse], error) {
	res, err := s.orchestrator.Start(ctx, req.Msg.UserId, req.Msg.ProjectName, req.Msg.InitialPrompt)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&novelguildv1.StartWorkflowResponse{
		WorkflowId: res.WorkflowID,
		Result:     toPhaseResultProto(res.Result),
	}), nil
}

func (s *Server) ExecutePhase(ctx context.Context, req *connect.Request[novelguildv1.ExecutePhaseRequest]) (*connect.Response[novelguildv1.ExecutePhaseResponse], error) {
	res, err := s.orchestrator.ExecuteCurrentPhase(ctx, req.Msg.WorkflowId, req.Msg.Message)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&novelguildv1.ExecutePhaseResponse{
		Result: toPhaseResultProto(res),
	}), nil
}

func (s *Server) ChoosePhase(ctx context.Context, req *connect.Request[novelguildv1.ChoosePhaseRequest]) (*connect.Response[novelguildv1.ChoosePhaseResponse], error) {
	w, next, err := s.orchestrator.Choose(ctx, req.Msg.WorkflowId, Phase(req.Msg.Phase))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&novelguildv1.ChoosePhaseResponse{
		NextAction: toNextActionProto(&next),
		Workflow:   toSummaryProto(w.Info()),
	}), nil
}

func (s *Server) GetWorkflow(ctx context.Context, req *connect.Request[novelguildv1.GetWorkflowRequest]) (*connect.Response[novelguildv1.GetWorkflowResponse], error) {
	w, err := s.orchestrator.Get(ctx, req.Msg.WorkflowId)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&novelguildv1.GetWorkflowResponse{
		Workflow: toProto(w),
	}), nil
}

func (s *Server) ListWorkflows(ctx context.Context, req *connect.Request[novelguildv1.ListWorkflowsRequest]) (*connect.Response[novelguildv1.ListWorkflowsResponse], error) {
	list, err := s.orchestrator.ListByUser(ctx, req.Msg.UserId)
	if err != nil {
		return nil, err
	}
	protos := make([]*novelguildv1.WorkflowSummary, len(list))
	for i, info := range list {
		protos[i] = toSummaryProto(info)
	}
	return connect.NewResponse(&novelguildv1.ListWorkflowsResponse{
		Workflows: protos,
	}), nil
}

func toProto(w *Workflow) *novelguildv1.Workflow {
	history := make([]*novelguildv1.Step, len(w.History))
	for i := range w.History {
		history[i] = toStepProto(&w.History[i])
	}
	var pending []string
	for _, p := range w.PendingChoices {
		pending = append(pending, string(p))
	}
	return &novelguildv1.Workflow{
		Id:             w.ID,
		UserId:         w.UserID,
		ProjectName:    w.ProjectName,
		Status:         string(w.Status),
		CurrentPhase:   string(w.CurrentPhase),
		CurrentPersona: string(w.CurrentPersona),
		Context:        toContextProto(&w.Context),
		History:        history,
		Progress:       toProgressProto(w.Progress),
		PendingChoices: pending,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

func toContextProto(c *Context) *novelguildv1.WorkflowContext {
	out := &novelguildv1.WorkflowContext{
		OriginalPrompt: c.OriginalPrompt,
		Worldview:      toArtifactProto(c.Worldview),
		Storyline:      toArtifactProto(c.Storyline),
		Chapters:       make([]*novelguildv1.Chapter, len(c.Chapters)),
	}
	for i, ch := range c.Chapters {
		out.Chapters[i] = &novelguildv1.Chapter{
			Content:   ch.Content,
			Timestamp: ch.Timestamp,
			Quality:   int32(ch.Quality),
			WordCount: int32(ch.WordCount),
		}
	}
	for _, r := range c.Revisions {
		out.Revisions = append(out.Revisions, &novelguildv1.Revision{
			Phase:     string(r.Phase),
			Timestamp: r.Timestamp,
			Diff:      r.Diff,
		})
	}
	return out
}

func toArtifactProto(a *Artifact) *novelguildv1.Artifact {
	if a == nil {
		return nil
	}
	return &novelguildv1.Artifact{
		Content:   a.Content,
		Timestamp: a.Timestamp,
		Quality:   int32(a.Quality),
	}
}

func toStepProto(st *Step) *novelguildv1.Step {
	if st == nil {
		return nil
	}
	return &novelguildv1.Step{
		Id:         st.ID,
		Phase:      string(st.Phase),
		PersonaId:  string(st.Persona),
		Input:      st.Input,
		Output:     st.Output,
		Quality:    int32(st.Quality),
		DurationMs: st.DurationMS,
		Timestamp:  st.Timestamp,
		Usage: novelguildv1.TokenUsage{
			InputTokens:  int32(st.Usage.InputTokens),
			OutputTokens: int32(st.Usage.OutputTokens),
			TotalTokens:  int32(st.Usage.TotalTokens),
		},
		NextAction: toNextActionProto(st.NextAction),
	}
}

func toNextActionProto(n *NextAction) *novelguildv1.NextAction {
	if n == nil {
		return nil
	}
	out := &novelguildv1.NextAction{
		Action:        string(n.Action),
		TargetPhase:   string(n.TargetPhase),
		TargetPersona: string(n.TargetPersona),
		Reason:        n.Reason,
		CanProceed:    n.CanProceed,
		AutoGenerate:  n.AutoGenerate,
		Suggestions:   n.Suggestions,
	}
	for _, c := range n.Choices {
		out.Choices = append(out.Choices, &novelguildv1.Choice{
			Phase:       string(c.Phase),
			PersonaId:   string(c.Persona),
			Name:        c.Name,
			Description: c.Description,
		})
	}
	return out
}

func toProgressProto(p Progress) *novelguildv1.Progress {
	return &novelguildv1.Progress{
		Completion:  int32(p.Completion),
		CurrentStep: int32(p.CurrentStep),
		TotalSteps:  int32(p.TotalSteps),
		Quality:     int32(p.Quality),
	}
}

func toSummaryProto(info *Info) *novelguildv1.WorkflowSummary {
	return &novelguildv1.WorkflowSummary{
		Id:             info.ID,
		ProjectName:    info.ProjectName,
		Status:         string(info.Status),
		CurrentPhase:   string(info.CurrentPhase),
		CurrentPersona: string(info.CurrentPersona),
		Progress:       toProgressProto(info.Progress),
		StepsCount:     int32(info.StepsCount),
		LastOutput:     info.LastOutput,
		CreatedAt:      info.CreatedAt,
		UpdatedAt:      info.UpdatedAt,
	}
}

func toPhaseResultProto(r *ExecuteResult) *novelguildv1.PhaseResult {
	return &novelguildv1.PhaseResult{
		Step:       toStepProto(r.Step),
		NextAction: toNextActionProto(&r.NextAction),
		Status: &novelguildv1.WorkflowStatus{
			Status:         string(r.Status.Status),
			CurrentPhase:   string(r.Status.CurrentPhase),
			CurrentPersona: string(r.Status.CurrentPersona),
			Progress:       toProgressProto(r.Status.Progress),
			CanProceed:     r.Status.CanProceed,
		},
		Suggestions: r.Suggestions,
	}
}
