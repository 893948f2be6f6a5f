package conversation

import (
	"context"
	"sort"

	"connectrpc.com/connect"

	novelguildv1 "github.com/kazz187/novelguild/api/novelguild/v1"
	"github.com/kazz187/novelguild/api/novelguild/v1/novelguildv1connect"
	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/internal/prompt"
)

var _ novelguildv1connect.PersonaServiceHandler = (*Server)(nil)

type Server struct {
	svc *Service
}

func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) ListPersonas(ctx context.Context, _ *connect.Request[novelguildv1.ListPersonasRequest]) (*connect.Response[novelguildv1.ListPersonasResponse], error) {
	list := s.svc.ListPersonas(ctx)
	personas := make([]*novelguildv1.Persona, len(list))
	for i, a := range list {
		personas[i] = toAvailabilityProto(a)
	}
	return connect.NewResponse(&novelguildv1.ListPersonasResponse{
		Personas: personas,
	}), nil
}

func (s *Server) GetPersona(ctx context.Context, req *connect.Request[novelguildv1.GetPersonaRequest]) (*connect.Response[novelguildv1.GetPersonaResponse], error) {
	d, err := s.svc.PersonaDetail(ctx, req.Msg.PersonaId)
	if err != nil {
		return nil, err
	}
	p := toPersonaProto(d.Persona)
	p.Strategy = d.Strategy.String()
	p.Available = true

	res := &novelguildv1.GetPersonaResponse{
		Persona:      p,
		Sections:     d.Sections,
		Capabilities: d.Capabilities,
	}
	switch {
	case d.ModularCard != nil:
		res.Card = toModularCardProto(d.ModularCard)
	case d.Card != nil:
		res.Card = toCardProto(d.Card)
	}
	for _, e := range d.Examples {
		res.Examples = append(res.Examples, &novelguildv1.Example{Question: e.Question, Answer: e.Answer})
	}
	return connect.NewResponse(res), nil
}

func (s *Server) Chat(ctx context.Context, req *connect.Request[novelguildv1.ChatRequest]) (*connect.Response[novelguildv1.ChatResponse], error) {
	res, err := s.svc.Converse(ctx, req.Msg.PersonaId, req.Msg.Message, fromOptionsProto(req.Msg.Options))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&novelguildv1.ChatResponse{
		Reply: toReplyProto(res),
	}), nil
}

func (s *Server) MultiChat(ctx context.Context, req *connect.Request[novelguildv1.MultiChatRequest]) (*connect.Response[novelguildv1.MultiChatResponse], error) {
	results, err := s.svc.MultiChat(ctx, req.Msg.Message, req.Msg.PersonaIds, fromOptionsProto(req.Msg.Options))
	if err != nil {
		return nil, err
	}
	out := make([]*novelguildv1.MultiChatResult, len(results))
	for i, r := range results {
		out[i] = &novelguildv1.MultiChatResult{
			PersonaId: r.PersonaID,
			Success:   r.Success,
			Error:     r.Error,
		}
		if r.Result != nil {
			out[i].Reply = toReplyProto(r.Result)
		}
	}
	return connect.NewResponse(&novelguildv1.MultiChatResponse{
		Results: out,
	}), nil
}

func (s *Server) GetHistoryStats(ctx context.Context, req *connect.Request[novelguildv1.GetHistoryStatsRequest]) (*connect.Response[novelguildv1.GetHistoryStatsResponse], error) {
	if req.Msg.PersonaId != "" {
		st, err := s.svc.HistoryStats(ctx, req.Msg.PersonaId)
		if err != nil {
			return nil, err
		}
		return connect.NewResponse(&novelguildv1.GetHistoryStatsResponse{
			Stats: []*novelguildv1.HistoryStats{toStatsProto(req.Msg.PersonaId, st)},
		}), nil
	}

	all, err := s.svc.AllHistoryStats(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]*novelguildv1.HistoryStats, 0, len(all))
	for id, st := range all {
		stats = append(stats, toStatsProto(string(id), st))
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].PersonaId < stats[j].PersonaId })
	return connect.NewResponse(&novelguildv1.GetHistoryStatsResponse{
		Stats: stats,
	}), nil
}

func (s *Server) ExportHistory(ctx context.Context, req *connect.Request[novelguildv1.ExportHistoryRequest]) (*connect.Response[novelguildv1.ExportHistoryResponse], error) {
	e, err := s.svc.ExportHistory(ctx, req.Msg.PersonaId)
	if err != nil {
		return nil, err
	}
	entries := make([]*novelguildv1.HistoryEntry, len(e.Conversations))
	for i, c := range e.Conversations {
		entries[i] = &novelguildv1.HistoryEntry{
			Timestamp: c.Timestamp,
			User:      c.User,
			Assistant: c.Assistant,
			Scenario:  string(c.Scenario),
			Tokens:    int32(c.Tokens),
		}
	}
	return connect.NewResponse(&novelguildv1.ExportHistoryResponse{
		Persona:       toPersonaProto(e.Persona),
		Conversations: entries,
		ExportTime:    e.ExportTime,
		Statistics:    toStatsProto(string(e.Persona.ID), e.Statistics),
	}), nil
}

func (s *Server) ClearHistory(ctx context.Context, req *connect.Request[novelguildv1.ClearHistoryRequest]) (*connect.Response[novelguildv1.ClearHistoryResponse], error) {
	var err error
	if req.Msg.PersonaId == "" {
		err = s.svc.ClearAllHistory(ctx)
	} else {
		err = s.svc.ClearHistory(ctx, req.Msg.PersonaId)
	}
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&novelguildv1.ClearHistoryResponse{}), nil
}

func (s *Server) SuggestPersona(ctx context.Context, req *connect.Request[novelguildv1.SuggestPersonaRequest]) (*connect.Response[novelguildv1.SuggestPersonaResponse], error) {
	p := s.svc.SuggestPersona(req.Msg.FilePath)
	return connect.NewResponse(&novelguildv1.SuggestPersonaResponse{
		Persona: toAvailabilityProto(s.svc.Probe(ctx, p)),
	}), nil
}

func toPersonaProto(p *persona.Persona) *novelguildv1.Persona {
	return &novelguildv1.Persona{
		Id:           string(p.ID),
		Name:         p.Name,
		Icon:         p.Icon,
		Color:        p.Color,
		Description:  p.Description,
		ContentAreas: p.ContentAreas,
		Strategy:     p.Strategy.String(),
	}
}

func toAvailabilityProto(a Availability) *novelguildv1.Persona {
	p := toPersonaProto(a.Persona)
	p.Available = a.Available
	p.Error = a.Error
	return p
}

func toCardProto(c *prompt.Card) *novelguildv1.PersonaCard {
	return &novelguildv1.PersonaCard{
		Name:         c.Name,
		Subtitle:     c.Subtitle,
		Description:  c.Description,
		Expertise:    c.Expertise,
		Style:        c.Style,
		Capabilities: int32(c.Capabilities),
	}
}

func toModularCardProto(c *prompt.ModularCard) *novelguildv1.PersonaCard {
	return &novelguildv1.PersonaCard{
		Name:         c.Name,
		Subtitle:     c.Title,
		Description:  c.Description,
		Capabilities: int32(c.Capabilities),
		Modules: map[string]int32{
			"thought":   int32(c.Modules.Thought),
			"execution": int32(c.Modules.Execution),
			"knowledge": int32(c.Modules.Knowledge),
		},
	}
}

func toReplyProto(r *Result) *novelguildv1.ChatReply {
	return &novelguildv1.ChatReply{
		PersonaId:     string(r.PersonaID),
		PersonaName:   r.PersonaName,
		PersonaIcon:   r.PersonaIcon,
		Scenario:      string(r.Scenario),
		ScenarioLabel: r.ScenarioLabel,
		UserMessage:   r.UserMessage,
		Response:      r.Response,
		Timestamp:     r.Timestamp,
		Usage: novelguildv1.TokenUsage{
			InputTokens:  int32(r.Usage.InputTokens),
			OutputTokens: int32(r.Usage.OutputTokens),
			TotalTokens:  int32(r.Usage.TotalTokens),
		},
		HasHistory: r.Context.HasHistory,
	}
}

func toStatsProto(personaID string, st Stats) *novelguildv1.HistoryStats {
	return &novelguildv1.HistoryStats{
		PersonaId:   personaID,
		Count:       int32(st.Count),
		TotalTokens: int32(st.TotalTokens),
		LastChat:    st.LastChat,
	}
}

func fromOptionsProto(o *novelguildv1.ChatOptions) Options {
	if o == nil {
		return Options{}
	}
	opts := Options{
		Scenario:    persona.ParseScenario(o.Scenario),
		ProjectInfo: o.ProjectInfo,
		Note:        o.Note,
	}
	if f := o.CurrentFile; f != nil {
		opts.CurrentFile = &FileContext{Path: f.Path, Type: f.Type, Preview: f.Preview}
	}
	return opts
}
