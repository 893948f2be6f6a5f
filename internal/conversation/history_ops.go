package conversation

import (
	"context"
	"time"

	"github.com/kazz187/novelguild/internal/persona"
)

type Export struct {
	Persona       *persona.Persona `json:"role"`
	Conversations []Entry          `json:"conversations"`
	ExportTime    time.Time        `json:"exportTime"`
	Statistics    Stats            `json:"statistics"`
}

func (s *Service) HistoryStats(ctx context.Context, personaID string) (Stats, error) {
	p, err := s.registry.Get(personaID)
	if err != nil {
		return Stats{}, err
	}
	entries, err := s.history.List(ctx, p.ID)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(entries), nil
}

// AllHistoryStats returns the stats of every registered persona.
func (s *Service) AllHistoryStats(ctx context.Context) (map[persona.ID]Stats, error) {
	out := make(map[persona.ID]Stats, len(persona.IDs))
	for _, p := range s.registry.List() {
		entries, err := s.history.List(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out[p.ID] = statsOf(entries)
	}
	return out, nil
}

func (s *Service) ExportHistory(ctx context.Context, personaID string) (*Export, error) {
	p, err := s.registry.Get(personaID)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.List(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &Export{
		Persona:       p,
		Conversations: entries,
		ExportTime:    s.now().UTC(),
		Statistics:    statsOf(entries),
	}, nil
}

func (s *Service) ClearHistory(ctx context.Context, personaID string) error {
	p, err := s.registry.Get(personaID)
	if err != nil {
		return err
	}
	return s.history.Clear(ctx, p.ID)
}

// ClearAllHistory drops every conversation and the prompt cache.
func (s *Service) ClearAllHistory(ctx context.Context) error {
	if err := s.history.ClearAll(ctx); err != nil {
		return err
	}
	s.loader.InvalidateAll()
	return nil
}
