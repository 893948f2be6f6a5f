package conversation

import (
	"context"
	"errors"

	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/internal/prompt"
	"github.com/kazz187/novelguild/pkg/cerr"
)

// Availability reports whether a persona's instructions can be loaded.
type Availability struct {
	Persona   *persona.Persona
	Available bool
	Error     string
}

// Detail is the full description of a persona's loaded instructions.
type Detail struct {
	Persona      *persona.Persona
	Strategy     persona.Strategy
	Card         *prompt.Card
	ModularCard  *prompt.ModularCard
	Examples     []prompt.Example
	Sections     []string
	Capabilities []string
}

// ListPersonas returns every persona with the outcome of loading it.
func (s *Service) ListPersonas(ctx context.Context) []Availability {
	list := s.registry.List()
	out := make([]Availability, 0, len(list))
	for _, p := range list {
		out = append(out, s.Probe(ctx, p))
	}
	return out
}

// Probe loads the instructions of p and reports the outcome.
func (s *Service) Probe(ctx context.Context, p *persona.Persona) Availability {
	a := Availability{Persona: p, Available: true}
	if _, err := s.loader.Load(ctx, p); err != nil {
		a.Available = false
		a.Error = errorMessage(err)
	}
	return a
}

func (s *Service) PersonaDetail(ctx context.Context, personaID string) (*Detail, error) {
	p, err := s.registry.Get(personaID)
	if err != nil {
		return nil, err
	}
	in, err := s.loader.Load(ctx, p)
	if err != nil {
		return nil, err
	}

	d := &Detail{Persona: p, Strategy: in.Strategy()}
	if in.Role != nil {
		card := in.Role.Card()
		d.ModularCard = &card
		d.Capabilities = in.Role.Capabilities()
	}
	if in.Document != nil {
		card := prompt.NewCard(p.ID, in.Document)
		d.Card = &card
		d.Examples = prompt.ExtractExamples(in.Document)
		d.Sections = in.Document.SectionNames()
	}
	return d, nil
}

// SuggestPersona picks the persona for a project file.
func (s *Service) SuggestPersona(filePath string) *persona.Persona {
	return s.registry.MustGet(s.registry.SuggestForPath(filePath))
}

// errorMessage returns the caller facing message of err.
func errorMessage(err error) string {
	var e *cerr.Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
