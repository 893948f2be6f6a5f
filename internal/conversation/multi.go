package conversation

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// MultiResult is the outcome of one persona in a MultiChat call.
type MultiResult struct {
	PersonaID string  `json:"roleId"`
	Success   bool    `json:"success"`
	Result    *Result `json:"result,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// maxParallelChats bounds concurrent upstream calls of one MultiChat.
const maxParallelChats = 4

// MultiChat sends the same message to several personas concurrently. A
// failing persona is reported in its own result and does not abort the others.
func (s *Service) MultiChat(ctx context.Context, message string, personaIDs []string, opts Options) ([]MultiResult, error) {
	if err := ValidateMessage(message); err != nil {
		return nil, err
	}
	results := make([]MultiResult, len(personaIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelChats)
	for i, id := range personaIDs {
		eg.Go(func() error {
			res, err := s.Converse(egCtx, id, message, opts)
			if err != nil {
				slog.WarnContext(egCtx, "conversation: multi chat persona failed", "persona", id, "error", err)
				results[i] = MultiResult{PersonaID: id, Error: errorMessage(err)}
				return nil
			}
			results[i] = MultiResult{PersonaID: id, Success: true, Result: res}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
