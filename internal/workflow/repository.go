package workflow

import "context"

type Repository interface {
	Create(ctx context.Context, w *Workflow) error
	Get(ctx context.Context, id string) (*Workflow, error)
	Update(ctx context.Context, w *Workflow) error
	Delete(ctx context.Context, id string) error
	// ListByUser returns the workflows owned by userID in no particular order.
	ListByUser(ctx context.Context, userID string) ([]*Workflow, error)
}
