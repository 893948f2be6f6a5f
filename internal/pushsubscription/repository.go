package pushsubscription

import "context"

type Repository interface {
	// Save creates s or replaces the stored subscription with the same ID.
	Save(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
	FindByEndpoint(ctx context.Context, endpoint string) (*Subscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}
