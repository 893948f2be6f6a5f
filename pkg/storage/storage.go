package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// Storage is a flat blob store addressed by slash separated keys.
// Writes replace the whole object.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns the keys directly under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Reader is the read-only subset of Storage.
type Reader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}
