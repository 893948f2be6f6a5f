package clog

import (
	"context"
	"maps"
	"sync"
)

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

// ctxSlog collects attributes over the lifetime of one request so a single
// access log line can carry everything the handlers learned.
type ctxSlog struct {
	mu         sync.RWMutex
	attributes map[string]any
}

type ctxSlogKey struct{}

func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxSlogKey{}, &ctxSlog{attributes: make(map[string]any)})
}

func fromContext(ctx context.Context) *ctxSlog {
	l, _ := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	return l
}

func AddAttribute(ctx context.Context, key string, value any) {
	l := fromContext(ctx)
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attributes[key] = value
}

func AddAttributes(ctx context.Context, attributes map[string]any) {
	l := fromContext(ctx)
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	mergeMaps(l.attributes, attributes)
}

func GetAttribute[T any](ctx context.Context, key string) T {
	var zero T
	l := fromContext(ctx)
	if l == nil {
		return zero
	}
	l.mu.RLock()
	v, ok := l.attributes[key]
	l.mu.RUnlock()
	if !ok {
		return zero
	}
	typed, ok := v.(T)
	if !ok {
		return zero
	}
	return typed
}

func GetAttributes(ctx context.Context) map[string]any {
	l := fromContext(ctx)
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.attributes)
}

// mergeMaps merges nested maps recursively instead of replacing them.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		vMap, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if dstMap, ok := dst[k].(map[string]any); ok {
			mergeMaps(dstMap, vMap)
			continue
		}
		dst[k] = vMap
	}
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

func GetStack(ctx context.Context) string {
	return GetAttribute[string](ctx, StackAttributeKey)
}
