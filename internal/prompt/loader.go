package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/pkg/storage"
)

// Instructions are the loaded prompt material of one persona.
type Instructions struct {
	Persona persona.ID
	// Document is the legacy document, nil when only a modular role exists.
	Document *Document
	// Role is set when the persona composes from a modular role.
	Role     *ModularRole
	LoadedAt time.Time
}

func (in *Instructions) Strategy() persona.Strategy {
	if in.Role != nil {
		return persona.StrategyModular
	}
	return persona.StrategyLegacy
}

// Compose renders system instructions for a scenario and request context.
func (in *Instructions) Compose(scenario persona.Scenario, cc ComposeContext) string {
	if in.Role != nil {
		return in.Role.Compose(cc)
	}
	return in.Document.Compose(scenario, cc)
}

// Loader caches Instructions per persona. Concurrent first loads of the
// same persona share a single read.
type Loader struct {
	src      storage.Reader
	resolver *Resolver
	now      func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[persona.ID]*Instructions
	// gen increments on every invalidation so an in-flight load started
	// before it is not cached.
	gen uint64
}

func NewLoader(src storage.Reader) *Loader {
	return &Loader{
		src:      src,
		resolver: NewResolver(src),
		now:      time.Now,
		cache:    make(map[persona.ID]*Instructions),
	}
}

func (l *Loader) Load(ctx context.Context, p *persona.Persona) (*Instructions, error) {
	l.mu.RLock()
	in, ok := l.cache[p.ID]
	gen := l.gen
	l.mu.RUnlock()
	if ok {
		return in, nil
	}

	v, err, _ := l.group.Do(string(p.ID), func() (any, error) {
		l.mu.RLock()
		in, ok := l.cache[p.ID]
		l.mu.RUnlock()
		if ok {
			return in, nil
		}
		// The load outlives any single caller that joined it.
		in, err := l.load(context.WithoutCancel(ctx), p)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if l.gen == gen {
			l.cache[p.ID] = in
		}
		l.mu.Unlock()
		return in, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Instructions), nil
}

// Cached reports whether id has a cache entry.
func (l *Loader) Cached(id persona.ID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.cache[id]
	return ok
}

// Invalidate drops the entry for id. Callers arriving afterwards start a
// fresh load instead of joining one already in flight.
func (l *Loader) Invalidate(id persona.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, id)
	l.gen++
	l.group.Forget(string(id))
}

func (l *Loader) InvalidateAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.cache)
	l.gen++
	for _, id := range persona.IDs {
		l.group.Forget(string(id))
	}
}

func (l *Loader) load(ctx context.Context, p *persona.Persona) (*Instructions, error) {
	in := &Instructions{Persona: p.ID, LoadedAt: l.now().UTC()}

	doc, err := l.loadDocument(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	in.Document = doc
	if doc != nil && doc.Format == FormatStructured {
		return in, nil
	}

	if p.Strategy == persona.StrategyModular {
		role, err := l.resolver.ResolveRole(ctx, p.ID.ModularDir())
		switch {
		case err == nil:
			in.Role = role
			return in, nil
		case errors.Is(err, errRoleMissing):
			slog.WarnContext(ctx, "prompt: modular role missing, using document", "persona", p.ID)
		default:
			return nil, err
		}
	}

	if doc == nil {
		return nil, loadError(fmt.Sprintf("角色提示词不存在: %s", p.ID), storage.ErrNotFound)
	}
	return in, nil
}

// LegacyPaths lists the document locations tried for a persona, in order.
func LegacyPaths(id persona.ID) []string {
	return []string{
		path.Join(legacyRoot, string(id)+".oes.md"),
		path.Join(legacyRoot, string(id)+".prompt.md"),
	}
}

// loadDocument returns nil without error when no legacy document exists.
func (l *Loader) loadDocument(ctx context.Context, id persona.ID) (*Document, error) {
	for _, p := range LegacyPaths(id) {
		data, err := l.src.Read(ctx, p)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, loadError(fmt.Sprintf("角色提示词读取失败: %s", id), err)
		}
		doc := Parse(string(data))
		if doc.Degraded {
			slog.WarnContext(ctx, "prompt: no recognized sections, using raw text", "persona", id, "path", p)
		}
		slog.DebugContext(ctx, "prompt: document loaded", "persona", id, "path", p, "format", doc.Format.String())
		return doc, nil
	}
	return nil, nil
}
