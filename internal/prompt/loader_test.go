package prompt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/pkg/cerr"
	"github.com/kazz187/novelguild/pkg/storage"
)

const roleFile = `<role>
<identity>
<name>世界观设计师</name>
<title>首席设定官</title>
<description>
负责构建世界。
</description>
</identity>
<personality>
@!thought://creative-thinking
@thought://missing-optional
</personality>
<principle>
@!execution://world-building
@knowledge://misplaced
</principle>
<knowledge>
@knowledge://magic-systems
</knowledge>
</role>`

func seedModular(t *testing.T, s storage.Storage) {
	t.Helper()
	ctx := context.Background()
	files := map[string]string{
		"role/worldview-designer/worldview-designer.role.md":                 roleFile,
		"role/worldview-designer/thought/creative-thinking.thought.md":       "<thought>\n# 创意思维\n- 发散联想\n普通句子\n关键：保持一致\n</thought>",
		"role/worldview-designer/execution/world-building.md":                "1. 确定基调\n2. 设计地理",
		"role/shared/magic-systems.md":                                       "* 元素魔法",
		"role/worldview-designer/knowledge/misplaced.knowledge.md":           "- should not load",
	}
	for k, v := range files {
		require.NoError(t, s.Write(ctx, k, []byte(v)))
	}
}

func TestLoaderModular(t *testing.T) {
	s := storage.NewMemoryStorage()
	seedModular(t, s)
	reg := persona.NewRegistry()

	in, err := NewLoader(s).Load(context.Background(), reg.MustGet(persona.Architect))
	require.NoError(t, err)
	require.NotNil(t, in.Role)
	assert.Equal(t, persona.StrategyModular, in.Strategy())

	assert.Equal(t, "role/worldview-designer/thought/creative-thinking.thought.md", in.Role.Thought[0].Location)
	assert.Equal(t, "role/worldview-designer/execution/world-building.md", in.Role.Execution[0].Location)
	assert.Equal(t, "role/shared/magic-systems.md", in.Role.Knowledge[0].Location)

	want := "【角色身份】世界观设计师\n【专业头衔】首席设定官\n【角色描述】\n负责构建世界。\n\n" +
		"【思维模式】\n\n## creative-thinking\n- 发散联想\n关键：保持一致\n" +
		"\n【执行原则】\n\n## world-building\n1. 确定基调\n" +
		"\n【专业知识】\n\n## magic-systems\n* 元素魔法\n"
	assert.Equal(t, want, in.Compose(persona.ScenarioDefault, ComposeContext{}))
	assert.Equal(t, want+"\n【项目信息】\nP\n\n", in.Compose(persona.ScenarioReview, ComposeContext{ProjectInfo: "P"}))
	assert.Equal(t, []string{"creative thinking", "world building", "magic systems"}, in.Role.Capabilities())
}

func TestLoaderRequiredModuleMissing(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStorage()
	require.NoError(t, s.Write(ctx, "role/text-creator/text-creator.role.md",
		[]byte("<personality>\n@!thought://nowhere\n</personality>")))
	require.NoError(t, s.Write(ctx, "roles/writer.prompt.md", []byte("<persona>W</persona>")))

	_, err := NewLoader(s).Load(ctx, persona.NewRegistry().MustGet(persona.Writer))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}

func TestLoaderOptionalModuleMissing(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStorage()
	require.NoError(t, s.Write(ctx, "role/text-creator/text-creator.role.md",
		[]byte("<identity><name>写手</name></identity>\n<personality>\n@thought://nowhere\n</personality>")))

	in, err := NewLoader(s).Load(ctx, persona.NewRegistry().MustGet(persona.Writer))
	require.NoError(t, err)
	assert.Empty(t, in.Role.Thought)
	assert.Equal(t, "【角色身份】写手\n", in.Compose(persona.ScenarioDefault, ComposeContext{}))
}

func TestLoaderFallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("modular role missing uses document", func(t *testing.T) {
		s := storage.NewMemoryStorage()
		require.NoError(t, s.Write(ctx, "roles/planner.prompt.md", []byte("<persona>规划</persona>")))

		in, err := NewLoader(s).Load(ctx, persona.NewRegistry().MustGet(persona.Planner))
		require.NoError(t, err)
		assert.Nil(t, in.Role)
		assert.Equal(t, persona.StrategyLegacy, in.Strategy())
		assert.Equal(t, "【角色设定】\n规划\n\n", in.Compose(persona.ScenarioDefault, ComposeContext{}))
	})

	t.Run("structured document wins over modular role", func(t *testing.T) {
		s := storage.NewMemoryStorage()
		seedModular(t, s)
		require.NoError(t, s.Write(ctx, "roles/architect.oes.md", []byte(structuredDoc)))
		require.NoError(t, s.Write(ctx, "roles/architect.prompt.md", []byte("<persona>ignored</persona>")))

		in, err := NewLoader(s).Load(ctx, persona.NewRegistry().MustGet(persona.Architect))
		require.NoError(t, err)
		assert.Nil(t, in.Role)
		assert.Equal(t, FormatStructured, in.Document.Format)
	})

	t.Run("legacy strategy ignores modular role", func(t *testing.T) {
		s := storage.NewMemoryStorage()
		seedModular(t, s)
		require.NoError(t, s.Write(ctx, "roles/architect.prompt.md", []byte("<persona>A</persona>")))

		p := &persona.Persona{ID: persona.Architect, Strategy: persona.StrategyLegacy}
		in, err := NewLoader(s).Load(ctx, p)
		require.NoError(t, err)
		assert.Nil(t, in.Role)
	})

	t.Run("nothing found", func(t *testing.T) {
		_, err := NewLoader(storage.NewMemoryStorage()).Load(ctx, persona.NewRegistry().MustGet(persona.Director))
		assert.ErrorIs(t, err, ErrLoad)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

type gatedReader struct {
	storage.Reader
	path    string
	reads   atomic.Int32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedReader) Read(ctx context.Context, p string) ([]byte, error) {
	if p == g.path {
		g.reads.Add(1)
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.Reader.Read(ctx, p)
}

func TestLoaderSingleFlight(t *testing.T) {
	s := storage.NewMemoryStorage()
	seedModular(t, s)
	gr := &gatedReader{
		Reader:  s,
		path:    RolePath("worldview-designer"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	l := NewLoader(gr)
	p := persona.NewRegistry().MustGet(persona.Architect)

	const callers = 8
	results := make([]*Instructions, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in, err := l.Load(context.Background(), p)
			assert.NoError(t, err)
			results[i] = in
		}()
	}
	<-gr.entered
	close(gr.release)
	wg.Wait()

	assert.Equal(t, int32(1), gr.reads.Load())
	for _, in := range results {
		assert.Same(t, results[0], in)
	}
	assert.True(t, l.Cached(persona.Architect))

	l.Invalidate(persona.Architect)
	assert.False(t, l.Cached(persona.Architect))
	_, err := l.Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int32(2), gr.reads.Load())

	l.InvalidateAll()
	assert.False(t, l.Cached(persona.Architect))
}

func TestLoaderInvalidateDuringLoad(t *testing.T) {
	s := storage.NewMemoryStorage()
	seedModular(t, s)
	gr := &gatedReader{
		Reader:  s,
		path:    RolePath("worldview-designer"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	l := NewLoader(gr)
	p := persona.NewRegistry().MustGet(persona.Architect)

	var (
		wg            sync.WaitGroup
		before, after *Instructions
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		in, err := l.Load(context.Background(), p)
		assert.NoError(t, err)
		before = in
	}()
	<-gr.entered

	l.Invalidate(persona.Architect)
	wg.Add(1)
	go func() {
		defer wg.Done()
		in, err := l.Load(context.Background(), p)
		assert.NoError(t, err)
		after = in
	}()
	// The second caller reads on its own rather than sharing the first load.
	require.Eventually(t, func() bool { return gr.reads.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(gr.release)
	wg.Wait()

	assert.NotSame(t, before, after)
	cached, err := l.Load(context.Background(), p)
	require.NoError(t, err)
	assert.Same(t, after, cached)
	assert.Equal(t, int32(2), gr.reads.Load())
}

func TestLoaderCallerCancellationDoesNotAbortLoad(t *testing.T) {
	s := storage.NewMemoryStorage()
	seedModular(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in, err := NewLoader(s).Load(ctx, persona.NewRegistry().MustGet(persona.Architect))
	require.NoError(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
	assert.NotNil(t, in.Role)
}
