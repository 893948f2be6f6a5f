package stream_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/novelguild/internal/conversation"
	"github.com/kazz187/novelguild/internal/eventbus"
	"github.com/kazz187/novelguild/internal/generation"
	"github.com/kazz187/novelguild/internal/generation/generationtest"
	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/internal/prompt"
	"github.com/kazz187/novelguild/internal/stream"
	"github.com/kazz187/novelguild/internal/workflow"
	"github.com/kazz187/novelguild/internal/workflow/repositoryimpl"
	"github.com/kazz187/novelguild/pkg/storage"
)

type recordingSink struct {
	events []*stream.Event
	// failAt makes the n-th Send (1-based) fail.
	failAt int
}

func (s *recordingSink) Send(ev *stream.Event) error {
	if s.failAt > 0 && len(s.events)+1 == s.failAt {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []stream.Type {
	out := make([]stream.Type, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordingSink) last() *stream.Event {
	return s.events[len(s.events)-1]
}

func (s *recordingSink) chunks() string {
	var b strings.Builder
	for _, ev := range s.events {
		if c, ok := ev.Data.(stream.ContentChunk); ok {
			b.WriteString(c.Content)
		}
	}
	return b.String()
}

// assertSingleTerminal checks that exactly one terminal event closes the
// session.
func assertSingleTerminal(t *testing.T, events []*stream.Event) {
	t.Helper()
	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, i == len(events)-1, ev.Type.Terminal(), "event %d (%s)", i, ev.Type)
	}
}

type fixture struct {
	conv *conversation.Service
	orch *workflow.Orchestrator
	fake *generationtest.Fake
	disp *stream.Dispatcher
	bus  *eventbus.Bus
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	s := storage.NewMemoryStorage()
	for _, id := range []persona.ID{persona.Director, persona.Architect, persona.Planner, persona.Writer} {
		doc := fmt.Sprintf("# %s\n\n<persona>\n你是%s。\n</persona>\n", id, id)
		require.NoError(t, s.Write(context.Background(), "roles/"+string(id)+".oes.md", []byte(doc)))
	}
	fake := generationtest.NewFake(replies...)
	fake.ChunkRunes = 4
	conv := conversation.NewService(persona.NewRegistry(), prompt.NewLoader(s), fake, conversation.NewMemoryHistory(0))
	bus := eventbus.New()
	orch := workflow.NewOrchestrator(repositoryimpl.NewJSONRepository(storage.NewMemoryStorage()), conv, bus)
	return &fixture{conv: conv, orch: orch, fake: fake, disp: stream.NewDispatcher(conv, orch), bus: bus}
}

func TestDispatchChat(t *testing.T) {
	f := newFixture(t, "从冲突开始写第一章吧")
	sink := &recordingSink{}

	err := f.disp.DispatchChat(context.Background(), sink, "writer", "怎么开头？", conversation.Options{})
	require.NoError(t, err)

	assertSingleTerminal(t, sink.events)
	assert.Equal(t, []stream.Type{
		stream.TypeChatStart,
		stream.TypeContentChunk, stream.TypeContentChunk, stream.TypeContentChunk,
		stream.TypeChatComplete,
	}, sink.types())
	assert.Equal(t, "从冲突开始写第一章吧", sink.chunks())

	done, ok := sink.last().Data.(stream.ChatComplete)
	require.True(t, ok)
	assert.Equal(t, persona.Writer, done.Role)
	assert.Equal(t, "从冲突开始写第一章吧", done.Content)
	assert.Positive(t, done.TokenUsage.TotalTokens)
}

func TestDispatchChatUnknownPersona(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}

	err := f.disp.DispatchChat(context.Background(), sink, "ghost", "你好", conversation.Options{})
	require.ErrorIs(t, err, persona.ErrNotFound)

	assertSingleTerminal(t, sink.events)
	assert.Equal(t, []stream.Type{stream.TypeChatStart, stream.TypeError}, sink.types())
	assert.Equal(t, stream.ErrorData{Message: "未知的角色ID: ghost", Code: stream.CodeRoleStream}, sink.last().Data)
	assert.Zero(t, f.fake.CallCount())
}

func TestDispatchChatGenerationError(t *testing.T) {
	f := newFixture(t)
	f.fake.Enqueue(generationtest.Reply{Err: &generation.APIError{StatusCode: 500, Message: "boom"}})
	sink := &recordingSink{}

	err := f.disp.DispatchChat(context.Background(), sink, "writer", "写点什么", conversation.Options{})
	require.ErrorIs(t, err, generation.ErrGeneration)

	assertSingleTerminal(t, sink.events)
	assert.Equal(t, stream.ErrorData{Message: "API Error: 500 - boom", Code: stream.CodeRoleStream}, sink.last().Data)
}

func TestDispatchChatSinkFailureCancels(t *testing.T) {
	f := newFixture(t, "一二三四五六七八九十")
	sink := &recordingSink{failAt: 2}

	err := f.disp.DispatchChat(context.Background(), sink, "writer", "写", conversation.Options{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []stream.Type{stream.TypeChatStart}, sink.types())
	stats, err := f.conv.HistoryStats(context.Background(), "writer")
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
}

type panickingChatter struct{}

func (panickingChatter) ConverseStream(context.Context, string, string, conversation.Options, func(string) error) (*conversation.Result, error) {
	panic("nil dereference")
}

func TestDispatchChatPanic(t *testing.T) {
	disp := stream.NewDispatcher(panickingChatter{}, nil)
	sink := &recordingSink{}

	err := disp.DispatchChat(context.Background(), sink, "writer", "写", conversation.Options{})
	require.Error(t, err)

	assertSingleTerminal(t, sink.events)
	assert.Equal(t, stream.ErrorData{Message: "server error", Code: stream.CodeRoleStream}, sink.last().Data)
}

func TestDispatchWorkflow(t *testing.T) {
	analysis := strings.Repeat("明确创作目标与读者定位。\n", 50)
	outline := strings.Repeat("第一幕搭建结构，第二幕冲突升级。\n", 40)
	f := newFixture(t, analysis, outline)
	ctx := context.Background()

	start, err := f.orch.Start(ctx, "u", "都市", "写一个都市爱情故事")
	require.NoError(t, err)
	require.Equal(t, workflow.PhasePlanning, start.Workflow.CurrentPhase)

	sink := &recordingSink{}
	require.NoError(t, f.disp.DispatchWorkflow(ctx, sink, start.WorkflowID, "开始规划"))

	assertSingleTerminal(t, sink.events)
	assert.Equal(t, stream.TypePhaseStart, sink.events[0].Type)
	ps, ok := sink.events[0].Data.(stream.PhaseStart)
	require.True(t, ok)
	assert.Equal(t, workflow.PhasePlanning, ps.Phase)
	assert.Equal(t, persona.Planner, ps.Role)
	assert.Equal(t, outline, sink.chunks())

	done, ok := sink.last().Data.(stream.PhaseComplete)
	require.True(t, ok)
	assert.Equal(t, workflow.PhasePlanning, done.CurrentPhase)
	assert.Equal(t, workflow.PhaseWriting, done.NextPhase)
	assert.True(t, done.CanContinue)
	assert.Equal(t, outline, done.Content)

	w, err := f.orch.Get(ctx, start.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, workflow.PhaseWriting, w.CurrentPhase)
}

// syncSink may be read while a session writes to it. chunk is closed on
// the first content chunk.
type syncSink struct {
	mu     sync.Mutex
	events []*stream.Event
	chunk  chan struct{}
	once   sync.Once
}

func newSyncSink() *syncSink {
	return &syncSink{chunk: make(chan struct{})}
}

func (s *syncSink) Send(ev *stream.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	if ev.Type == stream.TypeContentChunk {
		s.once.Do(func() { close(s.chunk) })
	}
	return nil
}

func (s *syncSink) snapshot() *recordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &recordingSink{events: slices.Clone(s.events)}
}

func TestDispatchWorkflowConcurrentSessions(t *testing.T) {
	analysis := strings.Repeat("明确创作目标与读者定位。\n", 50)
	outline := strings.Repeat("第一幕搭建结构，第二幕冲突升级。\n", 40)
	chapter := strings.Repeat("第一章的内容在雨夜展开。\n", 40)
	f := newFixture(t, analysis, outline, chapter)
	ctx := context.Background()

	start, err := f.orch.Start(ctx, "u", "都市", "写一个都市爱情故事")
	require.NoError(t, err)
	require.Equal(t, workflow.PhasePlanning, start.Workflow.CurrentPhase)
	f.fake.Hold = make(chan struct{})

	a, b := newSyncSink(), newSyncSink()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.disp.DispatchWorkflow(ctx, a, start.WorkflowID, "开始规划"))
	}()
	<-a.chunk

	go func() {
		defer wg.Done()
		assert.NoError(t, f.disp.DispatchWorkflow(ctx, b, start.WorkflowID, "开始写作"))
	}()
	// B announces nothing while A still owns the workflow.
	assert.Never(t, func() bool { return len(b.snapshot().events) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	close(f.fake.Hold)
	wg.Wait()

	for _, tc := range []struct {
		sink  *syncSink
		phase workflow.Phase
		role  persona.ID
		text  string
	}{
		{a, workflow.PhasePlanning, persona.Planner, outline},
		{b, workflow.PhaseWriting, persona.Writer, chapter},
	} {
		rec := tc.sink.snapshot()
		assertSingleTerminal(t, rec.events)
		ps, ok := rec.events[0].Data.(stream.PhaseStart)
		require.True(t, ok)
		assert.Equal(t, tc.phase, ps.Phase)
		assert.Equal(t, tc.role, ps.Role)
		for _, ev := range rec.events[1 : len(rec.events)-1] {
			c, ok := ev.Data.(stream.ContentChunk)
			require.True(t, ok)
			assert.Equal(t, tc.phase, c.Phase)
			assert.Equal(t, tc.role, c.Role)
		}
		assert.Equal(t, tc.text, rec.chunks())
		done, ok := rec.last().Data.(stream.PhaseComplete)
		require.True(t, ok)
		assert.Equal(t, tc.phase, done.CurrentPhase)
	}
}

func TestDispatchWorkflowGenerationError(t *testing.T) {
	f := newFixture(t, "短")
	ctx := context.Background()
	start, err := f.orch.Start(ctx, "u", "p", "写一个故事")
	require.NoError(t, err)

	f.fake.Enqueue(generationtest.Reply{Err: &generation.APIError{StatusCode: 503, Message: "overloaded"}})
	// "短" is still at the head of the queue.
	require.NoError(t, f.disp.DispatchWorkflow(ctx, &recordingSink{}, start.WorkflowID, "再试"))

	sink := &recordingSink{}
	err = f.disp.DispatchWorkflow(ctx, sink, start.WorkflowID, "再试")
	require.ErrorIs(t, err, generation.ErrGeneration)

	assertSingleTerminal(t, sink.events)
	assert.Equal(t, []stream.Type{stream.TypePhaseStart, stream.TypeError}, sink.types())
	assert.Equal(t, stream.ErrorData{Message: "API Error: 503 - overloaded", Code: stream.CodeWorkflowStream}, sink.last().Data)

	w, err := f.orch.Get(ctx, start.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, w.Status)
}

func TestDispatchWorkflowClientGone(t *testing.T) {
	f := newFixture(t, "短")
	ctx := context.Background()
	start, err := f.orch.Start(ctx, "u", "p", "写一个故事")
	require.NoError(t, err)

	sink := &recordingSink{failAt: 2}
	err = f.disp.DispatchWorkflow(ctx, sink, start.WorkflowID, "再试")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []stream.Type{stream.TypePhaseStart}, sink.types())

	w, err := f.orch.Get(ctx, start.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusActive, w.Status)
	assert.Len(t, w.History, 1)
}

func TestDispatchWorkflowUnknown(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}

	err := f.disp.DispatchWorkflow(context.Background(), sink, "missing", "hi")
	require.Error(t, err)
	assert.Equal(t, []stream.Type{stream.TypeError}, sink.types())
	assert.Equal(t, stream.CodeWorkflowStream, sink.last().Data.(stream.ErrorData).Code)
}
