package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/novelguild/internal/generation"
	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/internal/workflow"
	"github.com/kazz187/novelguild/pkg/cerr"
	"github.com/kazz187/novelguild/pkg/storage"
)

func sampleWorkflow(id, user string, updated time.Time) *workflow.Workflow {
	created := time.Date(2026, 1, 2, 3, 4, 5, 6000000, time.UTC)
	return &workflow.Workflow{
		ID:             id,
		UserID:         user,
		ProjectName:    "异世界冒险",
		Status:         workflow.StatusActive,
		CurrentPhase:   workflow.PhaseReview,
		CurrentPersona: persona.Director,
		Context: workflow.Context{
			OriginalPrompt: "写一个发生在异世界的故事",
			Worldview:      &workflow.Artifact{Content: "世界设定", Timestamp: created, Quality: 85},
			Storyline:      &workflow.Artifact{Content: "大纲", Timestamp: created, Quality: 75},
			Chapters:       []workflow.Chapter{{Content: "第一章", Timestamp: created, Quality: 90, WordCount: 3}},
			Revisions:      []workflow.Revision{{Phase: workflow.PhasePlanning, Timestamp: created, Diff: "--- a\n+++ b\n"}},
		},
		History: []workflow.Step{{
			ID:         "step_01HZY",
			Phase:      workflow.PhaseAnalysis,
			Persona:    persona.Director,
			Input:      "写一个发生在异世界的故事",
			Output:     "分析结果",
			Quality:    95,
			DurationMS: 1234,
			Timestamp:  created,
			Usage:      generation.Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3},
			NextAction: &workflow.NextAction{
				Action:        workflow.ActionProceed,
				TargetPhase:   workflow.PhaseWorldbuilding,
				TargetPersona: persona.Architect,
				Reason:        "需要先构建世界观设定",
				CanProceed:    true,
				AutoGenerate:  true,
			},
		}},
		Progress:       workflow.Progress{Completion: 40, CurrentStep: 1, TotalSteps: 5, Quality: 95},
		PendingChoices: []workflow.Phase{workflow.PhasePlanning, workflow.PhaseCompleted},
		CreatedAt:      created,
		UpdatedAt:      updated,
	}
}

func TestJSONRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewJSONRepository(local)
	w := sampleWorkflow("alice_异世界冒险_1767323045006", "alice", time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))

	require.NoError(t, repo.Create(ctx, w))
	got, err := repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w, got)

	err = repo.Create(ctx, w)
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	got.Status = workflow.StatusCompleted
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, again.Status)

	require.NoError(t, repo.Delete(ctx, w.ID))
	_, err = repo.Get(ctx, w.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	assert.Contains(t, err.Error(), "工作流不存在")
}

func TestJSONRepositoryUpdateMissing(t *testing.T) {
	repo := NewJSONRepository(storage.NewMemoryStorage())
	err := repo.Update(context.Background(), sampleWorkflow("bob_x_1", "bob", time.Now()))
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestJSONRepositoryListByUser(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStorage()
	repo := NewJSONRepository(s)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, sampleWorkflow("a_one_1", "a", base)))
	require.NoError(t, repo.Create(ctx, sampleWorkflow("a_two_2", "a", base.Add(time.Hour))))
	// Same key prefix, different owner.
	require.NoError(t, repo.Create(ctx, sampleWorkflow("a_b_three_3", "a_b", base)))
	require.NoError(t, repo.Create(ctx, sampleWorkflow("c_four_4", "c", base)))
	require.NoError(t, s.Write(ctx, "workflows/a_broken_5.json", []byte("{")))

	list, err := repo.ListByUser(ctx, "a")
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, w := range list {
		ids = append(ids, w.ID)
	}
	assert.ElementsMatch(t, []string{"a_one_1", "a_two_2"}, ids)

	list, err = repo.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}
