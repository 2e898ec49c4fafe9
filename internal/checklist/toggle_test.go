package checklist

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)

func scenarioTasks() []Task {
	return []Task{{
		ID:   "t1",
		Name: "Scenario",
		Stages: Stages{
			Stage1: []Checkbox{{ID: "c1"}},
			Stage2: []Checkbox{{ID: "c2"}},
		},
	}}
}

func TestToggle_UnlocksNextStage(t *testing.T) {
	// Given: stage2 is locked behind an incomplete stage1
	tasks := scenarioTasks()
	require.False(t, IsStageUnlocked(tasks[0], Stage2))

	// When: c1 is completed
	res := Toggle(tasks, "t1", Stage1, "c1", t0)

	// Then: stage2 becomes unlocked
	require.True(t, res.Applied)
	assert.True(t, res.Completed)
	assert.True(t, IsStageUnlocked(res.Tasks[0], Stage2))
	assert.Equal(t, []StageKey{Stage1}, res.StagesCompleted)
}

func TestToggle_LockedStageIsNoop(t *testing.T) {
	tasks := scenarioTasks()

	res := Toggle(tasks, "t1", Stage2, "c2", t0)

	assert.False(t, res.Applied)
	assert.False(t, res.Tasks[0].Stages.Stage2[0].Completed)
	assert.Nil(t, res.Tasks[0].Metadata)
}

func TestToggle_UnknownTargetsAreNoops(t *testing.T) {
	tasks := scenarioTasks()

	for name, res := range map[string]ToggleResult{
		"unknown task":     Toggle(tasks, "nope", Stage1, "c1", t0),
		"unknown checkbox": Toggle(tasks, "t1", Stage1, "nope", t0),
		"unknown stage":    Toggle(tasks, "t1", StageKey("stage7"), "c1", t0),
	} {
		assert.False(t, res.Applied, name)
		assert.Empty(t, cmp.Diff(tasks, res.Tasks), name)
	}
}

func TestToggle_TwiceRestoresIncomplete(t *testing.T) {
	tasks := scenarioTasks()
	t1 := t0.Add(time.Minute)

	on := Toggle(tasks, "t1", Stage1, "c1", t0)
	off := Toggle(on.Tasks, "t1", Stage1, "c1", t1)

	require.True(t, off.Applied)
	cb := off.Tasks[0].Stages.Stage1[0]
	assert.False(t, cb.Completed)
	assert.Nil(t, cb.CompletedAt)
	require.NotNil(t, cb.UncompletedAt)
	assert.True(t, cb.UncompletedAt.Equal(t1))
}

func TestToggle_DoesNotMutateInput(t *testing.T) {
	tasks := scenarioTasks()
	snapshot := CloneTasks(tasks)

	res := Toggle(tasks, "t1", Stage1, "c1", t0)

	require.True(t, res.Applied)
	if diff := cmp.Diff(snapshot, tasks); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}

func TestToggle_Metadata(t *testing.T) {
	tasks := scenarioTasks()
	t1 := t0.Add(time.Hour)
	t2 := t1.Add(time.Hour)

	first := Toggle(tasks, "t1", Stage1, "c1", t0)
	md := first.Task.Metadata
	require.NotNil(t, md)
	assert.True(t, md.CreatedAt.Equal(t0))
	assert.True(t, md.FirstCompletedAt.Equal(t0))
	assert.True(t, md.LastActivityAt.Equal(t0))
	assert.True(t, md.StageCompletedDates[Stage1].Equal(t0))

	// Uncheck and re-check: first-completion and stage dates stay put.
	off := Toggle(first.Tasks, "t1", Stage1, "c1", t1)
	on := Toggle(off.Tasks, "t1", Stage1, "c1", t2)

	md = on.Task.Metadata
	assert.True(t, md.FirstCompletedAt.Equal(t0))
	assert.True(t, md.LastActivityAt.Equal(t2))
	assert.True(t, md.StageCompletedDates[Stage1].Equal(t0))
	assert.Empty(t, on.StagesCompleted)
}

func TestToggle_EmptyStagesAreNotStamped(t *testing.T) {
	tasks := []Task{{ID: "t", Stages: Stages{Stage1: []Checkbox{{ID: "c"}}}}}

	res := Toggle(tasks, "t", Stage1, "c", t0)

	require.True(t, res.Applied)
	assert.Len(t, res.Task.Metadata.StageCompletedDates, 1)
	_, ok := res.Task.Metadata.StageCompletedDates[Stage2]
	assert.False(t, ok)
}

func TestToggle_LastCheckboxTransitionsStageOnce(t *testing.T) {
	tasks := []Task{
		{ID: "a", Stages: Stages{Stage1: []Checkbox{{ID: "a1", Completed: true}, {ID: "a2"}}}},
		{ID: "b", Stages: Stages{Stage1: []Checkbox{{ID: "b1", Completed: true}}}},
	}
	require.False(t, IsStageFullyCompleted(tasks, Stage1))

	res := Toggle(tasks, "a", Stage1, "a2", t0)

	assert.True(t, IsStageFullyCompleted(res.Tasks, Stage1))
	assert.Equal(t, []StageKey{Stage1}, CompletedTransitions(tasks, res.Tasks))

	again := Toggle(res.Tasks, "a", Stage1, "a2", t0.Add(time.Minute))
	again = Toggle(again.Tasks, "a", Stage1, "a2", t0.Add(2*time.Minute))
	assert.True(t, again.Task.Metadata.StageCompletedDates[Stage1].Equal(t0))
}

func TestToggle_WholeCatalog(t *testing.T) {
	tasks := InitialTasks()
	now := t0

	for _, key := range StageKeys {
		for i := range tasks {
			for _, cb := range tasks[i].Stages.Get(key) {
				res := Toggle(tasks, tasks[i].ID, key, cb.ID, now)
				require.True(t, res.Applied, "%s/%s/%s", tasks[i].ID, key, cb.ID)
				tasks = res.Tasks
				now = now.Add(time.Second)
			}
		}
	}

	assert.Equal(t, 100, Summarize(tasks).CompletionPercentage)
	for _, key := range StageKeys {
		assert.True(t, IsStageFullyCompleted(tasks, key))
	}
}
