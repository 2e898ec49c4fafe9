package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wftracker/wftracker/internal/checklist"
)

var now = time.Date(2025, 7, 31, 17, 30, 0, 0, time.UTC)

func progressedTasks(t *testing.T) []checklist.Task {
	t.Helper()
	tasks := checklist.InitialTasks()
	at := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	for i := range tasks[:6] {
		for _, cb := range tasks[i].Stages.Stage1 {
			res := checklist.Toggle(tasks, tasks[i].ID, checklist.Stage1, cb.ID, at)
			require.True(t, res.Applied)
			tasks = res.Tasks
			at = at.Add(7 * time.Hour)
		}
	}
	return tasks
}

func TestWrite_ProducesPDF(t *testing.T) {
	var buf bytes.Buffer

	err := Write(&buf, Input{
		FullName: "Dr. Priya Sharma",
		Tasks:    progressedTasks(t),
		Now:      now,
	})

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Contains(t, buf.String(), "%%EOF")
	// Overview, task summary and tips pages.
	assert.GreaterOrEqual(t, bytes.Count(buf.Bytes(), []byte("/Type /Page")), 3)
}

func TestWrite_NoProgress(t *testing.T) {
	var buf bytes.Buffer

	err := Write(&buf, Input{Tasks: checklist.InitialTasks(), Now: now, Location: time.UTC})

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestWrite_EmptyTaskList(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, Write(&buf, Input{Now: now}))
	assert.NotZero(t, buf.Len())
}

func TestWrite_RequiresNow(t *testing.T) {
	var buf bytes.Buffer

	err := Write(&buf, Input{Tasks: checklist.InitialTasks()})

	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestWrite_Deterministic(t *testing.T) {
	tasks := progressedTasks(t)
	var a, b bytes.Buffer

	require.NoError(t, Write(&a, Input{Tasks: tasks, Now: now}))
	require.NoError(t, Write(&b, Input{Tasks: tasks, Now: now}))

	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Workflow-Tracker-Report-July-2025.pdf", FileName(now))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
