package checklist

import "time"

// ToggleResult is the outcome of a toggle request.
type ToggleResult struct {
	// Tasks is the resulting list. When Applied is false it is the input.
	Tasks []Task
	// Task is the replaced task value; zero when Applied is false.
	Task    Task
	Applied bool
	// Completed is the new state of the toggled checkbox.
	Completed bool
	// StagesCompleted lists the stages of this task stamped complete by
	// this toggle.
	StagesCompleted []StageKey
}

// Toggle flips one checkbox and returns a new task list in which the
// affected task has been replaced wholesale. The input slice is never
// modified.
//
// Unknown task, stage or checkbox IDs and locked stages are no-ops.
func Toggle(tasks []Task, taskID string, key StageKey, checkboxID string, now time.Time) ToggleResult {
	noop := ToggleResult{Tasks: tasks}
	if !key.Valid() {
		return noop
	}

	pos := -1
	for i, t := range tasks {
		if t.ID == taskID {
			pos = i
			break
		}
	}
	if pos < 0 || !IsStageUnlocked(tasks[pos], key) {
		return noop
	}

	updated := tasks[pos].Clone()
	boxes := updated.Stages.Get(key)
	cbPos := -1
	for i, cb := range boxes {
		if cb.ID == checkboxID {
			cbPos = i
			break
		}
	}
	if cbPos < 0 {
		return noop
	}

	ts := now
	cb := &boxes[cbPos]
	cb.Completed = !cb.Completed
	if cb.Completed {
		cb.CompletedAt = &ts
	} else {
		cb.UncompletedAt = &ts
		cb.CompletedAt = nil
	}

	stamped := stampMetadata(&updated, cb.Completed, ts)

	out := make([]Task, len(tasks))
	copy(out, tasks)
	out[pos] = updated

	return ToggleResult{
		Tasks:           out,
		Task:            updated,
		Applied:         true,
		Completed:       cb.Completed,
		StagesCompleted: stamped,
	}
}

// stampMetadata updates activity timestamps and records the first
// completion date of every non-empty stage that is now complete.
func stampMetadata(t *Task, completed bool, now time.Time) []StageKey {
	if t.Metadata == nil {
		t.Metadata = &Metadata{CreatedAt: &now}
	}
	md := t.Metadata
	md.LastActivityAt = &now
	if completed && md.FirstCompletedAt == nil {
		md.FirstCompletedAt = &now
	}

	var stamped []StageKey
	for _, key := range StageKeys {
		boxes := t.Stages.Get(key)
		if len(boxes) == 0 || !StageComplete(boxes) {
			continue
		}
		if _, ok := md.StageCompletedDates[key]; ok {
			continue
		}
		if md.StageCompletedDates == nil {
			md.StageCompletedDates = make(map[StageKey]time.Time)
		}
		md.StageCompletedDates[key] = now
		stamped = append(stamped, key)
	}
	return stamped
}
