package checklist

import "math"

// StageState is the derived per-task, per-stage state.
type StageState string

const (
	StateLocked     StageState = "locked"
	StateUnlocked   StageState = "unlocked"
	StateInProgress StageState = "in_progress"
	StateComplete   StageState = "complete"
)

// StageComplete reports whether every checkbox is completed. An empty
// stage is trivially complete.
func StageComplete(boxes []Checkbox) bool {
	for _, cb := range boxes {
		if !cb.Completed {
			return false
		}
	}
	return true
}

// IsStageUnlocked reports whether the stage is interactable for task.
// Stage 1 is always unlocked; a later stage requires every earlier
// non-empty stage to be fully completed. Unknown keys are locked.
func IsStageUnlocked(task Task, key StageKey) bool {
	idx := key.Index()
	if idx < 0 {
		return false
	}
	for _, prev := range StageKeys[:idx] {
		if !StageComplete(task.Stages.Get(prev)) {
			return false
		}
	}
	return true
}

// StageStateOf derives the state of one stage of one task.
func StageStateOf(task Task, key StageKey) StageState {
	if !IsStageUnlocked(task, key) {
		return StateLocked
	}
	boxes := task.Stages.Get(key)
	done := 0
	for _, cb := range boxes {
		if cb.Completed {
			done++
		}
	}
	switch {
	case done == len(boxes):
		return StateComplete
	case done > 0:
		return StateInProgress
	default:
		return StateUnlocked
	}
}

// IsStageFullyCompleted reports whether the stage is complete for every task.
func IsStageFullyCompleted(tasks []Task, key StageKey) bool {
	for _, t := range tasks {
		if !StageComplete(t.Stages.Get(key)) {
			return false
		}
	}
	return true
}

// IsStageTabEnabled reports whether at least one task has the stage unlocked.
func IsStageTabEnabled(tasks []Task, key StageKey) bool {
	for _, t := range tasks {
		if IsStageUnlocked(t, key) {
			return true
		}
	}
	return false
}

// CurrentStage returns the first stage that is not fully completed, or the
// last stage when all of them are.
func CurrentStage(tasks []Task) StageKey {
	for _, key := range StageKeys {
		if !IsStageFullyCompleted(tasks, key) {
			return key
		}
	}
	return StageKeys[len(StageKeys)-1]
}

// CompletedTransitions returns the stages that were not fully completed in
// before and are fully completed in after, in stage order. For the result
// of a single Toggle it holds at most one stage.
func CompletedTransitions(before, after []Task) []StageKey {
	var out []StageKey
	for _, key := range StageKeys {
		if !IsStageFullyCompleted(before, key) && IsStageFullyCompleted(after, key) {
			out = append(out, key)
		}
	}
	return out
}

// StageProgress counts checkboxes of one stage across tasks.
type StageProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Percentage returns the rounded completion percentage, 0 when empty.
func (p StageProgress) Percentage() int {
	return Percent(p.Completed, p.Total)
}

// CalculateStageProgress sums checkbox counts for one stage over all tasks.
func CalculateStageProgress(tasks []Task, key StageKey) StageProgress {
	var p StageProgress
	for _, t := range tasks {
		for _, cb := range t.Stages.Get(key) {
			p.Total++
			if cb.Completed {
				p.Completed++
			}
		}
	}
	return p
}

// Percent returns round(completed/total*100), or 0 when total is 0.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Summary is the aggregate shown on the admin overview.
type Summary struct {
	TotalCheckboxes      int `json:"totalCheckboxes"`
	CompletedCheckboxes  int `json:"completedCheckboxes"`
	CompletionPercentage int `json:"completionPercentage"`
	StagesCompleted      int `json:"stagesCompleted"`
}

// Summarize aggregates a task list. A stage counts as completed only when
// the list is non-empty and the stage is fully completed for every task.
func Summarize(tasks []Task) Summary {
	var s Summary
	for _, t := range tasks {
		total, done := t.CheckboxCount()
		s.TotalCheckboxes += total
		s.CompletedCheckboxes += done
	}
	s.CompletionPercentage = Percent(s.CompletedCheckboxes, s.TotalCheckboxes)
	if len(tasks) > 0 {
		for _, key := range StageKeys {
			if IsStageFullyCompleted(tasks, key) {
				s.StagesCompleted++
			}
		}
	}
	return s
}
