// Package checklist holds the task/stage progression model: the fixed
// procedure catalog, stage unlock rules, progress aggregation and the
// checkbox toggle that drives every state change.
//
// Lock state is never stored. Every predicate here is a pure function of
// the checkbox data it is given.
package checklist

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageKey identifies one of the four sequential phases of a task.
type StageKey string

const (
	Stage1 StageKey = "stage1"
	Stage2 StageKey = "stage2"
	Stage3 StageKey = "stage3"
	Stage4 StageKey = "stage4"
)

// StageKeys lists the stages in unlock order.
var StageKeys = []StageKey{Stage1, Stage2, Stage3, Stage4}

// Index returns the zero-based position of the stage, or -1 for unknown keys.
func (k StageKey) Index() int {
	for i, s := range StageKeys {
		if s == k {
			return i
		}
	}
	return -1
}

// Valid reports whether k is one of the four known stages.
func (k StageKey) Valid() bool {
	return k.Index() >= 0
}

// Label returns the display name, e.g. "Stage 2".
func (k StageKey) Label() string {
	if i := k.Index(); i >= 0 {
		return fmt.Sprintf("Stage %d", i+1)
	}
	return string(k)
}

// ParseStageKey accepts "stage2" or "2".
func ParseStageKey(s string) (StageKey, error) {
	k := StageKey(s)
	if k.Valid() {
		return k, nil
	}
	k = StageKey("stage" + s)
	if k.Valid() {
		return k, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Checkbox is the leaf unit of progress.
type Checkbox struct {
	ID            string     `json:"id"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	UncompletedAt *time.Time `json:"uncompletedAt,omitempty"`
}

// Stages holds the checkbox lists of a task keyed by stage.
type Stages struct {
	Stage1 []Checkbox `json:"stage1"`
	Stage2 []Checkbox `json:"stage2"`
	Stage3 []Checkbox `json:"stage3"`
	Stage4 []Checkbox `json:"stage4"`
}

// Get returns the checkbox list for key, nil for unknown keys.
func (s Stages) Get(key StageKey) []Checkbox {
	switch key {
	case Stage1:
		return s.Stage1
	case Stage2:
		return s.Stage2
	case Stage3:
		return s.Stage3
	case Stage4:
		return s.Stage4
	}
	return nil
}

// MarshalJSON writes a missing stage as an empty array, never null.
func (s Stages) MarshalJSON() ([]byte, error) {
	type plain Stages
	p := plain(s)
	for _, boxes := range []*[]Checkbox{&p.Stage1, &p.Stage2, &p.Stage3, &p.Stage4} {
		if *boxes == nil {
			*boxes = []Checkbox{}
		}
	}
	return json.Marshal(p)
}

func (s *Stages) set(key StageKey, boxes []Checkbox) {
	switch key {
	case Stage1:
		s.Stage1 = boxes
	case Stage2:
		s.Stage2 = boxes
	case Stage3:
		s.Stage3 = boxes
	case Stage4:
		s.Stage4 = boxes
	}
}

// Metadata is informational tracking data. It is never read back into the
// unlock or completion rules.
type Metadata struct {
	CreatedAt           *time.Time             `json:"createdAt,omitempty"`
	FirstCompletedAt    *time.Time             `json:"firstCompletedAt,omitempty"`
	LastActivityAt      *time.Time             `json:"lastActivityAt,omitempty"`
	StageCompletedDates map[StageKey]time.Time `json:"stageCompletedDates,omitempty"`
}

// Task is one procedure type from the catalog.
type Task struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Stages   Stages    `json:"stages"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	out := Task{ID: t.ID, Name: t.Name}
	for _, key := range StageKeys {
		out.Stages.set(key, cloneCheckboxes(t.Stages.Get(key)))
	}
	if t.Metadata != nil {
		md := Metadata{
			CreatedAt:        cloneTime(t.Metadata.CreatedAt),
			FirstCompletedAt: cloneTime(t.Metadata.FirstCompletedAt),
			LastActivityAt:   cloneTime(t.Metadata.LastActivityAt),
		}
		if t.Metadata.StageCompletedDates != nil {
			md.StageCompletedDates = make(map[StageKey]time.Time, len(t.Metadata.StageCompletedDates))
			for k, v := range t.Metadata.StageCompletedDates {
				md.StageCompletedDates[k] = v
			}
		}
		out.Metadata = &md
	}
	return out
}

// CloneTasks deep-copies a task list.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// CheckboxCount returns the number of checkboxes across all stages.
func (t Task) CheckboxCount() (total, completed int) {
	for _, key := range StageKeys {
		for _, cb := range t.Stages.Get(key) {
			total++
			if cb.Completed {
				completed++
			}
		}
	}
	return total, completed
}

func cloneCheckboxes(in []Checkbox) []Checkbox {
	if in == nil {
		return nil
	}
	out := make([]Checkbox, len(in))
	for i, cb := range in {
		out[i] = Checkbox{
			ID:            cb.ID,
			Completed:     cb.Completed,
			CompletedAt:   cloneTime(cb.CompletedAt),
			UncompletedAt: cloneTime(cb.UncompletedAt),
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
