package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/wftracker/wftracker/internal/analytics"
	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/store"
	"github.com/wftracker/wftracker/internal/types"
)

// loadTasks returns the user's saved tasks, or the initial catalog when
// nothing has been saved.
func (s *Service) loadTasks(ctx context.Context, userID string) ([]checklist.Task, *types.Progress, error) {
	p, err := s.store.GetProgress(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return checklist.InitialTasks(), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load progress: %w", err)
	}
	return p.Tasks, p, nil
}

// GetProgress returns the saved task list. Tasks is nil when the user has
// never saved.
func (s *Service) GetProgress(ctx context.Context, userID string) (*types.ProgressResponse, error) {
	p, err := s.store.GetProgress(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &types.ProgressResponse{Message: "No progress found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	last := p.LastUpdated
	return &types.ProgressResponse{Tasks: p.Tasks, LastUpdated: &last}, nil
}

// SaveProgress replaces the user's task list.
func (s *Service) SaveProgress(ctx context.Context, userID string, tasks []checklist.Task) (*types.SaveProgressResponse, error) {
	now := s.now()
	if err := s.store.SaveProgress(ctx, userID, tasks, now); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	return &types.SaveProgressResponse{Message: "Progress saved successfully", LastUpdated: now}, nil
}

// ResetProgress deletes the user's task list.
func (s *Service) ResetProgress(ctx context.Context, userID string) error {
	if err := s.store.DeleteProgress(ctx, userID); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	s.logger.Info("progress reset", "action", "reset", "user_id", userID)
	return nil
}

// Toggle flips one checkbox in the stored task list. A user with no saved
// progress starts from the catalog. Unknown or locked targets are reported
// with Applied false and nothing is written.
func (s *Service) Toggle(ctx context.Context, userID string, req types.ToggleRequest) (*types.ToggleResponse, error) {
	now := s.now()
	var res checklist.ToggleResult

	p, err := s.store.UpdateProgress(ctx, userID, now, func(stored []checklist.Task) ([]checklist.Task, bool, error) {
		if stored == nil {
			stored = checklist.InitialTasks()
		}
		res = checklist.Toggle(stored, req.TaskID, req.Stage, req.CheckboxID, now)
		return res.Tasks, res.Applied, nil
	})
	if err != nil {
		return nil, fmt.Errorf("toggle checkbox: %w", err)
	}

	resp := &types.ToggleResponse{
		Applied:         res.Applied,
		Completed:       res.Completed,
		StagesCompleted: res.StagesCompleted,
	}
	if resp.StagesCompleted == nil {
		resp.StagesCompleted = []checklist.StageKey{}
	}
	if res.Applied {
		task := res.Task
		resp.Task = &task
	}
	if p != nil {
		last := p.LastUpdated
		resp.LastUpdated = &last
	}
	for _, key := range res.StagesCompleted {
		s.logger.Info("stage completed", "action", "toggle", "user_id", userID, "stage", key)
	}
	return resp, nil
}

// Summary derives the stage view the dashboard renders.
func (s *Service) Summary(ctx context.Context, userID string) (*types.ProgressSummaryResponse, error) {
	tasks, _, err := s.loadTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	return summarize(tasks), nil
}

func summarize(tasks []checklist.Task) *types.ProgressSummaryResponse {
	resp := &types.ProgressSummaryResponse{
		CurrentStage: checklist.CurrentStage(tasks),
		Stages:       make([]types.StageSummary, 0, len(checklist.StageKeys)),
		Tasks:        make([]types.TaskStageStates, 0, len(tasks)),
		Overall:      checklist.Summarize(tasks),
	}
	for _, key := range checklist.StageKeys {
		sp := checklist.CalculateStageProgress(tasks, key)
		resp.Stages = append(resp.Stages, types.StageSummary{
			Key:            key,
			Label:          key.Label(),
			Total:          sp.Total,
			Completed:      sp.Completed,
			Percentage:     sp.Percentage(),
			FullyCompleted: checklist.IsStageFullyCompleted(tasks, key),
			TabEnabled:     checklist.IsStageTabEnabled(tasks, key),
		})
	}
	for _, t := range tasks {
		states := make(map[checklist.StageKey]checklist.StageState, len(checklist.StageKeys))
		for _, key := range checklist.StageKeys {
			states[key] = checklist.StageStateOf(t, key)
		}
		resp.Tasks = append(resp.Tasks, types.TaskStageStates{TaskID: t.ID, States: states})
	}
	return resp
}

// Analytics computes analytics over the user's tasks. Insights are withheld
// until enough checkboxes have been completed.
func (s *Service) Analytics(ctx context.Context, userID string) (*types.AnalyticsResponse, error) {
	tasks, _, err := s.loadTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	a := analytics.Generate(tasks, now, s.loc)
	daily := analytics.CurrentMonthDaily(a, now, s.loc)

	resp := &types.AnalyticsResponse{
		Analytics:    a,
		CurrentMonth: daily,
		Insights:     []analytics.Insight{},
	}
	if a.CompletedCheckboxes < analytics.MinCompletionsForInsights {
		resp.InsightsLocked = true
	} else {
		resp.Insights = analytics.GenerateInsights(a, daily)
	}
	return resp, nil
}

// Suggestions returns practice recommendations for the user.
func (s *Service) Suggestions(ctx context.Context, userID string) (*types.SuggestionsResponse, error) {
	tasks, _, err := s.loadTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	a := analytics.Generate(tasks, s.now(), s.loc)
	return &types.SuggestionsResponse{Suggestions: analytics.GenerateSuggestions(a)}, nil
}
