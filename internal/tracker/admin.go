package tracker

import (
	"context"
	"fmt"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/types"
)

// AllProgress returns every saved task list with its summary, joined with
// the owning account. Progress rows whose user no longer exists are skipped.
func (s *Service) AllProgress(ctx context.Context) (*types.AllProgressResponse, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	byID := make(map[string]types.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	all, err := s.store.ListProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	resp := &types.AllProgressResponse{Users: make([]types.UserProgress, 0, len(all))}
	for _, p := range all {
		u, ok := byID[p.UserID]
		if !ok {
			continue
		}
		last := p.LastUpdated
		tasks := p.Tasks
		if tasks == nil {
			tasks = []checklist.Task{}
		}
		resp.Users = append(resp.Users, types.UserProgress{
			UserID:      u.ID,
			Username:    u.Username,
			FullName:    u.FullName,
			LastUpdated: &last,
			Stats:       checklist.Summarize(tasks),
			Tasks:       tasks,
		})
	}
	return resp, nil
}

// ListUsers returns all non-admin accounts.
func (s *Service) ListUsers(ctx context.Context) (*types.UserListResponse, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	resp := &types.UserListResponse{Users: make([]types.User, 0, len(users))}
	for _, u := range users {
		if !u.IsAdmin {
			resp.Users = append(resp.Users, u)
		}
	}
	return resp, nil
}

// Health reports store counts.
func (s *Service) Health(ctx context.Context) (*types.StoreStats, error) {
	stats, err := s.store.GetStats(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}
	return stats, nil
}
