package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "wftracker.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *SQLiteStore, username string, admin bool) *types.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), types.NewUser{
		Username:     username,
		FullName:     "Dr. " + username,
		PasswordHash: "$2a$10$hash",
		IsAdmin:      admin,
	})
	if err != nil {
		t.Fatalf("CreateUser(%q): %v", username, err)
	}
	return u
}

// --- Users ---

func TestCreateUser_AndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := createUser(t, s, "aditi", false)
	if u.ID == "" {
		t.Fatal("Expected ID to be set")
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "aditi" || got.FullName != "Dr. aditi" || got.IsAdmin {
		t.Errorf("GetUser = %+v", got)
	}
	if !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, u.CreatedAt)
	}

	creds, err := s.GetCredentials(ctx, "aditi")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds.PasswordHash != "$2a$10$hash" {
		t.Errorf("PasswordHash = %q", creds.PasswordHash)
	}
	if creds.ID != u.ID {
		t.Errorf("ID = %q, want %q", creds.ID, u.ID)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, "aditi", false)

	_, err := s.CreateUser(context.Background(), types.NewUser{Username: "aditi", PasswordHash: "x"})

	if !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetUser(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetCredentials(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCredentials: expected ErrNotFound, got %v", err)
	}
}

func TestListUsers_OrderedByUsername(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, "zed", false)
	createUser(t, s, "admin", true)
	createUser(t, s, "mira", false)

	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}

	var names []string
	for _, u := range users {
		names = append(names, u.Username)
	}
	want := []string{"admin", "mira", "zed"}
	if len(names) != len(want) {
		t.Fatalf("ListUsers = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ListUsers[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if !users[0].IsAdmin {
		t.Error("admin.IsAdmin = false, want true")
	}
}

// --- Sessions ---

func TestSession_CreateGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "aditi", false)
	now := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)

	sess := types.Session{
		ID:        "01J0000000000000000000SESS",
		TokenHash: "abc123",
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != u.ID || !got.ExpiresAt.Equal(sess.ExpiresAt) || !got.CreatedAt.Equal(now) {
		t.Errorf("GetSession = %+v, want %+v", got, sess)
	}

	if err := s.DeleteSession(ctx, "abc123"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, "abc123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting again is fine.
	if err := s.DeleteSession(ctx, "abc123"); err != nil {
		t.Errorf("second DeleteSession: %v", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "aditi", false)
	now := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)

	for i, exp := range []time.Time{
		now.Add(-time.Hour),
		now,
		now.Add(time.Nanosecond),
		now.Add(time.Hour),
	} {
		err := s.CreateSession(ctx, types.Session{
			ID:        string(rune('a' + i)),
			TokenHash: string(rune('A' + i)),
			UserID:    u.ID,
			CreatedAt: now.Add(-48 * time.Hour),
			ExpiresAt: exp,
		})
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	n, err := s.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d sessions, want 2", n)
	}

	stats, err := s.GetStats(ctx, now)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.ActiveSessions != 2 {
		t.Errorf("ActiveSessions = %d, want 2", stats.ActiveSessions)
	}
}

// --- Progress ---

func TestGetProgress_NeverSaved(t *testing.T) {
	s := newTestStore(t)
	u := createUser(t, s, "aditi", false)

	_, err := s.GetProgress(context.Background(), u.ID)

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveProgress_ReplacesWholeList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "aditi", false)
	t1 := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)

	tasks := checklist.InitialTasks()
	if err := s.SaveProgress(ctx, u.ID, tasks, t1); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	res := checklist.Toggle(tasks, "task1", checklist.Stage1, "t1s1c1", t1)
	t2 := t1.Add(time.Minute)
	if err := s.SaveProgress(ctx, u.ID, res.Tasks, t2); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	got, err := s.GetProgress(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if len(got.Tasks) != checklist.CatalogSize {
		t.Fatalf("len(Tasks) = %d, want %d", len(got.Tasks), checklist.CatalogSize)
	}
	cb := got.Tasks[0].Stages.Stage1[0]
	if !cb.Completed || cb.CompletedAt == nil || !cb.CompletedAt.Equal(t1) {
		t.Errorf("checkbox = %+v, want completed at %v", cb, t1)
	}
	if !got.LastUpdated.Equal(t2) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, t2)
	}
}

func TestDeleteProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "aditi", false)
	if err := s.SaveProgress(ctx, u.ID, checklist.InitialTasks(), time.Now()); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	if err := s.DeleteProgress(ctx, u.ID); err != nil {
		t.Fatalf("DeleteProgress: %v", err)
	}

	if _, err := s.GetProgress(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateProgress_SeedsAndWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "aditi", false)
	at := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)

	p, err := s.UpdateProgress(ctx, u.ID, at, func(stored []checklist.Task) ([]checklist.Task, bool, error) {
		if stored != nil {
			t.Errorf("stored = %v, want nil on first update", stored)
		}
		res := checklist.Toggle(checklist.InitialTasks(), "task1", checklist.Stage1, "t1s1c1", at)
		return res.Tasks, res.Applied, nil
	})
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if !p.Tasks[0].Stages.Stage1[0].Completed {
		t.Error("returned progress does not contain the update")
	}

	stored, err := s.GetProgress(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if !stored.Tasks[0].Stages.Stage1[0].Completed {
		t.Error("update not persisted")
	}
}

func TestUpdateProgress_NoWriteLeavesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "aditi", false)
	t1 := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)
	if err := s.SaveProgress(ctx, u.ID, checklist.InitialTasks(), t1); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	p, err := s.UpdateProgress(ctx, u.ID, t1.Add(time.Hour), func(stored []checklist.Task) ([]checklist.Task, bool, error) {
		return stored, false, nil
	})
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if !p.LastUpdated.Equal(t1) {
		t.Errorf("LastUpdated = %v, want unchanged %v", p.LastUpdated, t1)
	}
}

func TestUpdateProgress_ErrorAborts(t *testing.T) {
	s := newTestStore(t)
	u := createUser(t, s, "aditi", false)
	boom := errors.New("boom")

	_, err := s.UpdateProgress(context.Background(), u.ID, time.Now(), func([]checklist.Task) ([]checklist.Task, bool, error) {
		return nil, true, boom
	})

	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if _, err := s.GetProgress(context.Background(), u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected nothing written, got %v", err)
	}
}

func TestUpdateProgress_ConcurrentTogglesAllApply(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "aditi", false)
	tasks := checklist.InitialTasks()
	if err := s.SaveProgress(ctx, u.ID, tasks, time.Now()); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	var wg sync.WaitGroup
	for _, cb := range tasks[0].Stages.Stage1 {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.UpdateProgress(ctx, u.ID, time.Now(), func(stored []checklist.Task) ([]checklist.Task, bool, error) {
				res := checklist.Toggle(stored, "task1", checklist.Stage1, id, time.Now())
				return res.Tasks, res.Applied, nil
			})
			if err != nil {
				t.Errorf("UpdateProgress(%s): %v", id, err)
			}
		}(cb.ID)
	}
	wg.Wait()

	got, err := s.GetProgress(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if !checklist.StageComplete(got.Tasks[0].Stages.Stage1) {
		t.Error("lost update: stage1 of task1 should be complete")
	}
}

func TestListProgress_AndCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createUser(t, s, "aditi", false)
	b := createUser(t, s, "mira", false)
	createUser(t, s, "idle", false)
	for _, u := range []*types.User{a, b} {
		if err := s.SaveProgress(ctx, u.ID, checklist.InitialTasks(), time.Now()); err != nil {
			t.Fatalf("SaveProgress: %v", err)
		}
	}

	all, err := s.ListProgress(ctx)
	if err != nil {
		t.Fatalf("ListProgress: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(ListProgress) = %d, want 2", len(all))
	}

	stats, err := s.GetStats(ctx, time.Now())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Users != 3 || stats.SavedProgress != 2 {
		t.Errorf("stats = %+v, want 3 users and 2 saved", stats)
	}
}
