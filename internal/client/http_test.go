package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wftracker/wftracker/internal/api"
	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/store"
	"github.com/wftracker/wftracker/internal/tracker"
)

// newServer starts the real API over a temporary SQLite store with one
// user, aditi / pw-aditi.
func newServer(t *testing.T) (*httptest.Server, *tracker.Service) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)

	svc := tracker.New(s, tracker.Options{SessionTTL: time.Hour})
	_, err = svc.CreateUser(context.Background(), "aditi", "Dr. Aditi Rao", "pw-aditi", false)
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(svc, "test"), api.NewLoginRateLimiter(100, 100)))
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv, svc
}

func TestHTTPBackend_Flow(t *testing.T) {
	srv, _ := newServer(t)
	b := NewHTTPBackend(srv.URL+"/", time.Second)
	defer b.client.CloseIdleConnections()
	ctx := context.Background()

	require.NoError(t, b.Ping(ctx))

	sess, err := b.Login(ctx, "aditi", "pw-aditi")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.False(t, sess.Local)
	assert.Equal(t, "Dr. Aditi Rao", sess.User.FullName)

	prof, err := b.Profile(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "aditi", prof.User.Username)

	snap, err := b.LoadProgress(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, snap, "no progress saved yet")

	tasks := checklist.InitialTasks()
	tasks[0].Stages.Stage1[0].Completed = true
	at, err := b.SaveProgress(ctx, sess, tasks)
	require.NoError(t, err)
	assert.False(t, at.IsZero())

	snap, err = b.LoadProgress(ctx, sess)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.Tasks[0].Stages.Stage1[0].Completed)
	assert.True(t, at.Equal(snap.LastUpdated))

	sum, err := b.Summary(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Overall.CompletedCheckboxes)

	require.NoError(t, b.ResetProgress(ctx, sess))
	snap, err = b.LoadProgress(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, b.Logout(ctx, sess))
	_, err = b.Profile(ctx, sess)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHTTPBackend_BadCredentials(t *testing.T) {
	srv, _ := newServer(t)
	b := NewHTTPBackend(srv.URL, time.Second)
	defer b.client.CloseIdleConnections()

	_, err := b.Login(context.Background(), "aditi", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid username or password", apiErr.Detail)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestHTTPBackend_InvalidTasksRejected(t *testing.T) {
	srv, _ := newServer(t)
	b := NewHTTPBackend(srv.URL, time.Second)
	defer b.client.CloseIdleConnections()
	ctx := context.Background()

	sess, err := b.Login(ctx, "aditi", "pw-aditi")
	require.NoError(t, err)

	_, err = b.SaveProgress(ctx, sess, []checklist.Task{{ID: "", Name: "x"}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
}

func TestHTTPBackend_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := NewHTTPBackend(url, time.Second)
	_, err := b.Login(context.Background(), "aditi", "pw")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "server returned 500", (&APIError{Status: 500}).Error())
	assert.Equal(t, "server returned 404: gone", (&APIError{Status: 404, Detail: "gone"}).Error())
}

func TestHTTPBackend_AllProgress(t *testing.T) {
	srv, svc := newServer(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "admin", "Practice Admin", "pw-admin", true)
	require.NoError(t, err)
	b := NewHTTPBackend(srv.URL, time.Second)
	defer b.client.CloseIdleConnections()

	aditi, err := b.Login(ctx, "aditi", "pw-aditi")
	require.NoError(t, err)
	_, err = b.SaveProgress(ctx, aditi, checklist.InitialTasks())
	require.NoError(t, err)

	_, err = b.AllProgress(ctx, aditi)
	assert.ErrorIs(t, err, ErrForbidden)

	admin, err := b.Login(ctx, "admin", "pw-admin")
	require.NoError(t, err)
	resp, err := b.AllProgress(ctx, admin)
	require.NoError(t, err)

	var names []string
	for _, u := range resp.Users {
		names = append(names, u.Username)
	}
	assert.Contains(t, names, "aditi")
}
