//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/client"
	"github.com/wftracker/wftracker/internal/types"
)

func TestServer_ToggleSurvivesRestart(t *testing.T) {
	srv := startTracker(t)
	srv.addUser(t, "aditi", false)
	token := srv.login(t, "aditi")

	status, body, _ := srv.request(t, http.MethodPost, "/api/v1/progress/toggle", token,
		types.ToggleRequest{TaskID: "task1", Stage: checklist.Stage1, CheckboxID: "t1s1c1"})
	if status != http.StatusOK {
		t.Fatalf("toggle: status %d: %s", status, body)
	}

	srv = srv.restartOnSameData(t)

	// Sessions are stored in the database, so the old token still works.
	status, body, _ = srv.request(t, http.MethodGet, "/api/v1/progress", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get progress after restart: status %d: %s", status, body)
	}
	var progress types.ProgressResponse
	if err := json.Unmarshal(body, &progress); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(progress.Tasks) != checklist.CatalogSize || !progress.Tasks[0].Stages.Stage1[0].Completed {
		t.Errorf("progress not persisted across restart: %s", body)
	}
}

func TestServer_LogoutInvalidatesToken(t *testing.T) {
	srv := startTracker(t)
	srv.addUser(t, "aditi", false)
	token := srv.login(t, "aditi")

	if status, _, _ := srv.request(t, http.MethodPost, "/api/v1/logout", token, nil); status != http.StatusOK {
		t.Fatalf("logout: status %d", status)
	}
	if status, _, _ := srv.request(t, http.MethodGet, "/api/v1/profile", token, nil); status != http.StatusUnauthorized {
		t.Errorf("profile after logout: status %d, want 401", status)
	}
}

func TestServer_AdminRoutes(t *testing.T) {
	srv := startTracker(t)
	srv.addUser(t, "admin", true)
	srv.addUser(t, "aditi", false)

	userToken := srv.login(t, "aditi")
	if status, _, _ := srv.request(t, http.MethodGet, "/api/v1/admin/users", userToken, nil); status != http.StatusForbidden {
		t.Errorf("non-admin: status %d, want 403", status)
	}

	adminToken := srv.login(t, "admin")
	status, body, _ := srv.request(t, http.MethodGet, "/api/v1/admin/users", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("admin users: status %d: %s", status, body)
	}
	var users types.UserListResponse
	if err := json.Unmarshal(body, &users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users.Users) != 1 || users.Users[0].Username != "aditi" {
		t.Errorf("users = %+v, want only aditi", users.Users)
	}
}

func TestServer_ReportDownload(t *testing.T) {
	srv := startTracker(t)
	srv.addUser(t, "aditi", false)
	token := srv.login(t, "aditi")

	status, body, header := srv.request(t, http.MethodGet, "/api/v1/report", token, nil)
	if status != http.StatusOK {
		t.Fatalf("report: status %d", status)
	}
	if ct := header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(header.Get("Content-Disposition"), "Workflow-Tracker-Report-") {
		t.Errorf("Content-Disposition = %q", header.Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestClient_HTTPBackendAgainstBinary(t *testing.T) {
	srv := startTracker(t)
	srv.addUser(t, "aditi", false)
	ctx := context.Background()

	backend := client.NewHTTPBackend(srv.baseURL(), 5*time.Second)
	sess, err := backend.Login(ctx, "aditi", "pw-aditi")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	tr, err := client.Open(ctx, backend, sess, client.Options{AutosaveDelay: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tr.Toggle("task11", checklist.Stage1, "t11s1c1")
	tr.Toggle("task11", checklist.Stage2, "t11s2c1")

	deadline := time.Now().Add(5 * time.Second)
	for tr.LastUpdated().IsZero() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if tr.LastUpdated().IsZero() {
		t.Fatal("auto-save did not reach the server")
	}
	if err := tr.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}

	token := srv.login(t, "aditi")
	status, body, _ := srv.request(t, http.MethodGet, "/api/v1/progress/summary", token, nil)
	if status != http.StatusOK {
		t.Fatalf("summary: status %d", status)
	}
	var summary types.ProgressSummaryResponse
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Overall.CompletedCheckboxes != 2 {
		t.Errorf("completed = %d, want 2", summary.Overall.CompletedCheckboxes)
	}
}

func TestClient_CLIAgainstBinary(t *testing.T) {
	srv := startTracker(t)
	srv.addUser(t, "aditi", false)

	out, err := srv.cli(t, "", "client", "toggle", "task1", "stage1", "t1s1c1", "-u", "aditi", "-p", "pw-aditi")
	if err != nil {
		t.Fatalf("client toggle: %v\n%s", err, out)
	}
	if strings.Contains(out, "Using local progress") {
		t.Errorf("client fell back to local storage with the server up:\n%s", out)
	}

	out, err = srv.cli(t, "", "progress", "show", "aditi")
	if err != nil {
		t.Fatalf("progress show: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Overall: 1/") {
		t.Errorf("progress show output:\n%s", out)
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	srv := startTracker(t)
	srv.stop()

	if !srv.cmd.ProcessState.Success() {
		t.Errorf("exit state = %v, want success", srv.cmd.ProcessState)
	}
	logs := srv.logs()
	for _, want := range []string{"shutdown initiated", "worker stopped", "shutdown complete"} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q", want)
		}
	}
}
