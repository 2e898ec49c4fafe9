package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/store"
	"github.com/wftracker/wftracker/internal/tracker"
	"github.com/wftracker/wftracker/internal/types"
)

// testEnv is a router over a real SQLite store.
type testEnv struct {
	router http.Handler
	svc    *tracker.Service
	store  *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	svc := tracker.New(s, tracker.Options{SessionTTL: time.Hour})
	for _, u := range []struct {
		name  string
		admin bool
	}{{"admin", true}, {"aditi", false}, {"mira", false}} {
		if _, err := svc.CreateUser(context.Background(), u.name, "Dr. "+u.name, "pw-"+u.name, u.admin); err != nil {
			t.Fatalf("CreateUser(%s): %v", u.name, err)
		}
	}

	h := NewHandler(svc, "1.2.3")
	return &testEnv{
		router: NewRouter(h, NewLoginRateLimiter(100, 100)),
		svc:    svc,
		store:  s,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/login", "", types.LoginRequest{Username: username, Password: "pw-" + username})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status = %d, body = %s", username, w.Code, w.Body.String())
	}
	var resp types.LoginResponse
	decode(t, w, &resp)
	return resp.SessionToken
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to unmarshal response: %v (body %s)", err, w.Body.String())
	}
}

// --- Health ---

func TestHealth_ReturnsHealthyStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp types.HealthResponse
	decode(t, w, &resp)
	if resp.Status != "healthy" || resp.Version != "1.2.3" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Users != 3 {
		t.Errorf("users = %d, want 3", resp.Users)
	}
	if resp.ReportArchive {
		t.Error("reportArchive = true, want false without storage")
	}
}

func TestHealth_JSONFieldNames(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)

	var raw map[string]any
	decode(t, w, &raw)
	for _, field := range []string{"status", "version", "users", "activeSessions", "reportArchive"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing field: %s", field)
		}
	}
}

// --- Login / Logout / Profile ---

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/login", "", types.LoginRequest{Username: "aditi", Password: "pw-aditi"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var raw map[string]any
	decode(t, w, &raw)
	if raw["success"] != true {
		t.Errorf("success = %v, want true", raw["success"])
	}
	if tok, _ := raw["sessionToken"].(string); len(tok) != 64 {
		t.Errorf("sessionToken = %q, want 64 hex chars", tok)
	}
	user, _ := raw["user"].(map[string]any)
	if user["username"] != "aditi" || user["fullName"] != "Dr. aditi" || user["isAdmin"] != false {
		t.Errorf("user = %v", user)
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Error("password hash leaked in login response")
	}
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"wrong password", types.LoginRequest{Username: "aditi", Password: "nope"}, http.StatusUnauthorized},
		{"unknown user", types.LoginRequest{Username: "ghost", Password: "pw"}, http.StatusUnauthorized},
		{"missing password", types.LoginRequest{Username: "aditi"}, http.StatusBadRequest},
		{"missing both", types.LoginRequest{}, http.StatusBadRequest},
		{"malformed json", "{not json", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/login", "", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("Content-Type = %q, want problem+json", ct)
			}
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.svc, "test")
	router := NewRouter(h, NewLoginRateLimiter(0.0001, 1))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewBufferString(`{"username":"aditi","password":"nope"}`))
		req.RemoteAddr = "203.0.113.7:4000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(); code != http.StatusUnauthorized {
		t.Fatalf("first attempt: status = %d, want 401", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("second attempt: status = %d, want 429", code)
	}
}

func TestProfileAndLogout(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "aditi")

	// Given a valid session, the profile is returned
	w := env.do(t, http.MethodGet, "/api/v1/profile", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: status = %d", w.Code)
	}
	var prof types.ProfileResponse
	decode(t, w, &prof)
	if prof.User.Username != "aditi" || prof.LoginTime.IsZero() {
		t.Errorf("profile = %+v", prof)
	}

	// When the session is logged out
	w = env.do(t, http.MethodPost, "/api/v1/logout", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: status = %d", w.Code)
	}

	// Then the token is rejected
	w = env.do(t, http.MethodGet, "/api/v1/profile", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("profile after logout: status = %d, want 401", w.Code)
	}
}

func TestLogout_WithoutSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/logout", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestProtectedRoutes_RequireSession(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/profile"},
		{http.MethodGet, "/api/v1/progress"},
		{http.MethodPost, "/api/v1/progress"},
		{http.MethodDelete, "/api/v1/progress"},
		{http.MethodPost, "/api/v1/progress/toggle"},
		{http.MethodGet, "/api/v1/progress/summary"},
		{http.MethodGet, "/api/v1/analytics"},
		{http.MethodGet, "/api/v1/suggestions"},
		{http.MethodGet, "/api/v1/report"},
		{http.MethodGet, "/api/v1/admin/all-progress"},
		{http.MethodGet, "/api/v1/admin/users"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := env.do(t, rt.method, rt.path, "bogus-token", nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

// --- Progress ---

func TestProgress_SaveGetReset(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "aditi")

	// Given no saved progress, tasks is null
	w := env.do(t, http.MethodGet, "/api/v1/progress", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}
	var raw map[string]any
	decode(t, w, &raw)
	if v, ok := raw["tasks"]; !ok || v != nil {
		t.Errorf("tasks = %v, want explicit null", v)
	}

	// When the catalog is saved with one completion
	tasks := checklist.Toggle(checklist.InitialTasks(), "task3", checklist.Stage1, "t3s1c2", time.Now()).Tasks
	w = env.do(t, http.MethodPost, "/api/v1/progress", token, types.SaveProgressRequest{Tasks: tasks})
	if w.Code != http.StatusOK {
		t.Fatalf("save: status = %d, body = %s", w.Code, w.Body.String())
	}
	var saved types.SaveProgressResponse
	decode(t, w, &saved)
	if saved.Message != "Progress saved successfully" || saved.LastUpdated.IsZero() {
		t.Errorf("save response = %+v", saved)
	}

	// Then it reads back
	w = env.do(t, http.MethodGet, "/api/v1/progress", token, nil)
	var got types.ProgressResponse
	decode(t, w, &got)
	if len(got.Tasks) != checklist.CatalogSize || !got.Tasks[2].Stages.Stage1[1].Completed {
		t.Errorf("saved tasks not returned")
	}
	if got.LastUpdated == nil {
		t.Error("lastUpdated missing")
	}

	// And reset clears it
	w = env.do(t, http.MethodDelete, "/api/v1/progress", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/progress", token, nil)
	decode(t, w, &got)
	if got.Tasks != nil {
		t.Errorf("tasks after reset = %d entries, want null", len(got.Tasks))
	}
}

func TestProgress_PerUserIsolation(t *testing.T) {
	env := newTestEnv(t)
	aditi := env.login(t, "aditi")
	mira := env.login(t, "mira")

	w := env.do(t, http.MethodPost, "/api/v1/progress", aditi, types.SaveProgressRequest{Tasks: checklist.InitialTasks()})
	if w.Code != http.StatusOK {
		t.Fatalf("save: status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/progress", mira, nil)
	var got types.ProgressResponse
	decode(t, w, &got)
	if got.Tasks != nil {
		t.Error("mira sees aditi's progress")
	}
}

func TestSaveProgress_Rejections(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "aditi")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing tasks", map[string]any{}, http.StatusBadRequest},
		{"malformed json", `{"tasks": [`, http.StatusBadRequest},
		{"duplicate task ids", types.SaveProgressRequest{Tasks: []checklist.Task{{ID: "a"}, {ID: "a"}}}, http.StatusUnprocessableEntity},
		{"empty checkbox id", types.SaveProgressRequest{Tasks: []checklist.Task{{ID: "a", Stages: checklist.Stages{Stage1: []checklist.Checkbox{{}}}}}}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/progress", token, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSaveProgress_EmptyListAccepted(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "aditi")

	w := env.do(t, http.MethodPost, "/api/v1/progress", token, `{"tasks": []}`)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestToggle(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "aditi")

	// Unlocked target is applied
	w := env.do(t, http.MethodPost, "/api/v1/progress/toggle", token,
		types.ToggleRequest{TaskID: "task1", Stage: checklist.Stage1, CheckboxID: "t1s1c1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp types.ToggleResponse
	decode(t, w, &resp)
	if !resp.Applied || !resp.Completed || resp.Task == nil {
		t.Errorf("toggle = %+v, want applied and completed", resp)
	}

	// Locked target is a 200 no-op
	w = env.do(t, http.MethodPost, "/api/v1/progress/toggle", token,
		types.ToggleRequest{TaskID: "task1", Stage: checklist.Stage2, CheckboxID: "t1s2c1"})
	if w.Code != http.StatusOK {
		t.Fatalf("locked: status = %d", w.Code)
	}
	resp = types.ToggleResponse{}
	decode(t, w, &resp)
	if resp.Applied {
		t.Error("locked toggle applied")
	}

	// Unknown stage is a validation error
	w = env.do(t, http.MethodPost, "/api/v1/progress/toggle", token,
		map[string]string{"taskId": "task1", "stage": "stage9", "checkboxId": "x"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad stage: status = %d, want 422", w.Code)
	}
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "aditi")

	w := env.do(t, http.MethodGet, "/api/v1/progress/summary", token, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp types.ProgressSummaryResponse
	decode(t, w, &resp)
	if resp.CurrentStage != checklist.Stage1 || len(resp.Stages) != 4 {
		t.Errorf("summary = %+v", resp)
	}
}

func TestAnalyticsAndSuggestions(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "aditi")

	w := env.do(t, http.MethodGet, "/api/v1/analytics", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("analytics: status = %d", w.Code)
	}
	var a types.AnalyticsResponse
	decode(t, w, &a)
	if !a.InsightsLocked {
		t.Error("insights should be locked for a fresh user")
	}

	w = env.do(t, http.MethodGet, "/api/v1/suggestions", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("suggestions: status = %d", w.Code)
	}
	var s types.SuggestionsResponse
	decode(t, w, &s)
	if len(s.Suggestions) == 0 || s.Suggestions[0].Category != "Getting Started" {
		t.Errorf("suggestions = %+v", s.Suggestions)
	}
}

func TestReport_StreamsPDF(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "aditi")

	w := env.do(t, http.MethodGet, "/api/v1/report", token, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !bytes.Contains([]byte(cd), []byte("Workflow-Tracker-Report-")) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}
	if w.Header().Get("X-Report-Key") != "" {
		t.Error("X-Report-Key set without archive")
	}
}

// --- Admin ---

func TestAdmin_ForbiddenForUsers(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "aditi")

	for _, path := range []string{"/api/v1/admin/all-progress", "/api/v1/admin/users"} {
		w := env.do(t, http.MethodGet, path, token, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", path, w.Code)
		}
	}
}

func TestAdmin_AllProgressAndUsers(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin")
	aditi := env.login(t, "aditi")
	env.do(t, http.MethodPost, "/api/v1/progress/toggle", aditi,
		types.ToggleRequest{TaskID: "task1", Stage: checklist.Stage1, CheckboxID: "t1s1c1"})

	w := env.do(t, http.MethodGet, "/api/v1/admin/all-progress", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("all-progress: status = %d", w.Code)
	}
	var all types.AllProgressResponse
	decode(t, w, &all)
	if len(all.Users) != 1 || all.Users[0].Username != "aditi" || all.Users[0].Stats.CompletedCheckboxes != 1 {
		t.Errorf("all-progress = %+v", all.Users)
	}

	w = env.do(t, http.MethodGet, "/api/v1/admin/users", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("users: status = %d", w.Code)
	}
	var users types.UserListResponse
	decode(t, w, &users)
	if len(users.Users) != 2 {
		t.Fatalf("users = %+v, want aditi and mira", users.Users)
	}
	for _, u := range users.Users {
		if u.IsAdmin {
			t.Errorf("admin %q listed", u.Username)
		}
	}
}
