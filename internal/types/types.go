// Package types holds the request and response shapes of the HTTP API and
// the account records shared by the store, service and client layers.
package types

import (
	"time"

	"github.com/wftracker/wftracker/internal/analytics"
	"github.com/wftracker/wftracker/internal/checklist"
)

// User is an account as exposed over the API. The password hash never
// leaves the store.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"fullName"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

// Credentials is a stored account plus its bcrypt hash.
type Credentials struct {
	User
	PasswordHash string `json:"-"`
}

// NewUser is the input for creating an account.
type NewUser struct {
	Username     string
	FullName     string
	PasswordHash string
	IsAdmin      bool
}

// Session is an authenticated login. TokenHash is the SHA-256 of the bearer
// token handed to the client; the token itself is not stored.
type Session struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"-"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"loginTime"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Progress is a user's saved task list.
type Progress struct {
	UserID      string           `json:"userId"`
	Tasks       []checklist.Task `json:"tasks"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Success      bool      `json:"success"`
	SessionToken string    `json:"sessionToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         User      `json:"user"`
}

// ProfileResponse is returned by GET /profile.
type ProfileResponse struct {
	User      User      `json:"user"`
	LoginTime time.Time `json:"loginTime"`
}

// MessageResponse acknowledges a write.
type MessageResponse struct {
	Message string `json:"message"`
}

// ProgressResponse is returned by GET /progress. Tasks is null when the user
// has never saved.
type ProgressResponse struct {
	Tasks       []checklist.Task `json:"tasks"`
	LastUpdated *time.Time       `json:"lastUpdated,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// SaveProgressRequest is the body of POST /progress.
type SaveProgressRequest struct {
	Tasks []checklist.Task `json:"tasks"`
}

// SaveProgressResponse acknowledges a save.
type SaveProgressResponse struct {
	Message     string    `json:"message"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ToggleRequest is the body of POST /progress/toggle.
type ToggleRequest struct {
	TaskID     string             `json:"taskId"`
	Stage      checklist.StageKey `json:"stage"`
	CheckboxID string             `json:"checkboxId"`
}

// ToggleResponse reports the outcome of a toggle. Applied is false when the
// target was unknown or locked; nothing was written in that case.
type ToggleResponse struct {
	Applied         bool                 `json:"applied"`
	Completed       bool                 `json:"completed"`
	StagesCompleted []checklist.StageKey `json:"stagesCompleted"`
	Task            *checklist.Task      `json:"task,omitempty"`
	LastUpdated     *time.Time           `json:"lastUpdated,omitempty"`
}

// StageSummary is the derived view of one stage across the task list.
type StageSummary struct {
	Key            checklist.StageKey `json:"key"`
	Label          string             `json:"label"`
	Total          int                `json:"total"`
	Completed      int                `json:"completed"`
	Percentage     int                `json:"percentage"`
	FullyCompleted bool               `json:"fullyCompleted"`
	TabEnabled     bool               `json:"tabEnabled"`
}

// TaskStageStates maps each stage of one task to its derived state.
type TaskStageStates struct {
	TaskID string                                       `json:"taskId"`
	States map[checklist.StageKey]checklist.StageState `json:"states"`
}

// ProgressSummaryResponse is returned by GET /progress/summary.
type ProgressSummaryResponse struct {
	CurrentStage checklist.StageKey `json:"currentStage"`
	Stages       []StageSummary     `json:"stages"`
	Tasks        []TaskStageStates  `json:"tasks"`
	Overall      checklist.Summary  `json:"overall"`
}

// AnalyticsResponse is returned by GET /analytics.
type AnalyticsResponse struct {
	Analytics    analytics.Analytics         `json:"analytics"`
	CurrentMonth []analytics.DailyCompletion `json:"currentMonth"`
	Insights     []analytics.Insight         `json:"insights"`
	// InsightsLocked is set while fewer than analytics.MinCompletionsForInsights
	// checkboxes have been completed; Insights is empty in that case.
	InsightsLocked bool `json:"insightsLocked"`
}

// SuggestionsResponse is returned by GET /suggestions.
type SuggestionsResponse struct {
	Suggestions []analytics.Suggestion `json:"suggestions"`
}

// UserProgress is one row of the admin overview.
type UserProgress struct {
	UserID      string            `json:"userId"`
	Username    string            `json:"username"`
	FullName    string            `json:"fullName"`
	LastUpdated *time.Time        `json:"lastUpdated"`
	Stats       checklist.Summary `json:"stats"`
	Tasks       []checklist.Task  `json:"tasks"`
}

// AllProgressResponse is returned by GET /admin/all-progress.
type AllProgressResponse struct {
	Users []UserProgress `json:"users"`
}

// UserListResponse is returned by GET /admin/users.
type UserListResponse struct {
	Users []User `json:"users"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Users          int64  `json:"users"`
	ActiveSessions int64  `json:"activeSessions"`
	ReportArchive  bool   `json:"reportArchive"`
}

// StoreStats are row counts used by the health check.
type StoreStats struct {
	Users          int64
	ActiveSessions int64
	SavedProgress  int64
}
