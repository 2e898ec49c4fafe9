package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wftracker/wftracker/internal/tracker"
	"github.com/wftracker/wftracker/internal/types"
	"github.com/wftracker/wftracker/internal/validation"
)

// maxBodyBytes bounds request bodies; a full catalog with timestamps is
// well under this.
const maxBodyBytes = 1 << 20

// Handler implements the API handlers
type Handler struct {
	svc     *tracker.Service
	version string
}

// NewHandler creates a new Handler over the tracker service.
func NewHandler(svc *tracker.Service, version string) *Handler {
	return &Handler{
		svc:     svc,
		version: version,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Health(r.Context())
	if err != nil {
		slog.Error("health check failed", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:         "healthy",
		Version:        h.version,
		Users:          stats.Users,
		ActiveSessions: stats.ActiveSessions,
		ReportArchive:  h.svc.ArchiveEnabled(),
	})
}

// Login handles POST /api/v1/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateLoginRequest(req); len(errs) > 0 {
		WriteProblem(w, r, http.StatusBadRequest, "Username and password are required")
		return
	}

	resp, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidCredentials) {
			slog.Warn("login failed", "user", req.Username, "remote_ip", clientIP(r))
		} else {
			slog.Error("login error", "error", err)
		}
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/logout. A missing or unknown token succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), extractBearerToken(r)); err != nil {
		slog.Error("logout failed", "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: "Logged out successfully"})
}

// Profile handles GET /api/v1/profile
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, types.ProfileResponse{User: p.User, LoginTime: p.Session.CreatedAt})
}

// GetProgress handles GET /api/v1/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFromContext(r.Context())
	resp, err := h.svc.GetProgress(r.Context(), p.User.ID)
	if err != nil {
		slog.Error("get progress failed", "error", err, "user", p.User.Username)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SaveProgress handles POST /api/v1/progress
func (h *Handler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFromContext(r.Context())

	var req types.SaveProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Tasks == nil {
		WriteProblem(w, r, http.StatusBadRequest, "Tasks data is required")
		return
	}
	if errs := validation.ValidateTasks(req.Tasks); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	resp, err := h.svc.SaveProgress(r.Context(), p.User.ID, req.Tasks)
	if err != nil {
		slog.Error("save progress failed", "error", err, "user", p.User.Username)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetProgress handles DELETE /api/v1/progress
func (h *Handler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFromContext(r.Context())
	if err := h.svc.ResetProgress(r.Context(), p.User.ID); err != nil {
		slog.Error("reset progress failed", "error", err, "user", p.User.Username)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: "Progress reset successfully"})
}

// Toggle handles POST /api/v1/progress/toggle. Unknown or locked targets
// return 200 with applied=false.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFromContext(r.Context())

	var req types.ToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateToggleRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	resp, err := h.svc.Toggle(r.Context(), p.User.ID, req)
	if err != nil {
		slog.Error("toggle failed", "error", err, "user", p.User.Username)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Summary handles GET /api/v1/progress/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFromContext(r.Context())
	resp, err := h.svc.Summary(r.Context(), p.User.ID)
	if err != nil {
		slog.Error("summary failed", "error", err, "user", p.User.Username)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Analytics handles GET /api/v1/analytics
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFromContext(r.Context())
	resp, err := h.svc.Analytics(r.Context(), p.User.ID)
	if err != nil {
		slog.Error("analytics failed", "error", err, "user", p.User.Username)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Suggestions handles GET /api/v1/suggestions
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFromContext(r.Context())
	resp, err := h.svc.Suggestions(r.Context(), p.User.ID)
	if err != nil {
		slog.Error("suggestions failed", "error", err, "user", p.User.Username)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Report handles GET /api/v1/report and streams the PDF. When the report
// was archived, the object key and a download URL are returned in headers.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFromContext(r.Context())
	rep, err := h.svc.GenerateReport(r.Context(), p.User.ID)
	if err != nil {
		slog.Error("report generation failed", "error", err, "user", p.User.Username)
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to generate report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(rep.PDF)))
	if rep.ArchiveKey != "" {
		w.Header().Set("X-Report-Key", rep.ArchiveKey)
	}
	if rep.DownloadURL != "" {
		w.Header().Set("X-Report-URL", rep.DownloadURL)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(rep.PDF); err != nil {
		slog.Warn("report write interrupted", "error", err, "user", p.User.Username)
	}
}

// AllProgress handles GET /api/v1/admin/all-progress
func (h *Handler) AllProgress(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.AllProgress(r.Context())
	if err != nil {
		slog.Error("admin progress listing failed", "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListUsers handles GET /api/v1/admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.ListUsers(r.Context())
	if err != nil {
		slog.Error("admin user listing failed", "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
