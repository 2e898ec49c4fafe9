package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wftracker/wftracker/internal/archive"
	"github.com/wftracker/wftracker/internal/report"
)

// Report is a generated PDF progress report.
type Report struct {
	FileName string
	PDF      []byte

	// ArchiveKey and DownloadURL are set when the report was archived.
	ArchiveKey  string
	DownloadURL string
	URLExpires  time.Time
}

// GenerateReport renders the monthly PDF report for a user and archives it
// when report storage is configured. A failed upload is logged and the
// report is still returned.
func (s *Service) GenerateReport(ctx context.Context, userID string) (*Report, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	tasks, _, err := s.loadTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	var buf bytes.Buffer
	if err := report.Write(&buf, report.Input{
		FullName: user.FullName,
		Tasks:    tasks,
		Now:      now,
		Location: s.loc,
	}); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	r := &Report{FileName: report.FileName(now), PDF: buf.Bytes()}

	key, err := s.archiver.Store(ctx, user.Username, r.PDF)
	if err != nil {
		s.logger.Error("report archive failed", "action", "report", "user", user.Username, "error", err)
		return r, nil
	}
	if key == "" {
		return r, nil
	}
	r.ArchiveKey = key

	url, expires, err := s.archiver.PresignedURL(ctx, key)
	switch {
	case errors.Is(err, archive.ErrNotConfigured):
	case err != nil:
		s.logger.Warn("report URL signing failed", "action", "report", "key", key, "error", err)
	default:
		r.DownloadURL, r.URLExpires = url, expires
	}
	s.logger.Info("report archived", "action", "report", "user", user.Username, "key", key)
	return r, nil
}
