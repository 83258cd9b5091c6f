// AngelaMos | 2026
// service.go

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Entry is what callers record; persistence details stay here.
type Entry struct {
	OrganizationID string
	UserID         string
	Action         string
	Metadata       map[string]any
	IPAddress      string
}

// Recorder is the write side handed to other packages.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record persists an entry best-effort. Audit failure never fails the
// action being audited; it is logged and dropped.
func (s *Service) Record(ctx context.Context, entry Entry) {
	log := &Log{
		ID:        uuid.New().String(),
		Action:    entry.Action,
		IPAddress: entry.IPAddress,
	}
	if entry.OrganizationID != "" {
		log.OrganizationID = &entry.OrganizationID
	}
	if entry.UserID != "" {
		log.UserID = &entry.UserID
	}
	if entry.Metadata != nil {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			s.logger.Warn("audit metadata not serializable",
				"action", entry.Action, "error", err)
		} else {
			log.Metadata = raw
		}
	}
	if log.Metadata == nil {
		log.Metadata = json.RawMessage(`{}`)
	}

	if err := s.repo.Insert(ctx, log); err != nil {
		s.logger.Error("audit record failed",
			"action", entry.Action, "error", err)
	}
}

// List returns an organization's audit trail, newest first.
func (s *Service) List(ctx context.Context, orgID string, page, pageSize int) ([]Log, int, error) {
	logs, total, err := s.repo.ListByOrganization(ctx, orgID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, total, nil
}
