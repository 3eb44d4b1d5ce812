package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/campus/internal/apperror"
)

// perPage is the number of audit entries returned per page.
const perPage = 50

// maxPage bounds the page number so the offset stays far from overflow.
const maxPage = 1_000_000

// AuditService handles business logic for the audit log. It validates inputs,
// enforces limits, and delegates persistence to the repository.
type AuditService interface {
	// Log records an entry. Errors are logged here as well, so callers may
	// ignore them: an audit failure must not block the primary operation.
	Log(ctx context.Context, entry *Entry) error

	// List returns one page of entries, newest first. Pages are 1-indexed.
	List(ctx context.Context, page int) (*Page, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
	now  func() time.Time
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo, now: time.Now}
}

// Log fills in the id, timestamp and request IP, then persists the entry.
func (s *auditService) Log(ctx context.Context, entry *Entry) error {
	if entry.Action == "" {
		return apperror.NewInvalidInput("action is required for audit entry")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if entry.IP == "" {
		entry.IP = IPFromContext(ctx)
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("action", entry.Action),
			slog.String("target_email", entry.TargetEmail),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing audit entry: %w", err))
	}

	return nil
}

// List returns a page of the audit log. Page numbers are clamped to
// [1, maxPage].
func (s *auditService) List(ctx context.Context, page int) (*Page, error) {
	page = min(max(page, 1), maxPage)

	entries, total, err := s.repo.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing audit entries: %w", err))
	}
	if entries == nil {
		entries = []Entry{}
	}

	return &Page{Entries: entries, Total: total, Page: page, PerPage: perPage}, nil
}
