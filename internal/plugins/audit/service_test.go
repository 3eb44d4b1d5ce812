package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/campus/internal/apperror"
)

// --- Mock Repository ---

type mockAuditRepo struct {
	logFn  func(ctx context.Context, entry *Entry) error
	listFn func(ctx context.Context, limit, offset int) ([]Entry, int, error)
}

func (m *mockAuditRepo) Log(ctx context.Context, entry *Entry) error {
	if m.logFn != nil {
		return m.logFn(ctx, entry)
	}
	return nil
}

func (m *mockAuditRepo) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, 0, nil
}

func TestLog_FillsDefaults(t *testing.T) {
	var stored *Entry
	repo := &mockAuditRepo{
		logFn: func(_ context.Context, entry *Entry) error {
			stored = entry
			return nil
		},
	}
	svc := &auditService{repo: repo, now: func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}}

	ctx := WithIP(context.Background(), "203.0.113.9")
	if err := svc.Log(ctx, &Entry{Action: ActionLoginFailed, TargetEmail: "a@b.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stored == nil {
		t.Fatal("expected entry to be stored")
	}
	if stored.ID == "" {
		t.Error("expected an id to be generated")
	}
	if stored.IP != "203.0.113.9" {
		t.Errorf("expected IP from context, got %q", stored.IP)
	}
	if !stored.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", stored.CreatedAt)
	}
}

func TestLog_MissingAction(t *testing.T) {
	svc := NewAuditService(&mockAuditRepo{})
	err := svc.Log(context.Background(), &Entry{})
	if !apperror.Is(err, apperror.TypeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestLog_RepoFailureIsInternal(t *testing.T) {
	svc := NewAuditService(&mockAuditRepo{
		logFn: func(context.Context, *Entry) error { return errors.New("db down") },
	})
	err := svc.Log(context.Background(), &Entry{Action: ActionPasswordReset})
	if !apperror.Is(err, apperror.TypeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestList_ClampsPage(t *testing.T) {
	var gotLimit, gotOffset int
	svc := NewAuditService(&mockAuditRepo{
		listFn: func(_ context.Context, limit, offset int) ([]Entry, int, error) {
			gotLimit, gotOffset = limit, offset
			return nil, 0, nil
		},
	})

	page, err := svc.List(context.Background(), -3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page != 1 || gotOffset != 0 || gotLimit != perPage {
		t.Errorf("expected first page, got page=%d limit=%d offset=%d", page.Page, gotLimit, gotOffset)
	}
	if page.Entries == nil {
		t.Error("expected empty slice, not nil, so JSON renders []")
	}

	if _, err := svc.List(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotOffset != 2*perPage {
		t.Errorf("expected offset %d, got %d", 2*perPage, gotOffset)
	}
}

func TestList_HugePageDoesNotOverflow(t *testing.T) {
	var gotOffset int
	svc := NewAuditService(&mockAuditRepo{
		listFn: func(_ context.Context, _, offset int) ([]Entry, int, error) {
			gotOffset = offset
			return nil, 0, nil
		},
	})
	e := echo.New()
	RegisterRoutes(e, NewHandler(svc))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?page=99999999999999999999", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotOffset != (maxPage-1)*perPage {
		t.Errorf("expected offset %d, got %d", (maxPage-1)*perPage, gotOffset)
	}
	if !strings.Contains(rec.Body.String(), `"page":1000000`) {
		t.Errorf("expected clamped page in body, got %s", rec.Body.String())
	}
}

func TestHandler_List(t *testing.T) {
	svc := NewAuditService(&mockAuditRepo{
		listFn: func(context.Context, int, int) ([]Entry, int, error) {
			return []Entry{{ID: "e1", Action: ActionUserProvisioned, TargetEmail: "t@uni.edu"}}, 1, nil
		},
	})

	e := echo.New()
	RegisterRoutes(e, NewHandler(svc))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?page=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"targetEmail":"t@uni.edu"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
