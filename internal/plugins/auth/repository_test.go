package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/keyxmakerx/campus/internal/apperror"
	"github.com/keyxmakerx/campus/internal/database/dbtest"
)

func TestIsDuplicateEntry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b.com' for key 'uniq_users_email'"}, true},
		{"wrapped duplicate entry", fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1062}), true},
		{"data too long", &mysql.MySQLError{Number: 1406}, false},
		{"other error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateEntry(tt.err); got != tt.want {
				t.Errorf("isDuplicateEntry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNullString(t *testing.T) {
	if nullString("").Valid {
		t.Error("empty string should map to NULL")
	}
	if ns := nullString("S-1"); !ns.Valid || ns.String != "S-1" {
		t.Errorf("got %+v", ns)
	}
}

func TestMariaDBUserRepository(t *testing.T) {
	db := dbtest.MariaDB(t, "users")
	testUserRepository(t, NewUserRepository(db))
}

// repoUser builds a user ready to insert. An empty studentID leaves the
// field unset, as it is for teachers and admins.
func repoUser(role Role, email, studentID string) *User {
	now := time.Now().UTC().Truncate(time.Second)
	return &User{
		ID:              uuid.NewString(),
		Name:            "Test User",
		Email:           email,
		PasswordHash:    "$2a$10$abcdefghijklmnopqrstuu",
		Role:            role,
		StudentID:       studentID,
		IsEmailVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// testUserRepository runs the behavior both store backends must share
// against a repository on an empty users table or collection.
func testUserRepository(t *testing.T, repo UserRepository) {
	ctx := context.Background()

	mustCreate := func(t *testing.T, u *User) {
		t.Helper()
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("Create(%s): %v", u.Email, err)
		}
	}

	t.Run("duplicate email", func(t *testing.T) {
		mustCreate(t, repoUser(RoleTeacher, "dup@b.com", ""))

		err := repo.Create(ctx, repoUser(RoleStudent, "dup@b.com", "S-DUP"))
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("duplicate student id", func(t *testing.T) {
		mustCreate(t, repoUser(RoleStudent, "first@b.com", "S-1"))

		err := repo.Create(ctx, repoUser(RoleStudent, "second@b.com", "S-1"))
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("accounts without student id do not collide", func(t *testing.T) {
		mustCreate(t, repoUser(RoleAdmin, "admin1@b.com", ""))
		mustCreate(t, repoUser(RoleAdmin, "admin2@b.com", ""))
		mustCreate(t, repoUser(RoleTeacher, "teacher1@b.com", ""))
	})

	t.Run("find and exists", func(t *testing.T) {
		u := repoUser(RoleStudent, "find@b.com", "S-FIND")
		u.Department = "Physics"
		u.AdmissionYear = 2025
		mustCreate(t, u)

		got, err := repo.FindByEmail(ctx, "find@b.com")
		if err != nil {
			t.Fatalf("FindByEmail: %v", err)
		}
		if got.ID != u.ID || got.Role != RoleStudent || got.StudentID != "S-FIND" ||
			got.Department != "Physics" || got.AdmissionYear != 2025 || !got.IsEmailVerified {
			t.Errorf("FindByEmail returned %+v", got)
		}

		byID, err := repo.FindByID(ctx, u.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if byID.Email != "find@b.com" {
			t.Errorf("FindByID email = %q", byID.Email)
		}

		if _, err := repo.FindByID(ctx, uuid.NewString()); !apperror.Is(err, apperror.TypeNotFound) {
			t.Errorf("FindByID(missing): expected not found, got %v", err)
		}
		if _, err := repo.FindByEmail(ctx, "nobody@b.com"); !apperror.Is(err, apperror.TypeNotFound) {
			t.Errorf("FindByEmail(missing): expected not found, got %v", err)
		}

		if ok, err := repo.EmailExists(ctx, "find@b.com"); err != nil || !ok {
			t.Errorf("EmailExists(find@b.com) = %v, %v", ok, err)
		}
		if ok, err := repo.EmailExists(ctx, "nobody@b.com"); err != nil || ok {
			t.Errorf("EmailExists(nobody@b.com) = %v, %v", ok, err)
		}
		if ok, err := repo.StudentIDExists(ctx, "S-FIND"); err != nil || !ok {
			t.Errorf("StudentIDExists(S-FIND) = %v, %v", ok, err)
		}
		if ok, err := repo.StudentIDExists(ctx, "S-NONE"); err != nil || ok {
			t.Errorf("StudentIDExists(S-NONE) = %v, %v", ok, err)
		}
	})

	t.Run("refresh rotation", func(t *testing.T) {
		u := repoUser(RoleTeacher, "rotate@b.com", "")
		mustCreate(t, u)
		if err := repo.UpdateRefreshToken(ctx, u.ID, "token-0"); err != nil {
			t.Fatalf("UpdateRefreshToken: %v", err)
		}

		// Two refreshes presenting the same token race; only one may win.
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			wins   int
			winner string
		)
		for i := 1; i <= 2; i++ {
			wg.Add(1)
			go func(next string) {
				defer wg.Done()
				ok, err := repo.RotateRefreshToken(ctx, u.ID, "token-0", next)
				if err != nil {
					t.Errorf("RotateRefreshToken: %v", err)
					return
				}
				if ok {
					mu.Lock()
					wins++
					winner = next
					mu.Unlock()
				}
			}(fmt.Sprintf("token-%d", i))
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("expected exactly one rotation to win, got %d", wins)
		}
		got, err := repo.FindByID(ctx, u.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got.RefreshToken != winner {
			t.Errorf("stored token = %q, want %q", got.RefreshToken, winner)
		}

		if ok, err := repo.RotateRefreshToken(ctx, u.ID, "token-0", "token-3"); err != nil || ok {
			t.Errorf("rotating a superseded token = %v, %v", ok, err)
		}
	})

	t.Run("password update clears refresh token", func(t *testing.T) {
		u := repoUser(RoleStudent, "reset@b.com", "S-RESET")
		mustCreate(t, u)
		if err := repo.UpdateRefreshToken(ctx, u.ID, "live-token"); err != nil {
			t.Fatalf("UpdateRefreshToken: %v", err)
		}

		if err := repo.UpdatePassword(ctx, u.ID, "$2a$10$newhashnewhashnewhashu"); err != nil {
			t.Fatalf("UpdatePassword: %v", err)
		}
		got, err := repo.FindByID(ctx, u.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got.PasswordHash != "$2a$10$newhashnewhashnewhashu" {
			t.Errorf("password hash not updated: %q", got.PasswordHash)
		}
		if got.RefreshToken != "" {
			t.Errorf("refresh token should be cleared, got %q", got.RefreshToken)
		}

		if err := repo.UpdatePassword(ctx, uuid.NewString(), "x"); !apperror.Is(err, apperror.TypeNotFound) {
			t.Errorf("UpdatePassword(missing): expected not found, got %v", err)
		}
		if err := repo.UpdateRefreshToken(ctx, uuid.NewString(), ""); !apperror.Is(err, apperror.TypeNotFound) {
			t.Errorf("UpdateRefreshToken(missing): expected not found, got %v", err)
		}
	})
}
