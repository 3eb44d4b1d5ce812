package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/campus/internal/apperror"
)

// ErrDuplicate is returned by Create when the store's unique constraint on
// email or studentId rejects the insert. This is the authoritative
// uniqueness check; the service's Exists pre-checks only improve the message.
var ErrDuplicate = errors.New("user already exists")

// mysqlErrDuplicateEntry is MariaDB's ER_DUP_ENTRY.
const mysqlErrDuplicateEntry = 1062

// UserRepository defines the data access contract for user operations.
// All queries live in the concrete implementations -- nothing leaks out.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	StudentIDExists(ctx context.Context, studentID string) (bool, error)

	// UpdateRefreshToken overwrites the stored refresh token. An empty token
	// clears it.
	UpdateRefreshToken(ctx context.Context, id, token string) error

	// RotateRefreshToken replaces oldToken with newToken only if oldToken is
	// still the stored value. Returns false when another refresh won.
	RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error)

	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, email, password_hash, role, phone, department,
	university, age, student_id, admission_year, refresh_token, profile_image,
	is_email_verified, created_at, updated_at`

// Create inserts a new user row. Unique index violations on email or
// student_id come back as ErrDuplicate.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (` + userColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Phone,
		user.Department,
		user.University,
		user.Age,
		nullString(user.StudentID),
		user.AdmissionYear,
		nullString(user.RefreshToken),
		user.ProfileImage,
		user.IsEmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}

	return user, nil
}

// FindByEmail retrieves a user by normalized email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}

	return user, nil
}

// EmailExists returns true if a user with the given email already exists.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// StudentIDExists returns true if a student already holds studentID.
func (r *userRepository) StudentIDExists(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE student_id = ?)`, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking student id existence: %w", err)
	}
	return exists, nil
}

// UpdateRefreshToken stores token for the user, or clears it when empty.
func (r *userRepository) UpdateRefreshToken(ctx context.Context, id, token string) error {
	query := `UPDATE users SET refresh_token = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, nullString(token), id)
	if err != nil {
		return fmt.Errorf("updating refresh token: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return r.notFoundUnlessExists(ctx, id)
	}
	return nil
}

// RotateRefreshToken swaps the stored refresh token in a single conditional
// UPDATE so two concurrent refreshes with the same token cannot both win.
func (r *userRepository) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error) {
	query := `UPDATE users SET refresh_token = ?, updated_at = UTC_TIMESTAMP()
	          WHERE id = ? AND refresh_token = ?`

	result, err := r.db.ExecContext(ctx, query, newToken, id, oldToken)
	if err != nil {
		return false, fmt.Errorf("rotating refresh token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotating refresh token: %w", err)
	}
	return n == 1, nil
}

// UpdatePassword sets a new password hash and clears the refresh token so
// existing sessions cannot be renewed with the old credentials.
func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, refresh_token = NULL, updated_at = UTC_TIMESTAMP()
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return r.notFoundUnlessExists(ctx, id)
	}
	return nil
}

// notFoundUnlessExists distinguishes "no such row" from "row unchanged",
// since MariaDB reports zero affected rows when the new value equals the old.
func (r *userRepository) notFoundUnlessExists(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking user existence: %w", err)
	}
	if !exists {
		return apperror.NewNotFound("user not found")
	}
	return nil
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u            User
		role         string
		studentID    sql.NullString
		refreshToken sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.Phone,
		&u.Department,
		&u.University,
		&u.Age,
		&studentID,
		&u.AdmissionYear,
		&refreshToken,
		&u.ProfileImage,
		&u.IsEmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	u.StudentID = studentID.String
	u.RefreshToken = refreshToken.String
	return &u, nil
}

// nullString maps "" to NULL. student_id relies on this: its UNIQUE index
// ignores NULLs, which keeps it sparse for teachers and admins.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}
