package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chipcloud/ielts-practice/internal/rbac"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserStore keeps accounts in the users table.
type UserStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserStore(db *sql.DB) *UserStore { return &UserStore{db: db, now: time.Now} }

func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *UserStore) Create(ctx context.Context, email string, hash []byte, role string) (User, error) {
	u := User{ID: uuid.NewString(), Email: NormalizeEmail(email), Role: role, CreatedAt: s.now().UTC()}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email=$1`, u.Email).Scan(&exists)
	switch {
	case err == nil:
		return User{}, ErrEmailTaken
	case !errors.Is(err, sql.ErrNoRows):
		return User{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id,email,password_hash,role,created_at) VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.Email, string(hash), u.Role, u.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

// ByEmail returns the user and their password hash.
func (s *UserStore) ByEmail(ctx context.Context, email string) (User, []byte, error) {
	var (
		u       User
		hash    string
		created int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id,email,password_hash,role,created_at FROM users WHERE email=$1`,
		NormalizeEmail(email)).Scan(&u.ID, &u.Email, &hash, &u.Role, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, nil, ErrUserNotFound
		}
		return User{}, nil, err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, []byte(hash), nil
}

func (s *UserStore) Role(ctx context.Context, id string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return role, err
}

// EnsureAdmin creates or promotes the bootstrap admin. hash is a bcrypt hash.
func (s *UserStore) EnsureAdmin(ctx context.Context, email string, hash []byte) (User, error) {
	u, _, err := s.ByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return s.Create(ctx, email, hash, rbac.RoleAdmin)
	case err != nil:
		return User{}, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET role=$1, password_hash=$2 WHERE id=$3`, rbac.RoleAdmin, string(hash), u.ID)
	if err != nil {
		return User{}, err
	}
	u.Role = rbac.RoleAdmin
	return u, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}

// SetRole changes a user's role.
func (s *UserStore) SetRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role=$1 WHERE id=$2`, role, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
