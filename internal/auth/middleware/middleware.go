package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/chipcloud/ielts-practice/internal/rbac"
)

const issuer = "ielts-practice"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email")
)

type AuthService struct {
	hmac  []byte
	ttl   time.Duration
	users *UserStore
	now   func() time.Time
}

func NewAuthService(secret string, ttl time.Duration, users *UserStore) *AuthService {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &AuthService{hmac: []byte(secret), ttl: ttl, users: users, now: time.Now}
}

type Claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"` // "user" or "admin"
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(u User) (string, error) {
	now := a.now()
	claims := &Claims{
		Sub:   u.ID,
		Role:  u.Role,
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Sub == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return c, nil
}

// Login checks the password against the stored bcrypt hash and issues a token.
func (a *AuthService) Login(ctx context.Context, email, password string) (string, User, error) {
	u, hash, err := a.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// equalize timing with the known-email path
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return "", User{}, ErrInvalidCredentials
		}
		return "", User{}, err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", User{}, ErrInvalidCredentials
	}
	tok, err := a.IssueJWT(u)
	if err != nil {
		return "", User{}, err
	}
	return tok, u, nil
}

// Register creates a user with the plain user role and logs them in.
func (a *AuthService) Register(ctx context.Context, email, password string) (string, User, error) {
	email = NormalizeEmail(email)
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return "", User{}, ErrInvalidEmail
	}
	if len(password) < 8 {
		return "", User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", User{}, err
	}
	u, err := a.users.Create(ctx, email, hash, rbac.RoleUser)
	if err != nil {
		return "", User{}, err
	}
	tok, err := a.IssueJWT(u)
	if err != nil {
		return "", User{}, err
	}
	return tok, u, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

// JWTMiddleware requires a valid bearer token and puts its subject and role
// on the request context.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			c, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := WithSubject(r.Context(), c.Sub)
			ctx = WithEmail(ctx, c.Email)
			ctx = rbac.WithRole(ctx, c.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="ielts"`)
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
