package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"leadharvest/internal/store"
)

const (
	SessionCookie = "lh_session"
	sessionTTL    = 7 * 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("not authenticated")
)

type ctxKey struct{}

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

func (s *Service) Register(ctx context.Context, email, password string) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return 0, errors.New("a valid email is required")
	}
	if len(password) < 8 {
		return 0, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	return s.store.CreateUser(ctx, email, string(hash))
}

// Login verifies credentials and mints an opaque session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	token := uuid.NewString()
	expires := time.Now().Add(sessionTTL)
	if err := s.store.CreateSession(ctx, token, user.ID, expires); err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, token)
}

// Middleware resolves the session cookie to an owner id and rejects requests
// without a live session.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ownerID, err := s.store.ResolveSession(r.Context(), cookie.Value)
		if err != nil {
			http.Error(w, "session expired", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), ownerID)))
	})
}

func WithOwner(ctx context.Context, ownerID int) context.Context {
	return context.WithValue(ctx, ctxKey{}, ownerID)
}

// OwnerID returns the authenticated user for the request context.
func OwnerID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(ctxKey{}).(int)
	return id, ok
}
