// Package auth registers users, checks passwords and manages server-side sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Nithesh414/Bloom-Alert/internal/models"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
	"github.com/Nithesh414/Bloom-Alert/internal/store"
	"github.com/Nithesh414/Bloom-Alert/internal/validation"
)

var (
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no valid session")
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Store is the persistence the auth service needs; *store.Store implements it.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	CreateSession(ctx context.Context, sess models.Session) error
	GetSession(ctx context.Context, token string) (models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Identity is the authenticated caller, passed explicitly to store and upload calls.
type Identity struct {
	UserID   int64
	Username string
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity set by the login middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Config holds the auth service settings. Zero values use defaults.
type Config struct {
	SessionTTL time.Duration
	BcryptCost int
	Now        func() time.Time
}

// Service implements registration, login, logout and session lookup.
type Service struct {
	store      Store
	sessionTTL time.Duration
	cost       int
	now        func() time.Time
}

// NewService creates an auth Service backed by st.
func NewService(st Store, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{store: st, sessionTTL: cfg.SessionTTL, cost: cfg.BcryptCost, now: cfg.Now}
}

// SessionTTL returns the configured session lifetime, used for cookie Max-Age.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Register stores a new user with a bcrypt hash of password.
func (s *Service) Register(ctx context.Context, username, password string) (Identity, error) {
	username, password, err := validation.ValidateCredentials(username, password)
	if err != nil {
		observability.RecordAuthEvent("register", false)
		return Identity{}, err
	}

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		observability.RecordAuthEvent("register", false)
		return Identity{}, ErrDuplicateUsername
	} else if !errors.Is(err, store.ErrNotFound) {
		return Identity{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, username, string(hash))
	if errors.Is(err, store.ErrDuplicate) {
		observability.RecordAuthEvent("register", false)
		return Identity{}, ErrDuplicateUsername
	}
	if err != nil {
		return Identity{}, fmt.Errorf("create user: %w", err)
	}

	observability.RecordAuthEvent("register", true)
	observability.LoggerFromContext(ctx).Info("user registered", zap.Int64("user_id", u.ID))
	return Identity{UserID: u.ID, Username: u.Username}, nil
}

// Login verifies the password and opens a new session.
func (s *Service) Login(ctx context.Context, username, password string) (models.Session, Identity, error) {
	username, password, err := validation.ValidateCredentials(username, password)
	if err != nil {
		observability.RecordAuthEvent("login", false)
		return models.Session{}, Identity{}, ErrInvalidCredentials
	}

	u, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		observability.RecordAuthEvent("login", false)
		return models.Session{}, Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		observability.RecordAuthEvent("login", false)
		return models.Session{}, Identity{}, ErrInvalidCredentials
	}

	now := s.now().UTC().Truncate(time.Second)
	if _, err := s.store.DeleteExpiredSessions(ctx, now); err != nil {
		observability.LoggerFromContext(ctx).Warn("purge expired sessions failed", zap.Error(err))
	}

	sess := models.Session{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		Username:  u.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return models.Session{}, Identity{}, fmt.Errorf("create session: %w", err)
	}

	observability.RecordAuthEvent("login", true)
	return sess, Identity{UserID: u.ID, Username: u.Username}, nil
}

// Logout deletes the session for token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return err
	}
	observability.RecordAuthEvent("logout", true)
	return nil
}

// Authenticate returns the identity behind a live session token.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoSession
	}
	sess, err := s.store.GetSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, ErrNoSession
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		if err := s.store.DeleteSession(ctx, token); err != nil {
			observability.LoggerFromContext(ctx).Warn("delete expired session failed", zap.Error(err))
		}
		return Identity{}, ErrNoSession
	}
	return Identity{UserID: sess.UserID, Username: sess.Username}, nil
}
