package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

// Service implements authentication, account administration and cookie
// sessions on top of the SQLite repository.
type Service struct {
	storage    *storage.SQLiteRepository
	sessionTTL time.Duration
}

func NewService(storage *storage.SQLiteRepository, sessionTTL time.Duration) *Service {
	return &Service{
		storage:    storage,
		sessionTTL: sessionTTL,
	}
}

// Authenticate verifies credentials and returns the matching user. Unknown
// usernames and wrong passwords both come back as ErrInvalidCredentials so
// the login form cannot be used to probe which accounts exist.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*core.User, error) {
	user, hash, err := s.storage.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	ok, legacy := VerifyPassword(password, hash)
	if !ok {
		return nil, core.ErrInvalidCredentials
	}

	if legacy {
		// Old installs stored unsalted digests. Upgrade in place now that
		// we hold the plaintext; login still succeeds if the write fails.
		if newHash, err := HashPassword(password); err == nil {
			if err := s.storage.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
				slog.WarnContext(ctx, "Failed to upgrade legacy password hash",
					"user_id", user.ID, "error", err)
			}
		}
	}

	return user, nil
}

// CreateUser registers a new account. Only admins may call it.
func (s *Service) CreateUser(ctx context.Context, actor *core.User, username, password, fullName string, role core.Role) (*core.User, error) {
	if actor == nil {
		return nil, core.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, core.ErrForbidden
	}
	return s.createUser(ctx, username, password, fullName, role)
}

// CreateFirstAdmin bootstraps the initial admin account on an empty
// database. It refuses to run once any user exists.
func (s *Service) CreateFirstAdmin(ctx context.Context, username, password, fullName string) (*core.User, error) {
	count, err := s.storage.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("database already has users, create accounts through an admin")
	}
	return s.createUser(ctx, username, password, fullName, core.RoleAdmin)
}

func (s *Service) createUser(ctx context.Context, username, password, fullName string, role core.Role) (*core.User, error) {
	if err := core.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := core.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.storage.CreateUser(ctx, username, hash, fullName, role)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "User created", "user_id", user.ID, "role", role)
	return user, nil
}

// ChangePassword lets a user rotate their own password after proving they
// know the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	hash, err := s.storage.PasswordHash(ctx, userID)
	if err != nil {
		return fmt.Errorf("load password hash: %w", err)
	}

	if ok, _ := VerifyPassword(current, hash); !ok {
		return core.ErrIncorrectPassword
	}

	if err := core.ValidatePassword(next); err != nil {
		return err
	}

	newHash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.storage.UpdatePasswordHash(ctx, userID, newHash)
}

// ResetPassword sets a user's password without knowing the old one. Admins
// only; the target's other sessions keep working until they expire.
func (s *Service) ResetPassword(ctx context.Context, actor *core.User, targetID int64, password string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := core.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.storage.UpdatePasswordHash(ctx, targetID, hash)
}

// UpdateUsername renames an account. Admins may rename anyone, others only
// themselves.
func (s *Service) UpdateUsername(ctx context.Context, actor *core.User, targetID int64, username string) error {
	if err := requireAdminOrSelf(actor, targetID); err != nil {
		return err
	}
	if err := core.ValidateUsername(username); err != nil {
		return err
	}
	return s.storage.UpdateUsername(ctx, targetID, username)
}

// UpdateFullName changes the display name. Admins may edit anyone, others
// only themselves.
func (s *Service) UpdateFullName(ctx context.Context, actor *core.User, targetID int64, fullName string) error {
	if err := requireAdminOrSelf(actor, targetID); err != nil {
		return err
	}
	return s.storage.UpdateFullName(ctx, targetID, fullName)
}

// DeleteUser removes an account and its sessions. Expenses recorded by the
// user stay behind. Admins cannot delete themselves so the system always
// keeps at least one admin able to log in.
func (s *Service) DeleteUser(ctx context.Context, actor *core.User, targetID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if actor.ID == targetID {
		return core.ErrSelfDeletion
	}

	if err := s.storage.DeleteUser(ctx, targetID); err != nil {
		return err
	}

	slog.InfoContext(ctx, "User deleted", "user_id", targetID, "deleted_by", actor.ID)
	return nil
}

// ListUsers returns all accounts. Admins only.
func (s *Service) ListUsers(ctx context.Context, actor *core.User) ([]core.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.storage.ListUsers(ctx)
}

// GetUser returns a single account. Admins may look up anyone, others only
// themselves.
func (s *Service) GetUser(ctx context.Context, actor *core.User, targetID int64) (*core.User, error) {
	if err := requireAdminOrSelf(actor, targetID); err != nil {
		return nil, err
	}
	return s.storage.GetUserByID(ctx, targetID)
}

func requireAdmin(actor *core.User) error {
	if actor == nil {
		return core.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return core.ErrForbidden
	}
	return nil
}

func requireAdminOrSelf(actor *core.User, targetID int64) error {
	if actor == nil {
		return core.ErrUnauthorized
	}
	if !actor.IsAdmin() && actor.ID != targetID {
		return core.ErrForbidden
	}
	return nil
}

// StartSession issues a fresh session token for a logged-in user.
func (s *Service) StartSession(ctx context.Context, userID int64) (token string, expiresAt time.Time, err error) {
	token, err = NewSessionToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token: %w", err)
	}

	expiresAt = time.Now().Add(s.sessionTTL)
	if err := s.storage.CreateSession(ctx, token, userID, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateSession resolves a token to its session, renewing the expiry once
// less than half the TTL remains. The renewal write is best effort.
func (s *Service) ValidateSession(ctx context.Context, token string) (*storage.Session, error) {
	sess, err := s.storage.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}

	if time.Until(sess.ExpiresAt) < s.sessionTTL/2 {
		newExpiry := time.Now().Add(s.sessionTTL)
		if err := s.storage.RenewSession(ctx, token, newExpiry); err != nil {
			slog.WarnContext(ctx, "Failed to renew session", "error", err)
		} else {
			sess.ExpiresAt = newExpiry
		}
	}

	return sess, nil
}

// EndSession discards a session token on logout.
func (s *Service) EndSession(ctx context.Context, token string) error {
	return s.storage.DeleteSession(ctx, token)
}

// PurgeExpiredSessions drops sessions past their expiry. Meant to run
// periodically from the server loop.
func (s *Service) PurgeExpiredSessions(ctx context.Context) error {
	return s.storage.DeleteExpiredSessions(ctx)
}
