package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/auth"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/repository"
)

const maxNameLength = 100

// PrincipalCache drops cached principals of revoked keys.
type PrincipalCache interface {
	ForgetAPIKey(ctx context.Context, keyID string) error
}

// AccountService handles registration, sign-in and API keys.
type AccountService struct {
	users      UserStore
	keys       APIKeyStore
	tokens     *auth.TokenIssuer
	hash       func(string) (string, error)
	principals PrincipalCache
	logger     *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(users UserStore, keys APIKeyStore, tokens *auth.TokenIssuer, logger *slog.Logger) *AccountService {
	return &AccountService{
		users:  users,
		keys:   keys,
		tokens: tokens,
		hash:   auth.HashPassword,
		logger: logger.With("component", "accounts"),
	}
}

// RegisterInput defines input for creating an account.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Session is a signed-in user with a bearer token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Register creates a user account with the default role.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalid("email", "must be a valid email address")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, invalid("name", "must be 1-%d characters", maxNameLength)
	}
	if err := auth.ValidatePassword(input.Password); err != nil {
		return nil, invalid("password", "%s", err.Error())
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a session token. Unknown emails and
// wrong passwords produce the same error.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}

// RefreshSession issues a new token carrying the user's current role. Used
// after the role changes, for example when a developer profile is created.
func (s *AccountService) RefreshSession(ctx context.Context, userID string) (*Session, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, exp, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}

// Me returns the signed-in user.
func (s *AccountService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// CreateAPIKeyInput defines input for minting an API key.
type CreateAPIKeyInput struct {
	UserID string
	Role   string
	Name   string
	Scopes []string
}

// CreatedAPIKey carries the plaintext key, which is never stored.
type CreatedAPIKey struct {
	Key       *model.APIKey
	Plaintext string
}

// CreateAPIKey mints a key for the user. Only admins may mint admin-scoped keys.
func (s *AccountService) CreateAPIKey(ctx context.Context, input CreateAPIKeyInput) (*CreatedAPIKey, error) {
	scopes := lo.Uniq(input.Scopes)
	if len(scopes) == 0 {
		scopes = []string{model.ScopeRead}
	}
	if bad, found := lo.Find(scopes, func(s string) bool { return !lo.Contains(model.ValidScopes, s) }); found {
		return nil, invalid("scopes", "unknown scope %q", bad)
	}
	if lo.Contains(scopes, model.ScopeAdmin) && input.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}

	generated, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		return nil, err
	}

	key := &model.APIKey{
		ID:            newID(),
		UserID:        input.UserID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        scopes,
		RateLimitTier: model.TierForRole(input.Role),
		Name:          strings.TrimSpace(input.Name),
		CreatedAt:     now(),
	}
	if err := s.keys.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}
	return &CreatedAPIKey{Key: key, Plaintext: generated.Plaintext}, nil
}

// ListAPIKeys returns the user's keys without secrets.
func (s *AccountService) ListAPIKeys(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return s.keys.ListAPIKeysByUserID(ctx, userID)
}

// WithPrincipalCache makes revokes evict the key's cached principal.
func (s *AccountService) WithPrincipalCache(c PrincipalCache) *AccountService {
	s.principals = c
	return s
}

// RevokeAPIKey revokes one of the user's keys.
func (s *AccountService) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	key, err := s.ownedKey(ctx, userID, keyID)
	if err != nil {
		return err
	}
	if key.IsRevoked() {
		return ErrAPIKeyNotFound
	}
	if err := s.keys.RevokeAPIKey(ctx, keyID); err != nil {
		return err
	}
	s.forget(ctx, keyID)
	return nil
}

// forget evicts a cached principal. Failures leave the entry to expire on
// its TTL.
func (s *AccountService) forget(ctx context.Context, keyID string) {
	if s.principals == nil {
		return
	}
	if err := s.principals.ForgetAPIKey(ctx, keyID); err != nil {
		s.logger.Warn("failed to evict cached api key", "key_id", keyID, "error", err)
	}
}

// RotateAPIKey revokes a key and mints a replacement with the same scopes.
func (s *AccountService) RotateAPIKey(ctx context.Context, userID, keyID string) (*CreatedAPIKey, error) {
	old, err := s.ownedKey(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}
	if old.IsRevoked() {
		return nil, ErrAPIKeyNotFound
	}

	generated, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		return nil, err
	}
	replacement := &model.APIKey{
		ID:            newID(),
		UserID:        old.UserID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        old.Scopes,
		RateLimitTier: old.RateLimitTier,
		Name:          old.Name,
		CreatedAt:     now(),
	}
	if err := s.keys.RotateAPIKey(ctx, old.ID, replacement); err != nil {
		return nil, err
	}
	s.forget(ctx, old.ID)
	return &CreatedAPIKey{Key: replacement, Plaintext: generated.Plaintext}, nil
}

func (s *AccountService) ownedKey(ctx context.Context, userID, keyID string) (*model.APIKey, error) {
	key, err := s.keys.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, err
	}
	// Other users' keys are reported as missing.
	if key.UserID != userID {
		return nil, ErrAPIKeyNotFound
	}
	return key, nil
}
