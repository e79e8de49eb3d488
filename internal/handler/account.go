package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler/dto"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
)

// Accounts manages sign-up, sessions and API keys.
type Accounts interface {
	Register(ctx context.Context, input service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	RefreshSession(ctx context.Context, userID string) (*service.Session, error)
	Me(ctx context.Context, userID string) (*model.User, error)
	CreateAPIKey(ctx context.Context, input service.CreateAPIKeyInput) (*service.CreatedAPIKey, error)
	ListAPIKeys(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, userID, keyID string) error
	RotateAPIKey(ctx context.Context, userID, keyID string) (*service.CreatedAPIKey, error)
}

// AccountHandler handles authentication and API key endpoints.
type AccountHandler struct {
	svc    Accounts
	logger *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc Accounts, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		svc:    svc,
		logger: logger.With("handler", "account"),
	}
}

// Register handles POST /api/auth/register. The new account is signed in.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	session, err := h.svc.RefreshSession(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("account registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Login handles POST /api/auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Me handles GET /api/auth/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	user, err := h.svc.Me(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CreateAPIKey handles POST /api/account/api-keys.
func (h *AccountHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.CreateAPIKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.svc.CreateAPIKey(r.Context(), service.CreateAPIKeyInput{
		UserID: authCtx.UserID,
		Role:   authCtx.Role,
		Name:   req.Name,
		Scopes: req.Scopes,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("API key created",
		slog.String("key_id", created.Key.ID),
		slog.String("key_prefix", created.Key.KeyPrefix),
		slog.String("user_id", authCtx.UserID),
	)

	writeJSON(w, http.StatusCreated, dto.APIKeyCreatedResponse{APIKey: created.Key, Key: created.Plaintext})
}

// ListAPIKeys handles GET /api/account/api-keys.
func (h *AccountHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	keys, err := h.svc.ListAPIKeys(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": lo.Ternary(keys == nil, []*model.APIKey{}, keys)})
}

// RevokeAPIKey handles DELETE /api/account/api-keys/{keyID}.
func (h *AccountHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	keyID := chi.URLParam(r, "keyID")
	if err := h.svc.RevokeAPIKey(r.Context(), authCtx.UserID, keyID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("API key revoked",
		slog.String("key_id", keyID),
		slog.String("user_id", authCtx.UserID),
	)
	w.WriteHeader(http.StatusNoContent)
}

// RotateAPIKey handles POST /api/account/api-keys/{keyID}/rotate.
func (h *AccountHandler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	keyID := chi.URLParam(r, "keyID")
	created, err := h.svc.RotateAPIKey(r.Context(), authCtx.UserID, keyID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("API key rotated",
		slog.String("old_key_id", keyID),
		slog.String("new_key_id", created.Key.ID),
		slog.String("user_id", authCtx.UserID),
	)
	writeJSON(w, http.StatusOK, dto.APIKeyCreatedResponse{APIKey: created.Key, Key: created.Plaintext})
}

func toSessionResponse(s *service.Session) *dto.SessionResponse {
	return &dto.SessionResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: s.User}
}
