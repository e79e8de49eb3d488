package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
)

type fakeAccounts struct {
	Accounts

	register service.RegisterInput
	keyInput service.CreateAPIKeyInput
	revoked  string
	err      error
}

func (f *fakeAccounts) Register(_ context.Context, input service.RegisterInput) (*model.User, error) {
	f.register = input
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{ID: "usr_1", Email: input.Email, Role: model.RoleUser}, nil
}

func (f *fakeAccounts) RefreshSession(_ context.Context, userID string) (*service.Session, error) {
	return &service.Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour), User: &model.User{ID: userID}}, nil
}

func (f *fakeAccounts) Login(_ context.Context, email, password string) (*service.Session, error) {
	if password != "correct horse" {
		return nil, service.ErrInvalidCredentials
	}
	return &service.Session{Token: "tok", User: &model.User{ID: "usr_1", Email: email}}, nil
}

func (f *fakeAccounts) CreateAPIKey(_ context.Context, input service.CreateAPIKeyInput) (*service.CreatedAPIKey, error) {
	f.keyInput = input
	if f.err != nil {
		return nil, f.err
	}
	return &service.CreatedAPIKey{
		Key:       &model.APIKey{ID: "key_1", KeyPrefix: "a1b2c3", Scopes: input.Scopes},
		Plaintext: "vs_live_a1b2c3_00000000000000000000000000000000",
	}, nil
}

func (f *fakeAccounts) RevokeAPIKey(_ context.Context, _, keyID string) error {
	f.revoked = keyID
	return f.err
}

func TestAccountHandler_Register(t *testing.T) {
	svc := &fakeAccounts{}
	h := NewAccountHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"Ada@Example.com","name":"Ada","password":"correct horse"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Ada@Example.com", svc.register.Email)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "tok", resp["token"])
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestAccountHandler_RegisterDuplicate(t *testing.T) {
	h := NewAccountHandler(&fakeAccounts{err: service.ErrEmailTaken}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"a@example.com"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAccountHandler_Login(t *testing.T) {
	h := NewAccountHandler(&fakeAccounts{}, testLogger())

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@example.com","password":"correct horse"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@example.com","password":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountHandler_CreateAPIKeyPassesRole(t *testing.T) {
	svc := &fakeAccounts{}
	h := NewAccountHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.CreateAPIKey(rec, developerRequest(http.MethodPost, "/api/account/api-keys", `{"name":"ci","scopes":["write"]}`, developerSession))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, service.CreateAPIKeyInput{
		UserID: "usr_1",
		Role:   model.RoleDeveloper,
		Name:   "ci",
		Scopes: []string{model.ScopeWrite},
	}, svc.keyInput)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "vs_live_a1b2c3_00000000000000000000000000000000", resp["key"])
	assert.Equal(t, "key_1", resp["id"])
}

func TestAccountHandler_RevokeAPIKey(t *testing.T) {
	svc := &fakeAccounts{}
	h := NewAccountHandler(svc, testLogger())
	r := chi.NewRouter()
	r.Delete("/api/account/api-keys/{keyID}", h.RevokeAPIKey)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, developerRequest(http.MethodDelete, "/api/account/api-keys/key_9", "", developerSession))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "key_9", svc.revoked)
}
