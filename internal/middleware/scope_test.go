package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/auth"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

// guarded serves an OK handler behind mw, as principal ac (nil is anonymous).
func guarded(mw func(http.Handler) http.Handler, ac *model.AuthContext) int {
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/developer/apps", nil)
	if ac != nil {
		req = req.WithContext(auth.ContextWithAuth(req.Context(), ac))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func apiKey(scopes ...string) *model.AuthContext {
	return &model.AuthContext{
		Method:    model.AuthMethodAPIKey,
		KeyID:     "01HKEY",
		KeyPrefix: "vs_live_ab12cd",
		UserID:    "01HUSER",
		Role:      model.RoleDeveloper,
		Scopes:    scopes,
	}
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name     string
		scopes   []string
		required []string
		want     int
	}{
		{"read key reads", []string{model.ScopeRead}, []string{model.ScopeRead}, http.StatusOK},
		{"read key cannot write", []string{model.ScopeRead}, []string{model.ScopeWrite}, http.StatusForbidden},
		{"write key cannot administer", []string{model.ScopeWrite}, []string{model.ScopeAdmin}, http.StatusForbidden},
		{"webhook key cannot write", []string{model.ScopeWebhook}, []string{model.ScopeWrite}, http.StatusForbidden},
		{"admin scope implies all", []string{model.ScopeAdmin}, []string{model.ScopeWrite}, http.StatusOK},
		{"any of several", []string{model.ScopeWebhook}, []string{model.ScopeWrite, model.ScopeWebhook}, http.StatusOK},
		{"key without scopes", nil, []string{model.ScopeRead}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guarded(RequireScope(tt.required...), apiKey(tt.scopes...)))
		})
	}
}

func TestRequireScope_SessionsCarryEveryScope(t *testing.T) {
	session := &model.AuthContext{Method: model.AuthMethodSession, UserID: "01HUSER", Role: model.RoleUser}
	for _, scope := range model.ValidScopes {
		assert.Equal(t, http.StatusOK, guarded(RequireScope(scope), session), scope)
	}
}

func TestRequireRole(t *testing.T) {
	roles := []string{model.RoleUser, model.RoleDeveloper, model.RoleAdmin}
	// allowed[account][required]
	allowed := map[string]map[string]bool{
		model.RoleUser:      {model.RoleUser: true},
		model.RoleDeveloper: {model.RoleUser: true, model.RoleDeveloper: true},
		model.RoleAdmin:     {model.RoleUser: true, model.RoleDeveloper: true, model.RoleAdmin: true},
	}

	for _, account := range roles {
		for _, required := range roles {
			ac := &model.AuthContext{Method: model.AuthMethodSession, UserID: "01HUSER", Role: account}
			want := http.StatusForbidden
			if allowed[account][required] {
				want = http.StatusOK
			}
			assert.Equal(t, want, guarded(RequireRole(required), ac), "%s needs %s", account, required)
		}
	}
}

func TestGuards_RejectAnonymous(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, guarded(RequireScope(model.ScopeRead), nil))
	assert.Equal(t, http.StatusUnauthorized, guarded(RequireRole(model.RoleUser), nil))
}
