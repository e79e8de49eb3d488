package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env        string
		wantPrefix string
	}{
		{EnvLive, "vs_live_"},
		{EnvTest, "vs_test_"},
		{"", "vs_live_"},
		{"staging", "vs_live_"},
	}

	for _, tt := range tests {
		t.Run("env="+tt.env, func(t *testing.T) {
			t.Parallel()

			key, err := GenerateAPIKey(tt.env)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(key.Plaintext, tt.wantPrefix), key.Plaintext)
			assert.Len(t, key.Prefix, KeyPrefixLen)
			assert.True(t, ValidateKeyFormat(key.Plaintext))

			parsed, err := ParseAPIKey(key.Plaintext)
			require.NoError(t, err)
			assert.Equal(t, key.Prefix, parsed.Prefix)
			assert.Equal(t, key.Plaintext, parsed.String())

			ok, err := VerifyPassword(key.Plaintext, key.Hash)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	t.Parallel()

	const n = 20
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		key, err := GenerateAPIKey(EnvLive)
		require.NoError(t, err)
		parsed, err := ParseAPIKey(key.Plaintext)
		require.NoError(t, err)

		assert.False(t, seen[parsed.Secret], "duplicate secret at %d", i)
		seen[parsed.Secret] = true
	}
}

func TestParseAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		key        string
		wantEnv    string
		wantPrefix string
		wantErr    bool
	}{
		{"live key", "vs_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", "live", "abc123", false},
		{"test key", "vs_test_def456_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", "test", "def456", false},
		{"foreign scheme", "pk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", "", "", true},
		{"unknown env", "vs_prod_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", "", "", true},
		{"short prefix", "vs_live_abc_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", "", "", true},
		{"short secret", "vs_live_abc123_4f8d2e1b", "", "", true},
		{"long secret", "vs_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1bx", "", "", true},
		{"uppercase hex", "vs_live_ABC123_4F8D2E1B9C7A5F3D2E1B9C7A5F3D2E1B", "", "", true},
		{"empty", "", "", "", true},
		{"env only", "vs_live_", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKeyFormat)
				assert.False(t, ValidateKeyFormat(tt.key))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnv, parsed.Env)
			assert.Equal(t, tt.wantPrefix, parsed.Prefix)
		})
	}
}

func TestLooksLikeAPIKey(t *testing.T) {
	t.Parallel()

	assert.True(t, LooksLikeAPIKey("vs_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"))
	assert.False(t, LooksLikeAPIKey("eyJhbGciOiJIUzI1NiJ9.e30.sig"))
	assert.False(t, LooksLikeAPIKey(""))
}
