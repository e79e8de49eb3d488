package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// API keys look like vs_{env}_{prefix}_{secret}, for example
// vs_live_7a9f3c_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b. The prefix is stored in
// clear for lookup; only the Argon2id hash of the whole key is persisted.
const (
	KeyPrefixLen = 6
	KeySecretLen = 32

	keyScheme = "vs"
)

// Key environments.
const (
	EnvLive = "live"
	EnvTest = "test"
)

var (
	// ErrInvalidKeyFormat indicates the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid API key format")

	keyFormatRegex = regexp.MustCompile(`^vs_(live|test)_([a-f0-9]{6})_([a-f0-9]{32})$`)
)

// GeneratedKey is a freshly minted key. Plaintext is shown to the owner once.
type GeneratedKey struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// ParsedKey holds the components of a plaintext key.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

// String reassembles the plaintext key.
func (p ParsedKey) String() string {
	return strings.Join([]string{keyScheme, p.Env, p.Prefix, p.Secret}, "_")
}

// GenerateAPIKey mints a key for env. Unknown environments become live keys.
func GenerateAPIKey(env string) (*GeneratedKey, error) {
	if env != EnvTest {
		env = EnvLive
	}

	prefix, err := randomHex(KeyPrefixLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomHex(KeySecretLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := ParsedKey{Env: env, Prefix: prefix, Secret: secret}.String()
	hash, err := HashPassword(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{Plaintext: plaintext, Hash: hash, Prefix: prefix}, nil
}

// ParseAPIKey splits a plaintext key into its components.
func ParseAPIKey(key string) (*ParsedKey, error) {
	m := keyFormatRegex.FindStringSubmatch(key)
	if m == nil {
		return nil, ErrInvalidKeyFormat
	}
	return &ParsedKey{Env: m[1], Prefix: m[2], Secret: m[3]}, nil
}

// ValidateKeyFormat reports whether key is well formed.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}

// LooksLikeAPIKey distinguishes API keys from session tokens in a bearer header.
func LooksLikeAPIKey(credential string) bool {
	return strings.HasPrefix(credential, keyScheme+"_")
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
