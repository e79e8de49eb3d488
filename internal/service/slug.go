package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	maxSlugLength     = 60
	maxSlugCollisions = 20
	maxPackageNameLen = 150
)

var (
	slugPattern        = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugRun         = regexp.MustCompile(`[^a-z0-9]+`)
	packageNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z][a-zA-Z0-9_]*)+$`)
)

// Slugify derives a URL slug from a display name: accents are folded, runs
// of other characters become single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(strings.ToLower(name)) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}

	slug := strings.Trim(nonSlugRun.ReplaceAllString(b.String(), "-"), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return "app"
	}
	return slug
}

// IsValidSlug reports whether s is a canonical slug.
func IsValidSlug(s string) bool {
	return len(s) <= maxSlugLength && slugPattern.MatchString(s)
}

// IsValidPackageName reports whether s is a dotted Android package name.
func IsValidPackageName(s string) bool {
	return len(s) <= maxPackageNameLen && packageNamePattern.MatchString(s)
}

// uniqueSlug returns base, or base suffixed with -2, -3, ... when taken.
// After maxSlugCollisions it falls back to a random suffix.
func uniqueSlug(ctx context.Context, base string, exists func(context.Context, string) (bool, error)) (string, error) {
	candidate := base
	for i := 2; i <= maxSlugCollisions+1; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = withSuffix(base, strconv.Itoa(i))
	}

	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return withSuffix(base, hex.EncodeToString(suffix)), nil
}

func withSuffix(base, suffix string) string {
	if room := maxSlugLength - len(suffix) - 1; len(base) > room {
		base = strings.TrimRight(base[:room], "-")
	}
	return base + "-" + suffix
}
