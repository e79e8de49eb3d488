package model

import (
	"regexp"
	"slices"
	"time"
)

// Channel is a release track.
type Channel string

const (
	ChannelStable Channel = "stable"
	ChannelBeta   Channel = "beta"
	ChannelAlpha  Channel = "alpha"
)

// Channels lists the supported release tracks.
var Channels = []Channel{ChannelStable, ChannelBeta, ChannelAlpha}

// IsValid reports whether c is a known channel.
func (c Channel) IsValid() bool {
	return slices.Contains(Channels, c)
}

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Artifact is an uploaded APK referenced by URL.
type Artifact struct {
	ID        string    `json:"id"`
	AppID     string    `json:"app_id"`
	URL       string    `json:"url"`
	SizeBytes int64     `json:"size_bytes"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// IsValidSHA256 reports whether s is a lower-case hex SHA-256 digest.
func IsValidSHA256(s string) bool {
	return sha256Pattern.MatchString(s)
}

// Release is a versioned build of an app on one channel.
type Release struct {
	ID          string    `json:"id"`
	AppID       string    `json:"app_id"`
	Channel     Channel   `json:"channel"`
	VersionName string    `json:"version_name"`
	VersionCode int64     `json:"version_code"`
	Notes       string    `json:"notes,omitempty"`
	ArtifactID  string    `json:"artifact_id"`
	CreatedAt   time.Time `json:"created_at"`

	Artifact *Artifact `json:"artifact,omitempty"`
}

// SideloadManifest describes what a sideload client must fetch and install.
type SideloadManifest struct {
	AppID       string  `json:"app_id"`
	Slug        string  `json:"slug"`
	PackageName string  `json:"package_name"`
	Channel     Channel `json:"channel"`
	VersionName string  `json:"version_name"`
	VersionCode int64   `json:"version_code"`
	APKURL      string  `json:"apk_url"`
	SizeBytes   int64   `json:"size_bytes"`
	SHA256      string  `json:"sha256"`
}
