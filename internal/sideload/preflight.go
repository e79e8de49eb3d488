// Package sideload installs store builds directly onto a headset over ADB.
package sideload

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Preflight check names, in evaluation order.
const (
	CheckWebUSB   = "webusb"
	CheckBrowser  = "browser"
	CheckHeadset  = "headset_browser"
	CheckSecurity = "secure_context"
)

// Environment describes the client that wants to sideload.
type Environment struct {
	WebUSB    bool
	UserAgent string
	Origin    string
}

// PreflightError is the first failed precondition. Message is shown to the
// user as is.
type PreflightError struct {
	Check   string
	Message string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

var (
	chromiumPattern = regexp.MustCompile(`(?i)\b(chrome|chromium|edg|opr|brave)/\d+`)
	headsetPattern  = regexp.MustCompile(`(?i)oculusbrowser|\bquest\b|picobrowser`)
)

// CheckEnvironment returns the first failed precondition, or nil when the
// client can sideload. There is no retry.
func CheckEnvironment(env Environment) error {
	if !env.WebUSB {
		return &PreflightError{Check: CheckWebUSB, Message: "This browser does not support WebUSB."}
	}
	if !chromiumPattern.MatchString(env.UserAgent) {
		return &PreflightError{Check: CheckBrowser, Message: "Sideloading requires a Chromium-based browser such as Chrome or Edge."}
	}
	if headsetPattern.MatchString(env.UserAgent) {
		return &PreflightError{Check: CheckHeadset, Message: "Open the store on a computer connected to the headset, not in the headset browser."}
	}
	if !isSecureOrigin(env.Origin) {
		return &PreflightError{Check: CheckSecurity, Message: "Sideloading is only available over HTTPS or on localhost."}
	}
	return nil
}

// Verdict is the JSON form of a preflight result.
type Verdict struct {
	Compatible bool   `json:"compatible"`
	Check      string `json:"failed_check,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Evaluate runs CheckEnvironment and reports the result as a Verdict.
func Evaluate(env Environment) Verdict {
	err := CheckEnvironment(env)
	if err == nil {
		return Verdict{Compatible: true}
	}
	pe, ok := err.(*PreflightError)
	if !ok {
		return Verdict{Message: err.Error()}
	}
	return Verdict{Check: pe.Check, Message: pe.Message}
}

func isSecureOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return true
	case "http":
		host := strings.ToLower(u.Hostname())
		if host == "localhost" || strings.HasSuffix(host, ".localhost") {
			return true
		}
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	default:
		return false
	}
}
