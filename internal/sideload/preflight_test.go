package sideload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	desktopChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	desktopEdge   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0"
	firefox       = "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0"
	questBrowser  = "Mozilla/5.0 (X11; Linux x86_64; Quest 3) AppleWebKit/537.36 (KHTML, like Gecko) OculusBrowser/33.0.0.5.114 SamsungBrowser/4.0 Chrome/126.0.6478.122 VR Safari/537.36"
)

func TestCheckEnvironment(t *testing.T) {
	tests := []struct {
		name      string
		env       Environment
		wantCheck string
	}{
		{"chrome over https", Environment{WebUSB: true, UserAgent: desktopChrome, Origin: "https://store.example.com"}, ""},
		{"edge on localhost", Environment{WebUSB: true, UserAgent: desktopEdge, Origin: "http://localhost:3000"}, ""},
		{"loopback ip", Environment{WebUSB: true, UserAgent: desktopChrome, Origin: "http://127.0.0.1:8080"}, ""},
		{"no webusb", Environment{WebUSB: false, UserAgent: desktopChrome, Origin: "https://store.example.com"}, CheckWebUSB},
		{"firefox", Environment{WebUSB: true, UserAgent: firefox, Origin: "https://store.example.com"}, CheckBrowser},
		{"headset browser", Environment{WebUSB: true, UserAgent: questBrowser, Origin: "https://store.example.com"}, CheckHeadset},
		{"plain http", Environment{WebUSB: true, UserAgent: desktopChrome, Origin: "http://store.example.com"}, CheckSecurity},
		{"missing origin", Environment{WebUSB: true, UserAgent: desktopChrome}, CheckSecurity},
		// Checks run in order, so the first failure wins.
		{"everything wrong", Environment{UserAgent: firefox, Origin: "http://store.example.com"}, CheckWebUSB},
		{"firefox over http", Environment{WebUSB: true, UserAgent: firefox, Origin: "http://store.example.com"}, CheckBrowser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckEnvironment(tt.env)
			if tt.wantCheck == "" {
				assert.NoError(t, err)
				return
			}
			var pe *PreflightError
			require.True(t, errors.As(err, &pe), "expected PreflightError, got %v", err)
			assert.Equal(t, tt.wantCheck, pe.Check)
			assert.NotEmpty(t, pe.Message)
		})
	}
}

func TestEvaluate(t *testing.T) {
	ok := Evaluate(Environment{WebUSB: true, UserAgent: desktopChrome, Origin: "https://store.example.com"})
	assert.Equal(t, Verdict{Compatible: true}, ok)

	bad := Evaluate(Environment{WebUSB: true, UserAgent: questBrowser, Origin: "https://store.example.com"})
	assert.False(t, bad.Compatible)
	assert.Equal(t, CheckHeadset, bad.Check)
	assert.Contains(t, bad.Message, "headset")
}
