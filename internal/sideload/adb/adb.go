// Package adb drives the platform adb binary to reach headsets. The device
// protocol stays inside adb.
package adb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload/credstore"
)

const (
	// DefaultAuthTimeout is how long Authenticate waits for the user to accept
	// the key prompt in the headset.
	DefaultAuthTimeout = time.Minute

	authPollInterval = 250 * time.Millisecond
)

var (
	// ErrNoDevice is returned when no headset is attached.
	ErrNoDevice = errors.New("no device connected")
	// ErrUnauthorized is returned when the headset has not accepted the key.
	ErrUnauthorized = errors.New("device did not authorize this computer; accept the prompt in the headset")
	// ErrNotFound is returned when adb is not installed.
	ErrNotFound = errors.New("adb executable not found")
)

// Client runs adb commands.
type Client struct {
	// Path to the adb executable.
	Path string
	// Serial selects a device; empty picks the only attached device.
	Serial string
	// AuthTimeout bounds the wait for an authorization prompt. Zero means
	// DefaultAuthTimeout.
	AuthTimeout time.Duration
}

// NewClient creates a client using adb from PATH.
func NewClient(serial string) (*Client, error) {
	path, err := exec.LookPath("adb")
	if err != nil {
		return nil, ErrNotFound
	}
	return &Client{Path: path, Serial: serial}, nil
}

// DeviceInfo is one line of `adb devices`.
type DeviceInfo struct {
	Serial string
	State  string
}

// Devices lists attached devices.
func (c *Client) Devices(ctx context.Context) ([]DeviceInfo, error) {
	out, err := c.run(ctx, nil, nil, "devices")
	if err != nil {
		return nil, err
	}
	return parseDevices(out), nil
}

// RequestDevice picks the configured device, or the only attached one.
func (c *Client) RequestDevice(ctx context.Context) (sideload.Device, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []DeviceInfo
	for _, d := range devices {
		if c.Serial == "" || d.Serial == c.Serial {
			candidates = append(candidates, d)
		}
	}
	switch {
	case len(candidates) == 0:
		return nil, ErrNoDevice
	case len(candidates) > 1:
		return nil, fmt.Errorf("%d devices connected; choose one with --serial", len(candidates))
	}
	return &device{client: c, serial: candidates[0].Serial}, nil
}

type device struct {
	client *Client
	serial string
}

func (d *device) Serial() string { return d.serial }

func (d *device) Connect(ctx context.Context) (sideload.Transport, error) {
	state, err := d.client.state(ctx, d.serial, nil)
	if err != nil {
		return nil, err
	}
	if state == "offline" {
		return nil, fmt.Errorf("device %s is offline", d.serial)
	}
	dir, err := os.MkdirTemp("", "vrsideload-")
	if err != nil {
		return nil, err
	}
	return &transport{client: d.client, serial: d.serial, keyDir: dir}, nil
}

type transport struct {
	client *Client
	serial string
	keyDir string
	env    []string
}

// Authenticate hands the stored key to adb as a vendor key and checks that
// the device accepts it. The adb server reads ADB_VENDOR_KEYS only when it
// starts, so for a device that is not yet authorized the server is restarted
// with the key and the device polled until the user accepts the prompt. Other
// adb clients on the machine lose their connection during the restart.
func (t *transport) Authenticate(ctx context.Context, creds sideload.CredentialStore) (sideload.Session, error) {
	key, err := creds.PrivateKey()
	if err != nil {
		return nil, err
	}
	path, err := credstore.WriteVendorKey(t.keyDir, creds.Label(), key)
	if err != nil {
		return nil, err
	}
	t.env = []string{"ADB_VENDOR_KEYS=" + path}

	state, err := t.client.state(ctx, t.serial, t.env)
	if err != nil {
		return nil, err
	}
	if state != "device" {
		if err := t.client.restartServer(ctx, t.env); err != nil {
			return nil, err
		}
		if state, err = t.client.waitAuthorized(ctx, t.serial, t.env); err != nil {
			return nil, err
		}
	}
	if state != "device" {
		return nil, ErrUnauthorized
	}
	return &session{client: t.client, serial: t.serial, env: t.env}, nil
}

func (t *transport) Close() error {
	return os.RemoveAll(t.keyDir)
}

type session struct {
	client *Client
	serial string
	env    []string
}

// InstallStream streams the APK to the package manager over stdin.
func (s *session) InstallStream(ctx context.Context, size int64, r io.Reader) error {
	out, err := s.client.run(ctx, s.env, r,
		"-s", s.serial, "exec-in", "cmd", "package", "install", "-S", strconv.FormatInt(size, 10))
	if err != nil {
		return err
	}
	return parseInstallResult(out)
}

func (c *Client) state(ctx context.Context, serial string, env []string) (string, error) {
	out, err := c.run(ctx, env, nil, "-s", serial, "get-state")
	if err != nil {
		if strings.Contains(err.Error(), "unauthorized") {
			return "unauthorized", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// restartServer restarts the adb server so it loads the keys named in env.
func (c *Client) restartServer(ctx context.Context, env []string) error {
	// kill-server fails when no server is running.
	_, _ = c.run(ctx, nil, nil, "kill-server")
	if _, err := c.run(ctx, env, nil, "start-server"); err != nil {
		return fmt.Errorf("restart adb server: %w", err)
	}
	return nil
}

// waitAuthorized polls the device state until it reads "device" or the auth
// timeout passes. Errors while the device re-attaches are retried.
func (c *Client) waitAuthorized(ctx context.Context, serial string, env []string) (string, error) {
	timeout := c.AuthTimeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		state, err := c.state(ctx, serial, env)
		if err == nil && state == "device" {
			return state, nil
		}
		if time.Now().After(deadline) {
			return state, err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(authPollInterval):
		}
	}
}

// run executes adb and returns stdout. A failing command returns adb's
// own message.
func (c *Client) run(ctx context.Context, env []string, stdin io.Reader, args ...string) (string, error) {
	if c.Path == "" {
		return "", ErrNotFound
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			return "", fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
		}
		return "", errors.New(msg)
	}
	return stdout.String(), nil
}

func parseDevices(out string) []DeviceInfo {
	var devices []DeviceInfo
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, DeviceInfo{Serial: fields[0], State: fields[1]})
	}
	return devices
}

func parseInstallResult(out string) error {
	out = strings.TrimSpace(out)
	if strings.HasPrefix(out, "Success") {
		return nil
	}
	if out == "" {
		return errors.New("install produced no output")
	}
	return errors.New(out)
}
