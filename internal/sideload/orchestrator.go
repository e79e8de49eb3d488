package sideload

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// CredentialLabel is the fixed label the headset sees for the store's key.
const CredentialLabel = "vrstore-sideload"

// DefaultDownloadTimeout bounds the APK request until its headers arrive.
const DefaultDownloadTimeout = 30 * time.Second

var (
	// ErrBusy is returned when a sideload is already running on the orchestrator.
	ErrBusy = errors.New("a sideload is already in progress")
	// ErrUnknownSize is returned when neither the download nor the manifest
	// declares the APK size.
	ErrUnknownSize = errors.New("APK size is unknown")
	// ErrDownloadTimeout is returned when the APK server does not answer in time.
	ErrDownloadTimeout = errors.New("APK download did not start in time")
)

// CredentialStore holds the private key used to authenticate to devices.
type CredentialStore interface {
	Label() string
	PrivateKey() (*rsa.PrivateKey, error)
}

// DeviceManager picks the device to install on.
type DeviceManager interface {
	RequestDevice(ctx context.Context) (Device, error)
}

// Device is a headset that can be connected to.
type Device interface {
	Serial() string
	Connect(ctx context.Context) (Transport, error)
}

// Transport is an open, not yet authenticated, connection to a device.
type Transport interface {
	Authenticate(ctx context.Context, creds CredentialStore) (Session, error)
	Close() error
}

// Session is an authenticated connection able to install packages.
type Session interface {
	InstallStream(ctx context.Context, size int64, r io.Reader) error
}

// Request names the build to install.
type Request struct {
	APKURL      string
	PackageName string
	// Size is used when the download has no Content-Length.
	Size int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHTTPClient sets the client used to download APKs.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) {
		o.http = resty.NewWithClient(c)
	}
}

// WithDownloadTimeout sets how long the APK request may take to answer.
func WithDownloadTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.downloadTimeout = d
		}
	}
}

// WithLogFunc receives every log line as it is written.
func WithLogFunc(fn func(line string)) Option {
	return func(o *Orchestrator) {
		o.logf = fn
	}
}

// Orchestrator runs the connect, authenticate, download and install steps in
// order. One run may be in flight at a time. ctx bounds the download request
// until the response headers arrive; after that the run cannot be cancelled.
type Orchestrator struct {
	devices         DeviceManager
	creds           CredentialStore
	http            *resty.Client
	downloadTimeout time.Duration
	logf            func(string)
	busy            atomic.Bool

	mu  sync.Mutex
	log []string
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(devices DeviceManager, creds CredentialStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		devices:         devices,
		creds:           creds,
		http:            resty.New(),
		downloadTimeout: DefaultDownloadTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a run is in progress.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Log returns the lines written by the current or last run.
func (o *Orchestrator) Log() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.log...)
}

// Run installs the APK at req.APKURL on the device the DeviceManager picks.
// The first failing step aborts the run and its error is returned as is.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.busy.Store(false)

	o.mu.Lock()
	o.log = nil
	o.mu.Unlock()

	start := time.Now()
	steps := context.WithoutCancel(ctx)

	o.logLine("Requesting device")
	dev, err := o.devices.RequestDevice(steps)
	if err != nil {
		return o.fail(err)
	}

	o.logLine("Connecting to %s", dev.Serial())
	transport, err := dev.Connect(steps)
	if err != nil {
		return o.fail(err)
	}
	defer transport.Close()

	o.logLine("Authenticating as %s", o.creds.Label())
	session, err := transport.Authenticate(steps, o.creds)
	if err != nil {
		return o.fail(err)
	}

	if err := ctx.Err(); err != nil {
		return o.fail(err)
	}
	o.logLine("Downloading %s", displayURL(req.APKURL))
	dl, abort := context.WithCancelCause(steps)
	defer abort(nil)
	resp, err := o.download(ctx, dl, abort, req.APKURL)
	if err != nil {
		return o.fail(err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != http.StatusOK {
		return o.fail(fmt.Errorf("download APK: %s", resp.Status()))
	}

	size := resp.RawResponse.ContentLength
	if size <= 0 {
		size = req.Size
	}
	if size <= 0 {
		return o.fail(ErrUnknownSize)
	}

	o.logLine("Installing %d bytes", size)
	counter := &countingReader{r: body}
	if err := session.InstallStream(steps, size, counter); err != nil {
		return o.fail(err)
	}

	name := req.PackageName
	if name == "" {
		name = "package"
	}
	o.logLine("Installed %s (%d bytes) in %s", name, counter.Count(), time.Since(start).Round(time.Millisecond))
	return nil
}

// download issues the APK request on dl, which is detached from ctx so the
// body outlives it. ctx and the download timeout only apply until the headers
// are in; either one firing earlier aborts dl.
func (o *Orchestrator) download(ctx, dl context.Context, abort context.CancelCauseFunc, apkURL string) (*resty.Response, error) {
	timer := time.AfterFunc(o.downloadTimeout, func() { abort(ErrDownloadTimeout) })
	stopCaller := context.AfterFunc(ctx, func() { abort(context.Cause(ctx)) })

	resp, err := o.http.R().
		SetContext(dl).
		SetDoNotParseResponse(true).
		Get(apkURL)

	timerStopped := timer.Stop()
	callerStopped := stopCaller()
	if err == nil && (!timerStopped || !callerStopped) {
		resp.RawBody().Close()
		err = context.Cause(dl)
	}
	if err != nil {
		if cause := context.Cause(dl); cause != nil {
			return nil, cause
		}
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) fail(err error) error {
	o.logLine("Failed: %v", err)
	return err
}

func (o *Orchestrator) logLine(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	o.mu.Lock()
	o.log = append(o.log, line)
	o.mu.Unlock()
	if o.logf != nil {
		o.logf(line)
	}
}

// countingReader passes reads through and counts the bytes.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// Count returns the bytes read so far.
func (c *countingReader) Count() int64 {
	return c.n.Load()
}

// displayURL drops the query, which may carry a signed token.
func displayURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid url]"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}
