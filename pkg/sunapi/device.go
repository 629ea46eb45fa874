// Package sunapi drives a Hanwha (Wisenet) PTZ camera over its SUNAPI CGI
// interface with HTTP digest authentication.
package sunapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/teslashibe/go-ptzscan/internal/httpc"
	"github.com/teslashibe/go-ptzscan/internal/log"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
)

const (
	ptzPath      = "/stw-cgi/ptzcontrol.cgi"
	videoPath    = "/stw-cgi/video.cgi"
	maxBodyBytes = 16 << 20
)

// ErrUnauthorized is returned when the camera rejects the credentials.
var ErrUnauthorized = errors.New("sunapi: unauthorized")

// Device is a SUNAPI camera. It implements ptz.Camera.
type Device struct {
	baseURL string
	user    string
	pass    string
	channel int

	http   *http.Client
	logger *slog.Logger
	cnonce func() string

	mu   sync.Mutex
	chal *challenge
}

// Option configures a Device.
type Option func(*Device)

// WithHTTPClient overrides the shared httpc client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Device) {
		d.http = c
	}
}

// WithChannel selects the video channel. Defaults to 0.
func WithChannel(ch int) Option {
	return func(d *Device) {
		d.channel = ch
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		d.logger = l
	}
}

// New creates a device for host, which may be a bare address
// ("192.168.1.64") or a URL.
func New(host, user, pass string, opts ...Option) *Device {
	base := strings.TrimRight(host, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	d := &Device{
		baseURL: base,
		user:    user,
		pass:    pass,
		http:    httpc.Client,
		cnonce:  newCnonce,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.With("component", "sunapi")
	}
	return d
}

// Position queries the current pan, tilt and zoom.
func (d *Device) Position(ctx context.Context) (ptz.Pose, error) {
	body, err := d.get(ctx, ptzPath, url.Values{
		"msubmenu": {"query"},
		"action":   {"view"},
		"Query":    {"Pan,Tilt,Zoom"},
	})
	if err != nil {
		return ptz.Pose{}, fmt.Errorf("%w: %w", ptz.ErrPositionUnavailable, err)
	}
	kv := parseKeyValues(body)
	var pose ptz.Pose
	for key, dst := range map[string]*float64{"Pan": &pose.Pan, "Tilt": &pose.Tilt, "Zoom": &pose.Zoom} {
		raw, ok := kv[key]
		if !ok {
			return ptz.Pose{}, fmt.Errorf("%w: %s missing from reply", ptz.ErrPositionUnavailable, key)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ptz.Pose{}, fmt.Errorf("%w: bad %s %q", ptz.ErrPositionUnavailable, key, raw)
		}
		*dst = v
	}
	return pose, nil
}

// MoveAbsolute moves to pose.
func (d *Device) MoveAbsolute(ctx context.Context, pose ptz.Pose) error {
	return d.move(ctx, "absolute", pose.Pan, pose.Tilt, pose.Zoom)
}

// MoveRelative moves by off.
func (d *Device) MoveRelative(ctx context.Context, off ptz.Offset) error {
	return d.move(ctx, "relative", off.Pan, off.Tilt, off.Zoom)
}

func (d *Device) move(ctx context.Context, submenu string, pan, tilt, zoom float64) error {
	_, err := d.get(ctx, ptzPath, url.Values{
		"msubmenu": {submenu},
		"action":   {"control"},
		"Pan":      {formatFloat(pan)},
		"Tilt":     {formatFloat(tilt)},
		"Zoom":     {formatFloat(zoom)},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ptz.ErrMoveRejected, submenu, err)
	}
	d.logger.Debug("move sent", "mode", submenu, "pan", pan, "tilt", tilt, "zoom", zoom)
	return nil
}

// Stop halts every pan, tilt and zoom operation.
func (d *Device) Stop(ctx context.Context) error {
	_, err := d.get(ctx, ptzPath, url.Values{
		"msubmenu":      {"stop"},
		"action":        {"control"},
		"OperationType": {"All"},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ptz.ErrStopFailed, err)
	}
	return nil
}

// Snapshot fetches a JPEG still.
func (d *Device) Snapshot(ctx context.Context) ([]byte, error) {
	body, err := d.get(ctx, videoPath, url.Values{
		"msubmenu": {"snapshot"},
		"action":   {"view"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ptz.ErrCaptureFailed, err)
	}
	if !bytes.HasPrefix(body, []byte{0xff, 0xd8}) {
		return nil, fmt.Errorf("%w: reply is not a JPEG (%d bytes)", ptz.ErrCaptureFailed, len(body))
	}
	return body, nil
}

// get issues a GET, answering a digest challenge once if needed.
func (d *Device) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	q.Set("Channel", strconv.Itoa(d.channel))
	uri := path + "?" + q.Encode()

	resp, err := d.send(ctx, uri)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		chal, err := parseChallenge(resp.Header.Get("WWW-Authenticate"))
		httpc.Drain(resp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		d.mu.Lock()
		d.chal = chal
		d.mu.Unlock()

		if resp, err = d.send(ctx, uri); err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			httpc.Drain(resp)
			d.mu.Lock()
			d.chal = nil
			d.mu.Unlock()
			return nil, ErrUnauthorized
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, replyMessage(body))
	}
	if bytes.HasPrefix(body, []byte("NG")) {
		return nil, fmt.Errorf("camera error: %s", replyMessage(body))
	}
	return body, nil
}

// send issues one GET, signed when a challenge is cached.
func (d *Device) send(ctx context.Context, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	d.mu.Lock()
	if d.chal != nil {
		req.Header.Set("Authorization", d.chal.authorize(d.user, d.pass, http.MethodGet, uri, d.cnonce()))
	}
	d.mu.Unlock()
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// parseKeyValues reads "Key=Value" lines. Keys may carry a dotted prefix
// such as "Channel.0.Pan"; only the last segment is kept.
func parseKeyValues(body []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(string(body), "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		if i := strings.LastIndex(key, "."); i >= 0 {
			key = key[i+1:]
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return out
}

func replyMessage(body []byte) string {
	msg := strings.Join(strings.Fields(string(body)), " ")
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ ptz.Camera = (*Device)(nil)
