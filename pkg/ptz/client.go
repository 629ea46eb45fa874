package ptz

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teslashibe/go-ptzscan/internal/httpc"
	"github.com/teslashibe/go-ptzscan/internal/log"
)

// maxReplyBytes bounds a façade reply. Snapshots are the largest.
const maxReplyBytes = 32 << 20

// Client talks to the camera façade over POST {BaseURL}/mcp.
type Client struct {
	BaseURL string

	http   *http.Client
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the shared httpc client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithClientLogger sets the logger used for rejected calls.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a façade client for baseURL, e.g. http://localhost:8000.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    httpc.Client,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.With("component", "ptz-client")
	}
	return c
}

// Position queries the current pose.
func (c *Client) Position(ctx context.Context) (Pose, error) {
	var reply PositionReply
	if err := c.call(ctx, ToolGetPosition, nil, &reply); err != nil {
		return Pose{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	if reply.Pan == nil || reply.Tilt == nil || reply.Zoom == nil {
		msg := reply.Error
		if msg == "" {
			msg = "incomplete position reply"
		}
		return Pose{}, &ToolError{Tool: ToolGetPosition, Message: msg, Kind: ErrPositionUnavailable}
	}
	return Pose{Pan: *reply.Pan, Tilt: *reply.Tilt, Zoom: *reply.Zoom}, nil
}

// MoveAbsolute commands an absolute move.
func (c *Client) MoveAbsolute(ctx context.Context, pose Pose) error {
	return c.move(ctx, ToolMoveAbsolute, pose.Pan, pose.Tilt, pose.Zoom)
}

// MoveRelative commands a relative move.
func (c *Client) MoveRelative(ctx context.Context, off Offset) error {
	return c.move(ctx, ToolMoveRelative, off.Pan, off.Tilt, off.Zoom)
}

func (c *Client) move(ctx context.Context, tool string, pan, tilt, zoom float64) error {
	params := map[string]any{"pan": pan, "tilt": tilt, "zoom": zoom}
	var reply StatusReply
	if err := c.call(ctx, tool, params, &reply); err != nil {
		return fmt.Errorf("%w: %v", ErrMoveRejected, err)
	}
	return replyError(tool, reply, ErrMoveRejected)
}

// Snapshot captures a still image and returns the decoded JPEG bytes.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	var reply StatusReply
	if err := c.call(ctx, ToolTakeSnapshot, nil, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if err := replyError(ToolTakeSnapshot, reply, ErrCaptureFailed); err != nil {
		return nil, err
	}
	if reply.ImageBase64 == "" {
		return nil, &ToolError{Tool: ToolTakeSnapshot, Message: "empty image", Kind: ErrCaptureFailed}
	}
	img, err := base64.StdEncoding.DecodeString(reply.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrCaptureFailed, err)
	}
	return img, nil
}

// Stop halts motion.
func (c *Client) Stop(ctx context.Context) error {
	var reply StatusReply
	if err := c.call(ctx, ToolStopMovement, nil, &reply); err != nil {
		return fmt.Errorf("%w: %v", ErrStopFailed, err)
	}
	return replyError(ToolStopMovement, reply, ErrStopFailed)
}

func replyError(tool string, reply StatusReply, kind error) error {
	if reply.Status == StatusSuccess {
		return nil
	}
	msg := reply.Message
	if msg == "" {
		msg = reply.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %q", reply.Status)
	}
	return &ToolError{Tool: tool, Message: msg, Kind: kind}
}

func (c *Client) call(ctx context.Context, tool string, params map[string]any, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(Request{Tool: tool, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := httpc.PostJSON(ctx, c.http, c.BaseURL+"/mcp", body)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", tool, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("read %s reply: %w", tool, err)
	}
	if resp.StatusCode >= 300 {
		c.logger.Debug("façade returned error status", "tool", tool, "status", resp.StatusCode)
		// Error bodies still follow the reply shape; surface their message.
		var reply StatusReply
		if json.Unmarshal(data, &reply) == nil && (reply.Message != "" || reply.Error != "") {
			return fmt.Errorf("status %d: %s%s", resp.StatusCode, reply.Message, reply.Error)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", tool, err)
	}
	return nil
}
