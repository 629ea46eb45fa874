package events

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"

	"github.com/teslashibe/go-ptzscan/internal/log"
)

// GCSRecorder uploads capture images to a Cloud Storage bucket as
// <prefix><event>/<view>_<capture>.jpg with the metadata on the object.
type GCSRecorder struct {
	bucket  string
	prefix  string
	service *storage.Service
	logger  *slog.Logger
}

// NewGCSRecorder connects to Cloud Storage. With no options it authenticates
// with Application Default Credentials.
func NewGCSRecorder(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSRecorder, error) {
	if bucket == "" {
		return nil, fmt.Errorf("events: gcs bucket required")
	}
	if len(opts) == 0 {
		ts, err := google.DefaultTokenSource(ctx, storage.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("events: gcs credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}

	service, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: create storage service: %w", err)
	}
	return &GCSRecorder{
		bucket:  bucket,
		prefix:  prefix,
		service: service,
		logger:  log.With("component", "gcs", "bucket", bucket),
	}, nil
}

// ObjectName returns the object path used for c.
func (g *GCSRecorder) ObjectName(c Capture) string {
	return g.prefix + path.Join(sanitize(c.EventID), fmt.Sprintf("%s_%s.jpg", c.View, c.ID))
}

// Record implements Recorder.
func (g *GCSRecorder) Record(ctx context.Context, c Capture) error {
	c.fill(time.Now())
	if err := c.Validate(); err != nil {
		return fmt.Errorf("events: invalid capture: %w", err)
	}

	obj := &storage.Object{
		Name:        g.ObjectName(c),
		ContentType: "image/jpeg",
		Metadata: map[string]string{
			"event_id": c.EventID,
			"view":     string(c.View),
			"ptz":      fmt.Sprintf("%g,%g,%g", c.Pose.Pan, c.Pose.Tilt, c.Pose.Zoom),
			"file":     c.Filename(),
		},
	}
	if c.Label != "" {
		obj.Metadata["label"] = c.Label
		obj.Metadata["confidence"] = strconv.FormatFloat(c.Confidence, 'f', 2, 64)
	}

	_, err := g.service.Objects.Insert(g.bucket, obj).
		Media(bytes.NewReader(c.Image)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("events: upload %s: %w", obj.Name, err)
	}
	g.logger.Debug("uploaded capture", "object", obj.Name, "bytes", len(c.Image))
	return nil
}
