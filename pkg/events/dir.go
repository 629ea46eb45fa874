package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DirRecorder writes each capture as <dir>/<event>/<file>.jpg with a JSON
// sidecar next to it.
type DirRecorder struct {
	dir string
}

// NewDirRecorder creates dir if needed.
func NewDirRecorder(dir string) (*DirRecorder, error) {
	if dir == "" {
		return nil, fmt.Errorf("events: capture dir required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture dir: %w", err)
	}
	return &DirRecorder{dir: dir}, nil
}

// Dir returns the root directory.
func (r *DirRecorder) Dir() string {
	return r.dir
}

// Record implements Recorder.
func (r *DirRecorder) Record(ctx context.Context, c Capture) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.fill(time.Now())
	if err := c.Validate(); err != nil {
		return fmt.Errorf("events: invalid capture: %w", err)
	}

	eventDir := filepath.Join(r.dir, sanitize(c.EventID))
	if err := os.MkdirAll(eventDir, 0755); err != nil {
		return fmt.Errorf("failed to create event dir: %w", err)
	}

	imgPath := filepath.Join(eventDir, c.Filename())
	if err := writeFileAtomic(imgPath, c.Image); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	meta, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metaPath := strings.TrimSuffix(imgPath, ".jpg") + ".json"
	if err := writeFileAtomic(metaPath, meta); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
