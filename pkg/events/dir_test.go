package events

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDirRecorder(t *testing.T) {
	dir := t.TempDir()
	r, err := NewDirRecorder(filepath.Join(dir, "captures"))
	if err != nil {
		t.Fatal(err)
	}

	c := testCapture(ViewAfter)
	c.Label = "cat"
	c.Confidence = 0.9
	if err := r.Record(context.Background(), c); err != nil {
		t.Fatalf("Record: %v", err)
	}

	base := filepath.Join(r.Dir(), "evt-1", "zoomed_cat_conf0.90_20250601_143005")
	img, err := os.ReadFile(base + ".jpg")
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if string(img) != string(c.Image) {
		t.Errorf("image = %v", img)
	}

	raw, err := os.ReadFile(base + ".json")
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var meta Capture
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.EventID != "evt-1" || meta.View != ViewAfter || meta.Pose.Pan != 90 || meta.ID == "" {
		t.Errorf("sidecar = %+v", meta)
	}
}

func TestDirRecorderRejectsInvalid(t *testing.T) {
	r, err := NewDirRecorder(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := testCapture(ViewBefore)
	c.Image = nil
	if err := r.Record(context.Background(), c); err == nil {
		t.Error("expected error for capture without image")
	}
}

func TestNewDirRecorderRequiresDir(t *testing.T) {
	if _, err := NewDirRecorder(""); err == nil {
		t.Error("expected error")
	}
}
