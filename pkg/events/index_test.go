package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-ptzscan/pkg/detection"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	x, err := OpenIndex(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { x.Close() })
	return x
}

func TestIndexRecent(t *testing.T) {
	x := openTestIndex(t)
	ctx := context.Background()

	before := testCapture(ViewBefore)
	before.Detections = []detection.Detection{
		{BBox: detection.BoundingBox{X1: 1, Y1: 2, X2: 30, Y2: 40}, Label: "bird", Reward: 0.2},
	}
	after := testCapture(ViewAfter)
	after.Label = "bird"
	after.Confidence = 0.8
	after.CreatedAt = testTime.Add(3 * time.Second)

	for _, c := range []Capture{before, after} {
		if err := x.Record(ctx, c); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := x.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	got, err := x.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].View != ViewAfter || got[1].View != ViewBefore {
		t.Errorf("order = %s,%s, want after,before", got[0].View, got[1].View)
	}
	if got[0].Label != "bird" || got[0].Confidence != 0.8 {
		t.Errorf("after entry = %+v", got[0])
	}
	if !got[1].CreatedAt.Equal(testTime) {
		t.Errorf("created_at = %v", got[1].CreatedAt)
	}
	if len(got[1].Detections) != 1 || got[1].Detections[0].BBox.X2 != 30 {
		t.Errorf("detections = %+v", got[1].Detections)
	}
	if got[1].File != "initial_20250601_143005.jpg" || got[1].ImageBytes != 4 {
		t.Errorf("file = %q bytes = %d", got[1].File, got[1].ImageBytes)
	}
	if got[0].Detections == nil {
		t.Error("after entry detections should decode to an empty slice")
	}
}

func TestIndexRecentLimit(t *testing.T) {
	x := openTestIndex(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c := testCapture(ViewBefore)
		c.CreatedAt = testTime.Add(time.Duration(i) * time.Second)
		if err := x.Record(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	got, err := x.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d, want 3", len(got))
	}
	if !got[0].CreatedAt.Equal(testTime.Add(4 * time.Second)) {
		t.Errorf("newest = %v", got[0].CreatedAt)
	}
}

func TestIndexMemory(t *testing.T) {
	x, err := OpenIndex(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer x.Close()
	if err := x.Record(context.Background(), testCapture(ViewBefore)); err != nil {
		t.Fatal(err)
	}
}
