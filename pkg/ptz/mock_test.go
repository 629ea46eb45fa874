package ptz

import (
	"context"
	"errors"
	"testing"
)

func TestMockTracksPose(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	if err := m.MoveAbsolute(ctx, Pose{Pan: 90, Tilt: 0, Zoom: 1}); err != nil {
		t.Fatal(err)
	}
	if err := m.MoveRelative(ctx, Offset{Pan: 5, Tilt: -3, Zoom: 2}); err != nil {
		t.Fatal(err)
	}
	pose, _ := m.Position(ctx)
	if pose != (Pose{Pan: 95, Tilt: -3, Zoom: 3}) {
		t.Errorf("pose = %+v", pose)
	}
	if m.CallCount("MoveAbsolute") != 1 || m.CallCount("MoveRelative") != 1 {
		t.Errorf("calls = %+v", m.Calls())
	}
}

func TestMockMoveErrorKeepsPose(t *testing.T) {
	m := NewMock()
	m.MoveAbsoluteFunc = func(ctx context.Context, pose Pose) error { return ErrMoveRejected }

	err := m.MoveAbsolute(context.Background(), Pose{Pan: 180, Zoom: 1})
	if !errors.Is(err, ErrMoveRejected) {
		t.Fatalf("err = %v", err)
	}
	pose, _ := m.Position(context.Background())
	if pose.Pan != 0 {
		t.Errorf("pose changed after failed move: %+v", pose)
	}
	if got := m.CallsTo("MoveAbsolute"); len(got) != 1 || got[0].Pose.Pan != 180 {
		t.Errorf("recorded = %+v", got)
	}
}
