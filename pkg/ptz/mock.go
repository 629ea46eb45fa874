package ptz

import (
	"context"
	"sync"
)

// Mock implements Camera for testing. It tracks a simulated pose so
// Position reflects previous moves unless PositionFunc is set.
type Mock struct {
	// MoveAbsoluteFunc is called when MoveAbsolute is invoked.
	MoveAbsoluteFunc func(ctx context.Context, pose Pose) error

	// MoveRelativeFunc is called when MoveRelative is invoked.
	MoveRelativeFunc func(ctx context.Context, off Offset) error

	// PositionFunc is called when Position is invoked.
	PositionFunc func(ctx context.Context) (Pose, error)

	// SnapshotFunc is called when Snapshot is invoked.
	SnapshotFunc func(ctx context.Context) ([]byte, error)

	// StopFunc is called when Stop is invoked.
	StopFunc func(ctx context.Context) error

	mu    sync.Mutex
	pose  Pose
	calls []MockCall
}

// MockCall records a method invocation with its arguments.
type MockCall struct {
	Method string
	Pose   Pose
	Offset Offset
}

// NewMock creates a mock camera at pose 0/0/1 that returns a tiny JPEG
// placeholder on every snapshot.
func NewMock() *Mock {
	return &Mock{
		pose: Pose{Zoom: MinZoom},
		SnapshotFunc: func(ctx context.Context) ([]byte, error) {
			return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
		},
	}
}

// MoveAbsolute records the call and updates the simulated pose on success.
func (m *Mock) MoveAbsolute(ctx context.Context, pose Pose) error {
	m.record(MockCall{Method: "MoveAbsolute", Pose: pose})
	if m.MoveAbsoluteFunc != nil {
		if err := m.MoveAbsoluteFunc(ctx, pose); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.pose = pose.Normalize()
	m.mu.Unlock()
	return nil
}

// MoveRelative records the call and updates the simulated pose on success.
func (m *Mock) MoveRelative(ctx context.Context, off Offset) error {
	m.record(MockCall{Method: "MoveRelative", Offset: off})
	if m.MoveRelativeFunc != nil {
		if err := m.MoveRelativeFunc(ctx, off); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.pose = m.pose.Add(off)
	m.mu.Unlock()
	return nil
}

// Position returns PositionFunc's result or the simulated pose.
func (m *Mock) Position(ctx context.Context) (Pose, error) {
	m.record(MockCall{Method: "Position"})
	if m.PositionFunc != nil {
		return m.PositionFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pose, nil
}

// Snapshot calls SnapshotFunc and records the call.
func (m *Mock) Snapshot(ctx context.Context) ([]byte, error) {
	m.record(MockCall{Method: "Snapshot"})
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx)
	}
	return nil, ErrCaptureFailed
}

// Stop calls StopFunc and records the call.
func (m *Mock) Stop(ctx context.Context) error {
	m.record(MockCall{Method: "Stop"})
	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}
	return nil
}

func (m *Mock) record(c MockCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallsTo returns the recorded calls of one method.
func (m *Mock) CallsTo(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []MockCall
	for _, c := range m.calls {
		if c.Method == method {
			result = append(result, c)
		}
	}
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	return len(m.CallsTo(method))
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
