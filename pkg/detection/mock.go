package detection

import (
	"context"
	"sync"
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked. A nil func returns no
	// detections.
	DetectFunc func(ctx context.Context, image []byte, queries []string) ([]Detection, error)

	mu      sync.Mutex
	calls   int
	queries [][]string
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, image []byte, queries []string) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	m.queries = append(m.queries, append([]string(nil), queries...))
	m.mu.Unlock()
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, image, queries)
	}
	return nil, nil
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// CallCount returns how many times Detect was called.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Queries returns the queries passed to each Detect call.
func (m *Mock) Queries() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.queries...)
}

var (
	_ Detector = (*Mock)(nil)
	_ Detector = (*Florence)(nil)
	_ Detector = (*Gemini)(nil)
)
