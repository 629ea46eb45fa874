package events

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Multi fans a capture out to several recorders. Every recorder is called
// even if an earlier one fails; the errors are joined.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, c Capture) error {
	c.fill(time.Now())
	var errs []error
	for i, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("recorder %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
