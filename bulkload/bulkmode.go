package bulkload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// BulkMode is the token returned by EnterBulkMode. Release restores every
// trigger that was suspended.
type BulkMode struct {
	ctl       TriggerController
	suspended []Trigger
	timeout   time.Duration
	logger    *slog.Logger
	released  bool
}

// EnterBulkMode disables the given triggers in order. If one fails, the
// triggers already disabled are re-enabled before the error is returned, so a
// failed call leaves nothing suspended.
func EnterBulkMode(ctx context.Context, ctl TriggerController, triggers []Trigger, timeout time.Duration, logger *slog.Logger) (*BulkMode, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &BulkMode{ctl: ctl, timeout: timeout, logger: logger}

	for _, t := range triggers {
		tctx, cancel := withTimeout(ctx, timeout)
		err := ctl.DisableTrigger(tctx, t)
		cancel()
		if err != nil {
			err = fmt.Errorf("disable trigger %s: %w", t, err)
			if rerr := m.Release(ctx); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, err
		}
		m.suspended = append(m.suspended, t)
		logger.Info("Trigger disabled", LogFieldTrigger, t.String())
	}
	return m, nil
}

// Suspended returns the triggers currently disabled by this token.
func (m *BulkMode) Suspended() []Trigger {
	if m.released {
		return nil
	}
	return append([]Trigger(nil), m.suspended...)
}

// Release re-enables the suspended triggers in reverse order. It keeps going
// after a failure and reports all failures. It ignores cancellation of ctx and
// is a no-op after the first call.
func (m *BulkMode) Release(ctx context.Context) error {
	if m == nil || m.released {
		return nil
	}
	m.released = true

	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(m.suspended) - 1; i >= 0; i-- {
		t := m.suspended[i]
		tctx, cancel := withTimeout(ctx, m.timeout)
		err := m.ctl.EnableTrigger(tctx, t)
		cancel()
		if err != nil {
			m.logger.Error("Trigger restore failed", LogFieldTrigger, t.String(), LogFieldErr, err)
			errs = append(errs, fmt.Errorf("enable trigger %s: %w", t, err))
			continue
		}
		m.logger.Info("Trigger enabled", LogFieldTrigger, t.String())
	}
	return errors.Join(errs...)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
