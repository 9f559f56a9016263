package executor

import (
	"context"
	"time"
)

// Options holds every timing knob of a replay. Tests shrink them.
type Options struct {
	// Timeout bounds each element resolution, load wait and custom code call.
	Timeout           time.Duration
	RetryCount        int
	BackoffBase       time.Duration
	DelayBetweenSteps time.Duration
	PollInterval      time.Duration
	// SettleDelay is waited between scrolling an element into view and the
	// clickable check.
	SettleDelay     time.Duration
	TypeDelay       time.Duration
	ContinueOnError bool
	AllowCustomCode bool
}

func DefaultOptions() Options {
	return Options{
		Timeout:           30 * time.Second,
		RetryCount:        3,
		BackoffBase:       time.Second,
		DelayBetweenSteps: time.Second,
		PollInterval:      100 * time.Millisecond,
		SettleDelay:       300 * time.Millisecond,
		TypeDelay:         50 * time.Millisecond,
		AllowCustomCode:   true,
	}
}

// withDefaults fills zero durations and counts from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.RetryCount <= 0 {
		o.RetryCount = d.RetryCount
	}
	if o.BackoffBase < 0 {
		o.BackoffBase = d.BackoffBase
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	return o
}

// sleepCtx waits d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
