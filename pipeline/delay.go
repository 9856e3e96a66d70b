package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/brettboylen/linkedin-agent/events"
)

// countdownThreshold is the shortest wait that broadcasts countdown ticks
const countdownThreshold = 10 * time.Second

// Range is an inclusive delay interval
type Range struct {
	Min time.Duration
	Max time.Duration
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// randomDelay draws uniformly from r at millisecond granularity, both bounds included
func (c *Controller) randomDelay(r Range) time.Duration {
	lo := r.Min.Milliseconds()
	hi := r.Max.Milliseconds()
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+c.rand.Int63n(hi-lo+1)) * time.Millisecond
}

// wait sleeps for d. Waits of ten seconds or more broadcast a countdown tick
// every second, ending with remaining=0.
func (c *Controller) wait(ctx context.Context, d time.Duration, description string) error {
	if d < countdownThreshold {
		return c.sleep(ctx, d)
	}

	total := int(math.Ceil(d.Seconds()))
	for remaining := total; remaining > 0; remaining-- {
		c.events.Publish(events.NewCountdownEvent(description, remaining, total))

		step := time.Second
		if remaining == 1 {
			step = d - time.Duration(total-1)*time.Second
		}
		if err := c.sleep(ctx, step); err != nil {
			return err
		}
	}
	c.events.Publish(events.NewCountdownEvent(description, 0, total))
	return nil
}

// pause is an intra-target delay; false means the run was stopped meanwhile
func (c *Controller) pause(ctx context.Context, r Range, description string) bool {
	if err := c.wait(ctx, c.randomDelay(r), description); err != nil {
		return false
	}
	return c.isRunning()
}
