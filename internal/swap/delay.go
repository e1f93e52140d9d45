package swap

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Delay is an inclusive range sampled at whole-second steps.
type Delay struct {
	Min time.Duration
	Max time.Duration
}

func Seconds(lo, hi int) Delay {
	return Delay{Min: time.Duration(lo) * time.Second, Max: time.Duration(hi) * time.Second}
}

func (d Delay) Validate() error {
	if d.Min < 0 || d.Max < d.Min {
		return fmt.Errorf("invalid delay range %s-%s", d.Min, d.Max)
	}
	return nil
}

func (d Delay) Pick(rng *rand.Rand) time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	steps := int64((d.Max - d.Min) / time.Second)
	if steps == 0 {
		return d.Min + time.Duration(rng.Int63n(int64(d.Max-d.Min)+1))
	}
	return d.Min + time.Duration(rng.Int63n(steps+1))*time.Second
}

// Sleeper pauses the loop. Implementations return ctx.Err() when the
// context ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper waits on a real timer.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
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
})
