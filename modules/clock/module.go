// Package clock provides a native context module whose exports change over
// time: a formatted timestamp and a tick counter.
package clock

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

const (
	defaultInterval = time.Second
	minInterval     = time.Millisecond
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments accepted in the script body.
type Input struct {
	Interval string `hcl:"interval,optional"`
	Format   string `hcl:"format,optional"`
	UTC      bool   `hcl:"utc,optional"`
}

// Instantiate exports `now` and `ticks` cells. A ticker goroutine posts each
// tick to the queue; disposing the module stops it.
func Instantiate(ctx context.Context, env *registry.Env, input any) (any, error) {
	in := input.(*Input)
	interval := defaultInterval
	if in.Interval != "" {
		d, err := time.ParseDuration(in.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid interval: %w", err)
		}
		interval = d
	}
	if interval < minInterval {
		return nil, fmt.Errorf("interval must be at least %s, got %s", minInterval, interval)
	}
	format := in.Format
	if format == "" {
		format = time.RFC3339
	}
	stamp := func(t time.Time) cty.Value {
		if in.UTC {
			t = t.UTC()
		}
		return cty.StringVal(t.Format(format))
	}

	now := env.Runtime.NewCell(stamp(time.Now()))
	ticks := env.Runtime.NewCell(cty.NumberIntVal(0))

	logger := ctxlog.FromContext(ctx).With("module", "clock", "interval", interval)
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	stopped := false
	go func() {
		var n int64
		for {
			select {
			case t := <-ticker.C:
				n++
				count := n
				env.Queue.Post(func() {
					if stopped {
						return
					}
					env.Runtime.Batch(func() {
						now.Set(stamp(t))
						ticks.Set(cty.NumberIntVal(count))
					})
				})
			case <-done:
				return
			}
		}
	}()
	env.OnCleanup(func() {
		stopped = true
		ticker.Stop()
		close(done)
		logger.Debug("Clock stopped.")
	})
	logger.Debug("Clock started.")

	return bindctx.Context{"now": now, "ticks": ticks}, nil
}

// Register registers the module with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("clock", &registry.RegisteredModule{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        Instantiate,
	})
}
