package replay

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/jpalmerr/kvstore"
	"github.com/jpalmerr/kvstore/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Report summarises a completed run.
type Report struct {
	Saves       int
	Gets        int
	Removes     int
	Updates     int // update notifications received by subscribers
	Removals    int // remove notifications received by subscribers
	Unsubscribe int // unsubscribe calls that reported true
	Keys        []string
}

// Runner executes one replay script.
type Runner struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  prometheus.Registerer
	scheduler kvstore.Scheduler

	mu     sync.Mutex
	out    io.Writer
	report Report

	opColor     *color.Color
	updateColor *color.Color
	removeColor *color.Color
	mutedColor  *color.Color
}

// Option configures a [Runner].
type Option func(*Runner)

// WithLogger sets the logger handed to the store.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistry enables store metrics on reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(r *Runner) {
		r.registry = reg
	}
}

// WithScheduler replaces the store's default scheduler.
// A kvstore.ManualScheduler makes deliveries happen only at flush steps.
func WithScheduler(s kvstore.Scheduler) Option {
	return func(r *Runner) {
		r.scheduler = s
	}
}

// WithColor turns coloured output on or off. Colour is off by default.
func WithColor(enabled bool) Option {
	return func(r *Runner) {
		for _, c := range []*color.Color{r.opColor, r.updateColor, r.removeColor, r.mutedColor} {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// New creates a [Runner] that writes its trace to out.
func New(cfg *config.Config, out io.Writer, opts ...Option) *Runner {
	r := &Runner{
		cfg:         cfg,
		out:         out,
		logger:      zap.NewNop(),
		opColor:     color.New(color.FgCyan, color.Bold),
		updateColor: color.New(color.FgGreen),
		removeColor: color.New(color.FgYellow),
		mutedColor:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.opColor, r.updateColor, r.removeColor, r.mutedColor} {
		c.DisableColor()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the script and returns what happened.
//
// Run stops at the first failing step or when ctx is cancelled. Deliveries
// still pending after the last step are flushed before Run returns.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	opts := []kvstore.Option{
		kvstore.WithLogger(r.logger),
		kvstore.WithName("replay"),
	}
	if r.registry != nil {
		opts = append(opts, kvstore.WithMetrics(r.registry))
	}
	if r.scheduler != nil {
		opts = append(opts, kvstore.WithScheduler(r.scheduler))
	}

	store, err := kvstore.New[string](opts...)
	if err != nil {
		return Report{}, fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	if r.cfg.Title != "" {
		r.printf("%s\n", r.opColor.Sprint("# "+r.cfg.Title))
	}

	subs := newSubscriptions(store, r)
	for _, sc := range r.cfg.Subscribers {
		subs.subscribe(sc)
	}

	for i, step := range r.cfg.Steps {
		if err := ctx.Err(); err != nil {
			return r.snapshot(store), fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
		if err := r.runStep(ctx, store, subs, step); err != nil {
			return r.snapshot(store), fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}

	if err := r.flush(ctx, store); err != nil {
		return r.snapshot(store), fmt.Errorf("final flush: %w", err)
	}

	return r.snapshot(store), nil
}

// runStep executes a single step.
func (r *Runner) runStep(ctx context.Context, store *kvstore.Store[string], subs *subscriptions, step config.StepConfig) error {
	switch step.Op {
	case config.OpSave:
		r.count(func(rep *Report) { rep.Saves++ })
		r.printf("%s %s = %q\n", r.opColor.Sprint("save"), step.Key, step.Value)
		store.Save(step.Key, step.Value)

	case config.OpGet:
		r.count(func(rep *Report) { rep.Gets++ })
		if v, ok := store.Get(step.Key); ok {
			r.printf("%s %s = %q\n", r.opColor.Sprint("get"), step.Key, v)
		} else {
			r.printf("%s %s %s\n", r.opColor.Sprint("get"), step.Key, r.mutedColor.Sprint("(absent)"))
		}

	case config.OpRemove:
		r.count(func(rep *Report) { rep.Removes++ })
		r.printf("%s %s\n", r.opColor.Sprint("remove"), step.Key)
		store.Remove(step.Key, func() {
			r.printf("  %s\n", r.mutedColor.Sprintf("remove %s complete", step.Key))
		})

	case config.OpList:
		keys := slices.Collect(store.Keys())
		r.printf("%s [%s]\n", r.opColor.Sprint("list"), strings.Join(keys, ", "))

	case config.OpSubscribe:
		sc, ok := r.cfg.Subscriber(step.Subscriber)
		if !ok {
			return fmt.Errorf("unknown subscriber %q", step.Subscriber)
		}
		subs.subscribe(sc)

	case config.OpUnsubscribe:
		ok := subs.unsubscribe(step.Subscriber)
		if ok {
			r.count(func(rep *Report) { rep.Unsubscribe++ })
		}
		r.printf("%s %s (%t)\n", r.opColor.Sprint("unsubscribe"), step.Subscriber, ok)

	case config.OpFlush:
		r.printf("%s\n", r.opColor.Sprint("flush"))
		return r.flush(ctx, store)

	case config.OpReset:
		r.printf("%s\n", r.opColor.Sprint("reset"))
		store.Empty()

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// flush waits for pending deliveries, bounded by the script's flush timeout.
func (r *Runner) flush(ctx context.Context, store *kvstore.Store[string]) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.FlushTimeout.Duration())
	defer cancel()
	return store.Flush(ctx)
}

// printf writes one line to the output. Safe for use from delivery callbacks.
func (r *Runner) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// count updates the report under the output lock.
func (r *Runner) count(fn func(*Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.report)
}

// snapshot returns a copy of the report with the store's final keys.
func (r *Runner) snapshot(store *kvstore.Store[string]) Report {
	keys := slices.Collect(store.Keys())

	r.mu.Lock()
	defer r.mu.Unlock()
	rep := r.report
	rep.Keys = keys
	return rep
}
