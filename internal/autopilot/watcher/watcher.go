// Package watcher keeps the autopilot running in the background: a single
// goroutine sleeps until the next interesting moment (an upcoming post, a
// profile posting window, or the fixed interval), fires one run, records it,
// and goes back to sleep. External writers call Wake to re-plan early.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"postpilot/internal/autopilot"
	"postpilot/internal/store"
)

const (
	defaultEvery         = 5 * time.Minute
	defaultMaxTimerDelay = 60 * time.Second
)

// Notifier delivers a finished run report. Wired to email in cmd; nil
// disables delivery.
type Notifier interface {
	SendRunReport(ctx context.Context, report autopilot.Report, runErr error) error
}

type Watcher struct {
	runner    *autopilot.Runner
	gateway   autopilot.Gateway
	notifier  Notifier
	log       logrus.FieldLogger
	runLog    string
	lookAhead time.Duration
	every     time.Duration
	maxDelay  time.Duration
	timezone  string

	wakeCh chan struct{}
	doneCh chan struct{}

	wakeMu sync.Mutex
}

type Options struct {
	Runner   *autopilot.Runner
	Gateway  autopilot.Gateway
	Notifier Notifier
	Log      logrus.FieldLogger

	// RunLogPath receives one JSONL record per run; empty disables the log.
	RunLogPath string
	LookAhead  time.Duration
	// Every is the fallback interval when nothing is scheduled.
	Every time.Duration
	// MaxTimerDelay caps every sleep so external edits are noticed even
	// without a Wake call.
	MaxTimerDelay time.Duration
	Timezone      string
}

func Start(ctx context.Context, opts Options) (*Watcher, error) {
	if opts.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if opts.Gateway == nil {
		opts.Gateway = opts.Runner.Store
	}
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if opts.Every <= 0 {
		opts.Every = defaultEvery
	}
	if opts.MaxTimerDelay <= 0 {
		opts.MaxTimerDelay = defaultMaxTimerDelay
	}
	if opts.LookAhead < 0 {
		opts.LookAhead = 0
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	w := &Watcher{
		runner:    opts.Runner,
		gateway:   opts.Gateway,
		notifier:  opts.Notifier,
		log:       log,
		runLog:    opts.RunLogPath,
		lookAhead: opts.LookAhead,
		every:     opts.Every,
		maxDelay:  opts.MaxTimerDelay,
		timezone:  opts.Timezone,
		wakeCh:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}
	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) Done() <-chan struct{} {
	if w == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return w.doneCh
}

// Wake asks the loop to re-plan now, e.g. after the operator edits the queue.
func (w *Watcher) Wake() {
	if w == nil {
		return
	}
	w.wakeMu.Lock()
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
	w.wakeMu.Unlock()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	delay := time.Duration(0)
	for {
		if err := ctx.Err(); err != nil {
			return
		}
		if delay <= 0 {
			delay = 250 * time.Millisecond
		}
		if delay > w.maxDelay {
			delay = w.maxDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.wakeCh:
			timer.Stop()
		case <-timer.C:
		}

		delay = w.tick(ctx)
	}
}

// tick fires one live run and returns the delay until the next planned one.
func (w *Watcher) tick(ctx context.Context) time.Duration {
	report, runErr := w.runner.RunOnce(ctx, autopilot.Options{LookAhead: w.lookAhead})
	if runErr != nil {
		w.log.WithError(runErr).Error("autopilot run failed")
	}

	if w.runLog != "" {
		if err := autopilot.AppendRunRecord(w.runLog, autopilot.NewRunRecord(report, runErr)); err != nil {
			w.log.WithError(err).Warn("append run record failed")
		}
	}

	if w.notifier != nil && (len(report.Items) > 0 || runErr != nil) {
		if err := w.notifier.SendRunReport(ctx, report, runErr); err != nil {
			w.log.WithError(err).Warn("run report delivery failed")
		}
	}

	return w.nextDelay(ctx, time.Now().UTC())
}

// nextDelay plans the sleep until the earliest of: the next scheduled post
// entering the look-ahead horizon, the profile's next posting window, and
// the fixed fallback interval.
func (w *Watcher) nextDelay(ctx context.Context, now time.Time) time.Duration {
	next := now.Add(w.every)

	if posts, err := w.gateway.ListPosts(ctx); err != nil {
		w.log.WithError(err).Warn("list posts for planning failed")
	} else {
		for _, p := range posts {
			if !p.Autopilot || p.ScheduledFor == nil {
				continue
			}
			if p.Status != store.StatusScheduled && p.Status != store.StatusFailed {
				continue
			}
			at := p.ScheduledFor.UTC().Add(-w.lookAhead)
			if at.After(now) && at.Before(next) {
				next = at
			}
		}
	}

	loc, err := loadLocation(w.timezone)
	if err != nil {
		w.log.WithError(err).Warn("bad timezone, using Local")
		loc = time.Local
	}
	if profile, ok, err := w.gateway.GetProfile(ctx); err != nil {
		w.log.WithError(err).Warn("load profile for planning failed")
	} else if ok {
		if at, found := NextWindow(profile.PostingWindows, now, loc); found && at.Before(next) {
			next = at
		}
	}

	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return delay
}
