package widgets

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTick is how often the scheduler checks widget timers
const DefaultTick = time.Second

// Dispatcher starts a refresh for one widget
type Dispatcher interface {
	Dispatch(ctx context.Context, widgetID string) error
}

// InlineDispatcher refreshes on a goroutine in this process. Refreshes
// run to completion even if the scheduler stops.
type InlineDispatcher struct {
	Store *Store
	wg    sync.WaitGroup
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, widgetID string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, _ = d.Store.Refresh(context.WithoutCancel(ctx), widgetID)
	}()
	return nil
}

// Wait blocks until dispatched refreshes have finished
func (d *InlineDispatcher) Wait() { d.wg.Wait() }

// Scheduler refreshes each widget every RefreshInterval seconds. Widgets
// with a zero interval are only refreshed on demand.
type Scheduler struct {
	store    *Store
	dispatch Dispatcher
	tick     time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

func WithTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func WithSchedulerLogger(log zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

// NewScheduler creates a scheduler for store
func NewScheduler(store *Store, d Dispatcher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		dispatch: d,
		tick:     DefaultTick,
		now:      time.Now,
		log:      zerolog.Nop(),
		last:     make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run ticks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.Info().Dur("tick", s.tick).Msg("scheduler running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches every widget whose interval has elapsed and returns how
// many were dispatched. A widget's timer starts the first time it is seen.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()
	widgets := s.store.List()

	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]bool, len(widgets))
	dispatched := 0
	for _, w := range widgets {
		live[w.ID] = true
		if w.RefreshInterval <= 0 {
			continue
		}
		last, seen := s.last[w.ID]
		if !seen {
			s.last[w.ID] = now
			continue
		}
		if now.Sub(last) < time.Duration(w.RefreshInterval)*time.Second {
			continue
		}
		if err := s.dispatch.Dispatch(ctx, w.ID); err != nil {
			s.log.Warn().Err(err).Str("widget", w.ID).Msg("dispatch failed")
			continue
		}
		s.last[w.ID] = now
		dispatched++
	}

	for id := range s.last {
		if !live[id] {
			delete(s.last, id)
		}
	}
	return dispatched
}
