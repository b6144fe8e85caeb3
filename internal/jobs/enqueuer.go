package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskClient is the part of *asynq.Client the enqueuer needs
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer dispatches widget refreshes onto the asynq refresh queue
type Enqueuer struct {
	client    TaskClient
	uniqueFor time.Duration
	log       zerolog.Logger
}

// EnqueuerOption configures an Enqueuer
type EnqueuerOption func(*Enqueuer)

// WithUniqueFor drops a refresh while one for the same widget is pending.
// asynq rejects uniqueness windows under a second, so shorter ones are
// rounded up.
func WithUniqueFor(d time.Duration) EnqueuerOption {
	return func(e *Enqueuer) {
		if d > 0 && d < time.Second {
			d = time.Second
		}
		e.uniqueFor = d
	}
}

func WithEnqueuerLogger(log zerolog.Logger) EnqueuerOption {
	return func(e *Enqueuer) { e.log = log }
}

func NewEnqueuer(client TaskClient, opts ...EnqueuerOption) *Enqueuer {
	e := &Enqueuer{client: client, log: zerolog.Nop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Dispatch enqueues a refresh for widgetID. A refresh that is already
// queued is not an error.
func (e *Enqueuer) Dispatch(ctx context.Context, widgetID string) error {
	task, err := NewRefreshWidgetTask(widgetID)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueRefresh),
		asynq.MaxRetry(DefaultMaxRetry),
		asynq.Timeout(DefaultTimeout),
	}
	if e.uniqueFor > 0 {
		opts = append(opts, asynq.Unique(e.uniqueFor))
	}

	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		e.log.Debug().Str("widget", widgetID).Msg("refresh already queued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue refresh %s: %w", widgetID, err)
	}
	e.log.Debug().Str("widget", widgetID).Str("task", info.ID).Str("queue", info.Queue).Msg("refresh enqueued")
	return nil
}
