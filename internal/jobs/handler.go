package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/finboard/fetch"
	"github.com/briangreenhill/finboard/internal/widgets"
)

// Refresher refreshes one widget by id
type Refresher interface {
	Refresh(ctx context.Context, id string) (widgets.Widget, error)
}

// NewServeMux routes refresh tasks to r
func NewServeMux(r Refresher, log zerolog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskRefreshWidget, HandleRefreshWidget(r, log))
	return mux
}

// HandleRefreshWidget returns the handler for TaskRefreshWidget. Bad
// payloads and unknown widgets are dropped. Network failures are returned
// so asynq retries them; other fetch errors are already recorded on the
// widget.
func HandleRefreshWidget(r Refresher, log zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p RefreshWidgetPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			log.Error().Err(err).Msg("bad refresh payload")
			return fmt.Errorf("unmarshal refresh payload: %v: %w", err, asynq.SkipRetry)
		}

		start := time.Now()
		w, err := r.Refresh(ctx, p.WidgetID)
		duration := time.Since(start)

		if errors.Is(err, widgets.ErrNotFound) {
			log.Info().Str("widget", p.WidgetID).Msg("widget gone, dropping refresh")
			return fmt.Errorf("widget %s: %v: %w", p.WidgetID, err, asynq.SkipRetry)
		}
		if err != nil {
			return fmt.Errorf("refresh widget %s: %w", p.WidgetID, err)
		}

		if isRetryable(w.Error) {
			log.Warn().Str("widget", p.WidgetID).Dur("duration", duration).Str("error", w.Error).Msg("refresh failed, will retry")
			return fmt.Errorf("refresh widget %s: %s", p.WidgetID, w.Error)
		}
		if w.Error != "" {
			log.Warn().Str("widget", p.WidgetID).Dur("duration", duration).Str("error", w.Error).Msg("refresh failed permanently")
			return nil
		}
		log.Debug().Str("widget", p.WidgetID).Dur("duration", duration).Msg("refresh done")
		return nil
	}
}

// isRetryable reports whether a widget error may clear up on its own
func isRetryable(msg string) bool {
	return msg == fetch.MsgNetwork || msg == fetch.MsgConnectFailed
}
