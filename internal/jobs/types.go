package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TaskRefreshWidget = "widget:refresh"

// QueueRefresh is the queue refresh tasks are enqueued on
const QueueRefresh = "refresh"

// Task defaults
const (
	DefaultMaxRetry = 3
	DefaultTimeout  = time.Minute
)

type RefreshWidgetPayload struct {
	WidgetID string `json:"widget_id"`
}

// NewRefreshWidgetTask builds the task refreshing one widget
func NewRefreshWidgetTask(widgetID string) (*asynq.Task, error) {
	if widgetID == "" {
		return nil, fmt.Errorf("refresh task: widget id is required")
	}
	payload, err := json.Marshal(RefreshWidgetPayload{WidgetID: widgetID})
	if err != nil {
		return nil, fmt.Errorf("marshal refresh payload: %w", err)
	}
	return asynq.NewTask(TaskRefreshWidget, payload), nil
}
