package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/finboard/fetch"
	"github.com/briangreenhill/finboard/internal/widgets"
)

type fakeRefresher struct {
	ids    []string
	widget widgets.Widget
	err    error
}

func (f *fakeRefresher) Refresh(_ context.Context, id string) (widgets.Widget, error) {
	f.ids = append(f.ids, id)
	return f.widget, f.err
}

func refreshTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, err := NewRefreshWidgetTask(id)
	require.NoError(t, err)
	return task
}

func TestNewRefreshWidgetTask(t *testing.T) {
	task := refreshTask(t, "w1")
	assert.Equal(t, TaskRefreshWidget, task.Type())

	var p RefreshWidgetPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "w1", p.WidgetID)

	_, err := NewRefreshWidgetTask("")
	assert.Error(t, err)
}

func TestHandleRefreshWidget(t *testing.T) {
	tests := []struct {
		name      string
		widget    widgets.Widget
		err       error
		wantErr   bool
		wantSkip  bool
		wantCalls int
	}{
		{name: "success", wantCalls: 1},
		{name: "unknown widget is dropped", err: widgets.ErrNotFound, wantErr: true, wantSkip: true, wantCalls: 1},
		{name: "network failure retries", widget: widgets.Widget{Error: fetch.MsgNetwork}, wantErr: true, wantCalls: 1},
		{name: "not found is permanent", widget: widgets.Widget{Error: fetch.MsgNotFound}, wantCalls: 1},
		{name: "unexpected error retries", err: errors.New("boom"), wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRefresher{widget: tt.widget, err: tt.err}
			h := HandleRefreshWidget(r, zerolog.Nop())

			err := h(context.Background(), refreshTask(t, "w1"))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantSkip, errors.Is(err, asynq.SkipRetry))
			assert.Len(t, r.ids, tt.wantCalls)
		})
	}
}

func TestHandleRefreshWidgetBadPayload(t *testing.T) {
	r := &fakeRefresher{}
	err := HandleRefreshWidget(r, zerolog.Nop())(context.Background(), asynq.NewTask(TaskRefreshWidget, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, r.ids)
}

func TestServeMuxRoutesRefresh(t *testing.T) {
	r := &fakeRefresher{}
	mux := NewServeMux(r, zerolog.Nop())
	require.NoError(t, mux.ProcessTask(context.Background(), refreshTask(t, "w9")))
	assert.Equal(t, []string{"w9"}, r.ids)
}

type fakeClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: "t1", Queue: QueueRefresh}, nil
}

func TestEnqueuerDispatch(t *testing.T) {
	c := &fakeClient{}
	e := NewEnqueuer(c, WithUniqueFor(30*time.Second))

	require.NoError(t, e.Dispatch(context.Background(), "w1"))
	require.Len(t, c.tasks, 1)
	assert.Equal(t, TaskRefreshWidget, c.tasks[0].Type())
	assert.JSONEq(t, `{"widget_id":"w1"}`, string(c.tasks[0].Payload()))

	var types []asynq.OptionType
	for _, o := range c.opts[0] {
		types = append(types, o.Type())
	}
	assert.Contains(t, types, asynq.QueueOpt)
	assert.Contains(t, types, asynq.MaxRetryOpt)
	assert.Contains(t, types, asynq.UniqueOpt)
}

func TestEnqueuerDuplicateIsNotAnError(t *testing.T) {
	e := NewEnqueuer(&fakeClient{err: asynq.ErrDuplicateTask})
	assert.NoError(t, e.Dispatch(context.Background(), "w1"))

	e = NewEnqueuer(&fakeClient{err: errors.New("redis down")})
	assert.ErrorContains(t, e.Dispatch(context.Background(), "w1"), "redis down")
}

func TestWithUniqueForRoundsUp(t *testing.T) {
	e := NewEnqueuer(&fakeClient{}, WithUniqueFor(200*time.Millisecond))
	assert.Equal(t, time.Second, e.uniqueFor)

	e = NewEnqueuer(&fakeClient{})
	assert.Zero(t, e.uniqueFor)
}
