package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestRegisterTaskRejectsDuplicates(t *testing.T) {
	s := newTestScheduler(t)

	cfg := TaskConfig{
		ID:   "sync",
		Name: "Sync",
		Cron: "*/15 * * * *",
		Func: func(ctx context.Context) error { return nil },
	}
	require.NoError(t, s.RegisterTask(cfg))
	assert.Error(t, s.RegisterTask(cfg))
}

func TestRegisterTaskRejectsBadCron(t *testing.T) {
	s := newTestScheduler(t)

	err := s.RegisterTask(TaskConfig{
		ID:   "bad",
		Name: "Bad",
		Cron: "not a cron",
		Func: func(ctx context.Context) error { return nil },
	})
	assert.Error(t, err)
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:   "probe",
		Name: "Probe",
		Cron: "0 0 1 1 *",
		Func: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	require.NoError(t, s.RunNow("probe"))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.Error(t, s.RunNow("missing"))
}

func TestTaskBudgetExpiresContext(t *testing.T) {
	s := newTestScheduler(t)

	ctxErr := make(chan error, 1)
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:     "budgeted",
		Name:   "Budgeted",
		Cron:   "0 0 1 1 *",
		Budget: 20 * time.Millisecond,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			ctxErr <- ctx.Err()
			return ctx.Err()
		},
	}))

	require.NoError(t, s.RunNow("budgeted"))
	select {
	case err := <-ctxErr:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task context never expired")
	}
}

func TestRunOnStart(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:         "startup",
		Name:       "Startup",
		Cron:       "0 0 1 1 *",
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestListTasks(t *testing.T) {
	s := newTestScheduler(t)

	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:          "sync",
		Name:        "Sync",
		Description: "Refreshes definitions",
		Cron:        "*/15 * * * *",
		Func:        func(ctx context.Context) error { return nil },
	}))

	tasks := s.ListTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "sync", tasks[0].ID)
	assert.Equal(t, "Refreshes definitions", tasks[0].Description)
	assert.False(t, tasks[0].Running)
	assert.Nil(t, tasks[0].LastRun)
}
