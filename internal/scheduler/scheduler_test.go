package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/forecast-alert-service/internal/clock"
)

func colombo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Colombo")
	require.NoError(t, err)
	return loc
}

type recorder struct {
	clk   *clock.Fake
	calls []string
}

func (r *recorder) handler(name string) Handler {
	return func(ctx context.Context) error {
		r.calls = append(r.calls, name+"@"+r.clk.Now().Format("15:04"))
		return nil
	}
}

func TestNew_RejectsBadTables(t *testing.T) {
	noop := func(ctx context.Context) error { return nil }
	tests := []struct {
		name string
		jobs []Job
	}{
		{name: "bad spec", jobs: []Job{{Name: "sync", Specs: []string{"every minute"}, Handler: noop}}},
		{name: "seconds field", jobs: []Job{{Name: "sync", Specs: []string{"0 */15 * * * *"}, Handler: noop}}},
		{name: "duplicate", jobs: []Job{
			{Name: "sync", Specs: []string{"* * * * *"}, Handler: noop},
			{Name: "sync", Specs: []string{"* * * * *"}, Handler: noop},
		}},
		{name: "no specs", jobs: []Job{{Name: "sync", Handler: noop}}},
		{name: "no handler", jobs: []Job{{Name: "sync", Specs: []string{"* * * * *"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(time.UTC, zap.NewNop(), tc.jobs...)
			assert.Error(t, err)
		})
	}
}

func TestAdvance_FiresInChronologicalOrder(t *testing.T) {
	loc := colombo(t)
	clk := clock.NewFake(time.Date(2026, 3, 10, 7, 50, 0, 0, loc))
	rec := &recorder{clk: clk}

	s, err := New(loc, zap.NewNop(),
		Job{Name: "sync", Specs: []string{"*/15 * * * *"}, Handler: rec.handler("sync")},
		Job{Name: "digest", Specs: []string{"0 * * * *"}, Handler: rec.handler("digest")},
		Job{Name: "batch-report", Specs: []string{"0 8 * * *", "0 10 * * *", "0 12 * * *", "0 15 * * *"}, Handler: rec.handler("batch-report")},
	)
	require.NoError(t, err)

	fired := s.Advance(context.Background(), clk, time.Date(2026, 3, 10, 8, 30, 0, 0, loc))

	assert.Equal(t, []string{"sync", "digest", "batch-report", "sync", "sync"}, fired)
	assert.Equal(t, []string{
		"sync@08:00", "digest@08:00", "batch-report@08:00",
		"sync@08:15", "sync@08:30",
	}, rec.calls)
	assert.True(t, clk.Now().Equal(time.Date(2026, 3, 10, 8, 30, 0, 0, loc)))
}

func TestAdvance_UsesConfiguredTimezone(t *testing.T) {
	loc := colombo(t)
	// 02:00 UTC is 07:30 in Colombo (UTC+5:30).
	clk := clock.NewFake(time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC))
	rec := &recorder{clk: clk}

	s, err := New(loc, zap.NewNop(),
		Job{Name: "batch-report", Specs: []string{"0 8 * * *"}, Handler: rec.handler("batch-report")},
	)
	require.NoError(t, err)

	fired := s.Advance(context.Background(), clk, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))
	require.Equal(t, []string{"batch-report"}, fired)
	assert.Equal(t, []string{"batch-report@08:00"}, rec.calls)
}

func TestAdvance_ErrorsAndPanicsDoNotStopSchedule(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	clk := clock.NewFake(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	var runs atomic.Int32

	s, err := New(time.UTC, zap.New(core),
		Job{Name: "flaky", Specs: []string{"*/15 * * * *"}, Handler: func(ctx context.Context) error {
			n := runs.Add(1)
			switch n {
			case 1:
				return errors.New("upstream down")
			case 2:
				panic("nil snapshot")
			}
			return nil
		}},
	)
	require.NoError(t, err)

	fired := s.Advance(context.Background(), clk, time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC))
	assert.Len(t, fired, 4)
	assert.Equal(t, int32(4), runs.Load())
	assert.Equal(t, 2, logs.FilterMessage("job failed").Len())
}

func TestRunNow(t *testing.T) {
	var deadline bool
	s, err := New(time.UTC, zap.NewNop(),
		Job{Name: "sync", Specs: []string{"*/15 * * * *"}, Timeout: time.Minute, Handler: func(ctx context.Context) error {
			_, deadline = ctx.Deadline()
			return nil
		}},
		Job{Name: "boom", Specs: []string{"0 * * * *"}, Handler: func(ctx context.Context) error {
			panic("boom")
		}},
	)
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), "sync"))
	assert.True(t, deadline, "runs get a timeout context")

	assert.ErrorIs(t, s.RunNow(context.Background(), "boom"), ErrJobPanic)
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownJob)
	assert.Equal(t, []string{"sync", "boom"}, s.Jobs())
}

func TestStartStop(t *testing.T) {
	s, err := New(time.UTC, zap.NewNop(),
		Job{Name: "sync", Specs: []string{"0 0 1 1 *"}, Handler: func(ctx context.Context) error { return nil }},
	)
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
