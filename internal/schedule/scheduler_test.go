package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"event-trader/internal/config"
)

// fakeClock 让调度器在测试中无需真实休眠：sleep 直接推进时钟。
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps++
	return nil
}

type runRecord struct {
	day        int
	settleWait time.Duration
}

func newTestScheduler(t *testing.T, clock *fakeClock, firstWait time.Duration) *Scheduler {
	t.Helper()
	cfg := config.ScheduleConfig{
		Hour:          0,
		Minute:        1,
		Timezone:      "Asia/Seoul",
		SettleWait:    2 * time.Second,
		MaxSleepChunk: time.Hour,
	}
	s, err := NewScheduler(cfg, firstWait, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.now = clock.Now
	s.sleep = clock.Sleep
	return s
}

func TestRun_SingleDayRunsImmediately(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")
	clock := &fakeClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, loc)}
	s := newTestScheduler(t, clock, 10*time.Second)

	var runs []runRecord
	err := s.Run(context.Background(), 1, func(_ context.Context, day int, wait time.Duration) error {
		runs = append(runs, runRecord{day, wait})
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runs) != 1 {
		t.Fatalf("expected exactly 1 run, got %d", len(runs))
	}
	if runs[0].day != 1 || runs[0].settleWait != 10*time.Second {
		t.Fatalf("unexpected first run: %+v", runs[0])
	}
	if clock.sleeps != 0 {
		t.Fatalf("expected no waiting for a single-day event, slept %d times", clock.sleeps)
	}
}

func TestRun_ThreeDaysUseShortenedWait(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")
	clock := &fakeClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, loc)}
	s := newTestScheduler(t, clock, 10*time.Second)

	var runs []runRecord
	err := s.Run(context.Background(), 3, func(_ context.Context, day int, wait time.Duration) error {
		runs = append(runs, runRecord{day, wait})
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runs) != 3 {
		t.Fatalf("expected exactly 3 runs, got %d", len(runs))
	}
	if runs[0].settleWait != 10*time.Second {
		t.Fatalf("day 1 should use the configured wait, got %v", runs[0].settleWait)
	}
	for _, r := range runs[1:] {
		if r.settleWait != 2*time.Second {
			t.Fatalf("day %d should use the shortened wait, got %v", r.day, r.settleWait)
		}
	}

	// 第一天 12:00 执行后，第 2、3 天都应在次日 00:01 触发。
	want := time.Date(2026, 1, 7, 0, 1, 0, 0, loc)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("expected clock at %v after day 3 trigger, got %v", want, got)
	}
}

func TestRun_DayFailureDoesNotStopRemainingDays(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")
	clock := &fakeClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, loc)}
	s := newTestScheduler(t, clock, time.Second)

	var days []int
	err := s.Run(context.Background(), 2, func(_ context.Context, day int, _ time.Duration) error {
		days = append(days, day)
		if day == 1 {
			return errors.New("exchange unavailable")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(days) != 2 {
		t.Fatalf("expected both days to run, got %v", days)
	}
}

func TestRun_CleanupRunsAtMostOnce(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")
	clock := &fakeClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, loc)}
	s := newTestScheduler(t, clock, time.Second)

	cleanups := 0
	err := s.Run(context.Background(), 3, func(_ context.Context, _ int, _ time.Duration) error {
		return nil
	}, func(_ context.Context) error {
		cleanups++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cleanups != 1 {
		t.Fatalf("expected cleanup to run exactly once, ran %d times", cleanups)
	}
}

func TestRun_CancellationStopsWaiting(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")
	clock := &fakeClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, loc)}
	s := newTestScheduler(t, clock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	err := s.Run(ctx, 3, func(_ context.Context, _ int, _ time.Duration) error {
		runs++
		cancel()
		return nil
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runs != 1 {
		t.Fatalf("expected waiting to stop after cancellation, got %d runs", runs)
	}
}

func TestNextTrigger(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Seoul")
	clock := &fakeClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, loc)}
	s := newTestScheduler(t, clock, time.Second)

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before today's trigger",
			now:  time.Date(2026, 1, 5, 0, 0, 30, 0, loc),
			want: time.Date(2026, 1, 5, 0, 1, 0, 0, loc),
		},
		{
			name: "after today's trigger",
			now:  time.Date(2026, 1, 5, 12, 0, 0, 0, loc),
			want: time.Date(2026, 1, 6, 0, 1, 0, 0, loc),
		},
		{
			name: "exactly at trigger",
			now:  time.Date(2026, 1, 5, 0, 1, 0, 0, loc),
			want: time.Date(2026, 1, 6, 0, 1, 0, 0, loc),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.nextTrigger(tc.now); !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
