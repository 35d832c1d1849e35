//go:build !windows

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/rephraser/internal/metrics"
)

const (
	echoStub  = `echo 'a|||b|||x 0.5 y 0.5###'`
	pivotStub = `while IFS= read -r line; do echo "$line ||| pivot ||| 0 0.5 0 0.5"; echo "$line ||| other ||| 0 0.1 0 0.1"; echo '###'; done`
	lmStub    = `while IFS= read -r line; do echo "$line = 1 Total: -1.0 OOV: 0"; done`
)

func newTestClient(t *testing.T, command string, mutate ...func(*Config)) (*Client, *metrics.Metrics) {
	t.Helper()
	cfg := Config{
		Name:         "test",
		Command:      command,
		IdleTimeout:  time.Hour,
		PollInterval: time.Hour,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	m := metrics.NewNop()
	c := New(cfg, nil, m)
	t.Cleanup(func() { _ = c.Close() })
	return c, m
}

func TestClient_QueryEchoStub(t *testing.T) {
	c, _ := newTestClient(t, echoStub)

	lines, err := c.Query(context.Background(), "any")
	require.NoError(t, err)
	assert.Equal(t, []string{"a|||b|||x 0.5 y 0.5"}, lines)
}

func TestClient_QueryStopsAtSentinel(t *testing.T) {
	c, _ := newTestClient(t, pivotStub)

	lines, err := c.Query(context.Background(), "give an example")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"give an example ||| pivot ||| 0 0.5 0 0.5",
		"give an example ||| other ||| 0 0.1 0 0.1",
	}, lines)

	// The next response starts cleanly after the previous sentinel.
	lines, err = c.Query(context.Background(), "again")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "again |||"))
}

func TestClient_QueryScalarLine(t *testing.T) {
	c, _ := newTestClient(t, lmStub)

	line, err := c.QueryScalarLine(context.Background(), "give an example")
	require.NoError(t, err)
	assert.Equal(t, "give an example = 1 Total: -1.0 OOV: 0", line)
}

func TestClient_IsWarmLifecycle(t *testing.T) {
	c, m := newTestClient(t, pivotStub)

	assert.False(t, c.IsWarm())
	require.NoError(t, c.EnsureWarm(context.Background()))
	assert.True(t, c.IsWarm())

	// Idempotent.
	require.NoError(t, c.EnsureWarm(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineStarts.WithLabelValues("test")))
}

func TestClient_RestartsAfterExternalKill(t *testing.T) {
	c, m := newTestClient(t, pivotStub)

	_, err := c.Query(context.Background(), "first")
	require.NoError(t, err)

	c.mu.Lock()
	pid := c.proc.pid()
	c.mu.Unlock()
	require.NoError(t, syscall.Kill(-pid, syscall.SIGKILL))

	require.Eventually(t, func() bool { return !c.IsWarm() }, 5*time.Second, 10*time.Millisecond)

	lines, err := c.Query(context.Background(), "second")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "second |||"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EngineStarts.WithLabelValues("test")))
}

func TestClient_RetriesWhenProcessDiesMidExchange(t *testing.T) {
	// Answers the first request of each incarnation, then exits.
	c, m := newTestClient(t, `IFS= read -r line; echo "$line"; echo '###'`)

	for i := 0; i < 3; i++ {
		lines, err := c.Query(context.Background(), fmt.Sprintf("req-%d", i))
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("req-%d", i)}, lines)
	}
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.EngineStarts.WithLabelValues("test")), 3.0)
}

func TestClient_CrashedWhenNoSentinel(t *testing.T) {
	c, _ := newTestClient(t, `IFS= read -r line; echo "$line"`)

	_, err := c.Query(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCrashed))
}

func TestClient_StartupFailureIsReported(t *testing.T) {
	c, m := newTestClient(t, "/nonexistent/phrase-table-binary -t table", func(cfg *Config) {
		cfg.SettleDelay = 2 * time.Second
	})

	_, err := c.Query(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStartup))

	var se *StartupError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "test", se.Engine)
	assert.False(t, c.IsWarm())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("test", "startup")))
}

func TestClient_SettleDelayHonorsContext(t *testing.T) {
	c, _ := newTestClient(t, pivotStub, func(cfg *Config) {
		cfg.SettleDelay = time.Minute
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.EnsureWarm(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, c.IsWarm())
}

func TestClient_IdleWatchdogTerminates(t *testing.T) {
	c, m := newTestClient(t, pivotStub, func(cfg *Config) {
		cfg.IdleTimeout = 50 * time.Millisecond
		cfg.PollInterval = 10 * time.Millisecond
	})

	_, err := c.Query(context.Background(), "x")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EngineKills.WithLabelValues("test")) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, c.IsWarm())

	// A new incarnation gets a new watchdog.
	_, err = c.Query(context.Background(), "y")
	require.NoError(t, err)
	assert.True(t, c.IsWarm())
}

func TestClient_ConcurrentQueriesDoNotInterleave(t *testing.T) {
	c, _ := newTestClient(t, pivotStub)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := fmt.Sprintf("request %d", i)
			lines, err := c.Query(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			for _, l := range lines {
				if !strings.HasPrefix(l, req+" |||") {
					errs <- fmt.Errorf("line %q does not belong to %q", l, req)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestClient_Close(t *testing.T) {
	c, _ := newTestClient(t, pivotStub)
	require.NoError(t, c.EnsureWarm(context.Background()))

	require.NoError(t, c.Close())
	assert.False(t, c.IsWarm())

	_, err := c.Query(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_CanceledContext(t *testing.T) {
	c, _ := newTestClient(t, pivotStub)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Query(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_CancelDuringExchange(t *testing.T) {
	c, _ := newTestClient(t, `cat >/dev/null`)
	require.NoError(t, c.EnsureWarm(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Query(ctx, "never answered")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, c.IsWarm())
}

func TestClient_StartupFailureWithoutSettleDelay(t *testing.T) {
	c, m := newTestClient(t, "/nonexistent/phrase-table-binary -t table")

	_, err := c.Query(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartup)
	assert.False(t, errors.Is(err, ErrCrashed))

	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "/nonexistent/phrase-table-binary -t table", se.Command)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("test", "startup")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("test", "crashed")))
}

func TestClient_SlowExchangeOutlivesIdleTimeout(t *testing.T) {
	slowStub := `while IFS= read -r line; do sleep 1; echo "$line ||| slow ||| 0 0.5 0 0.5"; echo '###'; done`
	c, m := newTestClient(t, slowStub, func(cfg *Config) {
		cfg.IdleTimeout = 200 * time.Millisecond
		cfg.PollInterval = 10 * time.Millisecond
	})

	lines, err := c.Query(context.Background(), "take your time")
	require.NoError(t, err)
	assert.Equal(t, []string{"take your time ||| slow ||| 0 0.5 0 0.5"}, lines)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EngineKills.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineStarts.WithLabelValues("test")))

	// Once idle again, the watchdog does terminate the process.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EngineKills.WithLabelValues("test")) == 1
	}, 5*time.Second, 10*time.Millisecond)
}
