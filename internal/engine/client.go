// Package engine manages long-lived external scoring processes (phrase-table
// lookups and language-model queries) that speak a line-oriented
// request/response protocol over stdin/stdout.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/valpere/rephraser/internal/metrics"
)

// Sentinel terminates a multi-line engine response.
const Sentinel = "###"

// startupExitWait bounds how long a failed first exchange waits for the
// process exit status.
const startupExitWait = time.Second

const (
	DefaultNice         = 10
	DefaultSettleDelay  = 2 * time.Second
	DefaultIdleTimeout  = 24 * time.Hour
	DefaultPollInterval = time.Minute
)

type Config struct {
	Name    string
	Command string
	Nice    int
	Stderr  io.Writer

	// SettleDelay is how long EnsureWarm waits after launching before the
	// process is considered ready. The engines print no readiness marker.
	SettleDelay  time.Duration
	IdleTimeout  time.Duration
	PollInterval time.Duration
}

// Client owns one external engine process. Exchanges are serialized: the
// process has a single stdin/stdout pair.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	proc     *process
	watchdog *Watchdog
	closed   bool
}

// New creates a client. The process is started lazily by EnsureWarm or the
// first query.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.With("engine", cfg.Name),
		metrics: m,
	}
}

func (c *Client) Name() string { return c.cfg.Name }

// IsWarm reports whether a live process exists. A process found to have
// exited is cleared and its watchdog stopped.
func (c *Client) IsWarm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isWarmLocked()
}

// EnsureWarm starts the process if none is live and blocks until it has
// settled. It is safe to call before every request.
func (c *Client) EnsureWarm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureWarmLocked(ctx)
}

// Query sends request and returns every response line up to the sentinel.
func (c *Client) Query(ctx context.Context, request string) ([]string, error) {
	return c.exchange(ctx, request, readUntilSentinel)
}

// QueryScalarLine sends request and returns exactly one response line.
func (c *Client) QueryScalarLine(ctx context.Context, request string) (string, error) {
	lines, err := c.exchange(ctx, request, readOneLine)
	if err != nil {
		return "", err
	}
	return lines[0], nil
}

// Close terminates the process and stops its watchdog. Later calls fail
// with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.discardLocked()
	return nil
}

func (c *Client) isWarmLocked() bool {
	if c.proc == nil {
		return false
	}
	if c.proc.exited() {
		c.logger.Warn("engine process exited", "pid", c.proc.pid(), "error", c.proc.exitErr)
		c.metrics.EngineFailures.WithLabelValues(c.cfg.Name, "exited").Inc()
		c.watchdog.Abort()
		c.proc.release()
		c.proc, c.watchdog = nil, nil
		return false
	}
	return true
}

func (c *Client) ensureWarmLocked(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.isWarmLocked() {
		return nil
	}

	c.logger.Info("starting engine", "command", c.cfg.Command)
	proc, err := startProcess(c.cfg.Command, c.cfg.Stderr)
	if err != nil {
		c.metrics.EngineFailures.WithLabelValues(c.cfg.Name, "startup").Inc()
		return &StartupError{Engine: c.cfg.Name, Command: c.cfg.Command, Err: err}
	}
	if err := lowerPriority(proc.pid(), c.cfg.Nice); err != nil {
		c.logger.Warn("could not lower engine priority", "pid", proc.pid(), "error", err)
	}

	if c.cfg.SettleDelay > 0 {
		timer := time.NewTimer(c.cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-proc.done:
			if proc.exitErr != nil {
				proc.release()
				c.metrics.EngineFailures.WithLabelValues(c.cfg.Name, "startup").Inc()
				return &StartupError{Engine: c.cfg.Name, Command: c.cfg.Command, Err: proc.exitErr}
			}
		case <-ctx.Done():
			proc.terminate()
			return ctx.Err()
		}
	}

	c.proc = proc
	c.watchdog = NewWatchdog(c.cfg.IdleTimeout, c.cfg.PollInterval, c.idleKill(proc))
	go c.watchdog.Run()

	c.metrics.EngineStarts.WithLabelValues(c.cfg.Name).Inc()
	c.logger.Info("engine ready", "pid", proc.pid())
	return nil
}

// idleKill is the watchdog callback for proc. It never interrupts an
// exchange: if the guard is held it reports false and the watchdog retries
// on its next tick.
func (c *Client) idleKill(proc *process) func() bool {
	return func() bool {
		if !c.mu.TryLock() {
			return false
		}
		defer c.mu.Unlock()

		if c.proc != proc {
			return true
		}
		c.logger.Info("engine idle, terminating", "pid", proc.pid(), "idle_timeout", c.cfg.IdleTimeout)
		c.metrics.EngineKills.WithLabelValues(c.cfg.Name).Inc()
		proc.terminate()
		c.proc, c.watchdog = nil, nil
		return true
	}
}

func (c *Client) discardLocked() {
	if c.watchdog != nil {
		c.watchdog.Abort()
	}
	if c.proc != nil {
		c.proc.terminate()
	}
	c.proc, c.watchdog = nil, nil
}

type readFunc func(r *bufio.Reader) ([]string, error)

// exchange runs one write-then-read cycle under the guard. A process that
// dies mid-exchange is replaced and the request retried once.
func (c *Client) exchange(ctx context.Context, request string, read readFunc) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.ensureWarmLocked(ctx); err != nil {
			return nil, err
		}
		c.watchdog.RecordActivity()

		// A canceled context unblocks the read by signalling the process.
		proc := c.proc
		stop := context.AfterFunc(ctx, func() { _ = terminateGroup(proc.cmd) })

		start := time.Now()
		lines, err := c.roundTrip(request, read)
		stop()
		c.metrics.EngineQueries.WithLabelValues(c.cfg.Name).Inc()
		c.metrics.QueryDuration.WithLabelValues(c.cfg.Name).Observe(time.Since(start).Seconds())
		if err == nil {
			proc.served = true
			c.watchdog.RecordActivity()
			return lines, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.discardLocked()
			return nil, ctxErr
		}
		// A process that fails before answering anything never started
		// properly, e.g. the shell could not find the engine binary.
		if !proc.served {
			if exitErr := proc.waitExit(startupExitWait); exitErr != nil {
				c.logger.Warn("engine failed before its first response", "error", exitErr)
				c.metrics.EngineFailures.WithLabelValues(c.cfg.Name, "startup").Inc()
				c.discardLocked()
				return nil, &StartupError{Engine: c.cfg.Name, Command: c.cfg.Command, Err: exitErr}
			}
		}

		c.logger.Warn("engine exchange failed, restarting", "attempt", attempt+1, "error", err)
		c.metrics.EngineFailures.WithLabelValues(c.cfg.Name, "crashed").Inc()
		c.discardLocked()
		lastErr = err
	}
	return nil, fmt.Errorf("%s engine: %w: %w", c.cfg.Name, ErrCrashed, lastErr)
}

// roundTrip reads even when the write fails: a process may answer and exit
// before consuming its input, and its output is still buffered in the pipe.
func (c *Client) roundTrip(request string, read readFunc) ([]string, error) {
	_, werr := io.WriteString(c.proc.stdin, request+"\n")
	lines, rerr := read(c.proc.reader)
	if rerr != nil {
		if werr != nil {
			return lines, errors.Join(fmt.Errorf("write request: %w", werr), rerr)
		}
		return lines, rerr
	}
	return lines, nil
}

// readUntilSentinel accumulates right-trimmed lines until one contains the
// sentinel. Text preceding the sentinel on that line is kept.
func readUntilSentinel(r *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		raw, err := r.ReadString('\n')
		if raw != "" {
			line := strings.TrimRightFunc(raw, unicode.IsSpace)
			if idx := strings.Index(line, Sentinel); idx >= 0 {
				if head := strings.TrimRightFunc(line[:idx], unicode.IsSpace); head != "" {
					lines = append(lines, head)
				}
				return lines, nil
			}
			lines = append(lines, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, io.ErrUnexpectedEOF
			}
			return lines, err
		}
	}
}

func readOneLine(r *bufio.Reader) ([]string, error) {
	raw, err := r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, err
		}
		if raw == "" {
			return nil, io.ErrUnexpectedEOF
		}
	}
	return []string{strings.TrimRightFunc(raw, unicode.IsSpace)}, nil
}
