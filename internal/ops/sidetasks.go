package ops

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

// DefaultSideTaskTimeout bounds one side task.
const DefaultSideTaskTimeout = 30 * time.Second

// SideTasks runs best-effort work (email, event publishing) spawned by
// operations. A task outlives the request that started it, and its
// failure is logged, never returned.
type SideTasks struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewSideTasks returns a runner. A zero timeout means
// DefaultSideTaskTimeout.
func NewSideTasks(logger *slog.Logger, timeout time.Duration) *SideTasks {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultSideTaskTimeout
	}
	return &SideTasks{logger: logger, timeout: timeout}
}

// Go starts fn in the background. fn receives a context that keeps the
// values of ctx but not its cancellation, bounded by the runner's
// timeout.
func (s *SideTasks) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)
	requestID := tools.RequestIDFromContext(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		taskCtx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()

		start := time.Now()
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
				}
			}()
			return fn(taskCtx)
		}()
		if err != nil {
			s.logger.Warn("side task failed",
				"request_id", requestID,
				"task", name,
				"elapsed", time.Since(start).Round(time.Millisecond),
				"error", err,
			)
			return
		}
		s.logger.Debug("side task done",
			"request_id", requestID,
			"task", name,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}()
}

// Wait blocks until every started task has finished.
func (s *SideTasks) Wait() {
	s.wg.Wait()
}
