package ops

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSideTasks_FailuresAreLogged(t *testing.T) {
	var logs syncBuffer
	tasks := NewSideTasks(slog.New(slog.NewTextHandler(&logs, nil)), time.Second)
	ctx := tools.WithRequestID(context.Background(), "r_0badf00d")

	tasks.Go(ctx, "smtp", func(context.Context) error { return errors.New("connection refused") })
	tasks.Go(ctx, "explode", func(context.Context) error { panic("boom") })
	tasks.Wait()

	out := logs.String()
	assert.Contains(t, out, "task=smtp")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "task=explode")
	assert.Contains(t, out, "panic: boom")
	assert.Contains(t, out, "request_id=r_0badf00d")
}

func TestSideTasks_OutliveRequest(t *testing.T) {
	tasks := NewSideTasks(nil, time.Second)
	ctx, cancel := context.WithCancel(tools.WithRequestID(context.Background(), "r_1"))

	started := make(chan struct{})
	var taskErr error
	var requestID string
	tasks.Go(ctx, "slow", func(ctx context.Context) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		taskErr = ctx.Err()
		requestID = tools.RequestIDFromContext(ctx)
		return nil
	})
	<-started
	cancel()
	tasks.Wait()

	assert.NoError(t, taskErr, "task context must not follow request cancellation")
	assert.Equal(t, "r_1", requestID)
}

func TestSideTasks_Timeout(t *testing.T) {
	tasks := NewSideTasks(nil, 10*time.Millisecond)
	var taskErr error
	tasks.Go(context.Background(), "hang", func(ctx context.Context) error {
		<-ctx.Done()
		taskErr = ctx.Err()
		return taskErr
	})
	tasks.Wait()
	assert.ErrorIs(t, taskErr, context.DeadlineExceeded)
}
