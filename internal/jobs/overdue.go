// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/notify"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
)

// DefaultOverdueSpec runs the sweep once a day at midnight.
const DefaultOverdueSpec = "@daily"

// sweepTimeout bounds one sweep.
const sweepTimeout = 5 * time.Minute

// OverdueSweeper marks SENT invoices past their due date as OVERDUE and
// publishes an invoice.overdue event for each.
type OverdueSweeper struct {
	store     *store.Store
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	scheduler *cronlib.Cron
}

// NewOverdueSweeper creates a sweeper. publisher may be nil.
func NewOverdueSweeper(st *store.Store, publisher notify.Publisher, logger *slog.Logger) *OverdueSweeper {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueSweeper{store: st, publisher: publisher, logger: logger, now: time.Now}
}

// SetClock replaces the time source.
func (s *OverdueSweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep runs once and returns the invoice numbers it marked overdue. A
// failed update is logged and skipped; the next sweep retries it.
func (s *OverdueSweeper) Sweep(ctx context.Context) ([]string, error) {
	now := s.now()
	due, err := s.store.DueInvoices(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("overdue sweep: %w", err)
	}

	var marked []string
	for _, inv := range due {
		updated, err := s.store.UpdateInvoiceStatus(ctx, store.System, inv.Number, store.InvoiceOverdue)
		if err != nil {
			s.logger.Warn("mark invoice overdue failed", "invoice", inv.Number, "error", err)
			continue
		}
		marked = append(marked, updated.Number)

		ev := notify.Event{
			Type:     "invoice.overdue",
			Entity:   "invoice",
			EntityID: updated.ID,
			Number:   updated.Number,
			ActorID:  store.System.ID,
			At:       now.UTC(),
			Data: map[string]any{
				"customer": updated.CustomerName,
				"total":    updated.Total,
				"due_date": updated.DueDate.Format(store.DateLayout),
			},
		}
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn("publish overdue event failed", "invoice", updated.Number, "error", err)
		}
	}

	if len(marked) > 0 {
		s.logger.Info("invoices marked overdue", "count", len(marked), "invoices", marked)
	} else {
		s.logger.Debug("overdue sweep found nothing")
	}
	return marked, nil
}

// Start schedules Sweep on spec, a standard five-field cron expression
// or descriptor such as "@daily". An empty spec uses DefaultOverdueSpec.
func (s *OverdueSweeper) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultOverdueSpec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return fmt.Errorf("overdue sweeper already started")
	}

	scheduler := cronlib.New()
	if _, err := scheduler.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		if _, err := s.Sweep(runCtx); err != nil {
			s.logger.Error("overdue sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid overdue schedule %q: %w", spec, err)
	}
	scheduler.Start()
	s.scheduler = scheduler

	s.logger.Info("overdue sweeper scheduled", "spec", spec)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *OverdueSweeper) Stop() {
	s.mu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}
