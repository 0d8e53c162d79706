package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/commercebridge/reconciler/internal/domain"
	"github.com/commercebridge/reconciler/internal/observability"
	"github.com/commercebridge/reconciler/internal/sevdesk"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = time.Minute

	// fallbackLookback bounds the first poll window when no watermark exists
	// yet, so a fresh deployment does not reprocess the whole invoice history.
	fallbackLookback = 24 * time.Hour
)

// PaidInvoiceProcessor reconciles a single paid invoice.
type PaidInvoiceProcessor interface {
	ProcessPaidInvoice(ctx context.Context, invoice domain.Invoice) error
}

// Poller drives the reconciliation loop: list paid invoices updated since the
// watermark, process them strictly in listing order, advance the watermark.
// The watermark only moves after a successful listing, so a failed cycle is
// retried over the same window and the append-only log absorbs the duplicates.
type Poller struct {
	invoices  sevdesk.InvoiceSource
	processor PaidInvoiceProcessor
	metrics   *observability.Metrics
	logger    *zap.Logger
	interval  time.Duration
	lookback  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	cycleActive atomic.Bool
	watermark   time.Time
}

func NewPoller(
	invoices sevdesk.InvoiceSource,
	processor PaidInvoiceProcessor,
	interval time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Poller, error) {
	if invoices == nil {
		return nil, fmt.Errorf("invoice source is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("invoice processor is required")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Poller{
		invoices:  invoices,
		processor: processor,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		lookback:  fallbackLookback,
		now:       time.Now,
	}, nil
}

// Start launches the poll loop with an immediate first cycle. Calling Start
// while the loop is already running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		p.logger.Warn("poller already running, ignoring start")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	p.logger.Info("starting invoice poller", zap.Duration("interval", p.interval))

	go func() {
		defer close(done)
		p.runCycle(runCtx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.runCycle(runCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight cycle to finish. Calling
// Stop while the loop is idle is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("invoice poller stopped")
}

func (p *Poller) runCycle(ctx context.Context) {
	if !p.cycleActive.CompareAndSwap(false, true) {
		p.logger.Warn("previous poll cycle still running, skipping this tick")
		p.metrics.IncPollCycle("skipped")
		return
	}
	defer p.cycleActive.Store(false)

	start := p.now()
	since := p.watermark
	if since.IsZero() {
		since = start.Add(-p.lookback)
	}

	listStart := time.Now()
	invoices, err := p.invoices.ListPaidInvoices(ctx, since)
	p.metrics.ObservePlatformCallDuration("sevdesk", "list_paid_invoices", time.Since(listStart))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Watermark stays put so the next cycle covers the same window.
		p.logger.Error("failed to list paid invoices",
			zap.Time("since", since),
			zap.Error(err),
		)
		p.metrics.IncPollCycle("list_failed")
		return
	}

	p.watermark = start

	p.logger.Info("poll cycle listed paid invoices",
		zap.Time("since", since),
		zap.Int("count", len(invoices)),
	)

	for i := range invoices {
		if ctx.Err() != nil {
			return
		}
		invoice := invoices[i]
		if err := p.processor.ProcessPaidInvoice(ctx, invoice); err != nil {
			// The workflow only surfaces an error when the history row
			// itself could not be written. Log for manual follow-up and
			// keep going; later invoices are independent.
			p.logger.Error("reconciliation record could not be written",
				zap.String("invoiceId", invoice.ID),
				zap.Error(err),
			)
		}
	}

	p.metrics.IncPollCycle("completed")
	p.metrics.ObservePollCycleDuration(p.now().Sub(start))
}
