package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	stockEventLow = "stock.low"

	defaultStockAlertInterval  = time.Hour
	defaultStockAlertThreshold = 5
	defaultStockAlertRecipient = "admin@malistore.com"
	defaultStockSweepTimeout   = time.Minute
)

// StockAlertMetrics records sweep outcomes.
type StockAlertMetrics interface {
	ObserveStockSweep(lowStock int, err error)
}

// StockAlertMonitorDeps configures the periodic low-stock sweep.
type StockAlertMonitorDeps struct {
	Inventory InventoryService
	Interval  time.Duration
	Threshold int
	Recipient string
	// SweepTimeout bounds a single sweep. Defaults to one minute.
	SweepTimeout time.Duration
	Clock        func() time.Time
	Events       EventPublisher
	Metrics      StockAlertMetrics
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// StockAlertReport summarises one sweep.
type StockAlertReport struct {
	Threshold int
	Recipient string
	Products  []Product
	Message   string
	CheckedAt time.Time
}

// StockAlertMonitor periodically reports active products at or below the stock threshold. It
// only reads product state.
type StockAlertMonitor struct {
	inventory    InventoryService
	interval     time.Duration
	threshold    int
	recipient    string
	sweepTimeout time.Duration
	clock        func() time.Time
	events       EventPublisher
	metrics      StockAlertMetrics
	logger       logFunc
}

// NewStockAlertMonitor constructs a StockAlertMonitor with defaults for unset fields.
func NewStockAlertMonitor(deps StockAlertMonitorDeps) (*StockAlertMonitor, error) {
	if deps.Inventory == nil {
		return nil, errors.New("stock alert monitor: inventory service is required")
	}
	if deps.Threshold < 0 {
		return nil, errors.New("stock alert monitor: threshold must be zero or greater")
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultStockAlertInterval
	}
	threshold := deps.Threshold
	if threshold == 0 {
		threshold = defaultStockAlertThreshold
	}
	recipient := strings.TrimSpace(deps.Recipient)
	if recipient == "" {
		recipient = defaultStockAlertRecipient
	}
	timeout := deps.SweepTimeout
	if timeout <= 0 {
		timeout = defaultStockSweepTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &StockAlertMonitor{
		inventory:    deps.Inventory,
		interval:     interval,
		threshold:    threshold,
		recipient:    recipient,
		sweepTimeout: timeout,
		clock:        utcClock(deps.Clock),
		events:       deps.Events,
		metrics:      deps.Metrics,
		logger:       logger,
	}, nil
}

// Interval returns the configured sweep interval.
func (m *StockAlertMonitor) Interval() time.Duration {
	return m.interval
}

// Run sweeps on every tick until ctx is cancelled. Sweep failures and panics are logged and
// never stop the loop.
func (m *StockAlertMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.safeSweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *StockAlertMonitor) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger(ctx, "stock.alert.sweep.panic", map[string]any{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	if _, err := m.Sweep(ctx); err != nil {
		m.logger(ctx, "stock.alert.sweep.failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// Sweep runs a single low-stock check and emits one notification when products are found.
func (m *StockAlertMonitor) Sweep(ctx context.Context) (StockAlertReport, error) {
	sweepCtx, cancel := context.WithTimeout(ctx, m.sweepTimeout)
	defer cancel()

	report := StockAlertReport{
		Threshold: m.threshold,
		Recipient: m.recipient,
		CheckedAt: m.clock(),
	}
	products, err := m.inventory.ListLowStock(sweepCtx, m.threshold)
	if m.metrics != nil {
		m.metrics.ObserveStockSweep(len(products), err)
	}
	if err != nil {
		return report, err
	}
	report.Products = products
	if len(products) == 0 {
		m.logger(ctx, "stock.alert.sweep.clear", map[string]any{
			"threshold": m.threshold,
		})
		return report, nil
	}

	report.Message = formatLowStockMessage(products, m.threshold)
	m.logger(ctx, "stock.alert.low", map[string]any{
		"threshold": m.threshold,
		"count":     len(products),
		"recipient": m.recipient,
		"message":   report.Message,
	})

	items := make([]map[string]any, 0, len(products))
	for _, p := range products {
		items = append(items, map[string]any{
			"productId": p.ID,
			"name":      p.Name,
			"stock":     p.Stock,
		})
	}
	publish(ctx, m.events, m.logger, DomainEvent{
		Type:       stockEventLow,
		OccurredAt: report.CheckedAt,
		Data: map[string]any{
			"threshold": m.threshold,
			"recipient": m.recipient,
			"message":   report.Message,
			"products":  items,
		},
	})
	return report, nil
}

func formatLowStockMessage(products []Product, threshold int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "LOW STOCK ALERT\n\nThe following products are at or below the threshold (%d):\n\n", threshold)
	for _, p := range products {
		fmt.Fprintf(&b, "- %s (%s): %d\n", p.Name, p.ID, p.Stock)
	}
	b.WriteString("\nPlease review and restock these products.")
	return b.String()
}
