package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refnet-platform/progression-engine/internal/domain/notification"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// OutboxDispatcher delivers notifications recorded in the transactional
// outbox. Evaluations write outbox entries inside their own transaction; the
// dispatcher polls committed pending entries and pushes them through the
// configured delivery channels with retry and exponential backoff. An entry
// that exhausts its attempts is parked as failed in the outbox table, which
// doubles as the dead letter queue.
type OutboxDispatcher struct {
	outbox       notification.OutboxRepository
	channels     []notification.Channel
	pollInterval time.Duration
	batchSize    int
	retryConfig  RetryConfig
	logger       *slog.Logger
	metrics      *DispatcherMetrics
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// OutboxDispatcherConfig contains configuration for the OutboxDispatcher.
type OutboxDispatcherConfig struct {
	// Outbox is the entry source.
	Outbox notification.OutboxRepository

	// Channels are the delivery transports, tried in order.
	Channels []notification.Channel

	// PollInterval is how often pending entries are fetched.
	PollInterval time.Duration

	// BatchSize is the maximum entries processed per poll.
	BatchSize int

	// RetryConfig configures per-attempt retry behavior.
	RetryConfig RetryConfig

	// Logger for structured logging
	Logger *slog.Logger
}

// RetryConfig contains retry configuration for a single delivery attempt.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// InitialBackoff is the initial wait between retries
	InitialBackoff time.Duration

	// MaxBackoff is the maximum wait between retries
	MaxBackoff time.Duration

	// BackoffMultiplier is the factor for exponential backoff
	BackoffMultiplier float64
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// NewOutboxDispatcher creates a new outbox dispatcher.
func NewOutboxDispatcher(config OutboxDispatcherConfig) (*OutboxDispatcher, error) {
	if config.Outbox == nil {
		return nil, errors.New("outbox repository is required")
	}
	if len(config.Channels) == 0 {
		return nil, errors.New("at least one delivery channel is required")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.RetryConfig.MaxRetries <= 0 {
		config.RetryConfig = DefaultRetryConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &OutboxDispatcher{
		outbox:       config.Outbox,
		channels:     config.Channels,
		pollInterval: config.PollInterval,
		batchSize:    config.BatchSize,
		retryConfig:  config.RetryConfig,
		logger:       config.Logger,
		metrics:      NewDispatcherMetrics(),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start launches the polling loop.
func (d *OutboxDispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.pollLoop()
	}()

	d.logger.Info("outbox dispatcher started",
		"poll_interval", d.pollInterval,
		"batch_size", d.batchSize,
	)
}

// Stop gracefully stops the dispatcher, waiting for the in-flight batch.
func (d *OutboxDispatcher) Stop() error {
	d.cancel()
	d.wg.Wait()
	d.logger.Info("outbox dispatcher stopped")
	return nil
}

// Metrics returns dispatcher metrics.
func (d *OutboxDispatcher) Metrics() *DispatcherMetrics {
	return d.metrics
}

func (d *OutboxDispatcher) pollLoop() {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.DrainOnce(d.ctx); err != nil {
				d.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY
// ══════════════════════════════════════════════════════════════════════════════

// DrainOnce fetches one batch of pending entries and dispatches them.
// Exposed for the worker's on-demand drain and for tests.
func (d *OutboxDispatcher) DrainOnce(ctx context.Context) error {
	entries, err := d.outbox.FetchPending(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("fetch pending: %w", err)
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		d.dispatchEntry(ctx, entry)
	}

	return nil
}

// dispatchEntry delivers one entry over all channels and persists the outcome.
// Delivery errors stay inside the dispatcher: they are logged, counted against
// the entry's attempts and never returned to the evaluation path.
func (d *OutboxDispatcher) dispatchEntry(ctx context.Context, entry *notification.OutboxEntry) {
	d.metrics.RecordDispatch(entry.Kind)

	n := &notification.Notification{
		ID:        uuid.NewString(),
		MemberID:  entry.MemberID,
		Type:      entry.Kind,
		Title:     entry.Title,
		Message:   entry.Message,
		Data:      entry.Data,
		CreatedAt: time.Now(),
	}

	var deliveryErr error
	for _, channel := range d.channels {
		result := d.deliverWithRetry(ctx, channel, n)
		if result.Success {
			continue
		}

		d.logger.Warn("channel delivery failed",
			"entry_id", entry.ID,
			"member_id", entry.MemberID,
			"kind", entry.Kind,
			"channel", channel.Type(),
			"error", result.Error,
		)

		if deliveryErr == nil {
			deliveryErr = fmt.Errorf("channel %s: %w", channel.Type(), result.Error)
		}
	}

	if deliveryErr == nil {
		entry.MarkSent()
	} else {
		entry.MarkAttemptFailed(deliveryErr)
		d.metrics.RecordFailure(entry.Kind)

		if entry.Exhausted() {
			d.logger.Error("outbox entry parked after exhausting retries",
				"entry_id", entry.ID,
				"member_id", entry.MemberID,
				"kind", entry.Kind,
				"attempts", entry.Attempts,
				"error", deliveryErr,
			)
		}
	}

	if err := d.outbox.Update(ctx, entry); err != nil {
		// The entry stays pending and will be retried on the next poll.
		d.logger.Error("failed to persist outbox state",
			"entry_id", entry.ID,
			"status", entry.Status,
			"error", err,
		)
	}
}

// deliverWithRetry attempts delivery over a single channel, retrying
// retryable failures with exponential backoff.
func (d *OutboxDispatcher) deliverWithRetry(ctx context.Context, channel notification.Channel, n *notification.Notification) notification.DeliveryResult {
	var result notification.DeliveryResult

	for attempt := 0; attempt <= d.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := d.calculateBackoff(attempt)
			d.logger.Debug("retrying delivery",
				"channel", channel.Type(),
				"attempt", attempt,
				"backoff", backoff,
			)

			select {
			case <-ctx.Done():
				return notification.NewFailureResult(channel.Type(), ctx.Err(), false)
			case <-time.After(backoff):
			}
		}

		start := time.Now()
		result = channel.Deliver(ctx, n)
		d.metrics.RecordExecution(n.Type, time.Since(start), result.Success)

		if result.Success {
			if attempt > 0 {
				d.metrics.RecordRetrySuccess(n.Type)
			}
			return result
		}

		if !result.Retryable {
			return result
		}
	}

	return result
}

func (d *OutboxDispatcher) calculateBackoff(attempt int) time.Duration {
	backoff := float64(d.retryConfig.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.retryConfig.BackoffMultiplier
	}

	if backoff > float64(d.retryConfig.MaxBackoff) {
		backoff = float64(d.retryConfig.MaxBackoff)
	}

	return time.Duration(backoff)
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER METRICS
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherMetrics tracks delivery performance by notification kind.
type DispatcherMetrics struct {
	mu sync.RWMutex

	// Dispatch counts
	DispatchedTotal map[notification.Type]int64

	// Execution metrics
	ExecutionsTotal int64
	SuccessTotal    int64
	FailuresTotal   int64
	RetriesTotal    int64
	RetrySuccesses  int64

	// Duration tracking
	TotalDuration    time.Duration
	DurationByKind   map[notification.Type]time.Duration
	ExecutionsByKind map[notification.Type]int64

	StartedAt time.Time
}

// NewDispatcherMetrics creates new dispatcher metrics.
func NewDispatcherMetrics() *DispatcherMetrics {
	return &DispatcherMetrics{
		DispatchedTotal:  make(map[notification.Type]int64),
		DurationByKind:   make(map[notification.Type]time.Duration),
		ExecutionsByKind: make(map[notification.Type]int64),
		StartedAt:        time.Now(),
	}
}

// RecordDispatch records an entry dispatch.
func (m *DispatcherMetrics) RecordDispatch(kind notification.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DispatchedTotal[kind]++
}

// RecordExecution records a channel delivery attempt.
func (m *DispatcherMetrics) RecordExecution(kind notification.Type, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExecutionsTotal++
	m.TotalDuration += duration
	m.DurationByKind[kind] += duration
	m.ExecutionsByKind[kind]++

	if success {
		m.SuccessTotal++
	} else {
		m.FailuresTotal++
	}
}

// RecordRetrySuccess records a delivery that succeeded after retrying.
func (m *DispatcherMetrics) RecordRetrySuccess(kind notification.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RetriesTotal++
	m.RetrySuccesses++
}

// RecordFailure records an entry that failed all channels this cycle.
func (m *DispatcherMetrics) RecordFailure(kind notification.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailuresTotal++
}

// Snapshot returns a point-in-time snapshot.
func (m *DispatcherMetrics) Snapshot() DispatcherMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avgDuration := time.Duration(0)
	if m.ExecutionsTotal > 0 {
		avgDuration = m.TotalDuration / time.Duration(m.ExecutionsTotal)
	}

	successRate := 1.0
	if m.ExecutionsTotal > 0 {
		successRate = float64(m.SuccessTotal) / float64(m.ExecutionsTotal)
	}

	var totalDispatched int64
	for _, v := range m.DispatchedTotal {
		totalDispatched += v
	}

	return DispatcherMetricsSnapshot{
		TotalDispatched: totalDispatched,
		TotalExecutions: m.ExecutionsTotal,
		TotalFailures:   m.FailuresTotal,
		TotalRetries:    m.RetriesTotal,
		SuccessRate:     successRate,
		AverageDuration: avgDuration,
		StartedAt:       m.StartedAt,
	}
}

// DispatcherMetricsSnapshot is a point-in-time snapshot.
type DispatcherMetricsSnapshot struct {
	TotalDispatched int64
	TotalExecutions int64
	TotalFailures   int64
	TotalRetries    int64
	SuccessRate     float64
	AverageDuration time.Duration
	StartedAt       time.Time
}
