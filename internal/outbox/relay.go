package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civicdesk/pkg/platform/circuit"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// openBackoff multiplies the poll interval while the broker circuit is open.
const openBackoff = 10

type Store interface {
	ClaimBatch(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
}

// Relay polls the outbox and publishes unpublished rows in creation order.
type Relay struct {
	store     Store
	tx        Transactor
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
	breaker   *circuit.Breaker
	now       func() time.Time
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithBreaker replaces the default broker circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		if b != nil {
			r.breaker = b
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

func NewRelay(store Store, tx Transactor, publisher Publisher, opts ...Option) (*Relay, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	if tx == nil {
		return nil, errors.New("transactor is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	r := &Relay{
		store:     store,
		tx:        tx,
		publisher: publisher,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		breaker:   circuit.New("kafka"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunOnce publishes batches until the outbox is drained or a batch fails.
// It returns the number of messages published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.publishBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

func (r *Relay) publishBatch(ctx context.Context) (int, error) {
	var published int
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		msgs, err := r.store.ClaimBatch(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		if err := r.publisher.Publish(ctx, msgs); err != nil {
			r.publishFailed(ctx, err)
			return err
		}
		r.publishSucceeded(ctx)
		ids := make([]uuid.UUID, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		if err := r.store.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		published = len(msgs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if r.metrics != nil && published > 0 {
		r.metrics.Published.Add(float64(published))
	}
	return published, nil
}

func (r *Relay) publishFailed(ctx context.Context, err error) {
	if r.metrics != nil {
		r.metrics.PublishFailures.Inc()
	}
	if _, change := r.breaker.RecordFailure(); change.Opened {
		r.logger.ErrorContext(ctx, "kafka circuit opened, slowing outbox polling",
			"error", err,
			"retry_interval", (r.interval * openBackoff).String(),
		)
		if r.metrics != nil {
			r.metrics.CircuitOpen.Set(1)
		}
	}
}

func (r *Relay) publishSucceeded(ctx context.Context) {
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "kafka circuit closed, outbox polling restored")
		if r.metrics != nil {
			r.metrics.CircuitOpen.Set(0)
		}
	}
}

// nextWait is the poll interval, stretched while the broker is failing.
func (r *Relay) nextWait() time.Duration {
	if r.breaker.IsOpen() {
		return r.interval * openBackoff
	}
	return r.interval
}

// Run drains the outbox until ctx is cancelled. A failed batch is logged and
// retried on the next poll.
func (r *Relay) Run(ctx context.Context) error {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	r.logger.InfoContext(ctx, "outbox relay started",
		"interval", r.interval.String(),
		"batch_size", r.batchSize,
	)
	for {
		n, err := r.RunOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			r.logger.ErrorContext(ctx, "outbox publish failed", "error", err, "published", n)
		case n > 0:
			r.logger.InfoContext(ctx, "outbox messages published", "count", n)
		}

		timer.Reset(r.nextWait())
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-timer.C:
		}
	}
}
