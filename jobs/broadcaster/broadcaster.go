package broadcaster

import (
	"context"
	"time"

	"go.uber.org/zap"

	exitwal "custody/infra/wal/exit"
	"custody/metrics"
)

// Publisher delivers one event to the broker and returns once it is
// acknowledged.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// Broadcaster drains the outbox to a Publisher in sequence order. A failed
// publish stops the pass so later events never overtake it.
type Broadcaster struct {
	exitWAL   *exitwal.ExitWAL
	publisher Publisher
	interval  time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	exitWAL *exitwal.ExitWAL,
	publisher Publisher,
	interval time.Duration,
	log *zap.Logger,
	m *metrics.Metrics,
) *Broadcaster {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Broadcaster{
		exitWAL:   exitWAL,
		publisher: publisher,
		interval:  interval,
		log:       log,
		metrics:   m,
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run drains the outbox every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info("broadcaster started", zap.Duration("interval", b.interval))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("broadcaster stopped")
			return nil

		case <-ticker.C:
			if _, err := b.DrainOnce(ctx); err != nil {
				b.log.Warn("outbox drain interrupted", zap.Error(err))
			}
		}
	}
}

// ------------------------------------------------
// DRAIN LOGIC
// ------------------------------------------------

// DrainOnce publishes pending events until the outbox is empty or a
// publish fails. It returns how many events were acknowledged.
func (b *Broadcaster) DrainOnce(ctx context.Context) (int, error) {
	published := 0
	var publishErr error

	err := b.exitWAL.ScanPending(func(rec exitwal.ExitRecord) error {
		if err := b.exitWAL.MarkSent(rec.Seq); err != nil {
			return err
		}

		if err := b.publisher.Publish(ctx, rec.Key, rec.Payload); err != nil {
			publishErr = err
			if markErr := b.exitWAL.MarkFailed(rec.Seq); markErr != nil {
				return markErr
			}
			b.metrics.EventFailed()
			b.log.Warn("event publish failed, will retry",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("retries", rec.Retries+1),
				zap.Error(err),
			)
			return exitwal.ErrStopScan
		}

		if err := b.exitWAL.MarkAcked(rec.Seq); err != nil {
			return err
		}
		b.metrics.EventPublished()
		published++
		return nil
	})
	if err != nil {
		return published, err
	}
	if n, perr := b.exitWAL.Pending(); perr == nil {
		b.metrics.SetOutboxPending(n)
	}
	return published, publishErr
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
