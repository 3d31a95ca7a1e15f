package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaykit/actionplane/pkg/store"
)

// Loop drives the outbox worker: poll, process each pending record
// sequentially, sleep on an empty batch, and stop cleanly once ctx is
// cancelled (SIGINT/SIGTERM) after the in-flight record finishes.
type Loop struct {
	Processor *Processor
	Outbox    store.OutboxStore
	Config    Config
	TenantID  string
}

// Run processes batches until ctx is cancelled. If once is true it returns
// after a single batch (possibly empty) instead of looping.
func (l *Loop) Run(ctx context.Context, once bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := l.runBatch(ctx)
		if err != nil {
			return err
		}
		if once {
			return nil
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.Config.PollInterval):
			}
		}
	}
}

func (l *Loop) runBatch(ctx context.Context) (int, error) {
	batchSize := l.Config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}

	records, err := l.Outbox.ListPending(ctx, l.TenantID, batchSize)
	if err != nil {
		return 0, err
	}

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return len(records), nil
		default:
		}
		if err := l.Processor.Process(ctx, rec); err != nil {
			l.logger().Error("processing record failed", "envelope_id", rec.Envelope.EnvelopeID, "error", err)
		}
	}
	return len(records), nil
}

func (l *Loop) logger() *slog.Logger {
	if l.Processor != nil && l.Processor.Logger != nil {
		return l.Processor.Logger
	}
	return slog.Default()
}
