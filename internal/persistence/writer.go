package persistence

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// Writer drains a Buffer and commits batches to a Store, supervised by a
// tomb.Tomb the same way the dispatch pool supervises its workers.
type Writer struct {
	buffer *Buffer
	store  Store

	batchMax      int
	batchInterval time.Duration
	maxRetries    int
}

// NewWriter creates a Writer with the default batching policy.
func NewWriter(buffer *Buffer, store Store) *Writer {
	return &Writer{
		buffer:        buffer,
		store:         store,
		batchMax:      DefaultBatchMax,
		batchInterval: DefaultBatchInterval,
		maxRetries:    5,
	}
}

// Run drains and flushes batches until t is dying, then drains and
// flushes whatever is still queued before returning. The tomb's own Kill
// cancels t.Context(nil) at the same moment it closes t.Dying(), so the
// final batch must not be committed against that context — exit's "flush
// persistence first" contract (spec.md §6) and §4.F's "never drop events
// silently" both require the shutdown-time drain to run to completion
// against a fresh context instead. It never returns a transient error:
// failures are retried with backoff; only a retry exhaustion halts the
// buffer (PERSISTENCE_FATAL) and returns an error to the tomb, which the
// caller can treat as the process-level "operator intervention required"
// signal.
func (w *Writer) Run(t *tomb.Tomb) error {
	ctx := t.Context(nil)
	for {
		select {
		case <-t.Dying():
			return w.drainRemaining()
		default:
		}

		batch, ok := w.buffer.drain(ctx, w.batchMax, w.batchInterval)
		if len(batch) > 0 {
			if err := w.flush(batch); err != nil {
				log.Error().Err(err).Int("batchSize", len(batch)).Msg("persistence batch failed permanently, halting ingestion")
				w.buffer.Halt()
				return err
			}
		}
		if !ok {
			return w.drainRemaining()
		}
	}
}

// drainRemaining flushes every event still sitting in the buffer's
// channel, in BATCH_MAX-sized batches, using drainNonBlocking rather than
// the buffer's blocking drain so it never waits on events that will never
// arrive once the writer has been told to stop.
func (w *Writer) drainRemaining() error {
	for {
		batch := w.buffer.drainNonBlocking(w.batchMax)
		if len(batch) == 0 {
			return nil
		}
		if err := w.flush(batch); err != nil {
			log.Error().Err(err).Int("batchSize", len(batch)).Msg("persistence batch failed permanently while flushing on shutdown")
			w.buffer.Halt()
			return err
		}
	}
}

// flush retries ApplyBatch with exponential backoff, up to maxRetries
// times, before giving up and letting the caller halt ingestion. It
// always commits against a fresh background context rather than whatever
// context triggered this flush: the retry budget is bounded by
// maxRetries on its own, so a shutdown-time drain still gets its full
// retry allowance instead of failing the instant the caller's context is
// cancelled.
func (w *Writer) flush(batch []Event) error {
	ctx := context.Background()
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(w.maxRetries))
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := w.store.ApplyBatch(ctx, batch)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("persistence batch failed, retrying")
		}
		return err
	}, backoff.WithContext(policy, ctx))
}
