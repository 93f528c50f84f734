package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"whozere-relay/internal/service"
	"whozere-relay/internal/util"
)

// Source is the subset of client.KafkaConsumer the worker needs.
type Source interface {
	FetchMessage(ctx context.Context) (*kafka.Message, error)
	Commit(ctx context.Context, msg *kafka.Message) error
}

// Processor handles one raw webhook payload.
type Processor interface {
	Handle(ctx context.Context, payload []byte) (service.Result, error)
}

type Worker struct {
	source      Source
	processor   Processor
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
}

type Option func(*Worker)

// WithRetry sets how many times a message is handled when storage fails.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
		w.backoff = backoff
	}
}

func NewWorker(source Source, processor Processor, logger *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		source:      source,
		processor:   processor,
		logger:      logger,
		maxAttempts: 3,
		backoff:     time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes messages one at a time until ctx is cancelled. Every message is
// committed once handled, including invalid payloads and failed deliveries;
// only storage failures are retried.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Ingest worker started", util.Int("max_attempts", w.maxAttempts))

	for {
		msg, err := w.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Ingest worker stopped")
				return nil
			}
			return err
		}

		w.process(ctx, msg)

		if err := w.source.Commit(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (w *Worker) process(ctx context.Context, msg *kafka.Message) {
	fields := []zap.Field{
		util.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	for attempt := 1; ; attempt++ {
		result, err := w.processor.Handle(ctx, msg.Value)
		switch {
		case err == nil:
			w.logger.Debug("Ingested login event",
				append(fields, util.String("outcome", result.Message), util.String("record_id", result.RecordID))...)
			return
		case errors.Is(err, service.ErrInvalidPayload):
			w.logger.Warn("Skipping invalid payload", append(fields, util.ErrorField(err))...)
			return
		case errors.Is(err, service.ErrStorage) && attempt < w.maxAttempts:
			w.logger.Warn("Storage failed, retrying",
				append(fields, util.Int("attempt", attempt), util.ErrorField(err))...)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
		default:
			w.logger.Error("Dropping login event", append(fields, util.Int("attempt", attempt), util.ErrorField(err))...)
			return
		}
	}
}
