package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/session"
	"github.com/RubachokBoss/interview-proctoring/internal/worker/queue"
	"github.com/rs/zerolog"
)

// Dispatcher routes a browser signal to its live session.
type Dispatcher interface {
	Dispatch(ctx context.Context, candidateID, interviewID string, sig session.Signal) error
}

type SignalWorker interface {
	Start(ctx context.Context) error
	Stop() error
	GetStats() WorkerStats
}

type WorkerStats struct {
	BusyWorkers int `json:"busy_workers"`
	Processed   int `json:"processed"`
	Dropped     int `json:"dropped"`
	Requeued    int `json:"requeued"`
	QueueLength int `json:"queue_length"`
}

type signalWorker struct {
	workerPool *WorkerPool
	consumer   queue.Consumer
	dispatcher Dispatcher
	logger     zerolog.Logger
	done       chan struct{}
	started    atomic.Bool
	stats      WorkerStats
	statsMutex sync.RWMutex
	startTime  time.Time
}

func NewSignalWorker(
	workerPool *WorkerPool,
	consumer queue.Consumer,
	dispatcher Dispatcher,
	logger zerolog.Logger,
) SignalWorker {
	return &signalWorker{
		workerPool: workerPool,
		consumer:   consumer,
		dispatcher: dispatcher,
		logger:     logger,
		done:       make(chan struct{}),
		startTime:  time.Now(),
	}
}

func (w *signalWorker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting signal worker...")

	if err := w.workerPool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	msgs, err := w.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	w.started.Store(true)
	go w.processMessages(ctx, msgs)

	w.logger.Info().Msg("Signal worker started successfully")
	return nil
}

// Stop waits for the consume loop to exit, so it must follow cancellation
// of the context passed to Start.
func (w *signalWorker) Stop() error {
	w.logger.Info().Msg("Stopping signal worker...")

	if w.started.Load() {
		<-w.done
	}

	if err := w.workerPool.Stop(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to stop worker pool")
	}

	if err := w.consumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	stats := w.GetStats()
	w.logger.Info().
		Int("processed", stats.Processed).
		Int("dropped", stats.Dropped).
		Int("requeued", stats.Requeued).
		Dur("uptime", time.Since(w.startTime)).
		Msg("Signal worker stopped")

	return nil
}

func (w *signalWorker) GetStats() WorkerStats {
	w.statsMutex.RLock()
	stats := w.stats
	w.statsMutex.RUnlock()

	stats.BusyWorkers = w.workerPool.GetBusyWorkers()
	stats.QueueLength = w.workerPool.GetQueueLength()
	return stats
}

func (w *signalWorker) processMessages(ctx context.Context, msgs <-chan queue.Message) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}

			accepted := w.workerPool.Submit(func() {
				w.settle(msg, w.processMessage(ctx, msg))
			})
			if !accepted {
				w.requeue(msg)
			}
		}
	}
}

func (w *signalWorker) settle(msg queue.Message, err error) {
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		w.count(func(s *WorkerStats) { s.Processed++ })
		return
	}

	if isPermanentError(err) {
		w.logger.Warn().Err(err).Msg("Dropping signal message")
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		w.count(func(s *WorkerStats) { s.Dropped++ })
		return
	}

	w.logger.Error().Err(err).Msg("Failed to process signal message")
	w.requeue(msg)
}

func (w *signalWorker) requeue(msg queue.Message) {
	if nackErr := msg.Nack(false, true); nackErr != nil {
		w.logger.Error().Err(nackErr).Msg("Failed to nack message")
	}
	w.count(func(s *WorkerStats) { s.Requeued++ })
}

func (w *signalWorker) count(update func(*WorkerStats)) {
	w.statsMutex.Lock()
	update(&w.stats)
	w.statsMutex.Unlock()
}

func (w *signalWorker) processMessage(ctx context.Context, msg queue.Message) error {
	var event models.SignalMessage
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return permanent(fmt.Errorf("failed to unmarshal signal: %w", err))
	}

	if strings.TrimSpace(event.CandidateID) == "" {
		return permanent(errors.New("empty candidate_id"))
	}
	if strings.TrimSpace(event.InterviewID) == "" {
		return permanent(errors.New("empty interview_id"))
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = msg.Timestamp
	}

	sig, err := session.ParseSignal(event.Kind, event.Value, occurredAt)
	if err != nil {
		return permanent(err)
	}

	w.logger.Debug().
		Str("candidate_id", event.CandidateID).
		Str("interview_id", event.InterviewID).
		Str("kind", event.Kind).
		Msg("Dispatching signal")

	err = w.dispatcher.Dispatch(ctx, event.CandidateID, event.InterviewID, sig)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrSessionTerminated),
		errors.Is(err, models.ErrInvalidSignal):
		return permanent(err)
	default:
		return fmt.Errorf("failed to dispatch signal: %w", err)
	}
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
