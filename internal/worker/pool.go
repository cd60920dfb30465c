package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/infra"
	"github.com/DeybisMelendez/km9-comanda/internal/metrics"
	"github.com/DeybisMelendez/km9-comanda/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueLedgerEvents = "jobs:ledger_events"

	JobMovementPosted = "movement_posted"
	EventMovement     = "movement.posted"

	publishAttempts = 3
)

// Job is the envelope stored in the Redis queue.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MovementEvent is the public shape of a committed movement.
type MovementEvent struct {
	MovementID   string    `json:"movement_id"`
	IngredientID string    `json:"ingredient_id"`
	Quantity     string    `json:"quantity"`
	StockBefore  string    `json:"stock_before"`
	StockAfter   string    `json:"stock_after"`
	Kind         string    `json:"kind"`
	OrderID      *string   `json:"order_id,omitempty"`
	Reason       string    `json:"reason"`
	User         string    `json:"user,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewMovementEvent(m *model.Movement) MovementEvent {
	ev := MovementEvent{
		MovementID:   m.ID.String(),
		IngredientID: m.IngredientID.String(),
		Quantity:     m.Quantity.String(),
		StockBefore:  m.StockBefore.String(),
		StockAfter:   m.StockAfter.String(),
		Kind:         string(m.ReasonKind),
		Reason:       m.Reason,
		User:         m.Username,
		CreatedAt:    m.CreatedAt,
	}
	if m.ReasonOrderID != nil {
		id := m.ReasonOrderID.String()
		ev.OrderID = &id
	}
	return ev
}

// Dispatcher enqueues jobs into Redis lists; the pool pops them with BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueMovementPosted is called by the ledger after a movement commits.
func (d *Dispatcher) EnqueueMovementPosted(ctx context.Context, m *model.Movement) error {
	return d.enqueue(ctx, QueueLedgerEvents, JobMovementPosted, NewMovementEvent(m))
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Publisher is the outbound event sink (Kafka in production).
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload []byte) error
}

// Pool consumes the ledger event queue. A nil publisher means events are only
// logged, which is the default when no broker is configured.
type Pool struct {
	rdb       *redis.Client
	publisher Publisher
	cb        *infra.CircuitBreaker
	backoff   time.Duration
	// readPause is how long a worker waits after a failed queue read.
	readPause time.Duration
}

func NewPool(rdb *redis.Client, publisher Publisher, cb *infra.CircuitBreaker) *Pool {
	if cb == nil {
		cb = infra.NewCircuitBreaker("event-publisher", infra.DefaultCBConfig())
	}
	return &Pool{rdb: rdb, publisher: publisher, cb: cb, backoff: time.Second, readPause: time.Second}
}

// Start launches numWorkers goroutines blocked on BRPOP until ctx is done.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go p.runWorker(ctx, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			result, err := p.rdb.BRPop(ctx, 5*time.Second, QueueLedgerEvents).Result()
			if err != nil && !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Warn().Err(err).Int("worker", id).Msg("worker: queue read failed")
				select {
				case <-ctx.Done():
				case <-time.After(p.readPause):
				}
				continue
			}
			if err != nil || len(result) < 2 {
				continue
			}
			p.processJob(ctx, result[0], result[1])
		}
	}
}

func (p *Pool) processJob(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		metrics.JobsProcessed.WithLabelValues("unknown", "invalid").Inc()
		return
	}

	switch job.Type {
	case JobMovementPosted:
		p.handleMovementPosted(ctx, queue, job)
	default:
		log.Warn().Str("type", job.Type).Str("queue", queue).Msg("unknown job type")
		metrics.JobsProcessed.WithLabelValues(job.Type, "unknown").Inc()
	}
}

func (p *Pool) handleMovementPosted(ctx context.Context, queue string, job Job) {
	var ev MovementEvent
	if err := json.Unmarshal(job.Payload, &ev); err != nil {
		sendToDLQ(ctx, p.rdb, queue, job, nil, "bad payload: "+err.Error(), 0)
		metrics.JobsProcessed.WithLabelValues(job.Type, "dead").Inc()
		return
	}
	if p.publisher == nil {
		log.Info().
			Str("movement_id", ev.MovementID).
			Str("ingredient_id", ev.IngredientID).
			Str("quantity", ev.Quantity).
			Str("kind", ev.Kind).
			Msg("ledger event")
		metrics.JobsProcessed.WithLabelValues(job.Type, "logged").Inc()
		return
	}

	attempts, err := withRetry(ctx, publishAttempts, p.backoff, func() error {
		return p.cb.Execute(func() error {
			return p.publisher.Publish(ctx, EventMovement, ev.IngredientID, job.Payload)
		})
	})
	if err != nil {
		reason := err.Error()
		if errors.Is(err, infra.ErrCircuitOpen) {
			reason = "publisher unavailable: " + reason
		}
		sendToDLQ(ctx, p.rdb, queue, job, &ev, reason, attempts)
		metrics.JobsProcessed.WithLabelValues(job.Type, "dead").Inc()
		return
	}
	metrics.JobsProcessed.WithLabelValues(job.Type, "published").Inc()
}

// withRetry calls fn up to maxAttempts times, doubling the wait after each
// failure. It returns the number of attempts made and the last error.
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) (int, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-time.After(base << uint(i-1)):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return i + 1, nil
		}
	}
	return maxAttempts, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
