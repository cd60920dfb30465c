package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DLQPrefix namespaces dead-letter lists: events the pool gave up on are kept
// in dlq:{queue} until an operator replays or drops them.
const DLQPrefix = "dlq:"

// DeadEvent is a ledger event that could not be delivered. The movement and
// ingredient ids are lifted out of the payload so stuck events can be matched
// against the movement log without decoding it.
type DeadEvent struct {
	Queue        string          `json:"queue"`
	JobType      string          `json:"job_type"`
	MovementID   string          `json:"movement_id,omitempty"`
	IngredientID string          `json:"ingredient_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Reason       string          `json:"reason"`
	Attempts     int             `json:"attempts"`
	FailedAt     time.Time       `json:"failed_at"`
}

// sendToDLQ parks a job. ev is nil when the payload could not be decoded.
func sendToDLQ(ctx context.Context, rdb *redis.Client, queue string, job Job, ev *MovementEvent, reason string, attempts int) {
	dead := DeadEvent{
		Queue:    queue,
		JobType:  job.Type,
		Payload:  job.Payload,
		Reason:   reason,
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
	if ev != nil {
		dead.MovementID = ev.MovementID
		dead.IngredientID = ev.IngredientID
	}
	data, err := json.Marshal(dead)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: failed to marshal dead event")
		return
	}
	key := DLQPrefix + queue
	if err := rdb.LPush(ctx, key, data).Err(); err != nil {
		log.Error().Err(err).Str("dlq_key", key).Str("movement_id", dead.MovementID).Msg("dlq: failed to push")
		return
	}
	log.Warn().
		Str("job_type", job.Type).
		Str("movement_id", dead.MovementID).
		Str("ingredient_id", dead.IngredientID).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("dlq: ledger event parked")
}

// DeadEvents returns up to limit parked events of queue, newest first.
func DeadEvents(ctx context.Context, rdb *redis.Client, queue string, limit int64) ([]DeadEvent, error) {
	raw, err := rdb.LRange(ctx, DLQPrefix+queue, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadEvent, 0, len(raw))
	for _, r := range raw {
		var dead DeadEvent
		if err := json.Unmarshal([]byte(r), &dead); err != nil {
			return nil, fmt.Errorf("decoding dead event: %w", err)
		}
		out = append(out, dead)
	}
	return out, nil
}

func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}
