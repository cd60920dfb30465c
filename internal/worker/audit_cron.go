package worker

// The audit cron sweeps every ingredient and records cache/log mismatches.
// It never repairs: fixing is an explicit operator action (ledgerctl repair).

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/service"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	AuditLockKey    = "lock:ledger-audit"
	MismatchListKey = "ledger:mismatches"

	mismatchListMax = 500
)

type AuditCronConfig struct {
	Inventory service.InventoryService
	RDB       *redis.Client
	Interval  time.Duration
}

// MismatchRecord is what the audit stores in MismatchListKey.
type MismatchRecord struct {
	IngredientID string    `json:"ingredient_id"`
	Ingredient   string    `json:"ingredient"`
	Cached       string    `json:"cached"`
	Computed     string    `json:"computed"`
	DetectedAt   time.Time `json:"detected_at"`
}

// StartAuditCron runs an audit every cfg.Interval until ctx is done. A zero
// interval disables it.
func StartAuditCron(ctx context.Context, cfg AuditCronConfig) {
	if cfg.Interval <= 0 {
		log.Info().Msg("audit_cron: disabled")
		return
	}
	locker := redislock.New(cfg.RDB)
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		log.Info().Dur("interval", cfg.Interval).Msg("audit_cron: started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("audit_cron: shutting down")
				return
			case <-ticker.C:
				if _, err := RunAudit(ctx, cfg.Inventory, cfg.RDB, locker, cfg.Interval); err != nil {
					log.Error().Err(err).Msg("audit_cron: sweep failed")
				}
			}
		}
	}()
}

// RunAudit performs one sweep if this replica wins the lock. It returns the
// number of mismatching ingredients; a lost lock race returns (0, nil).
func RunAudit(ctx context.Context, inventory service.InventoryService, rdb *redis.Client, locker *redislock.Client, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	lock, err := locker.Obtain(ctx, AuditLockKey, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		log.Debug().Msg("audit_cron: another replica holds the lock, skipping tick")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn().Err(err).Msg("audit_cron: failed to release lock")
		}
	}()

	mismatches, err := inventory.ReconcileAll(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	for _, m := range mismatches {
		log.Error().
			Str("ingredient_id", m.IngredientID.String()).
			Str("ingredient", m.Name).
			Str("cached", m.Cached.String()).
			Str("computed", m.Computed.String()).
			Msg("audit_cron: stock cache does not match movement log")

		data, err := json.Marshal(MismatchRecord{
			IngredientID: m.IngredientID.String(),
			Ingredient:   m.Name,
			Cached:       m.Cached.String(),
			Computed:     m.Computed.String(),
			DetectedAt:   now,
		})
		if err != nil {
			return len(mismatches), err
		}
		if err := rdb.LPush(ctx, MismatchListKey, data).Err(); err != nil {
			return len(mismatches), err
		}
	}
	if len(mismatches) > 0 {
		if err := rdb.LTrim(ctx, MismatchListKey, 0, mismatchListMax-1).Err(); err != nil {
			return len(mismatches), err
		}
	}
	log.Info().Int("mismatches", len(mismatches)).Msg("audit_cron: sweep done")
	return len(mismatches), nil
}
