package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeybisMelendez/km9-comanda/internal/metrics"
	"github.com/DeybisMelendez/km9-comanda/internal/model"
	"github.com/DeybisMelendez/km9-comanda/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockLine pairs an ingredient with a quantity: a delivered amount for
// purchases, an observed amount for physical counts.
type StockLine struct {
	IngredientID uuid.UUID
	Quantity     decimal.Decimal
}

// ReconcileResult compares the cached stock with the movement sum.
type ReconcileResult struct {
	IngredientID uuid.UUID
	Name         string
	Unit         model.Unit
	Cached       decimal.Decimal
	Computed     decimal.Decimal
	Movements    int64
}

func (r ReconcileResult) Consistent() bool { return r.Cached.Equal(r.Computed) }

// InventoryService covers purchases, physical counts and the audit/repair path.
type InventoryService interface {
	// Reconcile never writes. A mismatch is returned as *ConsistencyError
	// alongside the result.
	Reconcile(ctx context.Context, ingredientID uuid.UUID) (*ReconcileResult, error)
	// ReconcileAll returns only the ingredients that do not reconcile.
	ReconcileAll(ctx context.Context) ([]ReconcileResult, error)
	Repair(ctx context.Context, ingredientID uuid.UUID, actor Actor) (*ReconcileResult, error)

	Purchase(ctx context.Context, ingredientID uuid.UUID, qty decimal.Decimal, note string, actor Actor) (*model.Movement, error)
	BulkPurchase(ctx context.Context, lines []StockLine, note string, actor Actor) ([]*model.Movement, error)
	// PhysicalCountAdjustment returns (nil, nil) when the count matches the stock.
	PhysicalCountAdjustment(ctx context.Context, ingredientID uuid.UUID, observed decimal.Decimal, note string, actor Actor) (*model.Movement, error)
	BulkPhysicalCount(ctx context.Context, counts []StockLine, note string, actor Actor) ([]*model.Movement, error)
}

type inventoryService struct {
	ingredients repository.IngredientRepository
	movements   repository.MovementRepository
	ledger      LedgerService
}

func NewInventoryService(
	ingredients repository.IngredientRepository,
	movements repository.MovementRepository,
	ledger LedgerService,
) InventoryService {
	return &inventoryService{ingredients: ingredients, movements: movements, ledger: ledger}
}

// ── Consistency ──────────────────────────────────────────────────────────────

func (s *inventoryService) Reconcile(ctx context.Context, ingredientID uuid.UUID) (*ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "inventory.Reconcile")
	defer span.End()

	var res *ReconcileResult
	// Cache and sum are read under the row lock so an in-flight posting cannot
	// show up as a false mismatch.
	err := runTx(ctx, s.ingredients.DB(), func(tx *gorm.DB) error {
		var err error
		res, err = s.compareTx(tx, ingredientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !res.Consistent() {
		metrics.ReconcileMismatches.Inc()
		return res, &ConsistencyError{IngredientID: res.IngredientID, Cached: res.Cached, Computed: res.Computed}
	}
	return res, nil
}

func (s *inventoryService) compareTx(tx *gorm.DB, ingredientID uuid.UUID) (*ReconcileResult, error) {
	ing, err := s.ingredients.LockTx(tx, ingredientID)
	if err != nil {
		return nil, notFound(err, "ingredient", ingredientID)
	}
	sum, err := s.movements.SumByIngredientTx(tx, ing.ID)
	if err != nil {
		return nil, fmt.Errorf("summing movements of %s: %w", ing.Name, err)
	}
	count, err := s.movements.CountByIngredientTx(tx, ing.ID)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{
		IngredientID: ing.ID,
		Name:         ing.Name,
		Unit:         ing.Unit,
		Cached:       ing.StockQuantity,
		Computed:     sum,
		Movements:    count,
	}, nil
}

func (s *inventoryService) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	ingredients, err := s.ingredients.List(ctx)
	if err != nil {
		return nil, err
	}
	var mismatches []ReconcileResult
	for _, ing := range ingredients {
		res, err := s.Reconcile(ctx, ing.ID)
		var cerr *ConsistencyError
		switch {
		case errors.As(err, &cerr):
			mismatches = append(mismatches, *res)
		case err != nil:
			return mismatches, err
		}
	}
	return mismatches, nil
}

func (s *inventoryService) Repair(ctx context.Context, ingredientID uuid.UUID, actor Actor) (*ReconcileResult, error) {
	var res *ReconcileResult
	err := runTx(ctx, s.ingredients.DB(), func(tx *gorm.DB) error {
		var err error
		res, err = s.compareTx(tx, ingredientID)
		if err != nil || res.Consistent() {
			return err
		}
		return s.ingredients.SetStockTx(tx, res.IngredientID, res.Computed)
	})
	if err != nil {
		return nil, err
	}
	if !res.Consistent() {
		metrics.StockRepairs.Inc()
		log.Warn().
			Str("ingredient_id", res.IngredientID.String()).
			Str("ingredient", res.Name).
			Str("cached", res.Cached.String()).
			Str("computed", res.Computed.String()).
			Str("user", actor.Username).
			Msg("inventory: cached stock repaired from movement log")
	}
	return res, nil
}

// ── Purchases ────────────────────────────────────────────────────────────────

func (s *inventoryService) Purchase(ctx context.Context, ingredientID uuid.UUID, qty decimal.Decimal, note string, actor Actor) (*model.Movement, error) {
	if !qty.IsPositive() {
		return nil, invalidQuantity("purchase quantity must be positive, got %s", qty.String())
	}
	return s.ledger.PostMovement(ctx, MovementInput{
		IngredientID: ingredientID,
		Quantity:     qty,
		Reason:       model.PurchaseReason(note),
		Actor:        actor,
	})
}

func (s *inventoryService) BulkPurchase(ctx context.Context, lines []StockLine, note string, actor Actor) ([]*model.Movement, error) {
	if len(lines) == 0 {
		return nil, invalidQuantity("purchase has no lines")
	}
	for _, l := range lines {
		if !l.Quantity.IsPositive() {
			return nil, invalidQuantity("purchase quantity must be positive, got %s", l.Quantity.String())
		}
	}

	var movements []*model.Movement
	err := runTx(ctx, s.ingredients.DB(), func(tx *gorm.DB) error {
		if _, err := s.lockAllTx(tx, lines); err != nil {
			return err
		}
		for _, l := range lines {
			mov, err := s.ledger.PostMovementTx(tx, MovementInput{
				IngredientID: l.IngredientID,
				Quantity:     l.Quantity,
				Reason:       model.PurchaseReason(note),
				Actor:        actor,
			})
			if err != nil {
				return err
			}
			movements = append(movements, mov)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Committed(ctx, movements...)
	return movements, nil
}

// ── Physical counts ──────────────────────────────────────────────────────────

func (s *inventoryService) PhysicalCountAdjustment(ctx context.Context, ingredientID uuid.UUID, observed decimal.Decimal, note string, actor Actor) (*model.Movement, error) {
	if observed.IsNegative() {
		return nil, invalidQuantity("observed quantity cannot be negative, got %s", observed.String())
	}

	var mov *model.Movement
	err := runTx(ctx, s.ingredients.DB(), func(tx *gorm.DB) error {
		ing, err := s.ingredients.LockTx(tx, ingredientID)
		if err != nil {
			return notFound(err, "ingredient", ingredientID)
		}
		mov, err = s.adjustTx(tx, ing, observed, note, actor)
		return err
	})
	if err != nil || mov == nil {
		return nil, err
	}
	s.ledger.Committed(ctx, mov)
	return mov, nil
}

func (s *inventoryService) BulkPhysicalCount(ctx context.Context, counts []StockLine, note string, actor Actor) ([]*model.Movement, error) {
	seen := make(map[uuid.UUID]bool, len(counts))
	for _, c := range counts {
		if c.Quantity.IsNegative() {
			return nil, invalidQuantity("observed quantity cannot be negative, got %s", c.Quantity.String())
		}
		if seen[c.IngredientID] {
			return nil, fmt.Errorf("%w: ingredient %s counted twice", ErrDuplicate, c.IngredientID)
		}
		seen[c.IngredientID] = true
	}

	observed := make(map[uuid.UUID]decimal.Decimal, len(counts))
	for _, c := range counts {
		observed[c.IngredientID] = c.Quantity
	}

	var movements []*model.Movement
	err := runTx(ctx, s.ingredients.DB(), func(tx *gorm.DB) error {
		locked, err := s.lockAllTx(tx, counts)
		if err != nil {
			return err
		}
		for i := range locked {
			mov, err := s.adjustTx(tx, &locked[i], observed[locked[i].ID], note, actor)
			if err != nil {
				return fmt.Errorf("adjusting %s: %w", locked[i].Name, err)
			}
			if mov != nil {
				movements = append(movements, mov)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Committed(ctx, movements...)
	return movements, nil
}

// adjustTx posts observed - cached for an ingredient already locked by tx.
func (s *inventoryService) adjustTx(tx *gorm.DB, ing *model.Ingredient, observed decimal.Decimal, note string, actor Actor) (*model.Movement, error) {
	diff := observed.Sub(ing.StockQuantity)
	if diff.IsZero() {
		return nil, nil
	}
	if note == "" && actor.Username != "" {
		note = "hecho por " + actor.Username
	}
	return s.ledger.PostMovementTx(tx, MovementInput{
		IngredientID: ing.ID,
		Quantity:     diff,
		Reason:       model.PhysicalCountReason(note),
		Actor:        actor,
	})
}

// lockAllTx locks every distinct ingredient of lines in ascending id order and
// fails with ErrNotFound if any of them does not exist.
func (s *inventoryService) lockAllTx(tx *gorm.DB, lines []StockLine) ([]model.Ingredient, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]bool, len(lines))
	for _, l := range lines {
		if !seen[l.IngredientID] {
			seen[l.IngredientID] = true
			ids = append(ids, l.IngredientID)
		}
	}
	locked, err := s.ingredients.LockManyTx(tx, ids)
	if err != nil {
		return nil, err
	}
	if len(locked) != len(ids) {
		found := make(map[uuid.UUID]bool, len(locked))
		for _, ing := range locked {
			found[ing.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, fmt.Errorf("%w: ingredient %s", ErrNotFound, id)
			}
		}
	}
	return locked, nil
}
