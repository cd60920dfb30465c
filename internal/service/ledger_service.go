package service

import (
	"context"
	"fmt"

	"github.com/DeybisMelendez/km9-comanda/internal/metrics"
	"github.com/DeybisMelendez/km9-comanda/internal/model"
	"github.com/DeybisMelendez/km9-comanda/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("km9-comanda/service")

// Stock quantities are stored as decimal(12,3).
const quantityScale = 3

var quantityLimit = decimal.New(1, 12-quantityScale)

// checkStorable rejects quantities the stock columns cannot hold exactly, so a
// posted movement changes the stored stock by exactly its quantity.
func checkStorable(q decimal.Decimal, what string) error {
	if !q.Equal(q.Round(quantityScale)) {
		return invalidQuantity("%s %s has more than %d decimal places", what, q.String(), quantityScale)
	}
	if q.Abs().GreaterThanOrEqual(quantityLimit) {
		return invalidQuantity("%s %s is out of range", what, q.String())
	}
	return nil
}

// MovementInput is a request to change an ingredient's stock by Quantity.
type MovementInput struct {
	IngredientID uuid.UUID
	Quantity     decimal.Decimal
	Reason       model.Reason
	Actor        Actor
}

// LedgerPolicy holds the tunable rules of the ledger.
type LedgerPolicy struct {
	// AllowNegativeStock lets consumption drive stock below zero. The floor
	// staff sells first and counts later, so this defaults to true.
	AllowNegativeStock bool
}

// MovementNotifier receives committed movements. The worker dispatcher
// implements it; a nil notifier is allowed.
type MovementNotifier interface {
	EnqueueMovementPosted(ctx context.Context, m *model.Movement) error
}

// LedgerService owns the movement log and the cached stock column.
type LedgerService interface {
	// PostMovement appends a movement and updates the cache in one transaction.
	PostMovement(ctx context.Context, in MovementInput) (*model.Movement, error)
	// PostMovementTx does the same inside a caller-owned transaction. The caller
	// must invoke Committed after its transaction commits.
	PostMovementTx(tx *gorm.DB, in MovementInput) (*model.Movement, error)
	Committed(ctx context.Context, movements ...*model.Movement)
	CurrentStock(ctx context.Context, ingredientID uuid.UUID) (decimal.Decimal, error)
	ListMovements(ctx context.Context, filter repository.MovementFilter) ([]model.Movement, int64, error)
}

type ledgerService struct {
	ingredients repository.IngredientRepository
	movements   repository.MovementRepository
	notifier    MovementNotifier
	policy      LedgerPolicy
}

func NewLedgerService(
	ingredients repository.IngredientRepository,
	movements repository.MovementRepository,
	notifier MovementNotifier,
	policy LedgerPolicy,
) LedgerService {
	return &ledgerService{
		ingredients: ingredients,
		movements:   movements,
		notifier:    notifier,
		policy:      policy,
	}
}

func (s *ledgerService) PostMovement(ctx context.Context, in MovementInput) (*model.Movement, error) {
	ctx, span := tracer.Start(ctx, "ledger.PostMovement",
		trace.WithAttributes(
			attribute.String("ingredient.id", in.IngredientID.String()),
			attribute.String("movement.quantity", in.Quantity.String()),
			attribute.String("movement.kind", string(in.Reason.Kind)),
		),
	)
	defer span.End()

	var mov *model.Movement
	err := runTx(ctx, s.ingredients.DB(), func(tx *gorm.DB) error {
		var err error
		mov, err = s.PostMovementTx(tx, in)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.Committed(ctx, mov)
	return mov, nil
}

func (s *ledgerService) PostMovementTx(tx *gorm.DB, in MovementInput) (*model.Movement, error) {
	if in.Quantity.IsZero() {
		return nil, invalidQuantity("movement quantity must be non-zero")
	}
	if err := checkStorable(in.Quantity, "movement quantity"); err != nil {
		return nil, err
	}

	// The row lock serializes every writer of this ingredient's cache until commit.
	ing, err := s.ingredients.LockTx(tx, in.IngredientID)
	if err != nil {
		return nil, notFound(err, "ingredient", in.IngredientID)
	}

	after := ing.StockQuantity.Add(in.Quantity)
	if err := checkStorable(after, "resulting stock of "+ing.Name); err != nil {
		return nil, err
	}
	if !s.policy.AllowNegativeStock && in.Quantity.IsNegative() && after.IsNegative() {
		return nil, fmt.Errorf("%w: %s has %s %s, movement needs %s",
			ErrInsufficientStock, ing.Name, ing.StockQuantity.String(), ing.Unit, in.Quantity.Neg().String())
	}

	mov := &model.Movement{
		IngredientID:  ing.ID,
		Quantity:      in.Quantity,
		ReasonKind:    in.Reason.Kind,
		ReasonOrderID: in.Reason.OrderID,
		Note:          in.Reason.Note,
		Reason:        in.Reason.String(),
		UserID:        in.Actor.UserID,
		Username:      in.Actor.Username,
		StockBefore:   ing.StockQuantity,
		StockAfter:    after,
	}
	if err := s.movements.CreateTx(tx, mov); err != nil {
		return nil, err
	}
	if err := s.ingredients.ApplyDeltaTx(tx, ing.ID, in.Quantity); err != nil {
		return nil, notFound(err, "ingredient", ing.ID)
	}
	return mov, nil
}

func (s *ledgerService) Committed(ctx context.Context, movements ...*model.Movement) {
	for _, m := range movements {
		metrics.MovementsPosted.WithLabelValues(string(m.ReasonKind)).Inc()
		if s.notifier == nil {
			continue
		}
		// Best-effort: the movement is already durable.
		if err := s.notifier.EnqueueMovementPosted(ctx, m); err != nil {
			log.Warn().Err(err).Str("movement_id", m.ID.String()).Msg("ledger: failed to enqueue movement event")
		}
	}
}

func (s *ledgerService) CurrentStock(ctx context.Context, ingredientID uuid.UUID) (decimal.Decimal, error) {
	ing, err := s.ingredients.FindByID(ctx, ingredientID)
	if err != nil {
		return decimal.Zero, notFound(err, "ingredient", ingredientID)
	}
	return ing.StockQuantity, nil
}

func (s *ledgerService) ListMovements(ctx context.Context, filter repository.MovementFilter) ([]model.Movement, int64, error) {
	return s.movements.List(ctx, filter)
}
