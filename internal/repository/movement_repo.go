package repository

import (
	"context"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MovementFilter defines filters for listing stock movements.
type MovementFilter struct {
	IngredientID *uuid.UUID
	Kind         model.ReasonKind
	Page         int
	Limit        int
}

// MovementRepository is append-only: there is deliberately no Update or Delete.
type MovementRepository interface {
	CreateTx(tx *gorm.DB, m *model.Movement) error
	List(ctx context.Context, filter MovementFilter) ([]model.Movement, int64, error)
	ListInRange(ctx context.Context, start, end time.Time) ([]model.Movement, error)
	SumByIngredient(ctx context.Context, ingredientID uuid.UUID) (decimal.Decimal, error)
	SumByIngredientTx(tx *gorm.DB, ingredientID uuid.UUID) (decimal.Decimal, error)
	CountByIngredientTx(tx *gorm.DB, ingredientID uuid.UUID) (int64, error)
}

type movementRepo struct{ db *gorm.DB }

func NewMovementRepository(db *gorm.DB) MovementRepository {
	return &movementRepo{db: db}
}

func (r *movementRepo) CreateTx(tx *gorm.DB, m *model.Movement) error {
	return tx.Omit("Ingredient").Create(m).Error
}

func (r *movementRepo) List(ctx context.Context, filter MovementFilter) ([]model.Movement, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Movement{})
	if filter.IngredientID != nil {
		q = q.Where("ingredient_id = ?", *filter.IngredientID)
	}
	if filter.Kind != "" {
		q = q.Where("reason_kind = ?", filter.Kind)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	limit := filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset := (page - 1) * limit

	var movements []model.Movement
	err := q.Preload("Ingredient").Order("created_at DESC").Offset(offset).Limit(limit).Find(&movements).Error
	return movements, total, err
}

func (r *movementRepo) ListInRange(ctx context.Context, start, end time.Time) ([]model.Movement, error) {
	var movements []model.Movement
	err := r.db.WithContext(ctx).Preload("Ingredient").
		Where("created_at BETWEEN ? AND ?", start.UTC(), end.UTC()).
		Order("created_at ASC").
		Find(&movements).Error
	return movements, err
}

func (r *movementRepo) SumByIngredient(ctx context.Context, ingredientID uuid.UUID) (decimal.Decimal, error) {
	return sumByIngredient(r.db.WithContext(ctx), ingredientID)
}

func (r *movementRepo) SumByIngredientTx(tx *gorm.DB, ingredientID uuid.UUID) (decimal.Decimal, error) {
	return sumByIngredient(tx, ingredientID)
}

func (r *movementRepo) CountByIngredientTx(tx *gorm.DB, ingredientID uuid.UUID) (int64, error) {
	var n int64
	err := tx.Model(&model.Movement{}).Where("ingredient_id = ?", ingredientID).Count(&n).Error
	return n, err
}

func sumByIngredient(db *gorm.DB, ingredientID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := db.Model(&model.Movement{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("ingredient_id = ?", ingredientID).
		Row().Scan(&sum)
	return sum, err
}
