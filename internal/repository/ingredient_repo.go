package repository

import (
	"context"

	"github.com/DeybisMelendez/km9-comanda/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IngredientRepository owns reads of ingredients and the two writes allowed on
// the cached stock column. Callers must pass the tx that also writes the movement.
type IngredientRepository interface {
	CreateTx(tx *gorm.DB, i *model.Ingredient) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Ingredient, error)
	FindByName(ctx context.Context, name string) (*model.Ingredient, error)
	List(ctx context.Context) ([]model.Ingredient, error)

	// LockTx reads the row with SELECT ... FOR UPDATE.
	LockTx(tx *gorm.DB, id uuid.UUID) (*model.Ingredient, error)
	// LockManyTx locks every row in ascending id order so concurrent bulk
	// submissions acquire locks in the same sequence.
	LockManyTx(tx *gorm.DB, ids []uuid.UUID) ([]model.Ingredient, error)
	ApplyDeltaTx(tx *gorm.DB, id uuid.UUID, delta decimal.Decimal) error
	// SetStockTx overwrites the cache. Only the explicit repair path uses it.
	SetStockTx(tx *gorm.DB, id uuid.UUID, qty decimal.Decimal) error

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type ingredientRepo struct{ db *gorm.DB }

func NewIngredientRepository(db *gorm.DB) IngredientRepository { return &ingredientRepo{db: db} }

func (r *ingredientRepo) DB() *gorm.DB { return r.db }

func (r *ingredientRepo) CreateTx(tx *gorm.DB, i *model.Ingredient) error {
	return tx.Create(i).Error
}

func (r *ingredientRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Ingredient, error) {
	var i model.Ingredient
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&i).Error
	return &i, err
}

func (r *ingredientRepo) FindByName(ctx context.Context, name string) (*model.Ingredient, error) {
	var i model.Ingredient
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&i).Error
	return &i, err
}

func (r *ingredientRepo) List(ctx context.Context) ([]model.Ingredient, error) {
	var ingredients []model.Ingredient
	err := r.db.WithContext(ctx).Order("name ASC").Find(&ingredients).Error
	return ingredients, err
}

func (r *ingredientRepo) LockTx(tx *gorm.DB, id uuid.UUID) (*model.Ingredient, error) {
	var i model.Ingredient
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&i).Error
	return &i, err
}

func (r *ingredientRepo) LockManyTx(tx *gorm.DB, ids []uuid.UUID) ([]model.Ingredient, error) {
	var ingredients []model.Ingredient
	if len(ids) == 0 {
		return ingredients, nil
	}
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&ingredients).Error
	return ingredients, err
}

func (r *ingredientRepo) ApplyDeltaTx(tx *gorm.DB, id uuid.UUID, delta decimal.Decimal) error {
	res := tx.Model(&model.Ingredient{}).Where("id = ?", id).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ingredientRepo) SetStockTx(tx *gorm.DB, id uuid.UUID, qty decimal.Decimal) error {
	return tx.Model(&model.Ingredient{}).Where("id = ?", id).Update("stock_quantity", qty).Error
}
