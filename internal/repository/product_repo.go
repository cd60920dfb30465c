package repository

import (
	"context"

	"github.com/DeybisMelendez/km9-comanda/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductRepository defines the data access contract for the menu and its BOM.
type ProductRepository interface {
	CreateTx(tx *gorm.DB, p *model.Product) error
	CreateBOMEdgeTx(tx *gorm.DB, e *model.ProductIngredient) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.Product, error)
	// ListBOMTx returns the edges of a product, read inside the fulfillment tx.
	ListBOMTx(tx *gorm.DB, productID uuid.UUID) ([]model.ProductIngredient, error)

	CreateCategory(ctx context.Context, c *model.ProductCategory) error
	FindCategoryByID(ctx context.Context, id uuid.UUID) (*model.ProductCategory, error)

	DB() *gorm.DB
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) DB() *gorm.DB { return r.db }

func (r *productRepo) CreateTx(tx *gorm.DB, p *model.Product) error {
	return tx.Omit("Category", "Ingredients").Create(p).Error
}

func (r *productRepo) CreateBOMEdgeTx(tx *gorm.DB, e *model.ProductIngredient) error {
	return tx.Omit("Ingredient").Create(e).Error
}

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), id)
}

func (r *productRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	err := tx.Preload("Category").Preload("Ingredients.Ingredient").Where("id = ?", id).First(&p).Error
	return &p, err
}

func (r *productRepo) ListBOMTx(tx *gorm.DB, productID uuid.UUID) ([]model.ProductIngredient, error) {
	var edges []model.ProductIngredient
	err := tx.Where("product_id = ?", productID).Order("ingredient_id ASC").Find(&edges).Error
	return edges, err
}

func (r *productRepo) CreateCategory(ctx context.Context, c *model.ProductCategory) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *productRepo) FindCategoryByID(ctx context.Context, id uuid.UUID) (*model.ProductCategory, error) {
	var c model.ProductCategory
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	return &c, err
}
