package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/DeybisMelendez/km9-comanda/internal/model"
	"github.com/DeybisMelendez/km9-comanda/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BOMLine is the amount of one ingredient a single unit of product consumes.
type BOMLine struct {
	IngredientID uuid.UUID
	Quantity     decimal.Decimal
}

type ProductInput struct {
	Name        string
	CategoryID  uuid.UUID
	Price       decimal.Decimal
	Ingredients []BOMLine
}

type IngredientInput struct {
	Name         string
	Unit         model.Unit
	OpeningStock decimal.Decimal
}

// CatalogService manages tables, the menu and the ingredient list.
type CatalogService interface {
	CreateTable(ctx context.Context, name string) (*model.Table, error)
	CreateCategory(ctx context.Context, name string) (*model.ProductCategory, error)
	CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	CreateIngredient(ctx context.Context, in IngredientInput, actor Actor) (*model.Ingredient, error)
	ListIngredients(ctx context.Context) ([]model.Ingredient, error)
}

type catalogService struct {
	orders      repository.OrderRepository
	products    repository.ProductRepository
	ingredients repository.IngredientRepository
	ledger      LedgerService
}

func NewCatalogService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	ingredients repository.IngredientRepository,
	ledger LedgerService,
) CatalogService {
	return &catalogService{orders: orders, products: products, ingredients: ingredients, ledger: ledger}
}

func (s *catalogService) CreateTable(ctx context.Context, name string) (*model.Table, error) {
	t := &model.Table{Name: strings.TrimSpace(name)}
	if err := s.orders.CreateTable(ctx, t); err != nil {
		return nil, duplicate(err, "table", t.Name)
	}
	return t, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, name string) (*model.ProductCategory, error) {
	c := &model.ProductCategory{Name: strings.TrimSpace(name)}
	if err := s.products.CreateCategory(ctx, c); err != nil {
		return nil, duplicate(err, "category", c.Name)
	}
	return c, nil
}

// CreateProduct stores a product and its BOM edges in one transaction.
func (s *catalogService) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	if in.Price.IsNegative() {
		return nil, invalidQuantity("price cannot be negative, got %s", in.Price.String())
	}
	// Prices are stored as decimal(10,2).
	if !in.Price.Equal(in.Price.Round(2)) || in.Price.GreaterThanOrEqual(decimal.New(1, 8)) {
		return nil, invalidQuantity("price %s does not fit 8 digits and 2 decimals", in.Price.String())
	}
	seen := make(map[uuid.UUID]bool, len(in.Ingredients))
	ids := make([]uuid.UUID, 0, len(in.Ingredients))
	for _, l := range in.Ingredients {
		if !l.Quantity.IsPositive() {
			return nil, invalidQuantity("BOM quantity must be positive, got %s", l.Quantity.String())
		}
		if err := checkStorable(l.Quantity, "BOM quantity"); err != nil {
			return nil, err
		}
		if seen[l.IngredientID] {
			return nil, fmt.Errorf("%w: ingredient %s listed twice in BOM", ErrDuplicate, l.IngredientID)
		}
		seen[l.IngredientID] = true
		ids = append(ids, l.IngredientID)
	}
	if _, err := s.products.FindCategoryByID(ctx, in.CategoryID); err != nil {
		return nil, notFound(err, "category", in.CategoryID)
	}

	p := &model.Product{Name: strings.TrimSpace(in.Name), CategoryID: in.CategoryID, Price: in.Price}
	err := runTx(ctx, s.products.DB(), func(tx *gorm.DB) error {
		found, err := s.ingredients.LockManyTx(tx, ids)
		if err != nil {
			return err
		}
		if len(found) != len(ids) {
			return fmt.Errorf("%w: one or more BOM ingredients", ErrNotFound)
		}
		if err := s.products.CreateTx(tx, p); err != nil {
			return err
		}
		for _, l := range in.Ingredients {
			edge := &model.ProductIngredient{ProductID: p.ID, IngredientID: l.IngredientID, Quantity: l.Quantity}
			if err := s.products.CreateBOMEdgeTx(tx, edge); err != nil {
				return fmt.Errorf("creating BOM edge: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return p, nil
}

// CreateIngredient records the opening stock as a manual movement so the
// cache equals the movement sum from the first row on.
func (s *catalogService) CreateIngredient(ctx context.Context, in IngredientInput, actor Actor) (*model.Ingredient, error) {
	unit := in.Unit
	if unit == "" {
		unit = model.UnitPiece
	}
	if !unit.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUnit, in.Unit)
	}
	if in.OpeningStock.IsNegative() {
		return nil, invalidQuantity("opening stock cannot be negative, got %s", in.OpeningStock.String())
	}

	ing := &model.Ingredient{Name: strings.TrimSpace(in.Name), Unit: unit, StockQuantity: decimal.Zero}
	var opening *model.Movement
	err := runTx(ctx, s.ingredients.DB(), func(tx *gorm.DB) error {
		if err := s.ingredients.CreateTx(tx, ing); err != nil {
			return duplicate(err, "ingredient", ing.Name)
		}
		if in.OpeningStock.IsZero() {
			return nil
		}
		var err error
		opening, err = s.ledger.PostMovementTx(tx, MovementInput{
			IngredientID: ing.ID,
			Quantity:     in.OpeningStock,
			Reason:       model.ManualReason("opening stock"),
			Actor:        actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if opening != nil {
		ing.StockQuantity = opening.StockAfter
		s.ledger.Committed(ctx, opening)
	}
	log.Info().Str("ingredient", ing.Name).Str("unit", string(ing.Unit)).Msg("catalog: ingredient created")
	return ing, nil
}

func (s *catalogService) ListIngredients(ctx context.Context) ([]model.Ingredient, error) {
	return s.ingredients.List(ctx)
}
