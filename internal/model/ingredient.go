package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Unit is the measure an ingredient is stocked in.
type Unit string

const (
	UnitOunce      Unit = "oz"
	UnitPound      Unit = "lb"
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMilliliter Unit = "ml"
	UnitLiter      Unit = "l"
	UnitPiece      Unit = "und"
)

// Valid reports whether u is one of the supported units.
func (u Unit) Valid() bool {
	switch u {
	case UnitOunce, UnitPound, UnitGram, UnitKilogram, UnitMilliliter, UnitLiter, UnitPiece:
		return true
	}
	return false
}

// Ingredient is a stocked raw material.
// StockQuantity is a cache of SUM(movements.quantity) for the ingredient and is
// only ever written by the ledger, in the same transaction as the movement.
type Ingredient struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name          string          `gorm:"uniqueIndex;not null"`
	StockQuantity decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0"`
	Unit          Unit            `gorm:"type:varchar(10);not null;default:'und'"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (i *Ingredient) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ProductIngredient is a bill-of-materials edge: one unit of Product consumes
// Quantity of Ingredient.
type ProductIngredient struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_product_ingredient"`
	IngredientID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_product_ingredient"`
	Quantity     decimal.Decimal `gorm:"type:decimal(12,3);not null;check:chk_bom_quantity_positive,quantity > 0"`

	Ingredient *Ingredient `gorm:"foreignKey:IngredientID"`
}

func (p *ProductIngredient) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
