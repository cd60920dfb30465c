package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReasonKind tags the business event behind a movement.
type ReasonKind string

const (
	ReasonPurchase      ReasonKind = "purchase"
	ReasonConsumption   ReasonKind = "consumption"
	ReasonPhysicalCount ReasonKind = "physical_count"
	// ReasonManual covers opening balances and direct ledger postings.
	ReasonManual ReasonKind = "manual"
)

// Reason is the tagged variant stored with every movement. OrderID is only
// set for consumption; Note is free text for every kind.
type Reason struct {
	Kind    ReasonKind
	OrderID *uuid.UUID
	Product string
	Note    string
}

func PurchaseReason(note string) Reason {
	return Reason{Kind: ReasonPurchase, Note: note}
}

func ConsumptionReason(orderID uuid.UUID, product string) Reason {
	return Reason{Kind: ReasonConsumption, OrderID: &orderID, Product: product}
}

func PhysicalCountReason(note string) Reason {
	return Reason{Kind: ReasonPhysicalCount, Note: note}
}

func ManualReason(note string) Reason {
	return Reason{Kind: ReasonManual, Note: note}
}

// String renders the human readable audit text.
func (r Reason) String() string {
	var s string
	switch r.Kind {
	case ReasonPurchase:
		s = "purchase"
	case ReasonConsumption:
		if r.OrderID != nil {
			s = fmt.Sprintf("consumption for %s in order %s", r.Product, r.OrderID)
		} else {
			s = "consumption"
		}
	case ReasonPhysicalCount:
		s = "physical count adjustment"
	default:
		s = string(r.Kind)
	}
	if r.Note != "" {
		s += " (" + r.Note + ")"
	}
	return s
}

// ErrMovementImmutable is returned by the model hooks on any update or delete.
var ErrMovementImmutable = errors.New("movements are append-only")

// Movement is an immutable signed change of an ingredient's stock.
// The movement log is the source of truth; Ingredient.StockQuantity is derived from it.
type Movement struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	IngredientID  uuid.UUID       `gorm:"type:uuid;not null;index:idx_movements_ingredient_created"`
	Quantity      decimal.Decimal `gorm:"type:decimal(12,3);not null;check:chk_movement_quantity_nonzero,quantity <> 0"`
	ReasonKind    ReasonKind      `gorm:"type:varchar(20);not null;index"`
	ReasonOrderID *uuid.UUID      `gorm:"type:uuid;index"`
	Note          string
	Reason        string          `gorm:"not null"`
	UserID        *uuid.UUID      `gorm:"type:uuid"`
	Username      string          `gorm:"type:varchar(150)"`
	StockBefore   decimal.Decimal `gorm:"type:decimal(12,3);not null"`
	StockAfter    decimal.Decimal `gorm:"type:decimal(12,3);not null"`
	CreatedAt     time.Time       `gorm:"not null;index:idx_movements_ingredient_created;index"`

	Ingredient *Ingredient `gorm:"foreignKey:IngredientID"`
}

func (m *Movement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (m *Movement) BeforeUpdate(*gorm.DB) error { return ErrMovementImmutable }

func (m *Movement) BeforeDelete(*gorm.DB) error { return ErrMovementImmutable }

// ReasonValue rebuilds the tagged reason from the stored columns.
func (m *Movement) ReasonValue() Reason {
	return Reason{Kind: m.ReasonKind, OrderID: m.ReasonOrderID, Note: m.Note}
}
