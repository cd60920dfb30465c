package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order ("comanda") moves one way: unpaid -> paid.
type Order struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TableID   *uuid.UUID `gorm:"type:uuid;index"`
	UserID    *uuid.UUID `gorm:"type:uuid"`
	Username  string     `gorm:"type:varchar(150)"`
	IsPaid    bool       `gorm:"not null;default:false;index"`
	PaidAt    *time.Time
	CreatedAt time.Time `gorm:"not null;index"`

	Table *Table      `gorm:"foreignKey:TableID"`
	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// StatusDisplay mirrors the labels shown on the floor.
func (o *Order) StatusDisplay() string {
	if o.IsPaid {
		return "Pagada"
	}
	return "Pendiente"
}

// Total sums the loaded items.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Items {
		total = total.Add(o.Items[i].Total())
	}
	return total
}

// OrderItem is one line of an order. Creating it is what deducts ingredient
// stock; UnitPrice is the product price at the time the line was taken.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity  int             `gorm:"not null;check:chk_order_item_quantity_positive,quantity > 0"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	CreatedAt time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (i *OrderItem) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
