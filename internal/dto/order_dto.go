package dto

import (
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/model"
	"github.com/DeybisMelendez/km9-comanda/internal/repository"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OrderLineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity"   validate:"required,min=1"`
}

// CreateOrderRequest opens an order. With Items the order and all of its
// lines are placed in one transaction.
type CreateOrderRequest struct {
	TableID *string            `json:"table_id" validate:"omitempty,uuid"`
	Items   []OrderLineRequest `json:"items"    validate:"omitempty,dive"`
}

type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity"   validate:"required,min=1"`
}

// ReassignOrderRequest states who owns an order. Omitted table or user fields
// clear them; is_paid may only close the order.
type ReassignOrderRequest struct {
	TableID  *string `json:"table_id" validate:"omitempty,uuid"`
	UserID   *string `json:"user_id"  validate:"omitempty,uuid"`
	Username string  `json:"username" validate:"max=150"`
	IsPaid   *bool   `json:"is_paid"`
}

type CreateTableRequest struct {
	Name string `json:"name" validate:"required,min=1,max=50"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type OrderItemResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Product   string          `json:"product,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewOrderItemResponse(i *model.OrderItem) OrderItemResponse {
	r := OrderItemResponse{
		ID:        i.ID.String(),
		ProductID: i.ProductID.String(),
		Quantity:  i.Quantity,
		UnitPrice: i.UnitPrice,
		Total:     i.Total(),
		CreatedAt: i.CreatedAt,
	}
	if i.Product != nil {
		r.Product = i.Product.Name
	}
	return r
}

type OrderResponse struct {
	ID        string              `json:"id"`
	TableID   *string             `json:"table_id"`
	Table     string              `json:"table,omitempty"`
	User      string              `json:"user,omitempty"`
	IsPaid    bool                `json:"is_paid"`
	Status    string              `json:"status"`
	PaidAt    *time.Time          `json:"paid_at"`
	CreatedAt time.Time           `json:"created_at"`
	Items     []OrderItemResponse `json:"items"`
	Total     decimal.Decimal     `json:"total"`
}

func NewOrderResponse(o *model.Order) OrderResponse {
	r := OrderResponse{
		ID:        o.ID.String(),
		User:      o.Username,
		IsPaid:    o.IsPaid,
		Status:    o.StatusDisplay(),
		PaidAt:    o.PaidAt,
		CreatedAt: o.CreatedAt,
		Items:     make([]OrderItemResponse, 0, len(o.Items)),
		Total:     o.Total(),
	}
	if o.TableID != nil {
		id := o.TableID.String()
		r.TableID = &id
	}
	if o.Table != nil {
		r.Table = o.Table.Name
	}
	for i := range o.Items {
		r.Items = append(r.Items, NewOrderItemResponse(&o.Items[i]))
	}
	return r
}

func NewOrderResponses(orders []model.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, NewOrderResponse(&orders[i]))
	}
	return out
}

type TableResponse struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

func NewTableResponses(rows []repository.TableBalance) []TableResponse {
	out := make([]TableResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, TableResponse{ID: r.TableID.String(), Name: r.TableName, Balance: r.Balance})
	}
	return out
}

type TablePaidResponse struct {
	TableID string `json:"table_id"`
	Paid    int    `json:"paid"`
}
