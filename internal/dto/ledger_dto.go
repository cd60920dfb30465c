package dto

import (
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/model"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateIngredientRequest struct {
	Name         string          `json:"name"          validate:"required,min=2,max=120"`
	Unit         string          `json:"unit"          validate:"omitempty,oneof=oz lb g kg ml l und"`
	OpeningStock decimal.Decimal `json:"opening_stock" validate:"min=0"`
}

type PurchaseLine struct {
	IngredientID string          `json:"ingredient_id" validate:"required,uuid"`
	Quantity     decimal.Decimal `json:"quantity"      validate:"required"`
}

// PurchaseRequest records deliveries. A single line goes through the same
// transaction as a bulk one.
type PurchaseRequest struct {
	Lines []PurchaseLine `json:"lines" validate:"required,min=1,dive"`
	Note  string         `json:"note"  validate:"max=255"`
}

// CountLine is one counted ingredient. Observed is a pointer so that a line
// without a count is rejected while an explicit 0 is accepted.
type CountLine struct {
	IngredientID string           `json:"ingredient_id" validate:"required,uuid"`
	Observed     *decimal.Decimal `json:"observed"      validate:"required"`
}

// PhysicalCountRequest is the "found" submission: one observed quantity per
// ingredient, applied all-or-nothing.
type PhysicalCountRequest struct {
	Counts []CountLine `json:"counts" validate:"required,min=1,dive"`
	Note   string      `json:"note"   validate:"max=255"`
}

type MovementFilter struct {
	IngredientID string `form:"ingredient_id"`
	Kind         string `form:"kind"  validate:"omitempty,oneof=purchase consumption physical_count manual"`
	Page         int    `form:"page,default=1"   validate:"min=1"`
	Limit        int    `form:"limit,default=100" validate:"min=1,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type IngredientResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	StockQuantity decimal.Decimal `json:"stock_quantity"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func NewIngredientResponse(i *model.Ingredient) IngredientResponse {
	return IngredientResponse{
		ID:            i.ID.String(),
		Name:          i.Name,
		Unit:          string(i.Unit),
		StockQuantity: i.StockQuantity,
		UpdatedAt:     i.UpdatedAt,
	}
}

type StockResponse struct {
	IngredientID  string          `json:"ingredient_id"`
	StockQuantity decimal.Decimal `json:"stock_quantity"`
}

type MovementResponse struct {
	ID           string          `json:"id"`
	IngredientID string          `json:"ingredient_id"`
	Ingredient   string          `json:"ingredient,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Kind         string          `json:"kind"`
	OrderID      *string         `json:"order_id,omitempty"`
	Note         string          `json:"note,omitempty"`
	Reason       string          `json:"reason"`
	User         string          `json:"user,omitempty"`
	StockBefore  decimal.Decimal `json:"stock_before"`
	StockAfter   decimal.Decimal `json:"stock_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

func NewMovementResponse(m *model.Movement) MovementResponse {
	r := MovementResponse{
		ID:           m.ID.String(),
		IngredientID: m.IngredientID.String(),
		Quantity:     m.Quantity,
		Kind:         string(m.ReasonKind),
		Note:         m.Note,
		Reason:       m.Reason,
		User:         m.Username,
		StockBefore:  m.StockBefore,
		StockAfter:   m.StockAfter,
		CreatedAt:    m.CreatedAt,
	}
	if m.Ingredient != nil {
		r.Ingredient = m.Ingredient.Name
	}
	if m.ReasonOrderID != nil {
		id := m.ReasonOrderID.String()
		r.OrderID = &id
	}
	return r
}

func NewMovementResponses(ms []*model.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, NewMovementResponse(m))
	}
	return out
}

type MovementListResponse struct {
	Data  []MovementResponse `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// PhysicalCountResponse lists the adjustments posted. Ingredients whose count
// matched the stock produce no movement and are not listed.
type PhysicalCountResponse struct {
	Adjusted  int                `json:"adjusted"`
	Movements []MovementResponse `json:"movements"`
}

type ReconcileResponse struct {
	IngredientID string          `json:"ingredient_id"`
	Ingredient   string          `json:"ingredient"`
	Unit         string          `json:"unit"`
	Cached       decimal.Decimal `json:"cached"`
	Computed     decimal.Decimal `json:"computed"`
	Movements    int64           `json:"movements"`
	Consistent   bool            `json:"consistent"`
}
