package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RangeQuery accepts "2006-01-02T15:04" timestamps (the datetime-local
// format). Missing bounds default to the current day.
type RangeQuery struct {
	Start string `form:"start"`
	End   string `form:"end"`
}

type DayQuery struct {
	DaysAgo int `form:"days_ago,default=0" validate:"min=0,max=3650"`
}

type MovementReportRow struct {
	CreatedAt  time.Time       `json:"created_at"`
	Quantity   decimal.Decimal `json:"quantity"`
	Ingredient string          `json:"ingredient"`
	Unit       string          `json:"unit"`
	Kind       string          `json:"kind"`
	Reason     string          `json:"reason"`
	User       string          `json:"user"`
}

type OrderItemReportRow struct {
	CreatedAt time.Time       `json:"created_at"`
	OrderID   string          `json:"order_id"`
	User      string          `json:"user"`
	Table     string          `json:"table"`
	Quantity  int             `json:"quantity"`
	Product   string          `json:"product"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

type ProductSalesRow struct {
	ProductID string          `json:"product_id"`
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type DailySalesResponse struct {
	Date        string            `json:"date"`
	DaysAgo     int               `json:"days_ago"`
	PrevDaysAgo int               `json:"prev_days_ago"`
	NextDaysAgo int               `json:"next_days_ago"`
	Orders      []OrderResponse   `json:"orders"`
	Products    []ProductSalesRow `json:"products"`
	Total       decimal.Decimal   `json:"total"`
}

type OrderHistoryResponse struct {
	Date        string          `json:"date"`
	DaysAgo     int             `json:"days_ago"`
	PrevDaysAgo int             `json:"prev_days_ago"`
	NextDaysAgo int             `json:"next_days_ago"`
	Orders      []OrderResponse `json:"orders"`
}
