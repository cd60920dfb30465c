package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/model"
	"github.com/DeybisMelendez/km9-comanda/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MovementRow struct {
	CreatedAt  time.Time
	Quantity   decimal.Decimal
	Ingredient string
	Unit       model.Unit
	Kind       model.ReasonKind
	Reason     string
	User       string
}

type OrderItemRow struct {
	CreatedAt time.Time
	OrderID   uuid.UUID
	User      string
	Table     string
	Quantity  int
	Product   string
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
}

type ProductSales struct {
	ProductID uuid.UUID
	Product   string
	Quantity  int
	Subtotal  decimal.Decimal
}

type DailySales struct {
	Day      time.Time
	Orders   []model.Order
	Products []ProductSales
	Total    decimal.Decimal
}

// ReportService exposes read-only aggregates over movements and order items.
type ReportService interface {
	MovementsInRange(ctx context.Context, start, end time.Time) ([]MovementRow, error)
	OrderItemsInRange(ctx context.Context, start, end time.Time) ([]OrderItemRow, error)
	DailySales(ctx context.Context, day time.Time) (*DailySales, error)
	OrderHistory(ctx context.Context, day time.Time) ([]model.Order, error)
}

type reportService struct {
	movements repository.MovementRepository
	orders    repository.OrderRepository
	loc       *time.Location
}

// NewReportService builds the reporting queries. Calendar days are cut in loc.
func NewReportService(movements repository.MovementRepository, orders repository.OrderRepository, loc *time.Location) ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &reportService{movements: movements, orders: orders, loc: loc}
}

func checkRange(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

func (s *reportService) MovementsInRange(ctx context.Context, start, end time.Time) ([]MovementRow, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	movements, err := s.movements.ListInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	rows := make([]MovementRow, 0, len(movements))
	for _, m := range movements {
		row := MovementRow{
			CreatedAt: m.CreatedAt,
			Quantity:  m.Quantity,
			Kind:      m.ReasonKind,
			Reason:    m.Reason,
			User:      m.Username,
		}
		if m.Ingredient != nil {
			row.Ingredient = m.Ingredient.Name
			row.Unit = m.Ingredient.Unit
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *reportService) OrderItemsInRange(ctx context.Context, start, end time.Time) ([]OrderItemRow, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	items, orders, err := s.orders.ListItemsCreatedBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.Order, len(orders))
	for i := range orders {
		byID[orders[i].ID] = &orders[i]
	}

	rows := make([]OrderItemRow, 0, len(items))
	for i := range items {
		it := &items[i]
		row := OrderItemRow{
			CreatedAt: it.CreatedAt,
			OrderID:   it.OrderID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Amount:    it.Total(),
		}
		if it.Product != nil {
			row.Product = it.Product.Name
		}
		if o := byID[it.OrderID]; o != nil {
			row.User = o.Username
			if o.Table != nil {
				row.Table = o.Table.Name
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *reportService) DailySales(ctx context.Context, day time.Time) (*DailySales, error) {
	start, end := s.dayBounds(day)
	orders, err := s.orders.ListCreatedBetween(ctx, start, end, true)
	if err != nil {
		return nil, err
	}

	report := &DailySales{Day: start, Orders: orders, Total: decimal.Zero}
	summary := make(map[uuid.UUID]*ProductSales)
	for _, o := range orders {
		for _, it := range o.Items {
			ps, ok := summary[it.ProductID]
			if !ok {
				ps = &ProductSales{ProductID: it.ProductID, Subtotal: decimal.Zero}
				if it.Product != nil {
					ps.Product = it.Product.Name
				}
				summary[it.ProductID] = ps
			}
			ps.Quantity += it.Quantity
			ps.Subtotal = ps.Subtotal.Add(it.Total())
			report.Total = report.Total.Add(it.Total())
		}
	}
	for _, ps := range summary {
		report.Products = append(report.Products, *ps)
	}
	sort.Slice(report.Products, func(i, j int) bool { return report.Products[i].Product < report.Products[j].Product })
	return report, nil
}

func (s *reportService) OrderHistory(ctx context.Context, day time.Time) ([]model.Order, error) {
	start, end := s.dayBounds(day)
	return s.orders.ListCreatedBetween(ctx, start, end, false)
}

// dayBounds returns the first and last instant of day's calendar date in s.loc.
func (s *reportService) dayBounds(day time.Time) (time.Time, time.Time) {
	d := day.In(s.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
