package service

import (
	"context"
	"fmt"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/metrics"
	"github.com/DeybisMelendez/km9-comanda/internal/model"
	"github.com/DeybisMelendez/km9-comanda/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// ReassignInput is a manager's correction of who owns an order. TableID nil
// detaches the order from any table and an empty User clears the waiter.
// Paid nil leaves the status alone; an order is never reopened.
type ReassignInput struct {
	TableID *uuid.UUID
	User    Actor
	Paid    *bool
}

// OrderLine is one product/quantity pair of a new order.
type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int
}

type OrderService interface {
	CreateOrder(ctx context.Context, tableID *uuid.UUID, actor Actor) (*model.Order, error)
	AddItem(ctx context.Context, orderID, productID uuid.UUID, qty int) (*model.OrderItem, error)
	PlaceOrder(ctx context.Context, tableID *uuid.UUID, actor Actor, lines []OrderLine) (*model.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	MarkTablePaid(ctx context.Context, tableID uuid.UUID) (int, error)
	ReassignOrder(ctx context.Context, orderID uuid.UUID, in ReassignInput) (*model.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	ListTablesWithBalance(ctx context.Context) ([]repository.TableBalance, error)
	ListTableOrders(ctx context.Context, tableID uuid.UUID) ([]model.Order, error)
}

type orderService struct {
	orders      repository.OrderRepository
	products    repository.ProductRepository
	ingredients repository.IngredientRepository
	ledger      LedgerService
	now         func() time.Time
}

func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	ingredients repository.IngredientRepository,
	ledger LedgerService,
) OrderService {
	return &orderService{
		orders:      orders,
		products:    products,
		ingredients: ingredients,
		ledger:      ledger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *orderService) CreateOrder(ctx context.Context, tableID *uuid.UUID, actor Actor) (*model.Order, error) {
	if err := s.checkTable(ctx, tableID); err != nil {
		return nil, err
	}
	order := &model.Order{TableID: tableID, UserID: actor.UserID, Username: actor.Username}
	if err := s.orders.CreateTx(s.orders.DB().WithContext(ctx), order); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	return order, nil
}

func (s *orderService) checkTable(ctx context.Context, tableID *uuid.UUID) error {
	if tableID == nil {
		return nil
	}
	if _, err := s.orders.FindTableByID(ctx, *tableID); err != nil {
		return notFound(err, "table", *tableID)
	}
	return nil
}

// ── AddItem ──────────────────────────────────────────────────────────────────
// One transaction per item:
//   1. lock the order row and refuse paid orders
//   2. insert the item with the current product price
//   3. post -(edge.quantity * qty) for every BOM edge
// Any failure rolls back the item together with every movement already posted.

func (s *orderService) AddItem(ctx context.Context, orderID, productID uuid.UUID, qty int) (*model.OrderItem, error) {
	ctx, span := tracer.Start(ctx, "orders.AddItem",
		trace.WithAttributes(
			attribute.String("order.id", orderID.String()),
			attribute.String("product.id", productID.String()),
			attribute.Int("item.quantity", qty),
		),
	)
	defer span.End()

	if qty <= 0 {
		return nil, invalidQuantity("item quantity must be positive, got %d", qty)
	}

	var (
		item      *model.OrderItem
		movements []*model.Movement
	)
	err := runTx(ctx, s.orders.DB(), func(tx *gorm.DB) error {
		order, err := s.orders.LockTx(tx, orderID)
		if err != nil {
			return notFound(err, "order", orderID)
		}
		item, movements, err = s.addItemTx(tx, order, productID, qty)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.ledger.Committed(ctx, movements...)
	metrics.OrderItemsAdded.Inc()
	log.Info().
		Str("order_id", orderID.String()).
		Str("product", item.Product.Name).
		Int("qty", qty).
		Int("movements", len(movements)).
		Msg("orders: item added")
	return item, nil
}

func (s *orderService) addItemTx(tx *gorm.DB, order *model.Order, productID uuid.UUID, qty int) (*model.OrderItem, []*model.Movement, error) {
	if order.IsPaid {
		return nil, nil, fmt.Errorf("%w: %s", ErrOrderClosed, order.ID)
	}
	product, err := s.products.FindByIDTx(tx, productID)
	if err != nil {
		return nil, nil, notFound(err, "product", productID)
	}

	item := &model.OrderItem{
		OrderID:   order.ID,
		ProductID: product.ID,
		Quantity:  qty,
		UnitPrice: product.Price,
	}
	if err := s.orders.CreateItemTx(tx, item); err != nil {
		return nil, nil, fmt.Errorf("creating order item: %w", err)
	}
	item.Product = product

	edges, err := s.products.ListBOMTx(tx, product.ID)
	if err != nil {
		return nil, nil, err
	}
	n := decimal.NewFromInt(int64(qty))
	actor := Actor{UserID: order.UserID, Username: order.Username}
	movements := make([]*model.Movement, 0, len(edges))
	for _, edge := range edges {
		mov, err := s.ledger.PostMovementTx(tx, MovementInput{
			IngredientID: edge.IngredientID,
			Quantity:     edge.Quantity.Mul(n).Neg(),
			Reason:       model.ConsumptionReason(order.ID, product.Name),
			Actor:        actor,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("consuming %s for %s: %w", edge.IngredientID, product.Name, err)
		}
		movements = append(movements, mov)
	}
	return item, movements, nil
}

// PlaceOrder creates an order with all of its lines. Either every line and
// every consumption movement commits, or nothing does.
func (s *orderService) PlaceOrder(ctx context.Context, tableID *uuid.UUID, actor Actor, lines []OrderLine) (*model.Order, error) {
	if len(lines) == 0 {
		return nil, invalidQuantity("order needs at least one line")
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, invalidQuantity("item quantity must be positive, got %d", l.Quantity)
		}
	}
	if err := s.checkTable(ctx, tableID); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "orders.PlaceOrder", trace.WithAttributes(attribute.Int("order.lines", len(lines))))
	defer span.End()

	order := &model.Order{TableID: tableID, UserID: actor.UserID, Username: actor.Username}
	var movements []*model.Movement
	err := runTx(ctx, s.orders.DB(), func(tx *gorm.DB) error {
		if err := s.lockIngredientsTx(tx, lines); err != nil {
			return err
		}
		if err := s.orders.CreateTx(tx, order); err != nil {
			return fmt.Errorf("creating order: %w", err)
		}
		for _, l := range lines {
			item, movs, err := s.addItemTx(tx, order, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, *item)
			movements = append(movements, movs...)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.ledger.Committed(ctx, movements...)
	metrics.OrderItemsAdded.Add(float64(len(lines)))
	log.Info().Str("order_id", order.ID.String()).Int("lines", len(lines)).Msg("orders: order placed")
	return order, nil
}

// lockIngredientsTx locks every ingredient consumed by lines in one ascending
// pass. Posting line by line would lock each product's BOM separately, and two
// orders listing the same products in opposite order would deadlock.
func (s *orderService) lockIngredientsTx(tx *gorm.DB, lines []OrderLine) error {
	seen := make(map[uuid.UUID]bool)
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		edges, err := s.products.ListBOMTx(tx, l.ProductID)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if !seen[e.IngredientID] {
				seen[e.IngredientID] = true
				ids = append(ids, e.IngredientID)
			}
		}
	}
	_, err := s.ingredients.LockManyTx(tx, ids)
	return err
}

// MarkPaid moves an order to PAID. Paying an already paid order is a no-op.
func (s *orderService) MarkPaid(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	err := runTx(ctx, s.orders.DB(), func(tx *gorm.DB) error {
		order, err := s.orders.LockTx(tx, orderID)
		if err != nil {
			return notFound(err, "order", orderID)
		}
		if order.IsPaid {
			return nil
		}
		return s.orders.MarkPaidTx(tx, orderID, s.now())
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *orderService) MarkTablePaid(ctx context.Context, tableID uuid.UUID) (int, error) {
	if err := s.checkTable(ctx, &tableID); err != nil {
		return 0, err
	}
	var paid int
	err := runTx(ctx, s.orders.DB(), func(tx *gorm.DB) error {
		orders, err := s.orders.ListUnpaidByTableTx(tx, tableID)
		if err != nil {
			return err
		}
		at := s.now()
		for _, o := range orders {
			if err := s.orders.MarkPaidTx(tx, o.ID, at); err != nil {
				return fmt.Errorf("paying order %s: %w", o.ID, err)
			}
		}
		paid = len(orders)
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info().Str("table_id", tableID.String()).Int("orders", paid).Msg("orders: table paid")
	return paid, nil
}

// ReassignOrder moves an order to another table and waiter under the order row
// lock. Items and their movements are untouched.
func (s *orderService) ReassignOrder(ctx context.Context, orderID uuid.UUID, in ReassignInput) (*model.Order, error) {
	if err := s.checkTable(ctx, in.TableID); err != nil {
		return nil, err
	}
	err := runTx(ctx, s.orders.DB(), func(tx *gorm.DB) error {
		order, err := s.orders.LockTx(tx, orderID)
		if err != nil {
			return notFound(err, "order", orderID)
		}
		if in.Paid != nil && !*in.Paid && order.IsPaid {
			return fmt.Errorf("%w: %s cannot be reopened", ErrOrderClosed, order.ID)
		}
		if err := s.orders.ReassignTx(tx, order.ID, in.TableID, in.User.UserID, in.User.Username); err != nil {
			return fmt.Errorf("reassigning order: %w", err)
		}
		if in.Paid != nil && *in.Paid && !order.IsPaid {
			return s.orders.MarkPaidTx(tx, order.ID, s.now())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("order_id", orderID.String()).Str("user", in.User.Username).Msg("orders: order reassigned")
	return s.GetOrder(ctx, orderID)
}

func (s *orderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	return order, nil
}

func (s *orderService) ListTablesWithBalance(ctx context.Context) ([]repository.TableBalance, error) {
	return s.orders.TableBalances(ctx)
}

func (s *orderService) ListTableOrders(ctx context.Context, tableID uuid.UUID) ([]model.Order, error) {
	if err := s.checkTable(ctx, &tableID); err != nil {
		return nil, err
	}
	return s.orders.ListUnpaidByTable(ctx, tableID)
}
