package repository

import (
	"context"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TableBalance is one row of the floor overview: what a table still owes.
type TableBalance struct {
	TableID   uuid.UUID
	TableName string
	Balance   decimal.Decimal
}

type OrderRepository interface {
	CreateTx(tx *gorm.DB, o *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// LockTx reads the order row FOR UPDATE so item creation and payment serialize.
	LockTx(tx *gorm.DB, id uuid.UUID) (*model.Order, error)
	CreateItemTx(tx *gorm.DB, item *model.OrderItem) error
	MarkPaidTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
	ReassignTx(tx *gorm.DB, id uuid.UUID, tableID, userID *uuid.UUID, username string) error
	ListUnpaidByTable(ctx context.Context, tableID uuid.UUID) ([]model.Order, error)
	ListUnpaidByTableTx(tx *gorm.DB, tableID uuid.UUID) ([]model.Order, error)
	ListCreatedBetween(ctx context.Context, start, end time.Time, paidOnly bool) ([]model.Order, error)
	ListItemsCreatedBetween(ctx context.Context, start, end time.Time) ([]model.OrderItem, []model.Order, error)

	CreateTable(ctx context.Context, t *model.Table) error
	FindTableByID(ctx context.Context, id uuid.UUID) (*model.Table, error)
	TableBalances(ctx context.Context) ([]TableBalance, error)

	DB() *gorm.DB
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository { return &orderRepo{db: db} }

func (r *orderRepo) DB() *gorm.DB { return r.db }

func (r *orderRepo) CreateTx(tx *gorm.DB, o *model.Order) error {
	return tx.Omit("Table", "Items").Create(o).Error
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Preload("Table").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Items.Product").
		Where("id = ?", id).
		First(&o).Error
	return &o, err
}

func (r *orderRepo) LockTx(tx *gorm.DB, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&o).Error
	return &o, err
}

func (r *orderRepo) CreateItemTx(tx *gorm.DB, item *model.OrderItem) error {
	return tx.Omit("Product").Create(item).Error
}

func (r *orderRepo) MarkPaidTx(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return tx.Model(&model.Order{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(map[string]interface{}{"is_paid": true, "paid_at": at}).Error
}

func (r *orderRepo) ReassignTx(tx *gorm.DB, id uuid.UUID, tableID, userID *uuid.UUID, username string) error {
	return tx.Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"table_id": tableID, "user_id": userID, "username": username}).Error
}

func (r *orderRepo) ListUnpaidByTable(ctx context.Context, tableID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Preload("Items.Product").
		Where("table_id = ? AND is_paid = ?", tableID, false).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func (r *orderRepo) ListUnpaidByTableTx(tx *gorm.DB, tableID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("table_id = ? AND is_paid = ?", tableID, false).
		Find(&orders).Error
	return orders, err
}

func (r *orderRepo) ListCreatedBetween(ctx context.Context, start, end time.Time, paidOnly bool) ([]model.Order, error) {
	q := r.db.WithContext(ctx).
		Preload("Table").
		Preload("Items.Product").
		Where("created_at BETWEEN ? AND ?", start.UTC(), end.UTC())
	if paidOnly {
		q = q.Where("is_paid = ?", true)
	}
	var orders []model.Order
	err := q.Order("created_at DESC").Find(&orders).Error
	return orders, err
}

// ListItemsCreatedBetween returns the items of orders created in [start, end]
// together with their parent orders (keyed back by OrderID).
func (r *orderRepo) ListItemsCreatedBetween(ctx context.Context, start, end time.Time) ([]model.OrderItem, []model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Preload("Table").
		Where("created_at BETWEEN ? AND ?", start.UTC(), end.UTC()).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil || len(orders) == 0 {
		return nil, orders, err
	}

	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	var items []model.OrderItem
	err = r.db.WithContext(ctx).
		Preload("Product").
		Where("order_id IN ?", ids).
		Order("created_at ASC").
		Find(&items).Error
	return items, orders, err
}

func (r *orderRepo) CreateTable(ctx context.Context, t *model.Table) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *orderRepo) FindTableByID(ctx context.Context, id uuid.UUID) (*model.Table, error) {
	var t model.Table
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	return &t, err
}

func (r *orderRepo) TableBalances(ctx context.Context) ([]TableBalance, error) {
	var rows []TableBalance
	err := r.db.WithContext(ctx).Raw(`
		SELECT t.id AS table_id, t.name AS table_name,
		       COALESCE(SUM(oi.quantity * oi.unit_price), 0) AS balance
		FROM tables t
		LEFT JOIN orders o ON o.table_id = t.id AND o.is_paid = ?
		LEFT JOIN order_items oi ON oi.order_id = o.id
		GROUP BY t.id, t.name
		ORDER BY t.name ASC`, false).Scan(&rows).Error
	return rows, err
}
