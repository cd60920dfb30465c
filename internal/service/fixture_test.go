package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DeybisMelendez/km9-comanda/internal/infra"
	"github.com/DeybisMelendez/km9-comanda/internal/model"
	"github.com/DeybisMelendez/km9-comanda/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ── Fixture ──────────────────────────────────────────────────────────────────
// Services run against a real GORM database on a temp SQLite file. A single
// connection keeps transactions serialized, which matches row locking closely
// enough for single-goroutine tests.

type recordingNotifier struct {
	mu        sync.Mutex
	movements []*model.Movement
}

func (n *recordingNotifier) EnqueueMovementPosted(_ context.Context, m *model.Movement) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.movements = append(n.movements, m)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.movements)
}

type testEnv struct {
	db          *gorm.DB
	ingredients repository.IngredientRepository
	movements   repository.MovementRepository
	products    repository.ProductRepository
	orders      repository.OrderRepository
	notifier    *recordingNotifier

	ledger    LedgerService
	order     OrderService
	inventory InventoryService
	catalog   CatalogService
}

func newTestEnv(t *testing.T, policy LedgerPolicy) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), infra.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, infra.Migrate(db))

	env := &testEnv{
		db:          db,
		ingredients: repository.NewIngredientRepository(db),
		movements:   repository.NewMovementRepository(db),
		products:    repository.NewProductRepository(db),
		orders:      repository.NewOrderRepository(db),
		notifier:    &recordingNotifier{},
	}
	env.ledger = NewLedgerService(env.ingredients, env.movements, env.notifier, policy)
	env.order = NewOrderService(env.orders, env.products, env.ingredients, env.ledger)
	env.inventory = NewInventoryService(env.ingredients, env.movements, env.ledger)
	env.catalog = NewCatalogService(env.orders, env.products, env.ingredients, env.ledger)
	return env
}

func allowNegative() LedgerPolicy { return LedgerPolicy{AllowNegativeStock: true} }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (e *testEnv) ingredient(t *testing.T, name, opening string) *model.Ingredient {
	t.Helper()
	ing, err := e.catalog.CreateIngredient(context.Background(), IngredientInput{
		Name:         name,
		Unit:         model.UnitKilogram,
		OpeningStock: dec(opening),
	}, Actor{Username: "encargado"})
	require.NoError(t, err)
	return ing
}

func (e *testEnv) product(t *testing.T, name, price string, bom ...BOMLine) *model.Product {
	t.Helper()
	ctx := context.Background()
	cat, err := e.catalog.CreateCategory(ctx, "cat-"+name)
	require.NoError(t, err)
	p, err := e.catalog.CreateProduct(ctx, ProductInput{Name: name, CategoryID: cat.ID, Price: dec(price), Ingredients: bom})
	require.NoError(t, err)
	return p
}

func (e *testEnv) stock(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	qty, err := e.ledger.CurrentStock(context.Background(), id)
	require.NoError(t, err)
	return qty
}

func (e *testEnv) movementSum(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	sum, err := e.movements.SumByIngredient(context.Background(), id)
	require.NoError(t, err)
	return sum
}

func (e *testEnv) movementCount(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Movement{}).Where("ingredient_id = ?", id).Count(&n).Error)
	return n
}

// assertReconciles checks that the cached stock equals the movement sum.
func (e *testEnv) assertReconciles(t *testing.T, id uuid.UUID) {
	t.Helper()
	res, err := e.inventory.Reconcile(context.Background(), id)
	require.NoError(t, err)
	require.True(t, res.Cached.Equal(res.Computed), "cached %s != computed %s", res.Cached, res.Computed)
}
