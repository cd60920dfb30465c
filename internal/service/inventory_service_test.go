package service

import (
	"context"
	"errors"
	"testing"

	"github.com/DeybisMelendez/km9-comanda/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchase(t *testing.T) {
	env := newTestEnv(t, allowNegative())
	ctx := context.Background()
	ing := env.ingredient(t, "Leche", "2")

	mov, err := env.inventory.Purchase(ctx, ing.ID, dec("5"), "factura 12", Actor{Username: "enc"})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonPurchase, mov.ReasonKind)
	assert.Equal(t, "purchase (factura 12)", mov.Reason)
	assert.True(t, env.stock(t, ing.ID).Equal(dec("7")))

	_, err = env.inventory.Purchase(ctx, ing.ID, dec("-5"), "", Actor{})
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
	_, err = env.inventory.Purchase(ctx, ing.ID, dec("0"), "", Actor{})
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	assert.True(t, env.stock(t, ing.ID).Equal(dec("7")))
	assert.Equal(t, int64(2), env.movementCount(t, ing.ID))
}

func TestBulkPurchase_Atomic(t *testing.T) {
	env := newTestEnv(t, allowNegative())
	ctx := context.Background()
	a := env.ingredient(t, "A", "1")
	b := env.ingredient(t, "B", "1")

	movs, err := env.inventory.BulkPurchase(ctx, []StockLine{
		{IngredientID: a.ID, Quantity: dec("2")},
		{IngredientID: b.ID, Quantity: dec("3")},
	}, "", Actor{})
	require.NoError(t, err)
	assert.Len(t, movs, 2)
	assert.True(t, env.stock(t, a.ID).Equal(dec("3")))
	assert.True(t, env.stock(t, b.ID).Equal(dec("4")))

	_, err = env.inventory.BulkPurchase(ctx, []StockLine{
		{IngredientID: a.ID, Quantity: dec("2")},
		{IngredientID: uuid.New(), Quantity: dec("3")},
	}, "", Actor{})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, env.stock(t, a.ID).Equal(dec("3")))
}

func TestPhysicalCount_PostsDifference(t *testing.T) {
	env := newTestEnv(t, allowNegative())
	ctx := context.Background()
	ing := env.ingredient(t, "Papas", "10")

	mov, err := env.inventory.PhysicalCountAdjustment(ctx, ing.ID, dec("7.5"), "", Actor{Username: "ana"})
	require.NoError(t, err)
	require.NotNil(t, mov)
	assert.True(t, mov.Quantity.Equal(dec("-2.5")))
	assert.Equal(t, model.ReasonPhysicalCount, mov.ReasonKind)
	assert.Equal(t, "hecho por ana", mov.Note)
	assert.True(t, env.stock(t, ing.ID).Equal(dec("7.5")))
	env.assertReconciles(t, ing.ID)
}

func TestPhysicalCount_ZeroDiffCreatesNothing(t *testing.T) {
	env := newTestEnv(t, allowNegative())
	ing := env.ingredient(t, "Cebolla", "4")
	before := env.movementCount(t, ing.ID)

	mov, err := env.inventory.PhysicalCountAdjustment(context.Background(), ing.ID, dec("4"), "", Actor{})
	require.NoError(t, err)
	assert.Nil(t, mov)
	assert.Equal(t, before, env.movementCount(t, ing.ID))
}

func TestBulkPhysicalCount(t *testing.T) {
	env := newTestEnv(t, allowNegative())
	ctx := context.Background()
	a := env.ingredient(t, "A", "5")
	b := env.ingredient(t, "B", "5")

	movs, err := env.inventory.BulkPhysicalCount(ctx, []StockLine{
		{IngredientID: a.ID, Quantity: dec("5")},
		{IngredientID: b.ID, Quantity: dec("6")},
	}, "cierre", Actor{})
	require.NoError(t, err)
	require.Len(t, movs, 1, "only the changed ingredient gets a movement")
	assert.Equal(t, b.ID, movs[0].IngredientID)
	assert.True(t, env.stock(t, b.ID).Equal(dec("6")))
}

func TestBulkPhysicalCount_FailureCommitsNothing(t *testing.T) {
	env := newTestEnv(t, allowNegative())
	ctx := context.Background()
	a := env.ingredient(t, "A", "5")

	_, err := env.inventory.BulkPhysicalCount(ctx, []StockLine{
		{IngredientID: a.ID, Quantity: dec("1")},
		{IngredientID: uuid.New(), Quantity: dec("1")},
	}, "", Actor{})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, env.stock(t, a.ID).Equal(dec("5")))
	assert.Equal(t, int64(1), env.movementCount(t, a.ID))

	_, err = env.inventory.BulkPhysicalCount(ctx, []StockLine{
		{IngredientID: a.ID, Quantity: dec("1")},
		{IngredientID: a.ID, Quantity: dec("2")},
	}, "", Actor{})
	assert.True(t, errors.Is(err, ErrDuplicate))

	_, err = env.inventory.BulkPhysicalCount(ctx, []StockLine{{IngredientID: a.ID, Quantity: dec("-1")}}, "", Actor{})
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
	assert.True(t, env.stock(t, a.ID).Equal(dec("5")))
}

func TestReconcile_DetectsAndRepairsDrift(t *testing.T) {
	env := newTestEnv(t, allowNegative())
	ctx := context.Background()
	ing := env.ingredient(t, "Azucar", "3")
	other := env.ingredient(t, "Cafe", "1")

	// Corrupt the cache behind the ledger's back.
	require.NoError(t, env.db.Model(&model.Ingredient{}).Where("id = ?", ing.ID).
		Update("stock_quantity", dec("9")).Error)

	res, err := env.inventory.Reconcile(ctx, ing.ID)
	var cerr *ConsistencyError
	require.True(t, errors.As(err, &cerr))
	assert.True(t, cerr.Cached.Equal(dec("9")))
	assert.True(t, cerr.Computed.Equal(dec("3")))
	assert.False(t, res.Consistent())
	assert.Equal(t, int64(1), res.Movements)

	// Reconcile never writes.
	assert.True(t, env.stock(t, ing.ID).Equal(dec("9")))

	mismatches, err := env.inventory.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, ing.ID, mismatches[0].IngredientID)

	repaired, err := env.inventory.Repair(ctx, ing.ID, Actor{Username: "admin"})
	require.NoError(t, err)
	assert.True(t, repaired.Cached.Equal(dec("9")))
	assert.True(t, env.stock(t, ing.ID).Equal(dec("3")))
	env.assertReconciles(t, ing.ID)
	env.assertReconciles(t, other.ID)

	// Repair writes no movement.
	assert.Equal(t, int64(1), env.movementCount(t, ing.ID))

	_, err = env.inventory.Reconcile(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}
