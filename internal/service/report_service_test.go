package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReports(t *testing.T) {
	env := newTestEnv(t, allowNegative())
	ctx := context.Background()
	reports := NewReportService(env.movements, env.orders, time.UTC)

	table, err := env.catalog.CreateTable(ctx, "Mesa 2")
	require.NoError(t, err)
	flour := env.ingredient(t, "Flour", "10")
	bread := env.product(t, "Bread", "1.5", BOMLine{IngredientID: flour.ID, Quantity: dec("0.5")})
	cake := env.product(t, "Cake", "4")

	paid, err := env.order.PlaceOrder(ctx, &table.ID, Actor{Username: "luis"}, []OrderLine{
		{ProductID: bread.ID, Quantity: 2},
		{ProductID: cake.ID, Quantity: 1},
	})
	require.NoError(t, err)
	_, err = env.order.MarkPaid(ctx, paid.ID)
	require.NoError(t, err)
	_, err = env.order.PlaceOrder(ctx, nil, Actor{}, []OrderLine{{ProductID: bread.ID, Quantity: 1}})
	require.NoError(t, err)

	now := time.Now().UTC()
	start, end := now.Add(-time.Hour), now.Add(time.Hour)

	t.Run("movements in range", func(t *testing.T) {
		rows, err := reports.MovementsInRange(ctx, start, end)
		require.NoError(t, err)
		// opening stock + two consumptions
		require.Len(t, rows, 3)
		for _, r := range rows {
			assert.Equal(t, "Flour", r.Ingredient)
		}
	})

	t.Run("order items in range", func(t *testing.T) {
		rows, err := reports.OrderItemsInRange(ctx, start, end)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		var withTable int
		for _, r := range rows {
			if r.Table == "Mesa 2" {
				withTable++
				assert.Equal(t, "luis", r.User)
			}
		}
		assert.Equal(t, 2, withTable)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := reports.MovementsInRange(ctx, end, start)
		assert.True(t, errors.Is(err, ErrInvalidRange))
		_, err = reports.OrderItemsInRange(ctx, end, start)
		assert.True(t, errors.Is(err, ErrInvalidRange))
	})

	t.Run("daily sales counts paid orders only", func(t *testing.T) {
		daily, err := reports.DailySales(ctx, now)
		require.NoError(t, err)
		require.Len(t, daily.Orders, 1)
		assert.True(t, daily.Total.Equal(dec("7")))
		require.Len(t, daily.Products, 2)
		assert.Equal(t, "Bread", daily.Products[0].Product)
		assert.Equal(t, 2, daily.Products[0].Quantity)
		assert.True(t, daily.Products[0].Subtotal.Equal(dec("3")))
	})

	t.Run("history lists every order", func(t *testing.T) {
		orders, err := reports.OrderHistory(ctx, now)
		require.NoError(t, err)
		assert.Len(t, orders, 2)

		orders, err = reports.OrderHistory(ctx, now.AddDate(0, 0, -3))
		require.NoError(t, err)
		assert.Empty(t, orders)
	})
}

func TestDayBounds_UsesLocation(t *testing.T) {
	managua := time.FixedZone("CST", -6*3600)
	svc := NewReportService(nil, nil, managua).(*reportService)

	// 03:00 UTC is still the previous evening in Managua.
	start, end := svc.dayBounds(time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, managua), start)
	assert.Equal(t, 1, end.In(managua).Day())
	assert.True(t, end.Before(time.Date(2026, 5, 2, 0, 0, 0, 0, managua)))
}
