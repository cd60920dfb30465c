package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestReason_String(t *testing.T) {
	orderID := uuid.MustParse("6f1c1d1e-0000-4000-8000-000000000001")

	assert.Equal(t, "purchase", PurchaseReason("").String())
	assert.Equal(t, "purchase (factura 7)", PurchaseReason("factura 7").String())
	assert.Equal(t, "consumption for Bread in order 6f1c1d1e-0000-4000-8000-000000000001",
		ConsumptionReason(orderID, "Bread").String())
	assert.Equal(t, "physical count adjustment (hecho por ana)", PhysicalCountReason("hecho por ana").String())
	assert.Equal(t, "manual (opening stock)", ManualReason("opening stock").String())
}

func TestUnit_Valid(t *testing.T) {
	for _, u := range []Unit{UnitOunce, UnitPound, UnitGram, UnitKilogram, UnitMilliliter, UnitLiter, UnitPiece} {
		assert.True(t, u.Valid(), u)
	}
	assert.False(t, Unit("cups").Valid())
	assert.False(t, Unit("").Valid())
}

func TestOrder_TotalAndStatus(t *testing.T) {
	o := &Order{Items: []OrderItem{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("1.5")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("4")},
	}}
	assert.Equal(t, "7", o.Total().String())
	assert.Equal(t, "Pendiente", o.StatusDisplay())
	o.IsPaid = true
	assert.Equal(t, "Pagada", o.StatusDisplay())
}
