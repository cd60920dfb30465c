package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/config"
	"github.com/DeybisMelendez/km9-comanda/internal/dto"
	"github.com/DeybisMelendez/km9-comanda/internal/infra"
	"github.com/DeybisMelendez/km9-comanda/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSecret = "test-secret-key"

// ── Helpers ──────────────────────────────────────────────────────────────────

type apiClient struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), infra.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, infra.Migrate(db))

	cfg := &config.Config{
		Env:                "test",
		JWTSecret:          testSecret,
		AllowNegativeStock: true,
		Timezone:           "UTC",
		RateLimitPerMinute: 100000,
	}
	return &apiClient{t: t, engine: New(cfg, db, nil, NewServices(cfg, db, nil)), db: db}
}

func token(t *testing.T, rol string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.JWTClaims{
		UserID:           uuid.NewString(),
		Username:         rol + "-user",
		Rol:              rol,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (a *apiClient) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seedMenu creates Flour (10 kg) and Bread consuming 0.5 kg each.
func (a *apiClient) seedMenu(manager string) (flourID, breadID string) {
	t := a.t
	t.Helper()
	w := a.do(http.MethodPost, "/v1/ingredients", manager, map[string]any{"name": "Flour", "unit": "kg", "opening_stock": "10"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	flour := decode[dto.IngredientResponse](t, w)

	w = a.do(http.MethodPost, "/v1/categories", manager, map[string]any{"name": "Panaderia"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cat := decode[dto.CategoryResponse](t, w)

	w = a.do(http.MethodPost, "/v1/products", manager, map[string]any{
		"name":        "Bread",
		"category_id": cat.ID,
		"price":       "1.50",
		"ingredients": []map[string]any{{"ingredient_id": flour.ID, "quantity": "0.5"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bread := decode[dto.ProductResponse](t, w)
	return flour.ID, bread.ID
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)
	w := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "disabled")

	w = a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ledger_reconcile_mismatches_total")
}

func TestAuthAndRoles(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/ingredients", "", nil).Code)
	mesero := token(t, middleware.RoleMesero)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/ingredients", mesero, nil).Code)
	assert.Equal(t, http.StatusForbidden,
		a.do(http.MethodPost, "/v1/ingredients", mesero, map[string]any{"name": "Sal"}).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/v1/inventory/movements", mesero, nil).Code)
}

func TestOrderFlow_DeductsStock(t *testing.T) {
	a := newAPI(t)
	manager := token(t, middleware.RoleEncargado)
	mesero := token(t, middleware.RoleMesero)
	flourID, breadID := a.seedMenu(manager)

	w := a.do(http.MethodPost, "/v1/orders", mesero, map[string]any{
		"items": []map[string]any{{"product_id": breadID, "quantity": 4}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[dto.OrderResponse](t, w)
	require.Len(t, order.Items, 1)

	w = a.do(http.MethodGet, "/v1/ingredients/"+flourID+"/stock", mesero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stock := decode[dto.StockResponse](t, w)
	assert.True(t, stock.StockQuantity.Equal(decimal.NewFromInt(8)), stock.StockQuantity.String())

	w = a.do(http.MethodGet, "/v1/ingredients/"+flourID+"/reconcile", manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.ReconcileResponse](t, w).Consistent)

	w = a.do(http.MethodGet, "/v1/inventory/movements?ingredient_id="+flourID+"&kind=consumption", manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	movs := decode[dto.MovementListResponse](t, w)
	require.Len(t, movs.Data, 1)
	require.NotNil(t, movs.Data[0].OrderID)
	assert.Equal(t, order.ID, *movs.Data[0].OrderID)
	assert.Contains(t, movs.Data[0].Reason, order.ID)

	// Pay twice, then try to add to the closed order.
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/orders/"+order.ID+"/pay", mesero, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/orders/"+order.ID+"/pay", mesero, nil).Code)
	w = a.do(http.MethodPost, "/v1/orders/"+order.ID+"/items", mesero, map[string]any{"product_id": breadID, "quantity": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodGet, "/v1/reports/daily", manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	daily := decode[dto.DailySalesResponse](t, w)
	assert.True(t, daily.Total.Equal(decimal.NewFromInt(6)), daily.Total.String())
	assert.Equal(t, 1, daily.PrevDaysAgo)
	assert.Equal(t, 0, daily.NextDaysAgo)
}

func TestInventoryEndpoints(t *testing.T) {
	a := newAPI(t)
	manager := token(t, middleware.RoleEncargado)
	flourID, _ := a.seedMenu(manager)

	w := a.do(http.MethodPost, "/v1/inventory/purchases", manager, map[string]any{
		"lines": []map[string]any{{"ingredient_id": flourID, "quantity": "-5"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = a.do(http.MethodPost, "/v1/inventory/purchases", manager, map[string]any{
		"lines": []map[string]any{{"ingredient_id": flourID, "quantity": "5"}},
		"note":  "proveedor",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodPost, "/v1/inventory/counts", manager, map[string]any{
		"counts": []map[string]any{{"ingredient_id": flourID, "observed": "15"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, decode[dto.PhysicalCountResponse](t, w).Adjusted)

	w = a.do(http.MethodPost, "/v1/inventory/counts", manager, map[string]any{
		"counts": []map[string]any{{"ingredient_id": flourID, "observed": "12"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	counted := decode[dto.PhysicalCountResponse](t, w)
	require.Equal(t, 1, counted.Adjusted)
	assert.True(t, counted.Movements[0].Quantity.Equal(decimal.NewFromInt(-3)))

	w = a.do(http.MethodPost, "/v1/inventory/counts", manager, map[string]any{
		"counts": []map[string]any{
			{"ingredient_id": flourID, "observed": "1"},
			{"ingredient_id": uuid.NewString(), "observed": "1"},
		},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(http.MethodGet, "/v1/ingredients/"+uuid.NewString()+"/stock", manager, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(http.MethodGet, "/v1/ingredients/not-a-uuid/stock", manager, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPhysicalCount_RequiresObservedQuantity(t *testing.T) {
	a := newAPI(t)
	manager := token(t, middleware.RoleEncargado)
	flourID, _ := a.seedMenu(manager)

	stock := func() decimal.Decimal {
		w := a.do(http.MethodGet, "/v1/ingredients/"+flourID+"/stock", manager, nil)
		require.Equal(t, http.StatusOK, w.Code)
		return decode[dto.StockResponse](t, w).StockQuantity
	}

	w := a.do(http.MethodPost, "/v1/inventory/counts", manager, map[string]any{
		"counts": []map[string]any{{"ingredient_id": flourID}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	w = a.do(http.MethodPost, "/v1/inventory/counts", manager, map[string]any{
		"counts": []map[string]any{{"ingredient_id": flourID, "observed": nil}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.True(t, stock().Equal(decimal.NewFromInt(10)))

	// An explicit zero is a real count.
	w = a.do(http.MethodPost, "/v1/inventory/counts", manager, map[string]any{
		"counts": []map[string]any{{"ingredient_id": flourID, "observed": "0"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[dto.PhysicalCountResponse](t, w).Adjusted)
	assert.True(t, stock().IsZero())
}

func TestPurchase_RejectsUnstorableQuantity(t *testing.T) {
	a := newAPI(t)
	manager := token(t, middleware.RoleEncargado)
	flourID, _ := a.seedMenu(manager)

	for _, qty := range []string{"0.0004", "0.0006", "1000000000000"} {
		w := a.do(http.MethodPost, "/v1/inventory/purchases", manager, map[string]any{
			"lines": []map[string]any{{"ingredient_id": flourID, "quantity": qty}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "%s: %s", qty, w.Body.String())
	}
}

func TestReconcileAndRepairEndpoints(t *testing.T) {
	a := newAPI(t)
	manager := token(t, middleware.RoleEncargado)
	flourID, _ := a.seedMenu(manager)

	require.NoError(t, a.db.Exec("UPDATE ingredients SET stock_quantity = 99 WHERE id = ?", flourID).Error)

	w := a.do(http.MethodGet, "/v1/ingredients/"+flourID+"/reconcile", manager, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"computed":"10"`)

	w = a.do(http.MethodPost, "/v1/ingredients/"+flourID+"/repair", manager, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodGet, "/v1/ingredients/"+flourID+"/reconcile", manager, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTablesEndpoints(t *testing.T) {
	a := newAPI(t)
	manager := token(t, middleware.RoleEncargado)
	mesero := token(t, middleware.RoleMesero)
	_, breadID := a.seedMenu(manager)

	w := a.do(http.MethodPost, "/v1/tables", manager, map[string]any{"name": "Mesa 1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	table := decode[dto.TableResponse](t, w)

	w = a.do(http.MethodPost, "/v1/tables", manager, map[string]any{"name": "Mesa 1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodPost, "/v1/orders", mesero, map[string]any{"table_id": table.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[dto.OrderResponse](t, w)

	w = a.do(http.MethodPost, "/v1/orders/"+order.ID+"/items", mesero, map[string]any{"product_id": breadID, "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodGet, "/v1/tables", mesero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tables := decode[[]dto.TableResponse](t, w)
	require.Len(t, tables, 1)
	assert.True(t, tables[0].Balance.Equal(decimal.NewFromInt(3)))

	w = a.do(http.MethodGet, "/v1/tables/"+table.ID+"/orders", mesero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]dto.OrderResponse](t, w), 1)

	w = a.do(http.MethodPost, "/v1/tables/"+table.ID+"/pay", mesero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[dto.TablePaidResponse](t, w).Paid)
}

func TestReassignOrderEndpoint(t *testing.T) {
	a := newAPI(t)
	manager := token(t, middleware.RoleEncargado)
	mesero := token(t, middleware.RoleMesero)

	w := a.do(http.MethodPost, "/v1/tables", manager, map[string]any{"name": "Terraza"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	table := decode[dto.TableResponse](t, w)

	w = a.do(http.MethodPost, "/v1/orders", mesero, map[string]any{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[dto.OrderResponse](t, w)

	body := map[string]any{"table_id": table.ID, "username": "luis"}
	w = a.do(http.MethodPatch, "/v1/orders/"+order.ID, mesero, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPatch, "/v1/orders/"+order.ID, manager, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[dto.OrderResponse](t, w)
	require.NotNil(t, moved.TableID)
	assert.Equal(t, table.ID, *moved.TableID)
	assert.Equal(t, "luis", moved.User)

	w = a.do(http.MethodPatch, "/v1/orders/"+order.ID, manager, map[string]any{"table_id": table.ID, "is_paid": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[dto.OrderResponse](t, w).IsPaid)

	w = a.do(http.MethodPatch, "/v1/orders/"+order.ID, manager, map[string]any{"is_paid": false})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodPatch, "/v1/orders/"+order.ID, manager, map[string]any{"table_id": "mesa"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestValidationErrors(t *testing.T) {
	a := newAPI(t)
	manager := token(t, middleware.RoleEncargado)

	w := a.do(http.MethodPost, "/v1/ingredients", manager, map[string]any{"name": "X", "unit": "cups"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/tables", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+manager)
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = a.do(http.MethodGet, "/v1/reports/movements?start=2026-01-02T00:00&end=2026-01-01T00:00", manager, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = a.do(http.MethodGet, "/v1/reports/movements?start=yesterday&end=today", manager, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
