package handler

import (
	"errors"
	"net/http"

	"github.com/DeybisMelendez/km9-comanda/internal/apierror"
	"github.com/DeybisMelendez/km9-comanda/internal/dto"
	"github.com/DeybisMelendez/km9-comanda/internal/model"
	"github.com/DeybisMelendez/km9-comanda/internal/repository"
	"github.com/DeybisMelendez/km9-comanda/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IngredientsHandler serves the ledger: stock reads, purchases, physical
// counts and the reconcile/repair endpoints.
type IngredientsHandler struct {
	catalog   service.CatalogService
	ledger    service.LedgerService
	inventory service.InventoryService
}

func NewIngredientsHandler(catalog service.CatalogService, ledger service.LedgerService, inventory service.InventoryService) *IngredientsHandler {
	return &IngredientsHandler{catalog: catalog, ledger: ledger, inventory: inventory}
}

func (h *IngredientsHandler) List(c *gin.Context) {
	ingredients, err := h.catalog.ListIngredients(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]dto.IngredientResponse, 0, len(ingredients))
	for i := range ingredients {
		resp = append(resp, dto.NewIngredientResponse(&ingredients[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *IngredientsHandler) Create(c *gin.Context) {
	var req dto.CreateIngredientRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ing, err := h.catalog.CreateIngredient(c.Request.Context(), service.IngredientInput{
		Name:         req.Name,
		Unit:         model.Unit(req.Unit),
		OpeningStock: req.OpeningStock,
	}, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewIngredientResponse(ing))
}

func (h *IngredientsHandler) Stock(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	qty, err := h.ledger.CurrentStock(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.StockResponse{IngredientID: id.String(), StockQuantity: qty})
}

// Reconcile answers 200 when cache and log agree and 409 with both values
// when they do not. It never writes.
func (h *IngredientsHandler) Reconcile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.inventory.Reconcile(c.Request.Context(), id)
	var cerr *service.ConsistencyError
	if err != nil && !errors.As(err, &cerr) {
		writeError(c, err)
		return
	}
	if cerr != nil {
		writeError(c, cerr)
		return
	}
	c.JSON(http.StatusOK, reconcileResponse(res))
}

func (h *IngredientsHandler) Repair(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.inventory.Repair(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reconcileResponse(res))
}

func reconcileResponse(r *service.ReconcileResult) dto.ReconcileResponse {
	return dto.ReconcileResponse{
		IngredientID: r.IngredientID.String(),
		Ingredient:   r.Name,
		Unit:         string(r.Unit),
		Cached:       r.Cached,
		Computed:     r.Computed,
		Movements:    r.Movements,
		Consistent:   r.Consistent(),
	}
}

func (h *IngredientsHandler) Purchase(c *gin.Context) {
	var req dto.PurchaseRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	var (
		movements []*model.Movement
		err       error
	)
	if len(req.Lines) == 1 {
		var m *model.Movement
		m, err = h.inventory.Purchase(ctx, mustUUID(req.Lines[0].IngredientID), req.Lines[0].Quantity, req.Note, actor(c))
		if m != nil {
			movements = []*model.Movement{m}
		}
	} else {
		lines := make([]service.StockLine, 0, len(req.Lines))
		for _, l := range req.Lines {
			lines = append(lines, service.StockLine{IngredientID: mustUUID(l.IngredientID), Quantity: l.Quantity})
		}
		movements, err = h.inventory.BulkPurchase(ctx, lines, req.Note, actor(c))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewMovementResponses(movements))
}

func (h *IngredientsHandler) PhysicalCount(c *gin.Context) {
	var req dto.PhysicalCountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	var (
		movements []*model.Movement
		err       error
	)
	if len(req.Counts) == 1 {
		var m *model.Movement
		m, err = h.inventory.PhysicalCountAdjustment(ctx, mustUUID(req.Counts[0].IngredientID), *req.Counts[0].Observed, req.Note, actor(c))
		if m != nil {
			movements = []*model.Movement{m}
		}
	} else {
		counts := make([]service.StockLine, 0, len(req.Counts))
		for _, l := range req.Counts {
			counts = append(counts, service.StockLine{IngredientID: mustUUID(l.IngredientID), Quantity: *l.Observed})
		}
		movements, err = h.inventory.BulkPhysicalCount(ctx, counts, req.Note, actor(c))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PhysicalCountResponse{
		Adjusted:  len(movements),
		Movements: dto.NewMovementResponses(movements),
	})
}

func (h *IngredientsHandler) Movements(c *gin.Context) {
	var q dto.MovementFilter
	if !bindQuery(c, &q) {
		return
	}
	filter := repository.MovementFilter{Kind: model.ReasonKind(q.Kind), Page: q.Page, Limit: q.Limit}
	if q.IngredientID != "" {
		id, err := uuid.Parse(q.IngredientID)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.WithCode("bad_request", "ingredient_id invalido"))
			return
		}
		filter.IngredientID = &id
	}
	movements, total, err := h.ledger.ListMovements(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	data := make([]dto.MovementResponse, 0, len(movements))
	for i := range movements {
		data = append(data, dto.NewMovementResponse(&movements[i]))
	}
	c.JSON(http.StatusOK, dto.MovementListResponse{Data: data, Total: total, Page: q.Page, Limit: q.Limit})
}
