package handler

import (
	"net/http"

	"github.com/DeybisMelendez/km9-comanda/internal/dto"
	"github.com/DeybisMelendez/km9-comanda/internal/model"
	"github.com/DeybisMelendez/km9-comanda/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OrdersHandler struct{ svc service.OrderService }

func NewOrdersHandler(svc service.OrderService) *OrdersHandler {
	return &OrdersHandler{svc: svc}
}

func (h *OrdersHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	var tableID *uuid.UUID
	if req.TableID != nil {
		id := mustUUID(*req.TableID)
		tableID = &id
	}

	var (
		order *model.Order
		err   error
	)
	if len(req.Items) == 0 {
		order, err = h.svc.CreateOrder(c.Request.Context(), tableID, actor(c))
	} else {
		lines := make([]service.OrderLine, 0, len(req.Items))
		for _, it := range req.Items {
			lines = append(lines, service.OrderLine{ProductID: mustUUID(it.ProductID), Quantity: it.Quantity})
		}
		order, err = h.svc.PlaceOrder(c.Request.Context(), tableID, actor(c), lines)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewOrderResponse(order))
}

func (h *OrdersHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}

func (h *OrdersHandler) AddItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.AddItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	item, err := h.svc.AddItem(c.Request.Context(), id, mustUUID(req.ProductID), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewOrderItemResponse(item))
}

// Pay is idempotent: paying a paid order returns it unchanged.
func (h *OrdersHandler) Pay(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := h.svc.MarkPaid(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}

func (h *OrdersHandler) Reassign(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.ReassignOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	in := service.ReassignInput{User: service.Actor{Username: req.Username}, Paid: req.IsPaid}
	if req.TableID != nil {
		tableID := mustUUID(*req.TableID)
		in.TableID = &tableID
	}
	if req.UserID != nil {
		userID := mustUUID(*req.UserID)
		in.User.UserID = &userID
	}
	order, err := h.svc.ReassignOrder(c.Request.Context(), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}

func (h *OrdersHandler) ListTables(c *gin.Context) {
	rows, err := h.svc.ListTablesWithBalance(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTableResponses(rows))
}

func (h *OrdersHandler) TableOrders(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	orders, err := h.svc.ListTableOrders(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponses(orders))
}

func (h *OrdersHandler) PayTable(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	n, err := h.svc.MarkTablePaid(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TablePaidResponse{TableID: id.String(), Paid: n})
}
