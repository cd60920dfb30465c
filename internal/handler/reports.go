package handler

import (
	"net/http"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/apierror"
	"github.com/DeybisMelendez/km9-comanda/internal/dto"
	"github.com/DeybisMelendez/km9-comanda/internal/service"

	"github.com/gin-gonic/gin"
)

// ReportsHandler exposes the read-only report queries as JSON. Formatting
// (CSV, spreadsheets) is left to the consumer.
type ReportsHandler struct {
	svc service.ReportService
	loc *time.Location
	now func() time.Time
}

func NewReportsHandler(svc service.ReportService, loc *time.Location) *ReportsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportsHandler{svc: svc, loc: loc, now: time.Now}
}

func (h *ReportsHandler) bindRange(c *gin.Context) (time.Time, time.Time, bool) {
	var q dto.RangeQuery
	if !bindQuery(c, &q) {
		return time.Time{}, time.Time{}, false
	}
	start, end, err := parseRange(q, h.loc, h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode("bad_request", "Formato de fecha invalido, se espera "+rangeLayout))
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (h *ReportsHandler) Movements(c *gin.Context) {
	start, end, ok := h.bindRange(c)
	if !ok {
		return
	}
	rows, err := h.svc.MovementsInRange(c.Request.Context(), start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]dto.MovementReportRow, 0, len(rows))
	for _, r := range rows {
		resp = append(resp, dto.MovementReportRow{
			CreatedAt:  r.CreatedAt.In(h.loc),
			Quantity:   r.Quantity,
			Ingredient: r.Ingredient,
			Unit:       string(r.Unit),
			Kind:       string(r.Kind),
			Reason:     r.Reason,
			User:       r.User,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportsHandler) OrderItems(c *gin.Context) {
	start, end, ok := h.bindRange(c)
	if !ok {
		return
	}
	rows, err := h.svc.OrderItemsInRange(c.Request.Context(), start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]dto.OrderItemReportRow, 0, len(rows))
	for _, r := range rows {
		resp = append(resp, dto.OrderItemReportRow{
			CreatedAt: r.CreatedAt.In(h.loc),
			OrderID:   r.OrderID.String(),
			User:      r.User,
			Table:     r.Table,
			Quantity:  r.Quantity,
			Product:   r.Product,
			UnitPrice: r.UnitPrice,
			Amount:    r.Amount,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportsHandler) day(c *gin.Context) (time.Time, int, bool) {
	var q dto.DayQuery
	if !bindQuery(c, &q) {
		return time.Time{}, 0, false
	}
	return h.now().In(h.loc).AddDate(0, 0, -q.DaysAgo), q.DaysAgo, true
}

func prevNext(daysAgo int) (int, int) {
	next := daysAgo - 1
	if next < 0 {
		next = 0
	}
	return daysAgo + 1, next
}

func (h *ReportsHandler) Daily(c *gin.Context) {
	day, daysAgo, ok := h.day(c)
	if !ok {
		return
	}
	report, err := h.svc.DailySales(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	prev, next := prevNext(daysAgo)
	resp := dto.DailySalesResponse{
		Date:        day.Format("2006-01-02"),
		DaysAgo:     daysAgo,
		PrevDaysAgo: prev,
		NextDaysAgo: next,
		Orders:      dto.NewOrderResponses(report.Orders),
		Products:    make([]dto.ProductSalesRow, 0, len(report.Products)),
		Total:       report.Total,
	}
	for _, p := range report.Products {
		resp.Products = append(resp.Products, dto.ProductSalesRow{
			ProductID: p.ProductID.String(),
			Product:   p.Product,
			Quantity:  p.Quantity,
			Subtotal:  p.Subtotal,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportsHandler) History(c *gin.Context) {
	day, daysAgo, ok := h.day(c)
	if !ok {
		return
	}
	orders, err := h.svc.OrderHistory(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	prev, next := prevNext(daysAgo)
	c.JSON(http.StatusOK, dto.OrderHistoryResponse{
		Date:        day.Format("2006-01-02"),
		DaysAgo:     daysAgo,
		PrevDaysAgo: prev,
		NextDaysAgo: next,
		Orders:      dto.NewOrderResponses(orders),
	})
}
