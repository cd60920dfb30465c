package handler

import (
	"net/http"

	"github.com/DeybisMelendez/km9-comanda/internal/dto"
	"github.com/DeybisMelendez/km9-comanda/internal/service"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct{ svc service.CatalogService }

func NewCatalogHandler(svc service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

func (h *CatalogHandler) CreateTable(c *gin.Context) {
	var req dto.CreateTableRequest
	if !bindAndValidate(c, &req) {
		return
	}
	t, err := h.svc.CreateTable(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.TableResponse{ID: t.ID.String(), Name: t.Name})
}

func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req dto.CreateCategoryRequest
	if !bindAndValidate(c, &req) {
		return
	}
	cat, err := h.svc.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.CategoryResponse{ID: cat.ID.String(), Name: cat.Name})
}

func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req dto.CreateProductRequest
	if !bindAndValidate(c, &req) {
		return
	}
	in := service.ProductInput{
		Name:       req.Name,
		CategoryID: mustUUID(req.CategoryID),
		Price:      req.Price,
	}
	for _, l := range req.Ingredients {
		in.Ingredients = append(in.Ingredients, service.BOMLine{IngredientID: mustUUID(l.IngredientID), Quantity: l.Quantity})
	}
	p, err := h.svc.CreateProduct(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewProductResponse(p))
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewProductResponse(p))
}
