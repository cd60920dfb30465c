package dto

import (
	"github.com/DeybisMelendez/km9-comanda/internal/model"

	"github.com/shopspring/decimal"
)

type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required,min=2,max=80"`
}

type CategoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BOMLineRequest struct {
	IngredientID string          `json:"ingredient_id" validate:"required,uuid"`
	Quantity     decimal.Decimal `json:"quantity"      validate:"required"`
}

type CreateProductRequest struct {
	Name        string           `json:"name"        validate:"required,min=2,max=120"`
	CategoryID  string           `json:"category_id" validate:"required,uuid"`
	Price       decimal.Decimal  `json:"price"       validate:"min=0"`
	Ingredients []BOMLineRequest `json:"ingredients" validate:"omitempty,dive"`
}

type BOMLineResponse struct {
	IngredientID string          `json:"ingredient_id"`
	Ingredient   string          `json:"ingredient,omitempty"`
	Unit         string          `json:"unit,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type ProductResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	CategoryID  string            `json:"category_id"`
	Category    string            `json:"category,omitempty"`
	Price       decimal.Decimal   `json:"price"`
	Ingredients []BOMLineResponse `json:"ingredients"`
}

func NewProductResponse(p *model.Product) ProductResponse {
	r := ProductResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		CategoryID:  p.CategoryID.String(),
		Price:       p.Price,
		Ingredients: make([]BOMLineResponse, 0, len(p.Ingredients)),
	}
	if p.Category != nil {
		r.Category = p.Category.Name
	}
	for _, e := range p.Ingredients {
		line := BOMLineResponse{IngredientID: e.IngredientID.String(), Quantity: e.Quantity}
		if e.Ingredient != nil {
			line.Ingredient = e.Ingredient.Name
			line.Unit = string(e.Ingredient.Unit)
		}
		r.Ingredients = append(r.Ingredients, line)
	}
	return r
}
