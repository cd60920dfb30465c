// Package apierror holds the JSON envelopes for every 4xx/5xx response, so
// clients never see driver errors or stack traces.
package apierror

// APIError is the canonical error body. Code is a stable machine-readable tag
// (e.g. "insufficient_stock"); Detail is for humans.
type APIError struct {
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

func WithCode(code, msg string) *APIError {
	return &APIError{Code: code, Detail: msg}
}

// ValidationError lists the offending request fields.
type ValidationError struct {
	Code   string            `json:"code"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Code: "validation", Detail: "Error de validacion", Fields: fields}
}

// ConsistencyError is returned when an ingredient's cached stock disagrees
// with its movement log.
type ConsistencyError struct {
	Code         string `json:"code"`
	Detail       string `json:"detail"`
	IngredientID string `json:"ingredient_id"`
	Cached       string `json:"cached"`
	Computed     string `json:"computed"`
}
