package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderClosed       = errors.New("order is already paid")
	ErrDuplicate         = errors.New("already exists")
	ErrInvalidUnit       = errors.New("invalid unit")
	ErrInvalidRange      = errors.New("invalid date range")
)

// ConsistencyError reports an ingredient whose cached stock disagrees with the
// sum of its movements. It is surfaced, never auto-corrected.
type ConsistencyError struct {
	IngredientID uuid.UUID
	Cached       decimal.Decimal
	Computed     decimal.Decimal
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ingredient %s: cached stock %s != movement sum %s",
		e.IngredientID, e.Cached.String(), e.Computed.String())
}

// notFound maps gorm.ErrRecordNotFound onto ErrNotFound and leaves other errors as they are.
func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}

// duplicate maps unique-constraint violations onto ErrDuplicate. It relies on
// gorm.Config.TranslateError being enabled.
func duplicate(err error, what, name string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s %q", ErrDuplicate, what, name)
	}
	return err
}

func invalidQuantity(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuantity, fmt.Sprintf(format, args...))
}
