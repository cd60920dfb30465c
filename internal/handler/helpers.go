package handler

import (
	"errors"
	"net/http"
	"reflect"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/apierror"
	"github.com/DeybisMelendez/km9-comanda/internal/dto"
	"github.com/DeybisMelendez/km9-comanda/internal/middleware"
	"github.com/DeybisMelendez/km9-comanda/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode("bad_request", "JSON invalido: "+err.Error()))
		return false
	}
	return runValidation(c, req)
}

// bindQuery is bindAndValidate for query strings.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode("bad_request", err.Error()))
		return false
	}
	return runValidation(c, req)
}

func runValidation(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.WithCode("bad_request", err.Error()))
			return false
		}
		fields := make(map[string]string)
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode("bad_request", "ID invalido"))
		return uuid.Nil, false
	}
	return id, true
}

// mustUUID parses an id already checked by the "uuid" validator tag.
func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

// actor identifies the caller from the JWT claims, if any.
func actor(c *gin.Context) service.Actor {
	claims := middleware.GetClaims(c)
	if claims == nil {
		return service.Actor{}
	}
	return service.Actor{UserID: claims.UserUUID(), Username: claims.Username}
}

// writeError maps domain errors to HTTP statuses. Anything unrecognised is
// handed to the ErrorHandler middleware, which answers a generic 500.
func writeError(c *gin.Context, err error) {
	var cerr *service.ConsistencyError
	switch {
	case errors.As(err, &cerr):
		c.JSON(http.StatusConflict, apierror.ConsistencyError{
			Code:         "consistency",
			Detail:       cerr.Error(),
			IngredientID: cerr.IngredientID.String(),
			Cached:       cerr.Cached.String(),
			Computed:     cerr.Computed.String(),
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, apierror.WithCode("not_found", err.Error()))
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidUnit),
		errors.Is(err, service.ErrInvalidRange):
		c.JSON(http.StatusUnprocessableEntity, apierror.WithCode("invalid_input", err.Error()))
	case errors.Is(err, service.ErrInsufficientStock):
		c.JSON(http.StatusConflict, apierror.WithCode("insufficient_stock", err.Error()))
	case errors.Is(err, service.ErrOrderClosed):
		c.JSON(http.StatusConflict, apierror.WithCode("order_closed", err.Error()))
	case errors.Is(err, service.ErrDuplicate):
		c.JSON(http.StatusConflict, apierror.WithCode("duplicate", err.Error()))
	default:
		_ = c.Error(err)
	}
}

const rangeLayout = "2006-01-02T15:04"

// parseRange reads the start/end query pair in loc. When either bound is
// missing the whole current day is used.
func parseRange(q dto.RangeQuery, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	if q.Start == "" || q.End == "" {
		d := now.In(loc)
		start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	start, err := time.ParseInLocation(rangeLayout, q.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.ParseInLocation(rangeLayout, q.End, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
