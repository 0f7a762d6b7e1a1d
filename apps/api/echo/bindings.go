package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/greesoft/canteen/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	ord.Orderings = core.ParseOrdering(ctx.QueryParam(orderingParam))
}

// bindRange reads the from, to and period query params. Explicit bounds win over period.
func bindRange(ctx echo.Context) (core.DateRange, error) {
	return core.ResolveRange(ctx.QueryParam("from"), ctx.QueryParam("to"), ctx.QueryParam("period"))
}

// pathID parses a numeric path param; anything else cannot match a resource.
func pathID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id < 1 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// queryInt parses an optional numeric query param, 0 when absent.
func queryInt(ctx echo.Context, name string) (int, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a positive integer"})
	}
	return i, nil
}

// queryDate parses an optional YYYY-MM-DD query param, zero when absent.
func queryDate(ctx echo.Context, name string) (core.Date, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return core.Date{}, nil
	}
	t, err := core.ParseDay(val)
	if err != nil {
		return core.Date{}, core.NewValidationError(err, core.FieldError{Field: name, Error: err.Error()})
	}
	return core.Date{Time: t}, nil
}

type SuccessResponse struct {
	Success string `json:"success"`
}

// bindBody binds the JSON body, answering 400 on malformed input.
func bindBody(ctx echo.Context, dest interface{}) error {
	if err := ctx.Bind(dest); err != nil {
		if herr, ok := err.(*echo.HTTPError); ok && herr.Code == http.StatusBadRequest {
			return core.NewValidationError(nil, core.FieldError{Field: "body", Error: "invalid request body"})
		}
		return err
	}
	return nil
}
