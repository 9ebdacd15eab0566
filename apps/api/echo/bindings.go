package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindBody binds the JSON body of the request to dst.
func bindBody(ctx echo.Context, dst interface{}) error {
	if err := ctx.Bind(dst); err != nil {
		if _, ok := err.(*echo.HTTPError); ok {
			return err
		}
		return errors.Wrap(errInvalidBody, err.Error())
	}
	return nil
}

// queryDate parses a YYYY-MM-DD query param. Missing params give the zero time.
func queryDate(ctx echo.Context, name string) (time.Time, error) {
	val := core.CleanString(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "expected a YYYY-MM-DD date"})
	}
	return t, nil
}

// queryLimit parses the "limit" query param. Missing or invalid values mean no limit.
func queryLimit(ctx echo.Context) int {
	n, err := strconv.Atoi(ctx.QueryParam("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func queryBool(ctx echo.Context, name string) bool {
	b, _ := strconv.ParseBool(ctx.QueryParam(name))
	return b
}
