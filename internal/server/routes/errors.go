package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
)

// statusFor maps data source errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, datasource.ErrUnknownSource):
		return http.StatusNotFound
	case errors.Is(err, common.ErrFormat),
		errors.Is(err, common.ErrInvalidOption),
		errors.Is(err, common.ErrNotImplemented),
		errors.Is(err, common.ErrUnsupportedComposite),
		errors.Is(err, common.ErrConfigIO):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInconsistentTimebase),
		errors.Is(err, common.ErrShape):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrConnection),
		errors.Is(err, common.ErrTreeOpen),
		errors.Is(err, common.ErrNodeRead):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
}
