package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/server/middleware"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/storage"
)

func GetExportsHandler(c echo.Context) error {
	type getExportsParams struct {
		ExpID string `param:"exp_id" validate:"required"`
	}

	params := new(getExportsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if app.S3 == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Export storage not configured"})
	}

	ids, err := storage.ListExports(c.Request().Context(), app.S3, params.ExpID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, map[string][]string{"exports": ids})
}

func GetExportLinkHandler(c echo.Context) error {
	type getExportLinkParams struct {
		ExpID string `param:"exp_id" validate:"required"`
		ID    string `param:"id" validate:"required"`
	}

	params := new(getExportLinkParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if app.S3 == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Export storage not configured"})
	}

	url, err := storage.GenerateDownloadLink(c.Request().Context(), app.S3, storage.ExportKey(params.ExpID, params.ID))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}
