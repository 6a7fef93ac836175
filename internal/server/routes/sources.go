package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/server/middleware"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
)

func GetSourcesHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	return c.JSON(http.StatusOK, map[string][]string{"sources": app.Sources.Names()})
}

// GetDataHandler reads signals from a data source. Identical concurrent
// requests share one read.
func GetDataHandler(c echo.Context) error {
	source := c.Param("source")

	req := new(datasource.Request)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := checkRequestOptions(req.Options); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	app := c.(*middleware.AppContext).App
	if _, ok := app.Sources.Lookup(source); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown data source " + source})
	}

	key, err := json.Marshal(struct {
		Source string
		Req    *datasource.Request
	}{source, req})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	ctx := c.Request().Context()
	start := time.Now()
	// The shared read outlives any single caller; each caller only stops
	// waiting when its own request goes away.
	ch := app.Flight.DoChan(string(key), func() (any, error) {
		return app.Sources.GetData(context.WithoutCancel(ctx), source, *req)
	})
	var (
		res    any
		shared bool
	)
	select {
	case r := <-ch:
		res, err, shared = r.Val, r.Err, r.Shared
	case <-ctx.Done():
		err = ctx.Err()
	}
	if app.Metrics != nil {
		app.Metrics.ObserveRequest(source, time.Since(start), err)
	}
	if err != nil {
		logger.Error("[Server] Data request failed", "source", source, "exp_id", req.ExpID, "err", err)
		return errorJSON(c, err)
	}
	logger.Debug("[Server] Data request served", "source", source, "exp_id", req.ExpID, "shared", shared)

	return c.JSON(http.StatusOK, res.(*dataobj.DataObject))
}
