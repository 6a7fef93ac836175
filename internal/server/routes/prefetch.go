package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/queue"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/server/middleware"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/timing"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
)

func PostPrefetchHandler(c echo.Context) error {
	type postPrefetchBody struct {
		ExpID   string            `json:"exp_id" validate:"required"`
		Names   []string          `json:"names" validate:"required,min=1,dive,required"`
		Options map[string]string `json:"options"`
		Export  bool              `json:"export"`
	}

	body := new(postPrefetchBody)
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := checkRequestOptions(body.Options); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	app := c.(*middleware.AppContext).App
	user := c.(*middleware.AppContext).User
	if app.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Prefetch queue not configured"})
	}

	job, err := queue.NewPrefetchJob(datasource.Request{
		ExpID:   body.ExpID,
		Names:   body.Names,
		Options: body.Options,
	}, body.Export, userName(user))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	if err := queue.EnqueuePrefetch(c.Request().Context(), app.Queue, job); err != nil {
		logger.Error("[Server] Failed to enqueue prefetch job", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to enqueue prefetch job"})
	}

	res := map[string]any{"id": job.ID}
	if job.Export {
		res["export_key"] = job.ExportKey()
	}
	return c.JSON(http.StatusAccepted, res)
}

// GetFetchTimeHandler returns the mean remote read time of a node.
func GetFetchTimeHandler(c echo.Context) error {
	type getFetchTimeParams struct {
		Node string `query:"node" validate:"required"`
	}

	params := new(getFetchTimeParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if app.DBConn == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Fetch log not configured"})
	}

	d, err := timing.PredictFetchTime(c.Request().Context(), app.DBConn, params.Node)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, map[string]any{"node": params.Node, "mean_ms": d.Milliseconds()})
}

func userName(user *middleware.AppUser) string {
	if user == nil {
		return ""
	}
	return user.Role + ":" + strconv.FormatInt(user.UserID, 10)
}
