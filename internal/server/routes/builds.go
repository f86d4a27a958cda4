package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"proteinshake/internal/config"
	"proteinshake/internal/queue"
	"proteinshake/internal/server/middleware"
	"proteinshake/internal/util"
	"proteinshake/pkg/logger"
	"proteinshake/pkg/store"
)

type buildResponse struct {
	Message string       `json:"message"`
	Build   *store.Build `json:"build,omitempty"`
}

// CreateBuildHandler registers a dataset build and enqueues it for the
// workers.
func CreateBuildHandler(c echo.Context) error {
	data := new(config.Build)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, buildResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, buildResponse{Message: "Invalid request body: " + err.Error()})
	}

	app := c.(*middleware.AppContext).App
	if app.Builds == nil || app.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, buildResponse{Message: "Build queue not configured"})
	}

	ctx := c.Request().Context()
	msg, err := queue.NewBuildMsg(*data)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, buildResponse{Message: "Internal server error"})
	}

	build := store.Build{
		ID:      msg.BuildID,
		Dataset: data.DatasetName(),
		Kind:    data.Kind,
		Status:  store.BuildPending,
	}
	if err := app.Builds.CreateBuild(ctx, build); err != nil {
		logger.Error("Failed to create build", "err", err)
		return c.JSON(http.StatusInternalServerError, buildResponse{Message: "Internal server error"})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, buildResponse{Message: "Internal server error"})
	}
	if err := queue.PublishFIFO(app.Queue, queue.BuildQueue, body); err != nil {
		logger.Error("Failed to enqueue build", "build_id", msg.BuildID, "err", err)
		if ferr := app.Builds.FinishBuild(ctx, msg.BuildID, store.BuildFailed, 0, 0, "failed to enqueue build"); ferr != nil {
			logger.Warn("Failed to mark build failed", "build_id", msg.BuildID, "err", ferr)
		}
		return c.JSON(http.StatusInternalServerError, buildResponse{Message: "Failed to enqueue build"})
	}

	logger.Info("Build enqueued", "build_id", msg.BuildID, "dataset", build.Dataset, "user", c.(*middleware.AppContext).User.UserID)
	return c.JSON(http.StatusAccepted, buildResponse{Message: "Build enqueued", Build: &build})
}

func GetBuildHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Builds == nil {
		return c.JSON(http.StatusServiceUnavailable, buildResponse{Message: "Build store not configured"})
	}

	id := c.Param("id")
	if !util.IsNanoid(id) {
		return c.JSON(http.StatusBadRequest, buildResponse{Message: "Invalid build id"})
	}
	build, err := app.Builds.GetBuild(c.Request().Context(), id)
	if errors.Is(err, store.ErrBuildNotFound) {
		return c.JSON(http.StatusNotFound, buildResponse{Message: "Build not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, buildResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, buildResponse{Message: "OK", Build: build})
}
