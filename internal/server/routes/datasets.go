package routes

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"proteinshake/internal/server/middleware"
	"proteinshake/pkg/dataset"
	"proteinshake/pkg/graph"
	"proteinshake/pkg/logger"
	"proteinshake/pkg/protein"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	defaultSearchK  = 10
	maxSearchK      = 100

	artifactLinkTTL = 15 * time.Minute
)

func GetKindsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"kinds": dataset.Kinds()})
}

func GetRecordsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Index == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Record index not configured"})
	}

	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid offset"})
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
	}
	limit = min(limit, maxPageSize)

	records, err := app.Index.ListRecords(c.Request().Context(), c.Param("name"), offset, limit)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, records)
}

func GetRecordHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Index == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Record index not configured"})
	}

	rec, err := app.Index.GetRecord(c.Request().Context(), c.Param("name"), c.Param("id"))
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Record not found"})
	}
	return c.JSON(http.StatusOK, rec)
}

// SearchRecordsHandler returns the records whose residue composition is
// closest to the query sequence.
func SearchRecordsHandler(c echo.Context) error {
	type searchBody struct {
		Sequence string `json:"sequence" validate:"required,alpha"`
		K        int    `json:"k" validate:"gte=0"`
	}

	app := c.(*middleware.AppContext).App
	if app.Index == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Record index not configured"})
	}

	data := new(searchBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	k := data.K
	if k == 0 {
		k = defaultSearchK
	}
	k = min(k, maxSearchK)

	hits, err := app.Index.Nearest(c.Request().Context(), c.Param("name"), data.Sequence, k)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}

// GetArtifactHandler returns a presigned link to the published records
// collection of a dataset.
func GetArtifactHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Artifacts == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Artifact store not configured"})
	}

	name := c.Param("name")
	url, err := app.Artifacts.DownloadLink(c.Request().Context(), dataset.ArtifactKey(name), artifactLinkTTL)
	if err != nil {
		logger.Error("Failed to create download link", "dataset", name, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"url":        url,
		"expires_at": time.Now().Add(artifactLinkTTL).UTC(),
	})
}

// GetGraphsHandler summarizes the graphs a worker built for a dataset under
// the policy given by the query parameters mode, eps, k, symmetrize and
// weighted.
func GetGraphsHandler(c echo.Context) error {
	type graphSummary struct {
		ID    string `json:"id"`
		Nodes int    `json:"nodes"`
		Edges int    `json:"edges"`
	}

	policy, err := policyFromQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	app := c.(*middleware.AppContext).App
	name := c.Param("name")
	if !validDatasetName(name) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid dataset name"})
	}
	layout := dataset.NewLayout(filepath.Join(app.DataRoot, name))
	graphs, err := protein.LoadCollection[*graph.Graph](layout.GraphsPath(name, policy), protein.KindGraphs, name)
	if errors.Is(err, fs.ErrNotExist) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Graphs not built"})
	}
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	out := make([]graphSummary, len(graphs))
	for i, g := range graphs {
		out[i] = graphSummary{ID: g.ID, Nodes: g.NumNodes(), Edges: len(g.Edges)}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"policy": policy.Key(),
		"graphs": out,
	})
}

func policyFromQuery(c echo.Context) (graph.Policy, error) {
	p := graph.Policy{
		Mode:       graph.Mode(c.QueryParam("mode")),
		Weighted:   c.QueryParam("weighted") == "true",
		Symmetrize: c.QueryParam("symmetrize") == "true",
	}
	if v := c.QueryParam("eps"); v != "" {
		eps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, errors.New("invalid eps")
		}
		p.Eps = eps
	}
	k, err := queryInt(c, "k", 0)
	if err != nil {
		return p, errors.New("invalid k")
	}
	p.K = k
	return p, p.Validate()
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// validDatasetName accepts names that stay a single directory below the
// data root.
func validDatasetName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}
