package api

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"query5/internal/config"
	"query5/internal/engine"
	"query5/internal/models"
)

// Handler serves the query over tables loaded once at startup. Until SetData
// is called every data endpoint answers 503.
type Handler struct {
	mu      sync.RWMutex
	tables  *models.Tables
	summary *models.LoadSummary

	engine   *engine.Engine
	metrics  *Metrics
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func NewHandler(eng *engine.Engine, reg *prometheus.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:   eng,
		metrics:  NewMetrics(reg),
		gatherer: reg,
		logger:   logger,
	}
}

// SetData publishes the loaded tables. The tables must not be modified afterwards.
func (h *Handler) SetData(tables *models.Tables, summary *models.LoadSummary) {
	h.mu.Lock()
	h.tables = tables
	h.summary = summary
	h.mu.Unlock()
	for _, t := range summary.Tables {
		h.metrics.tableRows.WithLabelValues(t.Table).Set(float64(t.Rows))
	}
}

func (h *Handler) data() (*models.Tables, *models.LoadSummary) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tables, h.summary
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.GET("/tables", h.GetTables)
	api.POST("/query", h.PostQuery)
}

// --- HANDLERS ---
func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func loading(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "loading"})
}

func (h *Handler) Health(c echo.Context) error {
	if tables, _ := h.data(); tables == nil {
		return loading(c)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) GetTables(c echo.Context) error {
	tables, summary := h.data()
	if tables == nil {
		return loading(c)
	}
	return c.JSON(http.StatusOK, summary)
}

// PostQuery runs the query. A zero thread count means one per CPU. The rows
// of the result can be paged with limit and offset.
func (h *Handler) PostQuery(c echo.Context) error {
	tables, _ := h.data()
	if tables == nil {
		return loading(c)
	}

	var q models.Query
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query body")
	}
	if q.RegionName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "r_name is required")
	}
	if err := config.ValidateDates(q.StartDate, q.EndDate); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if q.Threads == 0 {
		q.Threads = runtime.NumCPU()
	}

	t0 := time.Now()
	res, err := h.engine.Execute(c.Request().Context(), tables, q)
	h.metrics.observe(err, time.Since(t0), res)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrRegionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, engine.ErrAmbiguousRegion):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, engine.ErrInvalidDateRange):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Error("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}

	total := len(res.Rows)
	limit, offset := getPaginationParams(c, total)
	if offset >= total {
		res.Rows = []models.NationRevenue{}
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		res.Rows = res.Rows[offset:end]
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   res,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
