package api

import (
	"time"

	"github.com/labstack/echo/v4"

	models "SignalForge/internal/domain/models"
	"SignalForge/internal/service/breaker"
	"SignalForge/internal/service/configstore"
	"SignalForge/internal/service/health"
	"SignalForge/internal/service/predictor"
	"SignalForge/internal/service/versioning"
	"SignalForge/internal/usecase"
	pkgcache "SignalForge/pkg/cache"
	xhttp "SignalForge/pkg/http"
	xlogger "SignalForge/pkg/logger"
	"SignalForge/pkg/util"
)

// EnrichHandler exposes the orchestration core over HTTP: enrichment itself
// plus the operator surface (config, flags, versions, experiments, health,
// cache invalidation).
type EnrichHandler struct {
	logger    *xlogger.Logger
	enricher  *usecase.Enricher
	conf      *configstore.Store
	versions  *versioning.Manager
	predictor *predictor.Predictor
	monitor   *health.Monitor
	breakers  *breaker.Registry
	cache     pkgcache.Service
}

func NewEnrichHandler(
	logger *xlogger.Logger,
	enricher *usecase.Enricher,
	conf *configstore.Store,
	versions *versioning.Manager,
	pred *predictor.Predictor,
	monitor *health.Monitor,
	breakers *breaker.Registry,
	cache pkgcache.Service,
) *EnrichHandler {
	return &EnrichHandler{
		logger:    logger,
		enricher:  enricher,
		conf:      conf,
		versions:  versions,
		predictor: pred,
		monitor:   monitor,
		breakers:  breakers,
		cache:     cache,
	}
}

func (h *EnrichHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/enrich", h.Enrich)

	g.GET("/health", h.Health)
	g.GET("/health/metrics/:metric", h.MetricStats)
	g.GET("/alerts", h.Alerts)
	g.GET("/predictor/stats", h.PredictorStats)
	g.GET("/predictor/importance/:provider", h.PredictorImportance)

	g.GET("/config", h.GetConfig)
	g.POST("/config", h.SetConfig)
	g.PUT("/flags/:name", h.SetFlag)

	g.POST("/versions", h.CreateVersion)
	g.GET("/versions/:provider", h.ListVersions)
	g.GET("/versions/:provider/active", h.ActiveVersion)
	g.PUT("/versions/:provider/active/:id", h.SetActiveVersion)

	g.POST("/experiments", h.StartExperiment)
	g.GET("/experiments", h.ListExperiments)
	g.GET("/experiments/:id/results", h.ExperimentResults)

	g.POST("/cache/invalidate", h.InvalidateCache)
}

func (h *EnrichHandler) Enrich(c echo.Context) error {
	req := &models.EnrichRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sig := &models.Signal{
		Asset:      req.Asset,
		Direction:  models.Direction(req.Direction),
		Tier:       models.ParseTier(req.Tier),
		Confidence: req.Confidence,
	}
	res, err := h.enricher.Enrich(c.Request().Context(), usecase.EnrichParams{
		Signal:       sig,
		RequestID:    req.RequestID,
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		h.logger.Error("enrich usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EnrichHandler) Health(c echo.Context) error {
	states := h.breakers.States()
	breakers := make(map[string]string, len(states))
	for provider, st := range states {
		breakers[provider] = st.String()
	}
	return xhttp.SuccessResponse(c, map[string]any{
		"score":           h.monitor.HealthScore(),
		"open_breakers":   h.breakers.OpenCount(),
		"breakers":        breakers,
		"critical_alerts": len(h.monitor.ActiveAlerts(health.SeverityCritical)),
		"warning_alerts":  len(h.monitor.ActiveAlerts(health.SeverityWarning)),
	})
}

func (h *EnrichHandler) MetricStats(c echo.Context) error {
	metric := c.Param("metric")
	window := util.ParseDuration(c.QueryParam("window"), 5*time.Minute)
	return xhttp.SuccessResponse(c, h.monitor.Stats(metric, window))
}

func (h *EnrichHandler) Alerts(c echo.Context) error {
	severity := c.QueryParam("severity")
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 50)
	alerts := h.monitor.ActiveAlerts(severity)
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return xhttp.SuccessResponse(c, alerts)
}

func (h *EnrichHandler) PredictorStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.predictor.Stats())
}

func (h *EnrichHandler) PredictorImportance(c echo.Context) error {
	provider := c.Param("provider")
	imp := h.predictor.FeatureImportance(provider)
	if imp == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no trained model for provider %q", provider))
	}
	return xhttp.SuccessResponse(c, map[string]any{"provider": provider, "importance": imp})
}

func (h *EnrichHandler) GetConfig(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return xhttp.SuccessResponse(c, h.conf.Snapshot())
	}
	val, ok := h.conf.Get(path)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("config path %q not found", path))
	}
	return xhttp.SuccessResponse(c, map[string]any{"path": path, "value": val})
}

func (h *EnrichHandler) SetConfig(c echo.Context) error {
	req := &models.ConfigSetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.conf.Set(c.Request().Context(), req.Path, req.Value); err != nil {
		h.logger.Error("config set error", xlogger.String("path", req.Path), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, map[string]any{"path": req.Path, "value": req.Value})
}

func (h *EnrichHandler) SetFlag(c echo.Context) error {
	name := c.Param("name")
	if name == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("flag name is required"))
	}
	req := &models.FlagSetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.conf.Set(c.Request().Context(), "feature_flags."+name, req.Enabled); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()))
	}
	return xhttp.SuccessResponse(c, map[string]any{"flag": name, "enabled": req.Enabled})
}

func (h *EnrichHandler) CreateVersion(c echo.Context) error {
	req := &models.CreateVersionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.versions.CreateVersion(req.Provider, req.Config, req.ParentID)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.CreatedResponse(c, v)
}

func (h *EnrichHandler) ListVersions(c echo.Context) error {
	provider := c.Param("provider")
	return xhttp.SuccessResponse(c, h.versions.Versions(provider))
}

func (h *EnrichHandler) ActiveVersion(c echo.Context) error {
	provider := c.Param("provider")
	v, err := h.versions.GetVersion(provider, "")
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *EnrichHandler) SetActiveVersion(c echo.Context) error {
	provider := c.Param("provider")
	id := c.Param("id")
	if err := h.versions.SetActive(provider, id); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	v, err := h.versions.GetVersion(provider, id)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *EnrichHandler) StartExperiment(c echo.Context) error {
	req := &models.StartExperimentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	exp, err := h.versions.StartExperiment(
		req.Provider,
		req.VersionA,
		req.VersionB,
		req.SplitPct,
		time.Duration(req.DurationMinutes)*time.Minute,
	)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
	}
	return xhttp.CreatedResponse(c, exp)
}

func (h *EnrichHandler) ListExperiments(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.versions.Experiments())
}

func (h *EnrichHandler) ExperimentResults(c echo.Context) error {
	res, err := h.versions.GetExperimentResults(c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EnrichHandler) InvalidateCache(c echo.Context) error {
	req := &models.InvalidateCacheRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	removed, err := h.cache.InvalidatePattern(c.Request().Context(), req.Pattern)
	if err != nil {
		h.logger.Error("cache invalidation error", xlogger.String("pattern", req.Pattern), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()))
	}
	return xhttp.SuccessResponse(c, map[string]any{"pattern": req.Pattern, "removed": removed})
}

var _ xhttp.Handler = (*EnrichHandler)(nil)
