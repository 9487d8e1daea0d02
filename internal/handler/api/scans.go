package api

import (
	"context"
	"errors"
	"strings"
	"time"

	models "EarnScan/internal/domain/models"
	domrepo "EarnScan/internal/domain/repository"
	domsvc "EarnScan/internal/domain/service"
	icache "EarnScan/internal/service/cache"
	"EarnScan/internal/service/ratelimit"
	"EarnScan/internal/usecase"
	xhttp "EarnScan/pkg/http"
	xlogger "EarnScan/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// analyzeCacheTTL caps how stale a served analysis can be.
const analyzeCacheTTL = 60 * time.Second

// ScanEnqueuer publishes scan requests onto the job queue.
type ScanEnqueuer interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// ScansEchoHandler serves the scan API: start a scan, read back persisted
// scans, and run single-symbol analysis on demand.
type ScansEchoHandler struct {
	logger   *xlogger.Logger
	queue    ScanEnqueuer
	history  *usecase.ScanHistoryUseCase
	analyzer *usecase.SymbolAnalyzer
	ironFly  *usecase.IronFlySelector
	store    domrepo.ScanStore
	cache    *icache.TTLCache
	rl       *ratelimit.Limiter
}

func NewScansEchoHandler(
	logger *xlogger.Logger,
	queue ScanEnqueuer,
	history *usecase.ScanHistoryUseCase,
	analyzer *usecase.SymbolAnalyzer,
	ironFly *usecase.IronFlySelector,
	store domrepo.ScanStore,
) *ScansEchoHandler {
	return &ScansEchoHandler{
		logger:   logger,
		queue:    queue,
		history:  history,
		analyzer: analyzer,
		ironFly:  ironFly,
		store:    store,
		cache:    icache.NewTTLCache(),
		rl:       ratelimit.New(),
	}
}

func (h *ScansEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api/v1")
	g.POST("/scans", h.StartScan)
	g.GET("/scans/recent", h.RecentScans)
	g.GET("/scans/:id", h.GetScan)
	g.GET("/analyze/:symbol", h.Analyze)
	g.GET("/ironfly/:symbol", h.IronFly)
}

// StartScan enqueues a scan job and returns the pre-assigned scan id.
func (h *ScansEchoHandler) StartScan(c echo.Context) error {
	req := &models.StartScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	workers := req.Workers
	if req.Batched {
		workers = 0
	}

	id := uuid.NewString()
	payload := usecase.ScanRequest{ScanID: id, Date: req.Date, Workers: workers}
	if err := h.queue.PublishMessage(c.Request().Context(), usecase.ScanRequestedMessage, payload); err != nil {
		h.logger.Error("enqueue scan failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	h.logger.Info("scan enqueued",
		xlogger.String("scan_id", id),
		xlogger.String("date", req.Date),
		xlogger.Int("workers", workers))
	return xhttp.AcceptedResponse(c, map[string]string{"scan_id": id})
}

// RecentScans lists persisted scan headers, newest first.
func (h *ScansEchoHandler) RecentScans(c echo.Context) error {
	req := &models.RecentScansRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	headers, err := h.history.RecentScans(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("recent scans error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	rows := make([]scanHeaderView, len(headers))
	for i, hd := range headers {
		rows[i] = headerToView(hd)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// GetScan returns one persisted scan with its classifications.
func (h *ScansEchoHandler) GetScan(c echo.Context) error {
	id := c.Param("id")
	res, err := h.history.GetScan(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domrepo.ErrScanNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("scan not found").WithError(err))
		}
		h.logger.Error("get scan error", xlogger.String("scan_id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, scanToView(res))
}

// Analyze runs one symbol through the full validation pipeline. The response
// is cached briefly and the endpoint is rate limited per remote address, since
// one analysis fans out into several provider calls.
func (h *ScansEchoHandler) Analyze(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	if !h.rl.Allow(c.RealIP()+":analyze", 1, 3) {
		h.logger.Warn("analyze rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, 429, "rate limited")
	}

	cacheKey := "analyze:" + symbol
	if req.IronFly {
		cacheKey += ":ironfly"
	}
	if v, ok := h.cache.Get(cacheKey); ok {
		if report, ok2 := v.(*models.AnalysisReport); ok2 {
			c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
			return xhttp.SuccessResponse(c, report)
		}
	}

	report, err := h.analyzer.Analyze(c.Request().Context(), symbol, req.IronFly)
	if err != nil {
		h.logger.Error("analyze error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.cache.Set(cacheKey, report, analyzeCacheTTL)
	return xhttp.SuccessResponse(c, report)
}

// IronFly returns the iron-fly plan for the symbol's nearest expiration.
func (h *ScansEchoHandler) IronFly(c echo.Context) error {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		return xhttp.BadRequestResponse(c, "symbol required")
	}

	plan, err := h.ironFly.Plan(c.Request().Context(), symbol)
	if err != nil {
		if errors.Is(err, domsvc.ErrNoOptions) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no options listed for "+symbol).WithError(err))
		}
		h.logger.Error("iron fly error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, plan)
}

// Health pings the scan store.
func (h *ScansEchoHandler) Health(c echo.Context) error {
	status := map[string]string{"status": "ok"}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Health(ctx); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
		}
	}
	return xhttp.SuccessResponse(c, status)
}

// scanHeaderView is the wire shape of one scan summary row.
type scanHeaderView struct {
	ScanID            string    `json:"scan_id"`
	PostDate          string    `json:"post_date"`
	PreDate           string    `json:"pre_date"`
	PassThreshold     float64   `json:"pass_threshold"`
	NearMissThreshold float64   `json:"near_miss_threshold"`
	ThresholdBasis    string    `json:"threshold_basis"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Analyzed          int       `json:"analyzed"`
	Recommended       int       `json:"recommended"`
	NearMisses        int       `json:"near_misses"`
	Failed            int       `json:"failed"`
}

func headerToView(h domrepo.ScanHeader) scanHeaderView {
	return scanHeaderView{
		ScanID:            h.ID,
		PostDate:          h.PostDate.Format("2006-01-02"),
		PreDate:           h.PreDate.Format("2006-01-02"),
		PassThreshold:     h.PassThreshold,
		NearMissThreshold: h.NearMissThreshold,
		ThresholdBasis:    h.ThresholdBasis,
		StartedAt:         h.StartedAt,
		FinishedAt:        h.FinishedAt,
		Analyzed:          h.Analyzed,
		Recommended:       h.Recommended,
		NearMisses:        h.NearMisses,
		Failed:            h.Failed,
	}
}

type classificationView struct {
	Symbol  string               `json:"symbol"`
	Timing  string               `json:"timing"`
	Outcome string               `json:"outcome"`
	Tier    int                  `json:"tier"`
	Reason  string               `json:"reason"`
	Metrics models.MetricsBundle `json:"metrics"`
}

type scanView struct {
	ScanID            string               `json:"scan_id"`
	PostDate          string               `json:"post_date"`
	PreDate           string               `json:"pre_date"`
	PassThreshold     float64              `json:"pass_threshold"`
	NearMissThreshold float64              `json:"near_miss_threshold"`
	ThresholdBasis    string               `json:"threshold_basis"`
	StartedAt         time.Time            `json:"started_at"`
	FinishedAt        time.Time            `json:"finished_at"`
	Counts            scanCountsView       `json:"counts"`
	Classifications   []classificationView `json:"classifications"`
}

type scanCountsView struct {
	Analyzed    int `json:"analyzed"`
	Recommended int `json:"recommended"`
	TierOne     int `json:"tier1"`
	TierTwo     int `json:"tier2"`
	NearMisses  int `json:"near_misses"`
	Failed      int `json:"failed"`
}

func scanToView(res *models.ScanResult) scanView {
	counts := res.Counts()
	v := scanView{
		ScanID:            res.ID,
		PostDate:          res.Dates.PostMarket.Format("2006-01-02"),
		PreDate:           res.Dates.PreMarket.Format("2006-01-02"),
		PassThreshold:     res.Thresholds.Pass,
		NearMissThreshold: res.Thresholds.NearMiss,
		ThresholdBasis:    res.Thresholds.Basis,
		StartedAt:         res.StartedAt,
		FinishedAt:        res.FinishedAt,
		Counts: scanCountsView{
			Analyzed:    counts.Analyzed,
			Recommended: counts.Recommended,
			TierOne:     counts.TierOne,
			TierTwo:     counts.TierTwo,
			NearMisses:  counts.NearMisses,
			Failed:      counts.Failed,
		},
		Classifications: make([]classificationView, len(res.Classifications)),
	}
	for i, cl := range res.Classifications {
		v.Classifications[i] = classificationView{
			Symbol:  cl.Symbol,
			Timing:  string(cl.Timing),
			Outcome: string(cl.Outcome),
			Tier:    cl.Tier,
			Reason:  cl.Reason,
			Metrics: cl.Metrics,
		}
	}
	return v
}

var _ xhttp.Handler = (*ScansEchoHandler)(nil)
