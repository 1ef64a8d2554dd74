package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"grid-dashboard/internal/bus"
	"grid-dashboard/internal/config"
	"grid-dashboard/internal/events"
	"grid-dashboard/internal/grid"
	"grid-dashboard/internal/metrics"
	"grid-dashboard/internal/restapi"
	"grid-dashboard/internal/sound"
	"grid-dashboard/internal/state"
)

// Realtime is the part of the websocket event client the dashboard drives.
type Realtime interface {
	State() state.Connection
	Snapshot() state.Snapshot
	GridStatus(symbol string) (state.GridStatus, bool)
	GridEvents(symbol string) []events.GridEvent
	Send(frame any) error
	Subscribe(symbols []string) error
	Subscriptions() []string
	ClearGridEvents() error
	Reconnect() error
	TriggerBuy(symbol string) error
	TriggerSell(symbol string) error
	SubscribeMessages(buffer int) *bus.Subscription[events.Message]
	UnsubscribeMessages(sub *bus.Subscription[events.Message])
	SubscribeState(buffer int) *bus.Subscription[state.Snapshot]
	UnsubscribeState(sub *bus.Subscription[state.Snapshot])
}

// Backend is the trading service's REST surface.
type Backend interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
	Candles(ctx context.Context, symbol, interval string) ([]restapi.Candle, error)
	Grid(ctx context.Context, symbol string) ([]restapi.GridLevel, error)
	SaveGrid(ctx context.Context, symbol string, levels []restapi.GridLevel) error
	StartGrid(ctx context.Context, symbol string) error
	StopGrid(ctx context.Context, symbol string) error
	Logs(ctx context.Context, symbol string) ([]restapi.LogItem, error)
	ExportLogs(ctx context.Context, symbol string) ([]byte, string, error)
	Archive(ctx context.Context, q restapi.ArchiveQuery) (restapi.Archive, error)
	DeleteArchive(ctx context.Context, q restapi.ArchiveQuery) error
	Monitoring(ctx context.Context) ([]string, error)
	SetMonitoring(ctx context.Context, symbol string, active bool) error
}

type HTTPServer struct {
	cfg     config.Config
	rt      Realtime
	api     Backend
	snd     *sound.Library
	metrics *metrics.Metrics
	hub     *hub
	log     *slog.Logger
	engine  *gin.Engine
}

func NewHTTPServer(cfg config.Config, rt Realtime, api Backend, snd *sound.Library, m *metrics.Metrics, logger *slog.Logger) *HTTPServer {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPServer{
		cfg:     cfg,
		rt:      rt,
		api:     api,
		snd:     snd,
		metrics: m,
		hub:     newHub(m, logger),
		log:     logger,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.observe, cors.New(cors.Config{
		// SPA served from any local dev port
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Accept", "Origin", "Cache-Control", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	s.routes()
	return s
}

func (s *HTTPServer) Router() http.Handler { return s.engine }

// Run forwards state snapshots and grid events to connected browsers until
// ctx ends.
func (s *HTTPServer) Run(ctx context.Context) {
	go s.hub.run(ctx)

	states := s.rt.SubscribeState(64)
	msgs := s.rt.SubscribeMessages(256)
	defer s.rt.UnsubscribeState(states)
	defer s.rt.UnsubscribeMessages(msgs)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-states.C():
			if !ok {
				return
			}
			s.hub.publish(marshalWS("state", snap))
		case msg, ok := <-msgs.C():
			if !ok {
				return
			}
			s.forward(msg)
		}
	}
}

func (s *HTTPServer) forward(msg events.Message) {
	switch m := msg.(type) {
	case events.GridEventMessage:
		s.hub.publish(marshalWS("grid-event", gridEventPush{
			GridEvent: m.Event,
			SoundURL:  s.snd.URL(string(m.Event.Kind)),
		}))
	case events.TradeResult:
		s.hub.publish(marshalWS("trade-result", map[string]any{
			"type":    m.Kind,
			"symbol":  m.Symbol,
			"result":  m.Result,
			"message": m.Message,
		}))
	}
}

// --------- Middleware ----------

func (s *HTTPServer) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	method := c.Request.Method
	s.metrics.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
	s.metrics.HTTPDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	s.log.Debug("http request",
		slog.String("method", method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("took", time.Since(start)),
	)
}

// --------- Routes ----------

func (s *HTTPServer) routes() {
	r := s.engine

	r.GET("/ws", s.serveWS)
	r.GET("/sounds/:name", s.serveSound)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	api.GET("/health", s.apiHealth)
	api.GET("/config", s.apiConfig)

	// realtime client
	api.GET("/state", s.apiState)
	api.GET("/grid-status/:symbol", s.apiGridStatus)
	api.GET("/grid-events", s.apiGridEvents)
	api.POST("/grid-events/clear", s.apiClearGridEvents)
	api.GET("/subscriptions", s.apiSubscriptions)
	api.POST("/subscribe", s.apiSubscribe)
	api.POST("/send", s.apiSend)
	api.POST("/reconnect", s.apiReconnect)
	api.POST("/trigger/:side", s.apiTrigger)

	// backend REST passthrough
	api.GET("/price", s.apiPrice)
	api.GET("/candles", s.apiCandles)
	api.GET("/grid", s.apiGrid)
	api.POST("/grid", s.apiSaveGrid)
	api.GET("/grid/summary", s.apiGridSummary)
	api.POST("/grid/start", s.apiStartGrid)
	api.POST("/grid/stop", s.apiStopGrid)
	api.GET("/logs", s.apiLogs)
	api.GET("/logs/export", s.apiExportLogs)
	api.POST("/archive", s.apiArchive)
	api.POST("/archive/delete", s.apiDeleteArchive)
	api.GET("/monitoring", s.apiMonitoring)
	api.POST("/monitoring", s.apiSetMonitoring)
}

func (s *HTTPServer) serveWS(c *gin.Context) {
	s.hub.serveWS(c.Writer, c.Request, marshalWS("state", s.rt.Snapshot()))
}

func (s *HTTPServer) serveSound(c *gin.Context) {
	path, ok := s.snd.File(c.Param("name"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	// strong caching (1 year) + immutable
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.File(path)
}

func (s *HTTPServer) apiHealth(c *gin.Context) {
	conn := s.rt.State()
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"connected":     conn.Connected,
		"authenticated": conn.Authenticated,
	})
}

func (s *HTTPServer) apiConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"backendWsUrl":         s.cfg.BackendWSURL,
		"backendApiUrl":        s.cfg.BackendAPIURL,
		"reconnectIntervalMs":  s.cfg.ReconnectIntervalMS,
		"maxReconnectAttempts": s.cfg.MaxReconnectAttempts,
		"pingIntervalSeconds":  s.cfg.PingIntervalSeconds,
		"eventLogCapacity":     s.cfg.EventLogCapacity,
		"defaultSymbols":       s.cfg.DefaultSymbols,
		"sounds":               s.snd.URLs(),
	})
}

func (s *HTTPServer) apiState(c *gin.Context) {
	c.JSON(http.StatusOK, s.rt.Snapshot())
}

func (s *HTTPServer) apiGridStatus(c *gin.Context) {
	st, ok := s.rt.GridStatus(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no grid events for symbol"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *HTTPServer) apiGridEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": s.rt.GridEvents(c.Query("symbol"))})
}

func (s *HTTPServer) apiClearGridEvents(c *gin.Context) {
	if err := s.rt.ClearGridEvents(); err != nil {
		s.realtimeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) apiSubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.rt.Subscriptions()})
}

// POST /api/subscribe { "symbols": ["BTCUSDT", ...] }
func (s *HTTPServer) apiSubscribe(c *gin.Context) {
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	err := s.rt.Subscribe(req.Symbols)
	switch {
	case errors.Is(err, events.ErrNotConnected):
		// intent is kept and asserted on the next open
		c.JSON(http.StatusAccepted, gin.H{"ok": true, "pending": true, "symbols": s.rt.Subscriptions()})
	case err != nil:
		s.realtimeError(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true, "symbols": s.rt.Subscriptions()})
	}
}

// POST /api/send forwards a raw JSON frame to the backend socket.
func (s *HTTPServer) apiSend(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	if err := s.rt.Send(json.RawMessage(body)); err != nil {
		s.realtimeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) apiReconnect(c *gin.Context) {
	if err := s.rt.Reconnect(); err != nil {
		s.realtimeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/trigger/:side { "symbol": "BTCUSDT" }
func (s *HTTPServer) apiTrigger(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	sym := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}
	var err error
	switch strings.ToLower(c.Param("side")) {
	case "buy":
		err = s.rt.TriggerBuy(sym)
	case "sell":
		err = s.rt.TriggerSell(sym)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be buy or sell"})
		return
	}
	if err != nil {
		s.realtimeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "symbol": sym})
}

func (s *HTTPServer) apiPrice(c *gin.Context) {
	sym, ok := requireSymbol(c)
	if !ok {
		return
	}
	p, err := s.api.Price(c.Request.Context(), sym)
	if err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "price": p})
}

// GET /api/candles?symbol=BTCUSDT&interval=1m
func (s *HTTPServer) apiCandles(c *gin.Context) {
	sym, ok := requireSymbol(c)
	if !ok {
		return
	}
	interval := c.DefaultQuery("interval", restapi.DefaultCandleInterval)
	candles, err := s.api.Candles(c.Request.Context(), sym, interval)
	if err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "interval": interval, "candles": candles})
}

func (s *HTTPServer) apiGrid(c *gin.Context) {
	sym, ok := requireSymbol(c)
	if !ok {
		return
	}
	levels, err := s.api.Grid(c.Request.Context(), sym)
	if err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "levels": levels})
}

// POST /api/grid { "symbol": "BTCUSDT", "levels": [...] }
func (s *HTTPServer) apiSaveGrid(c *gin.Context) {
	var req struct {
		Symbol string              `json:"symbol"`
		Levels []restapi.GridLevel `json:"levels"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	sym := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}
	if err := s.api.SaveGrid(c.Request.Context(), sym, req.Levels); err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "symbol": sym, "levels": len(req.Levels)})
}

// GET /api/grid/summary ranks the grid against the current price. A missing
// price still yields the summary, unranked.
func (s *HTTPServer) apiGridSummary(c *gin.Context) {
	sym, ok := requireSymbol(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	levels, err := s.api.Grid(ctx, sym)
	if err != nil {
		s.backendError(c, err)
		return
	}
	price, err := s.api.Price(ctx, sym)
	if err != nil {
		s.log.Warn("price unavailable for summary", slog.String("symbol", sym), slog.String("err", err.Error()))
		price = decimal.Zero
	}
	c.JSON(http.StatusOK, grid.Summarize(sym, levels, price))
}

func (s *HTTPServer) apiStartGrid(c *gin.Context) {
	s.gridToggle(c, s.api.StartGrid)
}

func (s *HTTPServer) apiStopGrid(c *gin.Context) {
	s.gridToggle(c, s.api.StopGrid)
}

func (s *HTTPServer) gridToggle(c *gin.Context, fn func(context.Context, string) error) {
	sym, ok := requireSymbol(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), sym); err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "symbol": sym})
}

func (s *HTTPServer) apiLogs(c *gin.Context) {
	sym, ok := requireSymbol(c)
	if !ok {
		return
	}
	rows, err := s.api.Logs(c.Request.Context(), sym)
	if err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "rows": rows})
}

func (s *HTTPServer) apiExportLogs(c *gin.Context) {
	sym, ok := requireSymbol(c)
	if !ok {
		return
	}
	b, contentType, err := s.api.ExportLogs(c.Request.Context(), sym)
	if err != nil {
		s.backendError(c, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "grid-logs-"+sym))
	c.Data(http.StatusOK, contentType, b)
}

func (s *HTTPServer) apiArchive(c *gin.Context) {
	var q restapi.ArchiveQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	a, err := s.api.Archive(c.Request.Context(), q)
	if err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archive": a, "profit": grid.SummarizeArchive(a)})
}

func (s *HTTPServer) apiDeleteArchive(c *gin.Context) {
	var q restapi.ArchiveQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	if err := s.api.DeleteArchive(c.Request.Context(), q); err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) apiMonitoring(c *gin.Context) {
	syms, err := s.api.Monitoring(c.Request.Context())
	if err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": syms})
}

// POST /api/monitoring { "symbol": "BTCUSDT", "active": true }
func (s *HTTPServer) apiSetMonitoring(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol"`
		Active bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	sym := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}
	if err := s.api.SetMonitoring(c.Request.Context(), sym, req.Active); err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "symbol": sym, "active": req.Active})
}

// --------- Helpers ----------

func requireSymbol(c *gin.Context) (string, bool) {
	sym := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return "", false
	}
	return sym, true
}

func (s *HTTPServer) realtimeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, events.ErrNotConnected),
		errors.Is(err, events.ErrSendBufferFull),
		errors.Is(err, events.ErrNotStarted),
		errors.Is(err, events.ErrClientClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (s *HTTPServer) backendError(c *gin.Context, err error) {
	var apiErr *restapi.APIError
	switch {
	case restapi.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		s.log.Error("backend request failed", slog.String("path", c.Request.URL.Path), slog.String("err", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
