package discordblue

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"github.com/cbusillo/discord-blue/code128"
	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	pprofPrefix          = "/debug"
	apiPrefix            = "/api"
	apiAdminPrefix       = "/admin"
	apiHealthCheck       = "/healthz"
	apiMetrics           = "/metrics"
	apiPathBarcode       = "/barcode"
	apiPathLabel         = "/label"
	apiPathDoodads       = "/doodads"
	apiPathLoadDoodad    = "/doodads/:name/load"
	apiPathUnloadDoodad  = "/doodads/:name/unload"
	apiPathReloadState   = "/state/reload"
	apiPathSchools       = "/schools"
	apiPathPrintJobs     = "/print_jobs"
	apiPathShipments     = "/shipments"
	apiPathQuit          = "/quit"
	xRequestIDHeader     = "X-Request-ID"
	bearerPrefix         = "Bearer "
	pdfContentType       = "application/pdf"
	authFailureBurst     = 5
	authFailureRecovery  = 10 * time.Second
	maxRequestIDLength   = 128
	unauthorizedResponse = "unauthorized"
)

var (
	structValidator = validator.New()
)

// API is the bot's HTTP server: health and metrics, barcode and label
// previews, and the admin endpoints.
type API struct {
	bot        *Bot
	config     *APIConfig
	httpServer *http.Server
	listener   net.Listener
	engine     *gin.Engine
	logger     *slog.Logger

	// authFailureLimiter allows a burst of failed admin logins, then one
	// per authFailureRecovery
	authFailureLimiter *rate.Limiter
}

func newAPI(b *Bot, config *APIConfig) (*API, error) {
	logger := newComponentLogger(config.LogLevel, "api")

	if !config.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	api := &API{
		bot:                b,
		config:             config,
		engine:             r,
		logger:             logger,
		authFailureLimiter: rate.NewLimiter(rate.Every(authFailureRecovery), authFailureBurst),
	}

	var tlsCfg *tls.Config
	if config.SSL.Cert != "" {
		var err error
		tlsCfg, err = tlsConfig(config.SSL.Cert, config.SSL.Key, config.SSL.TLSMinVersion)
		if err != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", err)
		}
	}

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		TLSConfig:         tlsCfg,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		ginLoggingMiddleware(logger),
		metricMiddleware(),
		cors.New(corsConfig),
	)

	if config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	r.GET(apiHealthCheck, api.healthCheck)
	r.GET(apiMetrics, gin.WrapH(promhttp.Handler()))

	public := r.Group(apiPrefix)
	public.GET(apiPathBarcode, api.getBarcode)
	public.GET(apiPathLabel, api.getLabel)

	admin := r.Group(apiPrefix + apiAdminPrefix)
	admin.Use(api.authMiddleware())
	admin.GET(apiPathDoodads, api.getDoodads)
	admin.POST(apiPathLoadDoodad, api.loadDoodad)
	admin.POST(apiPathUnloadDoodad, api.unloadDoodad)
	admin.POST(apiPathReloadState, api.reloadState)
	admin.GET(apiPathSchools, api.getSchools)
	admin.POST(apiPathSchools, api.addSchool)
	admin.GET(apiPathPrintJobs, api.getPrintJobs)
	admin.GET(apiPathShipments, api.getShipments)
	admin.POST(apiPathQuit, api.quit)

	return api, nil
}

// Serve listens on the configured address, serving TLS if a certificate
// is configured
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		if a.httpServer.TLSConfig != nil {
			ln = tls.NewListener(ln, a.httpServer.TLSConfig)
		}
		a.listener = ln
	}
	a.logger.InfoContext(ctx, "serving api", "address", a.listener.Addr().String())
	return a.httpServer.Serve(a.listener)
}

type httpReply struct {
	Message string `json:"message"`
}

type httpError struct {
	Error string `json:"error"`
}

type healthCheckResponse struct {
	DiscordGatewayConnected bool     `json:"discord_gateway_connected"`
	CommandsRegistered      bool     `json:"commands_registered"`
	LoadedDoodads           []string `json:"loaded_doodads"`
	Uptime                  string   `json:"uptime"`
}

type barcodeResponse struct {
	Data     string `json:"data"`
	Codes    []int  `json:"codes"`
	Checksum int    `json:"checksum"`
	Symbol   string `json:"symbol"`
	Modules  []int  `json:"modules"`
}

type barcodeQuery struct {
	Data string `form:"data" binding:"required"`
}

type labelQuery struct {
	School string   `form:"school" binding:"required"`
	IDs    []string `form:"id" binding:"required,min=1,max=3,dive,required"`
}

type doodadsResponse struct {
	Available []string `json:"available"`
	Loaded    []string `json:"loaded"`
}

type doodadActionResponse struct {
	Message  string `json:"message"`
	Commands int    `json:"commands"`
}

type addSchoolPayload struct {
	Name string `json:"name" binding:"required"`
}

type listQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

func (a *API) healthCheck(c *gin.Context) {
	uptime := time.Duration(0)
	if !a.bot.startedAt.IsZero() {
		uptime = time.Since(a.bot.startedAt).Round(time.Second)
	}
	loaded := a.bot.doodads.Loaded()
	if loaded == nil {
		loaded = []string{}
	}
	c.JSON(
		http.StatusOK, healthCheckResponse{
			DiscordGatewayConnected: a.bot.discord.connected.Load(),
			CommandsRegistered:      a.bot.commandsRegistered.Load(),
			LoadedDoodads:           loaded,
			Uptime:                  uptime.String(),
		},
	)
}

// getBarcode returns the Code 128 encoding of the data query parameter
func (a *API) getBarcode(c *gin.Context) {
	var q barcodeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	codes, err := code128.Codes(q.Data)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	symbol, err := code128.Symbol(codes)
	if err != nil {
		ginReplyError(c, err.Error())
		return
	}
	modules, err := code128.Modules(codes)
	if err != nil {
		ginReplyError(c, err.Error())
		return
	}
	c.JSON(
		http.StatusOK, barcodeResponse{
			Data:     q.Data,
			Codes:    codes,
			Checksum: codes[len(codes)-2],
			Symbol:   symbol,
			Modules:  modules,
		},
	)
}

// getLabel renders an asset label PDF. school is a school key, or if no
// school has that key, the name to print.
func (a *API) getLabel(c *gin.Context) {
	var q labelQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	school := q.School
	if name, ok := a.bot.store.State().AssetLabelPrinter.Schools[q.School]; ok {
		school = name
	}

	var buf bytes.Buffer
	if err := RenderAssetLabel(&buf, school, q.IDs...); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", SchoolKey(school)+".pdf"))
	c.Data(http.StatusOK, pdfContentType, buf.Bytes())
}

func (a *API) getDoodads(c *gin.Context) {
	loaded := a.bot.doodads.Loaded()
	if loaded == nil {
		loaded = []string{}
	}
	c.JSON(http.StatusOK, doodadsResponse{Available: a.bot.doodads.Available(), Loaded: loaded})
}

func (a *API) loadDoodad(c *gin.Context) {
	name := c.Param("name")
	count, err := a.bot.LoadDoodad(c.Request.Context(), name)
	if err != nil {
		a.doodadError(c, err)
		return
	}
	c.JSON(http.StatusOK, doodadActionResponse{Message: "Loaded " + name, Commands: count})
}

func (a *API) unloadDoodad(c *gin.Context) {
	name := c.Param("name")
	count, err := a.bot.UnloadDoodad(c.Request.Context(), name)
	if err != nil {
		a.doodadError(c, err)
		return
	}
	c.JSON(http.StatusOK, doodadActionResponse{Message: "Unloaded " + name, Commands: count})
}

func (a *API) doodadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownDoodad):
		c.AbortWithStatusJSON(http.StatusNotFound, httpError{Error: err.Error()})
	case errors.Is(err, ErrDoodadLoaded), errors.Is(err, ErrDoodadNotLoaded):
		c.AbortWithStatusJSON(http.StatusConflict, httpError{Error: err.Error()})
	default:
		_ = c.Error(err)
		ginReplyError(c, err.Error())
	}
}

func (a *API) reloadState(c *gin.Context) {
	if err := a.bot.store.Reload(); err != nil {
		_ = c.Error(err)
		ginReplyError(c, err.Error())
		return
	}
	ginReplyMessage(c, reloadedConfigMessage)
}

func (a *API) getSchools(c *gin.Context) {
	c.JSON(http.StatusOK, a.bot.store.State().AssetLabelPrinter.Schools)
}

func (a *API) addSchool(c *gin.Context) {
	var payload addSchoolPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	schools, err := a.bot.AddSchool(payload.Name)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, schools)
}

func (a *API) getPrintJobs(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if a.bot.db == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, httpError{Error: "database not ready"})
		return
	}
	jobs, err := a.bot.db.PrintJobs(c.Request.Context(), q.Limit)
	if err != nil {
		_ = c.Error(err)
		ginReplyError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (a *API) getShipments(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if a.bot.db == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, httpError{Error: "database not ready"})
		return
	}
	shipments, err := a.bot.db.Shipments(c.Request.Context(), q.Limit)
	if err != nil {
		_ = c.Error(err)
		ginReplyError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, shipments)
}

func (a *API) quit(c *gin.Context) {
	ginContextLogger(c).Warn("sending stop signal")
	a.bot.Stop()
	ginReplyMessage(c, "quitting")
}

// authMiddleware requires a bearer token matching the admin password
// hash in the state document. Once the failure limiter is exhausted,
// requests are rejected with 429 until it recovers.
func (a *API) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := ginContextLogger(c)

		if a.authFailureLimiter.Tokens() < 1 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpError{Error: "too many failed attempts"})
			return
		}

		storedHash := a.bot.store.State().API.AdminPasswordHash
		if storedHash == "" {
			logger.Warn("admin password not set")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: unauthorizedResponse})
			return
		}

		header := c.GetHeader("Authorization")
		password, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || password == "" {
			a.authFailed(c, logger, "missing bearer token")
			return
		}

		valid, err := VerifyPassword(storedHash, password)
		if err != nil {
			logger.Error("error verifying password", tint.Err(err))
			ginReplyError(c, "error verifying password")
			return
		}
		if !valid {
			a.authFailed(c, logger, "invalid password")
			return
		}
		c.Next()
	}
}

func (a *API) authFailed(c *gin.Context, logger *slog.Logger, reason string) {
	metricAPIAuthFailures.Inc()
	a.authFailureLimiter.Allow()
	logger.Warn("admin authentication failed", "reason", reason)
	c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: unauthorizedResponse})
}

// requestIDMiddleware sets the X-Request-ID header on the response, using
// the request's ID if it sent one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(xRequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the request logger set by ginLoggingMiddleware,
// or the default logger if there isn't one
func ginContextLogger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(string(loggerContextKey)); ok {
		if logger, ok := v.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// ginLoggingMiddleware attaches a logger with the request's details to the
// gin context, and logs each request when it finishes
func ginLoggingMiddleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID, _ := c.Get(xRequestIDHeader)
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}
		requestLogger := base.With(
			slog.Group(
				"request",
				"method", c.Request.Method,
				"path", path,
				"remote_addr", c.Request.RemoteAddr,
				"user_agent", c.Request.UserAgent(),
			),
			slog.Any(xRequestIDHeader, requestID),
		)
		c.Set(string(loggerContextKey), requestLogger)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), requestLogger))

		c.Next()
		latency := time.Since(start)

		response := slog.Group(
			"response",
			"status_code", c.Writer.Status(),
			"body_size", c.Writer.Size(),
		)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL.Path),
				"duration", latency,
				"errors", errs.Errors(),
				response,
			)
			return
		}
		requestLogger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL.Path),
			"duration", latency,
			response,
		)
	}
}

// metricMiddleware counts requests by route, method and status
func metricMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricAPIRequests.WithLabelValues(
			route,
			c.Request.Method,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}

func ginReplyMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, httpReply{Message: message})
}

func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: err})
}

//nolint:gochecknoinits // registers the tag name the structs use
func init() {
	structValidator.SetTagName("binding")
}
