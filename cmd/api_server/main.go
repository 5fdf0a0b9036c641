package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stockfetch/pkg/config"
	"stockfetch/pkg/core"
	"stockfetch/pkg/fetcher"
	"stockfetch/pkg/logger"
	"stockfetch/pkg/storage"
)

var (
	configPath = flag.String("config", "", "配置文件路径")
)

// APIServer 数据查询与按需抓取服务
type APIServer struct {
	cfg     *config.Config
	service *fetcher.Service
	gateway *storage.Gateway
	backend storage.Backend
	log     *logrus.Entry
	server  *http.Server
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
	})
	log := logger.WithComponent("api_server")

	gin.SetMode(cfg.Server.Mode)

	apiServer, err := NewAPIServer(cfg)
	if err != nil {
		log.WithError(err).Error("创建 API 服务失败")
		os.Exit(1)
	}
	defer apiServer.Close()

	if err := apiServer.Start(); err != nil {
		log.WithError(err).Error("启动 API 服务失败")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("正在关闭 API 服务...")
	apiServer.Stop()
}

// NewAPIServer 创建 API 服务
func NewAPIServer(cfg *config.Config) (*APIServer, error) {
	backend, err := storage.NewSQLBackend(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("create storage backend failed: %w", err)
	}

	gateway := storage.NewGateway(backend)
	service := fetcher.NewService(cfg.Fetcher, fetcher.WithGateway(gateway))

	return &APIServer{
		cfg:     cfg,
		service: service,
		gateway: gateway,
		backend: backend,
		log:     logger.WithComponent("APIServer"),
	}, nil
}

// Start 注册路由并启动 HTTP 服务
func (s *APIServer) Start() error {
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(s.corsMiddleware())

	router.GET("/health", s.healthCheck)

	v1 := router.Group("/api/v1")
	{
		// 按需抓取（多数据源故障切换，结果落库）
		v1.GET("/stocks/:symbol/bars", s.getBars)
		v1.GET("/stocks/:symbol/ticks", s.getTicks)
		v1.GET("/stocks/:symbol/info", s.getInfo)
		v1.GET("/stocks/:symbol/stats", s.getStats)
		v1.GET("/quotes", s.getQuotes)

		// 历史数据查询（只读本地库）
		v1.GET("/stocks/:symbol/bars/history", s.getBarsHistory)
		v1.GET("/stocks/:symbol/ticks/history", s.getTicksHistory)
	}

	s.server = &http.Server{
		Addr:    ":" + s.cfg.Server.Port,
		Handler: router,
	}

	s.log.WithField("port", s.cfg.Server.Port).Info("API 服务启动中...")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP 服务异常退出")
		}
	}()

	return nil
}

// Stop 优雅关闭 HTTP 服务
func (s *APIServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("HTTP 服务关闭失败")
	}
}

// Close 释放底层资源
func (s *APIServer) Close() {
	if s.backend != nil {
		s.backend.Close()
	}
}

func (s *APIServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// getBars 按需抓取K线
func (s *APIServer) getBars(c *gin.Context) {
	symbol := c.Param("symbol")
	period := core.Period(c.DefaultQuery("period", string(core.PeriodDaily)))

	start, end, ok := s.parseDateRange(c)
	if !ok {
		return
	}

	bars, err := s.service.FetchBars(c.Request.Context(), symbol, period, start, end)
	if err != nil {
		s.renderFetchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"period": period,
		"count":  len(bars),
		"bars":   bars,
	})
}

// getTicks 按需抓取分笔数据
// 所有数据源耗尽时返回空列表而非错误
func (s *APIServer) getTicks(c *gin.Context) {
	symbol := c.Param("symbol")

	var tradeDate time.Time
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_date",
				Message: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", raw),
			})
			return
		}
		tradeDate = parsed
	}

	ticks, err := s.service.FetchTicks(c.Request.Context(), symbol, tradeDate)
	if err != nil {
		s.renderFetchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"count":  len(ticks),
		"ticks":  ticks,
	})
}

// getInfo 按需抓取股票基本信息
func (s *APIServer) getInfo(c *gin.Context) {
	symbol := c.Param("symbol")

	info, err := s.service.FetchInfo(c.Request.Context(), symbol)
	if err != nil {
		s.renderFetchError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// getStats 抓取分笔数据并汇总成交统计
func (s *APIServer) getStats(c *gin.Context) {
	symbol := c.Param("symbol")

	var tradeDate time.Time
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_date",
				Message: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", raw),
			})
			return
		}
		tradeDate = parsed
	}

	ticks, err := s.service.FetchTicks(c.Request.Context(), symbol, tradeDate)
	if err != nil {
		s.renderFetchError(c, err)
		return
	}

	c.JSON(http.StatusOK, fetcher.ComputeTradeStatistics(symbol, ticks))
}

// getQuotes 获取实时行情快照
func (s *APIServer) getQuotes(c *gin.Context) {
	raw := c.Query("symbols")
	if raw == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_symbols",
			Message: "query parameter symbols is required, e.g. symbols=600000,000001",
		})
		return
	}

	symbols := strings.Split(raw, ",")
	quotes, err := s.service.FetchQuotes(c.Request.Context(), symbols)
	if err != nil {
		s.renderFetchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(quotes),
		"quotes": quotes,
	})
}

// getBarsHistory 从本地库读取K线历史
func (s *APIServer) getBarsHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	period := core.Period(c.DefaultQuery("period", string(core.PeriodDaily)))

	start, end, ok := s.parseDateRange(c)
	if !ok {
		return
	}
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}

	bars, err := s.gateway.LoadBars(c.Request.Context(), symbol, period, start, end)
	if err != nil {
		s.renderStorageError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"period": period,
		"count":  len(bars),
		"bars":   bars,
	})
}

// getTicksHistory 从本地库读取分笔历史
func (s *APIServer) getTicksHistory(c *gin.Context) {
	symbol := c.Param("symbol")

	start, end, ok := s.parseDateRange(c)
	if !ok {
		return
	}
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end
	}

	ticks, err := s.gateway.LoadTicks(c.Request.Context(), symbol, start, end)
	if err != nil {
		s.renderStorageError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"count":  len(ticks),
		"ticks":  ticks,
	})
}

// parseDateRange 解析 start/end 查询参数，未提供时留零值由门面补默认
func (s *APIServer) parseDateRange(c *gin.Context) (start, end time.Time, ok bool) {
	for param, target := range map[string]*time.Time{"start": &start, "end": &end} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_date",
				Message: fmt.Sprintf("invalid %s %q, want YYYY-MM-DD", param, raw),
			})
			return start, end, false
		}
		*target = parsed
	}
	return start, end, true
}

// renderFetchError 把抓取错误映射为 HTTP 状态码
// 数据源耗尽视为上游无数据，返回 404
func (s *APIServer) renderFetchError(c *gin.Context, err error) {
	switch {
	case fetcher.IsExhausted(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "all_sources_exhausted",
			Message: err.Error(),
		})
	case errors.Is(err, core.ErrInvalidSymbol),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidDateRange):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}

// renderStorageError 把存储错误映射为 HTTP 状态码
func (s *APIServer) renderStorageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrNoData):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "no_data",
			Message: err.Error(),
		})
	case errors.Is(err, core.ErrInvalidPeriod):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
