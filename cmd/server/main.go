package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scenariomarket/internal/auth"
	"scenariomarket/internal/config"
	cronrunner "scenariomarket/internal/cron"
	"scenariomarket/internal/db"
	"scenariomarket/internal/dupgate"
	"scenariomarket/internal/events"
	"scenariomarket/internal/handler"
	"scenariomarket/internal/ledger"
	"scenariomarket/internal/logger"
	gormrepository "scenariomarket/internal/repository/gorm"
	"scenariomarket/internal/service"
	"scenariomarket/internal/transfer"
)

func main() {
	cfgPath := os.Getenv("SM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SM_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	balanceLedger := &ledger.Ledger{Store: store}
	hub := events.NewHub(logger)

	gate := &dupgate.Gate{
		Repo:   store,
		Config: cfg.DupGate,
		Logger: logger,
	}
	engine := &transfer.Engine{
		Repo:    store,
		Ledger:  balanceLedger,
		Hub:     hub,
		Economy: cfg.Economy,
		Logger:  logger,
	}
	scenarioSvc := &service.ScenarioService{
		Repo:    store,
		Ledger:  balanceLedger,
		Gate:    gate,
		Economy: cfg.Economy,
		Logger:  logger,
	}
	userSvc := &service.UserService{Repo: store, Ledger: balanceLedger, Logger: logger}
	maintenanceSvc := &service.MaintenanceService{Repo: store, Ledger: balanceLedger, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(auth.Middleware(cfg.Server.AuthHeader, cfg.Server.AuthRequired))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	scenarioHandler := &handler.ScenarioHandler{Scenarios: scenarioSvc, Engine: engine, Gate: gate}
	scenarioHandler.Register(router)
	transferHandler := &handler.TransferHandler{Engine: engine}
	transferHandler.Register(router)
	userHandler := &handler.UserHandler{Users: userSvc}
	userHandler.Register(router)
	if cfg.Stream.Enabled {
		streamHandler := &handler.StreamHandler{Hub: hub, Logger: logger}
		streamHandler.Register(router)
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		if _, err := cronRunner.Add("shield_sweep", cfg.Cron.ShieldSweep, maintenanceSvc.SweepShields); err != nil {
			logger.Warn("cron register shield sweep failed", zap.Error(err))
		}
		if _, err := cronRunner.Add("ledger_audit", cfg.Cron.LedgerAudit, maintenanceSvc.AuditLedgers); err != nil {
			logger.Warn("cron register ledger audit failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
