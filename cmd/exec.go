package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"ticket-checkin/authority"
	"ticket-checkin/config"
	"ticket-checkin/handlers"
	_ "ticket-checkin/migrations"
	"ticket-checkin/models"
	"ticket-checkin/scan"
	"ticket-checkin/security"
	"ticket-checkin/services"
	"ticket-checkin/utils"
)

func Start() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	app := pocketbase.New()
	cfg := config.LoadConfig()

	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	}

	authorityClient := authority.NewClient(authority.ClientConfig{
		BaseURL: cfg.AuthorityBaseURL,
		APIKey:  cfg.AuthorityAPIKey,
		Timeout: cfg.AuthorityTimeout,
	})

	// Wiring order: the sync scheduler and the scan manager reference each
	// other, so the registry is attached after both exist.
	cache := services.NewListCache()
	syncService := services.NewSyncService(authorityClient, cache, nil, pn, cfg)
	checkinService := services.NewCheckInService(redisClient, authorityClient, syncService, cfg)
	sessionManager := scan.NewManager(checkinService, nil, scan.TextDecoder{})
	syncService.SetRegistry(sessionManager)
	orderService := services.NewOrderService(authorityClient, cache, syncService)

	limiter := security.NewRateLimiter(redisClient, cfg.MutationRateLimit, cfg.MutationRateWindow)

	verifyHandler := handlers.NewVerifyHandler(app, sessionManager, limiter)
	orderHandler := handlers.NewOrderHandler(app, orderService, limiter)
	dashboardHandler := handlers.NewDashboardHandler(app, syncService)

	sessionManager.SetCloseHook(func(rec models.SessionRecord) {
		persistSessionRecord(app, rec)
	})

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go syncService.Run(ctx)
	go handleShutdown(cancel, sessionManager)

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Verification sessions
		e.Router.POST("/api/v1/verify/sessions", verifyHandler.OpenSession)
		e.Router.GET("/api/v1/verify/sessions/{sessionId}", verifyHandler.GetStatus)
		e.Router.DELETE("/api/v1/verify/sessions/{sessionId}", verifyHandler.CloseSession)
		e.Router.POST("/api/v1/verify/sessions/{sessionId}/mode", verifyHandler.SwitchMode)
		e.Router.POST("/api/v1/verify/sessions/{sessionId}/lookup", verifyHandler.Lookup)
		e.Router.POST("/api/v1/verify/sessions/{sessionId}/scan", verifyHandler.Scan)
		e.Router.POST("/api/v1/verify/sessions/{sessionId}/checkin", verifyHandler.CheckIn)

		// Order lifecycle
		e.Router.POST("/api/v1/orders/{orderId}/approve", orderHandler.Approve)
		e.Router.POST("/api/v1/orders/{orderId}/reject", orderHandler.Reject)

		// Dashboard
		e.Router.GET("/api/v1/events/{eventId}/dashboard", dashboardHandler.GetDashboard)
		e.Router.DELETE("/api/v1/events/{eventId}/dashboard", dashboardHandler.StopTracking)
		e.Router.GET("/api/v1/audit/summary", dashboardHandler.GetAuditSummary)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			health := map[string]string{"status": "healthy", "authority": "reachable"}
			if err := authorityClient.Ping(e.Request.Context()); err != nil {
				// Degraded, not down: cached dashboards still serve.
				health["authority"] = "unreachable"
			}
			return e.JSON(200, health)
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// persistSessionRecord writes one closed dialog to the scan_sessions audit
// collection. Audit failures are logged, never surfaced to the operator.
func persistSessionRecord(app *pocketbase.PocketBase, rec models.SessionRecord) {
	collection, err := app.FindCollectionByNameOrId("scan_sessions")
	if err != nil {
		slog.Error("audit collection missing", "error", err)
		return
	}

	record := core.NewRecord(collection)
	record.Set("session_id", rec.SessionID)
	record.Set("operator_id", rec.OperatorID)
	record.Set("event_id", rec.EventID)
	record.Set("mode", string(rec.Mode))
	record.Set("final_state", string(rec.FinalState))
	record.Set("ticket_code", rec.TicketCode)
	record.Set("opened_at", rec.OpenedAt)
	record.Set("closed_at", rec.ClosedAt)

	if err := app.Save(record); err != nil {
		slog.Error("failed to persist scan session", "session_id", rec.SessionID, "error", err)
		return
	}
	slog.Info("scan session closed",
		"session_id", rec.SessionID,
		"operator_id", rec.OperatorID,
		"final_state", rec.FinalState,
	)
}

// serveMetrics exposes prometheus metrics on a separate port.
func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("Metrics server listening on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}

// handleShutdown handles graceful shutdown: stop the sync loop, then close
// every open session so capture devices are released and audits written.
func handleShutdown(cancel context.CancelFunc, sessions *scan.Manager) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
	sessions.CloseAll()
}
