package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/api/handlers"
	mw "github.com/Harshitk-cp/botdesk/internal/api/middleware"
	"github.com/Harshitk-cp/botdesk/internal/buildconfig"
	"github.com/Harshitk-cp/botdesk/internal/config"
	"github.com/Harshitk-cp/botdesk/internal/dispatch"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/quota"
	"github.com/Harshitk-cp/botdesk/internal/service"
	"github.com/Harshitk-cp/botdesk/internal/session"
	"github.com/Harshitk-cp/botdesk/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Tenants   *service.TenantService
	Sessions  *session.Orchestrator
	Rollover  *service.RolloverService
	metrics   *mw.Metrics
	startTime time.Time
}

// NewApp wires stores, services and handlers. Channel adapters are passed as
// session options so the caller decides which channels are available.
func NewApp(db *pgxpool.Pool, logger *zap.Logger, channels ...session.Option) *App {
	// Stores
	tenantStore := store.NewTenantStore(db)
	sessionStore := store.NewSessionStore(db)
	menuStore := store.NewMenuStore(db)
	configStore := store.NewConfigStore(db)
	datasetStore := store.NewDatasetStore(db)
	usageStore := store.NewUsageStore(db)

	// Quota
	loc := config.QuotaLocation()
	ledger := quota.NewLedger(quota.WithLocation(loc))
	quotaSvc := service.NewQuotaService(ledger, tenantStore, usageStore, loc, logger)
	rollover := service.NewRolloverService(ledger, logger)
	rollover.SetInterval(config.QuotaRolloverInterval())

	// Services
	tenantSvc := service.NewTenantService(tenantStore, config.JWTSecret(), config.JWTTTL(), service.TenantDefaults{
		DailyLimit:   config.DefaultDailyLimit(),
		MonthlyLimit: config.DefaultMonthlyLimit(),
	}, logger)
	menuSvc := service.NewMenuService(menuStore, config.MenuCacheTTL(), logger)
	configSvc := service.NewConfigService(configStore, config.MenuCacheTTL())
	datasetSvc := service.NewDatasetService(datasetStore, logger)
	importer := service.NewImporter(datasetSvc, logger)

	dispatcher := dispatch.New(menuSvc, configSvc, datasetSvc, quotaSvc, dispatch.Options{
		RowCap:    config.ViewTableRowCap(),
		SearchCap: config.SearchResultCap(),
	}, logger)

	orchestrator := session.NewOrchestrator(sessionStore, tenantStore, dispatcher, session.Config{
		PairingTTL:     config.PairingTTL(),
		MaxRetries:     uint64(config.ConnectMaxRetries()),
		BackoffInitial: config.ConnectBackoffInitial(),
		BackoffMax:     config.ConnectBackoffMax(),
		StopTimeout:    config.SessionStopTimeout(),
	}, logger, channels...)

	dashboardSvc := service.NewDashboardService(tenantSvc, menuSvc, configSvc, datasetSvc, quotaSvc, orchestrator, logger)

	// Handlers
	tenantHandler := handlers.NewTenantHandler(tenantSvc, logger)
	channelHandler := handlers.NewChannelHandler(orchestrator, tenantSvc, logger)
	dashboardHandler := handlers.NewDashboardHandler(dashboardSvc, quotaSvc, logger)
	menuHandler := handlers.NewMenuHandler(menuSvc, configSvc, logger)
	tableHandler := handlers.NewTableHandler(datasetSvc, importer, config.ImportMaxBytes(), config.SearchResultCap(), logger)
	adminHandler := handlers.NewAdminHandler(dashboardSvc, tenantSvc, quotaSvc, orchestrator, logger)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Tenants:   tenantSvc,
		Sessions:  orchestrator,
		Rollover:  rollover,
		metrics:   mw.NewMetrics(),
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.CORS(config.CORSAllowedOrigins()))
	r.Use(mw.BodyLimit(max(config.MaxRequestBytes(), config.ImportMaxBytes())))
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// No auth
	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())
	r.Get("/version", versionHandler)
	r.Post("/v1/tenants", tenantHandler.Create)
	r.Post("/v1/auth/login", tenantHandler.Login)

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.Auth(tenantSvc, logger))
		r.Use(mw.TenantRateLimit(config.TenantRateLimitRPS(), config.TenantRateLimitBurst()))

		r.Get("/me", tenantHandler.Me)

		r.Route("/whatsapp", func(r chi.Router) {
			r.Get("/status", channelHandler.WhatsAppStatus)
			r.Post("/connect", channelHandler.WhatsAppConnect)
			r.Get("/qr", channelHandler.WhatsAppQR)
			r.Post("/logout", channelHandler.WhatsAppLogout)
		})

		r.Route("/telegram", func(r chi.Router) {
			r.Get("/status", channelHandler.TelegramStatus)
			r.Post("/validate", channelHandler.TelegramValidate)
			r.Post("/token", channelHandler.TelegramSaveToken)
			r.Post("/connect", channelHandler.TelegramConnect)
			r.Post("/disconnect", channelHandler.TelegramDisconnect)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/stats", dashboardHandler.Stats)
			r.Get("/usage", dashboardHandler.Usage)
		})

		r.Get("/config", menuHandler.GetConfig)
		r.Post("/config", menuHandler.SetConfig)

		r.Route("/menus", func(r chi.Router) {
			r.Get("/", menuHandler.List)
			r.Post("/", menuHandler.Create)
			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", menuHandler.Get)
				r.Put("/", menuHandler.Replace)
				r.Delete("/", menuHandler.Delete)
			})
		})

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", tableHandler.List)
			r.Post("/import", tableHandler.Import)
			r.Get("/search", tableHandler.Search)
			r.Route("/{name}", func(r chi.Router) {
				r.Delete("/", tableHandler.Delete)
				r.Get("/data", tableHandler.Data)
				r.Put("/row", tableHandler.UpdateRow)
				r.Delete("/row", tableHandler.DeleteRow)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.AdminOnly)
			r.Get("/stats", adminHandler.Stats)
			r.Get("/users", adminHandler.Users)
			r.Route("/users/{id}", func(r chi.Router) {
				r.Put("/status", adminHandler.SetStatus)
				r.Put("/whatsapp", adminHandler.SetWhatsApp)
				r.Put("/limits", adminHandler.SetLimits)
				r.Post("/disconnect-wa", adminHandler.DisconnectWhatsApp)
			})
		})
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "database unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"requests":       app.metrics.Snapshot(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"sessions": map[string]any{
				"live":               app.Sessions.LiveCount(),
				"whatsapp_connected": app.Sessions.ConnectedCount(domain.ChannelWhatsApp),
				"telegram_connected": app.Sessions.ConnectedCount(domain.ChannelTelegram),
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and services satisfy interfaces at compile time.
var (
	_ domain.TenantStore    = (*store.TenantStore)(nil)
	_ domain.SessionStore   = (*store.SessionStore)(nil)
	_ domain.MenuStore      = (*store.MenuStore)(nil)
	_ domain.ConfigStore    = (*store.ConfigStore)(nil)
	_ domain.DatasetStore   = (*store.DatasetStore)(nil)
	_ domain.UsageStore     = (*store.UsageStore)(nil)
	_ dispatch.Menus        = (*service.MenuService)(nil)
	_ dispatch.Configs      = (*service.ConfigService)(nil)
	_ dispatch.Datasets     = (*service.DatasetService)(nil)
	_ dispatch.Quota        = (*service.QuotaService)(nil)
	_ session.Handler       = (*dispatch.Dispatcher)(nil)
	_ handlers.Sessions     = (*session.Orchestrator)(nil)
	_ handlers.TokenSaver   = (*service.TenantService)(nil)
	_ service.SessionReader = (*session.Orchestrator)(nil)
	_ mw.Authenticator      = (*service.TenantService)(nil)
)
