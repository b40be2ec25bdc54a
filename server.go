package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tiendafacil/ledger_backend/config"
	"github.com/tiendafacil/ledger_backend/kvstore"
	"github.com/tiendafacil/ledger_backend/middlewares"
	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/offline"
	"github.com/tiendafacil/ledger_backend/remote"
	"github.com/tiendafacil/ledger_backend/reports"
	"github.com/tiendafacil/ledger_backend/services"
	"github.com/tiendafacil/ledger_backend/utils"
)

const defaultPort = "8080"

// App bundles the wired services behind the HTTP layer. It is built once
// after the backing connections are up; until then the readiness gate
// answers 503.
type App struct {
	Logger       *logrus.Logger
	Queue        *offline.Manager
	Cache        *offline.Cache
	Products     *services.ProductService
	Clients      *services.ClientService
	Transactions *services.TransactionService
	Members      *services.MemberService
	Subs         *services.SubscriptionManager

	mu         sync.Mutex
	subscribed map[string]bool
}

// ensureSubscribed registers store subscriptions the first time a tenant
// shows up, so its snapshots start refreshing without any provisioning
// step.
func (a *App) ensureSubscribed(empresaId string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.subscribed[empresaId] {
		return
	}
	a.subscribed[empresaId] = true
	a.Subs.Start(empresaId)
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server before the backing stores are up; app routes
	// answer 503 until the wiring below finishes.
	var appRef atomic.Pointer[App]

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if appRef.Load() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("x-empresa-id", "x-correlation-id", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r, func() *App { return appRef.Load() })
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := remote.Migrate(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	store := remote.NewGormStore(db, logger)
	kv := kvstore.NewRedisStore(config.GetRedisDB())
	cache := offline.NewCache(kv, logger)
	manager := offline.NewManager(kv, logger, offline.DefaultHandlers(store), offline.Options{
		BaseBackoff: backoffFromEnv(),
		Locker:      config.GetRedisLock(),
		OnDead:      newDeadLetterReverter(cache, logger),
	})
	prices := offline.NewProductPriceCache(cache)

	deps := services.Deps{Store: store, Queue: manager, Cache: cache, Logger: logger}
	app := &App{
		Logger:       logger,
		Queue:        manager,
		Cache:        cache,
		Products:     services.NewProductService(deps),
		Clients:      services.NewClientService(deps),
		Transactions: services.NewTransactionService(deps),
		Members:      services.NewMemberService(deps),
		Subs:         services.NewSubscriptionManager(store, cache, prices, logger),
		subscribed:   map[string]bool{},
	}
	appRef.Store(app)

	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()
	if shouldRunBackgroundDrain() {
		go NewQueueDrainProcessor(manager, logger).Run(drainCtx)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers before draining requests.
	cancelDrain()
	app.Subs.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func registerRoutes(r *gin.Engine, app func() *App) {
	// Sync queue inspection and control.
	syncGrp := r.Group("/sync")
	{
		syncGrp.GET("/status", func(c *gin.Context) {
			a := app()
			c.JSON(http.StatusOK, gin.H{
				"online":       a.Queue.IsOnline(),
				"pendingCount": a.Queue.GetPendingCount(),
				"failedCount":  len(a.Queue.GetFailedItems()),
				"stats":        a.Queue.GetSyncStats(),
			})
		})
		syncGrp.POST("/drain", func(c *gin.Context) {
			result, err := app().Queue.ProcessSyncQueue(c.Request.Context(), "manual")
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, result)
		})
		syncGrp.GET("/failed", func(c *gin.Context) {
			c.JSON(http.StatusOK, app().Queue.GetFailedItems())
		})
		syncGrp.POST("/failed/:id/retry", func(c *gin.Context) {
			if err := app().Queue.RetryFailedItem(c.Request.Context(), c.Param("id")); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.Status(http.StatusNoContent)
		})
		syncGrp.DELETE("/failed", func(c *gin.Context) {
			if err := app().Queue.ClearFailedItems(c.Request.Context()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.Status(http.StatusNoContent)
		})
		syncGrp.GET("/runs", func(c *gin.Context) {
			c.JSON(http.StatusOK, app().Queue.GetSyncRuns(c.Request.Context()))
		})
	}

	r.POST("/connection", func(c *gin.Context) {
		var req struct {
			Online *bool `json:"online" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "online is required"})
			return
		}
		app().Queue.SetConnectionStatus(c.Request.Context(), *req.Online)
		c.Status(http.StatusNoContent)
	})

	api := r.Group("/", middlewares.EmpresaMiddleware(), func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		app().ensureSubscribed(empresaId)
		c.Next()
	})

	registerProductRoutes(api, app)
	registerClientRoutes(api, app)
	registerMemberRoutes(api, app)
	registerEventRoutes(api, app)
}

func registerProductRoutes(api *gin.RouterGroup, app func() *App) {
	api.GET("/products", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, app().Products.GetProducts(c.Request.Context(), empresaId))
	})
	api.POST("/products", func(c *gin.Context) {
		var p models.Producto
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		p.EmpresaId, _ = utils.GetEmpresaIdFromContext(c.Request.Context())
		id, err := app().Products.CreateProduct(c.Request.Context(), p)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})
	api.PUT("/products/:id", func(c *gin.Context) {
		var p models.Producto
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		p.ID = c.Param("id")
		p.EmpresaId, _ = utils.GetEmpresaIdFromContext(c.Request.Context())
		if err := app().Products.UpdateProduct(c.Request.Context(), p); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.DELETE("/products/:id", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		if err := app().Products.DeleteProduct(c.Request.Context(), empresaId, c.Param("id")); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func registerClientRoutes(api *gin.RouterGroup, app func() *App) {
	api.GET("/clients", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, app().Clients.GetClients(c.Request.Context(), empresaId))
	})
	api.POST("/clients", func(c *gin.Context) {
		var cl models.Cliente
		if err := c.ShouldBindJSON(&cl); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		cl.EmpresaId, _ = utils.GetEmpresaIdFromContext(c.Request.Context())
		id, err := app().Clients.CreateClient(c.Request.Context(), cl)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})
	api.PUT("/clients/:id", func(c *gin.Context) {
		var cl models.Cliente
		if err := c.ShouldBindJSON(&cl); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		cl.ID = c.Param("id")
		cl.EmpresaId, _ = utils.GetEmpresaIdFromContext(c.Request.Context())
		if err := app().Clients.UpdateClient(c.Request.Context(), cl); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.DELETE("/clients/:id", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		if err := app().Clients.DeleteClient(c.Request.Context(), empresaId, c.Param("id")); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/clients/:id/debt", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, app().Transactions.GetClientDebt(c.Request.Context(), empresaId, c.Param("id")))
	})
	api.GET("/clients/:id/events", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, app().Transactions.GetClientEvents(c.Request.Context(), empresaId, c.Param("id")))
	})
	api.GET("/clients/:id/consistency", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, app().Transactions.CheckConsistency(c.Request.Context(), empresaId, c.Param("id")))
	})
	api.GET("/clients/:id/payment-preview", func(c *gin.Context) {
		monto, err := decimal.NewFromString(c.Query("monto"))
		if err != nil || monto.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "monto must be a non-negative amount"})
			return
		}
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		split, rows := app().Transactions.PreviewPayment(c.Request.Context(), empresaId, c.Param("id"), monto)
		c.JSON(http.StatusOK, gin.H{"split": split, "display": rows})
	})
	api.GET("/clients/:id/statement.xlsx", func(c *gin.Context) {
		a := app()
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		clienteId := c.Param("id")

		clientName := clienteId
		for _, cl := range a.Clients.GetClients(c.Request.Context(), empresaId) {
			if cl.ID == clienteId {
				clientName = cl.Nombre
				break
			}
		}
		calc := a.Transactions.GetClientDebt(c.Request.Context(), empresaId, clienteId)
		f, err := reports.ClientStatement(clientName, calc)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()
		c.Header("Content-Disposition", `attachment; filename="estado_de_cuenta.xlsx"`)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			config.LogError(a.Logger, "main", "statementHandler", "writing workbook", clienteId, err)
		}
	})
}

func registerMemberRoutes(api *gin.RouterGroup, app func() *App) {
	api.GET("/members", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, app().Members.GetMembers(c.Request.Context(), empresaId))
	})
	api.POST("/members", func(c *gin.Context) {
		var m models.Miembro
		if err := c.ShouldBindJSON(&m); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		m.EmpresaId, _ = utils.GetEmpresaIdFromContext(c.Request.Context())
		id, err := app().Members.CreateMember(c.Request.Context(), m)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})
	api.PUT("/members/:id", func(c *gin.Context) {
		var m models.Miembro
		if err := c.ShouldBindJSON(&m); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		m.ID = c.Param("id")
		m.EmpresaId, _ = utils.GetEmpresaIdFromContext(c.Request.Context())
		if err := app().Members.UpdateMember(c.Request.Context(), m); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.DELETE("/members/:id", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		if err := app().Members.DeleteMember(c.Request.Context(), empresaId, c.Param("id")); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func registerEventRoutes(api *gin.RouterGroup, app func() *App) {
	api.POST("/events", func(c *gin.Context) {
		var e models.TransactionEvent
		if err := c.ShouldBindJSON(&e); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		id, err := app().Transactions.CreateEvent(c.Request.Context(), empresaId, e)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})
	api.POST("/events/preview", func(c *gin.Context) {
		var e models.TransactionEvent
		if err := c.ShouldBindJSON(&e); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, app().Transactions.PreviewEventImpact(c.Request.Context(), empresaId, e))
	})
	api.PUT("/events/:id", func(c *gin.Context) {
		var e models.TransactionEvent
		if err := c.ShouldBindJSON(&e); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		e.ID = c.Param("id")
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		if err := app().Transactions.UpdateEvent(c.Request.Context(), empresaId, e); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.DELETE("/events/:id", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		clienteId := c.Query("clienteId")
		if err := app().Transactions.DeleteEvent(c.Request.Context(), empresaId, clienteId, c.Param("id")); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.DELETE("/events/:id/hard", func(c *gin.Context) {
		empresaId, _ := utils.GetEmpresaIdFromContext(c.Request.Context())
		clienteId := c.Query("clienteId")
		if err := app().Transactions.HardDeleteEvent(c.Request.Context(), empresaId, clienteId, c.Param("id")); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func writeServiceError(c *gin.Context, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Messages})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func backoffFromEnv() time.Duration {
	v := strings.TrimSpace(os.Getenv("SYNC_RETRY_BACKOFF"))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
