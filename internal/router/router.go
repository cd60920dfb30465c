package router

import (
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/config"
	"github.com/DeybisMelendez/km9-comanda/internal/handler"
	"github.com/DeybisMelendez/km9-comanda/internal/middleware"
	"github.com/DeybisMelendez/km9-comanda/internal/repository"
	"github.com/DeybisMelendez/km9-comanda/internal/service"
	"github.com/DeybisMelendez/km9-comanda/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services is the service layer shared by the HTTP router and the background
// processes started in main.
type Services struct {
	Ledger    service.LedgerService
	Orders    service.OrderService
	Inventory service.InventoryService
	Catalog   service.CatalogService
	Reports   service.ReportService
}

// NewServices wires repositories into services. Committed movements are
// queued for the worker pool only when Redis is available.
func NewServices(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *Services {
	// ── Repositories ─────────────────────────────────────────────────────────
	ingredientRepo := repository.NewIngredientRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	var notifier service.MovementNotifier
	if rdb != nil {
		notifier = worker.NewDispatcher(rdb)
	}
	ledger := service.NewLedgerService(ingredientRepo, movementRepo, notifier,
		service.LedgerPolicy{AllowNegativeStock: cfg.AllowNegativeStock})

	return &Services{
		Ledger:    ledger,
		Orders:    service.NewOrderService(orderRepo, productRepo, ingredientRepo, ledger),
		Inventory: service.NewInventoryService(ingredientRepo, movementRepo, ledger),
		Catalog:   service.NewCatalogService(orderRepo, productRepo, ingredientRepo, ledger),
		Reports:   service.NewReportService(movementRepo, orderRepo, cfg.Location()),
	}
}

// New returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, svcs *Services) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:   []string{middleware.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(middleware.Metrics())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute))

	// ── Handlers ─────────────────────────────────────────────────────────────
	ingredientsH := handler.NewIngredientsHandler(svcs.Catalog, svcs.Ledger, svcs.Inventory)
	ordersH := handler.NewOrdersHandler(svcs.Orders)
	catalogH := handler.NewCatalogHandler(svcs.Catalog)
	reportsH := handler.NewReportsHandler(svcs.Reports, cfg.Location())

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	staff := middleware.RequireRole(middleware.RoleMesero, middleware.RoleEncargado)
	manager := middleware.RequireRole(middleware.RoleEncargado)

	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		tables := v1.Group("/tables")
		{
			tables.GET("", staff, ordersH.ListTables)
			tables.POST("", manager, catalogH.CreateTable)
			tables.GET("/:id/orders", staff, ordersH.TableOrders)
			tables.POST("/:id/pay", staff, ordersH.PayTable)
		}

		orders := v1.Group("/orders", staff)
		{
			orders.POST("", ordersH.Create)
			orders.GET("/:id", ordersH.Get)
			orders.PATCH("/:id", manager, ordersH.Reassign)
			orders.POST("/:id/items", ordersH.AddItem)
			orders.POST("/:id/pay", ordersH.Pay)
		}

		v1.POST("/products", manager, catalogH.CreateProduct)
		v1.GET("/products/:id", staff, catalogH.GetProduct)
		v1.POST("/categories", manager, catalogH.CreateCategory)

		ingredients := v1.Group("/ingredients")
		{
			ingredients.GET("", staff, ingredientsH.List)
			ingredients.POST("", manager, ingredientsH.Create)
			ingredients.GET("/:id/stock", staff, ingredientsH.Stock)
			ingredients.GET("/:id/reconcile", manager, ingredientsH.Reconcile)
			ingredients.POST("/:id/repair", manager, ingredientsH.Repair)
		}

		inv := v1.Group("/inventory", manager)
		{
			inv.POST("/purchases", ingredientsH.Purchase)
			inv.POST("/counts", ingredientsH.PhysicalCount)
			inv.GET("/movements", ingredientsH.Movements)
		}

		reports := v1.Group("/reports", manager)
		{
			reports.GET("/movements", reportsH.Movements)
			reports.GET("/order-items", reportsH.OrderItems)
			reports.GET("/daily", reportsH.Daily)
			reports.GET("/history", reportsH.History)
		}
	}

	return r
}
