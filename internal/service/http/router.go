package httpsvc

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/service/auth"
	"github.com/vladislavdragonenkov/vegshop/internal/service/cart"
	"github.com/vladislavdragonenkov/vegshop/internal/service/catalog"
	"github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/vegshop/internal/service/idempotency"
)

// Services — зависимости REST API.
type Services struct {
	Auth     *auth.Service
	Catalog  *catalog.Service
	Cart     *cart.Service
	Checkout *checkout.Service
	Orders   domain.OrderRepository
	Users    domain.UserRepository
	Timeline domain.TimelineRepository
	// Idempotency может быть nil: тогда заголовок Idempotency-Key игнорируется.
	Idempotency *idempotency.Guard
}

// Config — настройки HTTP-слоя.
type Config struct {
	// AllowedOrigins: список origin через запятую; пусто или "*" разрешает всё.
	AllowedOrigins string
	CookieSecure   bool
	// FilesRoot: каталог локального объектного хранилища, раздаётся по /files.
	FilesRoot   string
	ServiceName string
}

type handler struct {
	svc    Services
	cfg    Config
	logger *log.Entry
}

// NewRouter собирает gin engine со всеми маршрутами API.
func NewRouter(svc Services, cfg Config, logger *log.Entry) *gin.Engine {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	h := &handler{svc: svc, cfg: cfg, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), cors.New(corsConfig(cfg.AllowedOrigins)))

	if cfg.FilesRoot != "" {
		r.Static("/files", cfg.FilesRoot)
	}

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)
	authGroup.POST("/logout", h.authenticate, h.logout)

	veg := api.Group("/vegetables")
	veg.GET("", h.listProducts)
	veg.GET("/:id", h.getProduct)
	veg.POST("", h.authenticate, h.requireAdmin, h.createProduct)
	veg.PUT("/:id", h.authenticate, h.requireAdmin, h.updateProduct)
	veg.DELETE("/:id", h.authenticate, h.requireAdmin, h.deleteProduct)

	cartGroup := api.Group("/cart", h.authenticate)
	cartGroup.GET("", h.getCart)
	cartGroup.POST("", h.addToCart)
	cartGroup.DELETE("/:vegetableId", h.removeFromCart)

	orders := api.Group("/orders", h.authenticate)
	orders.POST("", h.placeOrder)
	orders.GET("", h.listOrders)
	orders.GET("/:id", h.getOrder)
	orders.GET("/:id/timeline", h.getTimeline)

	admin := api.Group("/admin", h.authenticate, h.requireAdmin)
	admin.GET("/orders/export", h.exportOrders)

	return r
}

// NewHandler оборачивает engine трассировкой OpenTelemetry.
func NewHandler(engine *gin.Engine, serviceName string) http.Handler {
	if serviceName == "" {
		serviceName = "vegshop-http"
	}
	return otelhttp.NewHandler(engine, serviceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/files/")
		}),
	)
}

func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", headerReplayed},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	var list []string
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" && origin != "*" {
			list = append(list, origin)
		}
	}
	if len(list) == 0 {
		// С credentials нельзя отвечать "*", поэтому origin отражается из запроса.
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = list
	}
	return cfg
}
