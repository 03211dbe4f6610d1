package httpserver

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/Skotchmaster/sweet_shop/internal/models"
	pkgdb "github.com/Skotchmaster/sweet_shop/pkg/db"
	"github.com/Skotchmaster/sweet_shop/pkg/logging"
	middleware "github.com/Skotchmaster/sweet_shop/pkg/middleware/auth"
)

type Deps struct {
	AuthHandler   *AuthHTTP
	SweetsHandler *SweetsHTTP
	Tokens        middleware.TokenParser
	DB            *gorm.DB

	// Registry, when set, receives HTTP request metrics and is exposed on /metrics.
	Registry         *prometheus.Registry
	MetricsNamespace string
}

func Register(e *echo.Echo, d *Deps) {
	if e.Validator == nil {
		e.Validator = NewRequestValidator()
	}

	if d.Registry != nil {
		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Namespace:  d.MetricsNamespace,
			Subsystem:  "http",
			Registerer: d.Registry,
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/metrics"
			},
		}))
		e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: d.Registry}))
	}

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.ready)

	authMW := middleware.NewAuthMiddleware(d.Tokens)
	adminOnly := authMW.RequireRole(string(models.RoleAdmin))

	api := e.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)

	sweets := api.Group("/sweets", authMW.RequireAuth)
	sweets.GET("", d.SweetsHandler.ListSweets)
	sweets.GET("/search", d.SweetsHandler.SearchSweets)
	sweets.GET("/search/text", d.SweetsHandler.TextSearch)
	sweets.GET("/:id", d.SweetsHandler.GetSweet)
	sweets.POST("/:id/purchase", d.SweetsHandler.Purchase)

	sweets.POST("", d.SweetsHandler.CreateSweet, adminOnly)
	sweets.PUT("/:id", d.SweetsHandler.UpdateSweet, adminOnly)
	sweets.PATCH("/:id", d.SweetsHandler.UpdateSweet, adminOnly)
	sweets.DELETE("/:id", d.SweetsHandler.DeleteSweet, adminOnly)
	sweets.POST("/:id/restock", d.SweetsHandler.Restock, adminOnly)
}

func (d *Deps) ready(c echo.Context) error {
	if d.DB == nil {
		return c.NoContent(http.StatusOK)
	}
	if err := pkgdb.Ping(c.Request().Context(), d.DB); err != nil {
		logging.FromContext(c.Request().Context()).Warn("readiness_failed", "status", http.StatusServiceUnavailable, "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.NoContent(http.StatusOK)
}
