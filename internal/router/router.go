package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/mealbridge/dispatch-api/internal/handler"
	containerhandler "github.com/mealbridge/dispatch-api/internal/handler/container"
	deliveryhandler "github.com/mealbridge/dispatch-api/internal/handler/delivery"
	"github.com/mealbridge/dispatch-api/internal/middleware"
)

type RouterConfig struct {
	RateLimit     rate.Limit
	RateBurst     int
	OTPRateLimit  rate.Limit
	OTPRateBurst  int
	CORSConfig    middleware.CORSConfig
	MetricsPrefix string
}

type Router struct {
	engine     *gin.Engine
	auth       *middleware.AuthMiddleware
	deliveryH  *deliveryhandler.Handler
	containerH *containerhandler.Handler
	healthH    *handler.HealthHandler
	config     RouterConfig
	metrics    *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	deliveryH *deliveryhandler.Handler,
	containerH *containerhandler.Handler,
	healthH *handler.HealthHandler,
	config RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	middleware.RegisterValidations()

	engine := gin.New()

	r := &Router{
		engine:     engine,
		auth:       auth,
		deliveryH:  deliveryH,
		containerH: containerH,
		healthH:    healthH,
		config:     config,
		metrics:    initRouterMetrics(config.MetricsPrefix),
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		r.metricsMiddleware(),
	)
	engine.Use(middleware.CORS(config.CORSConfig))

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  config.RateLimit,
		Burst: config.RateBurst,
	})
	engine.Use(rateLimiter.RateLimit())

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/health", r.healthH.HealthCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())

	// The OTP endpoints sit behind a second, tighter bucket.
	otpLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  r.config.OTPRateLimit,
		Burst: r.config.OTPRateBurst,
	})
	r.deliveryH.RegisterRoutes(api, otpLimiter.RateLimit())
	r.containerH.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string) *routerMetrics {
	m := &routerMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
	prometheus.MustRegister(m.requestDuration, m.requestTotal, m.errorTotal)
	return m
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		if c.Writer.Status() >= 400 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "http").Inc()
		}
	}
}
