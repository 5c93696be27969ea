package httpapi

import (
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"github.com/gin-gonic/gin"
)

// NewRouter registers the callback, report and health routes.
func NewRouter(handler *Handler, jwtSecret string) *gin.Engine {
	if !config.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestID(), Recovery(), CORS())

	router.GET("/log", handler.LogEvent)
	router.GET("/healthz", handler.Healthz)

	reports := router.Group("/reports", RequireBearer(jwtSecret))
	reports.GET("/calls", handler.RecentCalls)
	reports.GET("/stats", handler.Stats)
	reports.GET("/logs", handler.RecentLogs)

	return router
}

func NewServer(router http.Handler) *http.Server {
	timeout := time.Duration(config.Conf.HTTPTimeout) * time.Second

	return &http.Server{
		Addr:              config.Conf.Addr(),
		Handler:           router,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
	}
}
