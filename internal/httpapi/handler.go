package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/actionlog"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/report"
	"github.com/gin-gonic/gin"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	messageLogged = "Event logged"
)

type EventHandler interface {
	Handle(ctx context.Context, params event.Params, rawURL string) (call.Result, error)
}

type Reports interface {
	RecentCalls(ctx context.Context, limit int) ([]call.Record, error)
	Stats(ctx context.Context) (*report.Stats, error)
}

type ActionLogs interface {
	Latest(ctx context.Context, limit int) ([]actionlog.Entry, error)
}

// Pinger checks that the store is reachable.
type Pinger func(ctx context.Context) error

type Handler struct {
	Events     EventHandler
	Reports    Reports
	ActionLogs ActionLogs
	Ping       Pinger
}

// LogEvent handles an action URL callback.
func (h *Handler) LogEvent(c *gin.Context) {
	params := event.FromQuery(c.Request.URL.Query())

	_, err := h.Events.Handle(c.Request.Context(), params, requestURL(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": statusError, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "message": messageLogged})
}

func (h *Handler) RecentCalls(c *gin.Context) {
	records, err := h.Reports.RecentCalls(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": statusError, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"calls": records})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Reports.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": statusError, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) RecentLogs(c *gin.Context) {
	entries, err := h.ActionLogs.Latest(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": statusError, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

func (h *Handler) Healthz(c *gin.Context) {
	err := h.Ping(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": statusError, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return report.DefaultLimit
	}

	return report.ClampLimit(limit)
}

// requestURL rebuilds the absolute URL the phone requested.
func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}

	forwarded := c.GetHeader("X-Forwarded-Proto")
	if forwarded != "" {
		scheme = forwarded
	}

	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}
