package httpapi

import (
	"bytes"
	"net/http"
	"strconv"

	"callqa/internal/analytics"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h Handlers) Overview(c *gin.Context) {
	out, err := h.Analytics.Overview(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Leaderboard(c *gin.Context) {
	out, err := h.Analytics.Leaderboard(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) LeaderboardXLSX(c *gin.Context) {
	rows, err := h.Analytics.Leaderboard(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := analytics.WriteLeaderboardXLSX(&buf, rows); err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="agent-leaderboard.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h Handlers) Trends(c *gin.Context) {
	days, ok := queryInt(c, "days", analytics.DefaultTrendDays)
	if !ok {
		return
	}
	out, err := h.Analytics.Trends(c.Request.Context(), days)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Distribution(c *gin.Context) {
	out, err := h.Analytics.Distribution(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// WindowMetrics serves the summary over the most recent scored calls.
func (h Handlers) WindowMetrics(c *gin.Context) {
	limit, ok := queryInt(c, "limit", analytics.DefaultWindowLimit)
	if !ok {
		return
	}
	out, err := h.Analytics.WindowMetrics(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "metrics_failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be a positive integer"})
		return 0, false
	}
	return n, true
}
