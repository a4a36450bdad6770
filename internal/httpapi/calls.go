package httpapi

import (
	"net/http"
	"strconv"

	"callqa/internal/audit"
	"callqa/internal/calls"
	"callqa/internal/rbac"
	"callqa/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

func (h Handlers) ListCalls(c *gin.Context) {
	f := calls.Filter{Limit: defaultListLimit}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		f.Limit = n
	}
	if v := c.Query("status"); v != "" {
		f.Status = calls.Status(v)
		if !f.Status.Valid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
	}
	f.AgentID = c.Query("agentId")
	if scope := rbac.AgentScope(c); scope != "" {
		f.AgentID = scope
	}

	rows, err := h.Calls.List(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// findVisible loads the call and hides other agents' calls from an agent.
func (h Handlers) findVisible(c *gin.Context) (calls.Call, bool) {
	call, err := h.Calls.Find(c.Request.Context(), c.Param("callId"))
	if err != nil {
		abortWithError(c, err)
		return calls.Call{}, false
	}
	if scope := rbac.AgentScope(c); scope != "" && call.AgentID != scope {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": msgCallNotFound})
		return calls.Call{}, false
	}
	return call, true
}

func (h Handlers) GetCall(c *gin.Context) {
	call, ok := h.findVisible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) DeleteCall(c *gin.Context) {
	id := c.Param("callId")
	if err := h.Calls.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	if h.Events != nil {
		if err := h.Events.Record(c.Request.Context(), id, audit.EventDeleted, ""); err != nil {
			logger.FromGin(c).Warn("call event not recorded", "event", audit.EventDeleted, "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Call deleted successfully"})
}

// CallEvents lists the stage history of a call. Deleted calls keep their
// history, so only existing records are checked for agent visibility.
func (h Handlers) CallEvents(c *gin.Context) {
	if h.Events == nil {
		c.JSON(http.StatusOK, []audit.Event{})
		return
	}
	if rbac.AgentScope(c) != "" {
		if _, ok := h.findVisible(c); !ok {
			return
		}
	}
	events, err := h.Events.History(c.Request.Context(), c.Param("callId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, events)
}
