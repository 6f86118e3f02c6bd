package obs

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandlers backs the /livez and /readyz endpoints. Ready is probed
// on every readiness request; leave it nil for always-ready services.
type HealthHandlers struct {
	Ready func() error
}

// Livez answers as long as the process serves requests.
func (h HealthHandlers) Livez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports whether downstream stores are reachable.
func (h HealthHandlers) Readyz(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
