package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) TriggerJob(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	job := strings.TrimSpace(c.Param("job"))
	if err := s.scheduler.Trigger(c.Request.Context(), job); err != nil {
		s.log.Warn("http.job.trigger_failed", zap.String("job", job), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"job": job, "status": "completed"}})
}
