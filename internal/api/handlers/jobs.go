package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
)

// JobHandler exposes manual triggers for the scheduled jobs so an operator
// does not have to wait for the daily run.
type JobHandler struct {
	reminders *services.ReminderService
	retention *services.RetentionService
	tokens    *services.TokenService
	logger    *zap.Logger
}

func NewJobHandler(reminders *services.ReminderService, retention *services.RetentionService, tokens *services.TokenService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		reminders: reminders,
		retention: retention,
		tokens:    tokens,
		logger:    logger.With(zap.String("handler", "jobs")),
	}
}

func (h *JobHandler) RunReminderDispatch(c *gin.Context) {
	result, err := h.reminders.RunDispatch(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobResultResponse(result))
}

func (h *JobHandler) RunRetentionSweep(c *gin.Context) {
	result, err := h.retention.RunSweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobResultResponse(result))
}

func (h *JobHandler) RunTokenCleanup(c *gin.Context) {
	removed, err := h.tokens.CleanupExpired(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func jobResultResponse(result services.JobResult) gin.H {
	return gin.H{
		"processed": result.Processed,
		"failed":    result.Failed,
	}
}
