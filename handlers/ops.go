package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huminex/payroll_backend/middlewares"
	"github.com/huminex/payroll_backend/models"
	"github.com/huminex/payroll_backend/utils"
	"github.com/sirupsen/logrus"
)

// OpsHandler exposes outbox inspection and replay to administrators.
type OpsHandler struct {
	Outbox *models.OutboxRepository
	Logger *logrus.Logger
	Now    func() time.Time
}

type outboxReplayRequest struct {
	TenantId string `json:"tenantId" binding:"required"`
	EventId  string `json:"eventId" binding:"required"`
}

var outboxStatuses = map[string]bool{
	"":                                   true,
	models.OutboxPublishStatusPending:    true,
	models.OutboxPublishStatusProcessing: true,
	models.OutboxPublishStatusSent:       true,
	models.OutboxPublishStatusFailed:     true,
	models.OutboxPublishStatusDead:       true,
}

func (h *OpsHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/outbox", h.listOutbox)
	rg.POST("/outbox/replay", h.replayOutbox)
}

func (h *OpsHandler) listOutbox(c *gin.Context) {
	status := c.Query("status")
	if !outboxStatuses[status] {
		middlewares.AbortWithValidation(c, http.StatusBadRequest, utils.CodeValidationFailed, "request validation failed",
			[]utils.FieldError{{Field: "status", Message: "must be one of PENDING PROCESSING SENT FAILED DEAD"}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := h.Outbox.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		h.logError("listOutbox", err)
		middlewares.AbortWithError(c, http.StatusInternalServerError, utils.CodeInternal, "internal error")
		return
	}
	if events == nil {
		events = []models.OutboxEvent{}
	}
	writeEnvelope(c, http.StatusOK, events)
}

func (h *OpsHandler) replayOutbox(c *gin.Context) {
	var req outboxReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middlewares.AbortWithValidation(c, http.StatusBadRequest, utils.CodeValidationFailed, "request validation failed", fieldErrors(err))
		return
	}
	evt, err := h.Outbox.Replay(c.Request.Context(), req.TenantId, req.EventId, h.Now())
	if errors.Is(err, models.ErrRecordNotFound) {
		middlewares.AbortWithError(c, http.StatusNotFound, utils.CodeNotFound, "no FAILED or DEAD outbox event with that id")
		return
	}
	if err != nil {
		h.logError("replayOutbox", err)
		middlewares.AbortWithError(c, http.StatusInternalServerError, utils.CodeInternal, "internal error")
		return
	}
	writeEnvelope(c, http.StatusOK, evt)
}

func (h *OpsHandler) logError(funcName string, err error) {
	if h.Logger != nil {
		h.Logger.WithFields(logrus.Fields{"module": "OpsHandler", "funcName": funcName}).Error(err.Error())
	}
}

func writeEnvelope(c *gin.Context, status int, data any) {
	body, err := utils.MarshalSuccess(data, middlewares.TraceID(c.Request.Context()))
	if err != nil {
		middlewares.AbortWithError(c, http.StatusInternalServerError, utils.CodeInternal, "internal error")
		return
	}
	c.Data(status, contentTypeJSON, body)
}
