package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/middlewares"
	"github.com/huminex/payroll_backend/models"
	"github.com/huminex/payroll_backend/utils"
	"github.com/huminex/payroll_backend/workflow"
	"github.com/sirupsen/logrus"
)

const (
	HeaderIdempotencyKey      = "Idempotency-Key"
	HeaderIdempotencyReplayed = "Idempotency-Replayed"

	contentTypeJSON = "application/json; charset=utf-8"
	maxBodyBytes    = 1 << 20
)

type PayrollHandler struct {
	Commands *workflow.PayrollCommands
	Queries  *workflow.PayrollQueries
	Logger   *logrus.Logger
}

type createRunRequest struct {
	Period string `json:"period" binding:"required,period"`
}

// payslipView adds the status of the linked run to a payslip.
type payslipView struct {
	models.Payslip
	RunStatus *models.PayrollRunStatus `json:"runStatus"`
}

func (h *PayrollHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/payroll")
	p.GET("/runs", h.listRuns)
	p.POST("/runs", h.createRun)
	p.POST("/runs/:runId/approve", h.approveRun)
	p.POST("/runs/:runId/disburse", h.disburseRun)
	p.GET("/employees/:employeeId/payslips", h.listPayslips)
	p.GET("/employees/:employeeId/payslips/:period", h.getPayslip)
	p.POST("/employees/:employeeId/payslips/:period/email", h.emailPayslip)
}

func (h *PayrollHandler) listRuns(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	runs, err := h.Queries.ListRuns(c.Request.Context(), rc)
	if err != nil {
		h.abortWithDomainError(c, "listRuns", err)
		return
	}
	if runs == nil {
		runs = []models.PayrollRun{}
	}
	h.writeData(c, http.StatusOK, rc, runs)
}

func (h *PayrollHandler) listPayslips(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	slips, err := h.Queries.ListPayslips(ctx, rc, c.Param("employeeId"))
	if err != nil {
		h.abortWithDomainError(c, "listPayslips", err)
		return
	}

	var runIDs []string
	seen := map[string]bool{}
	for _, slip := range slips {
		if slip.PayrollRunId != nil && !seen[*slip.PayrollRunId] {
			seen[*slip.PayrollRunId] = true
			runIDs = append(runIDs, *slip.PayrollRunId)
		}
	}
	statuses := map[string]models.PayrollRunStatus{}
	if len(runIDs) > 0 {
		runs, errs := middlewares.GetPayrollRuns(ctx, runIDs)
		for i, run := range runs {
			if run == nil || (i < len(errs) && errs[i] != nil) {
				continue
			}
			statuses[run.ID] = run.Status
		}
	}

	views := make([]payslipView, 0, len(slips))
	for _, slip := range slips {
		view := payslipView{Payslip: slip}
		if slip.PayrollRunId != nil {
			if status, ok := statuses[*slip.PayrollRunId]; ok {
				view.RunStatus = &status
			}
		}
		views = append(views, view)
	}
	h.writeData(c, http.StatusOK, rc, views)
}

func (h *PayrollHandler) getPayslip(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	slip, err := h.Queries.GetPayslip(ctx, rc, c.Param("employeeId"), c.Param("period"))
	if err != nil {
		h.abortWithDomainError(c, "getPayslip", err)
		return
	}
	view := payslipView{Payslip: *slip}
	if slip.PayrollRunId != nil {
		if run, err := middlewares.GetPayrollRun(ctx, *slip.PayrollRunId); err == nil {
			view.RunStatus = &run.Status
		}
	}
	h.writeData(c, http.StatusOK, rc, view)
}

func (h *PayrollHandler) createRun(c *gin.Context) {
	rc, req, ok := h.commandRequest(c)
	if !ok {
		return
	}
	var in createRunRequest
	if err := binding.JSON.BindBody(req.Body, &in); err != nil {
		middlewares.AbortWithValidation(c, http.StatusBadRequest, utils.CodeValidationFailed, "request validation failed", fieldErrors(err))
		return
	}
	res, err := h.Commands.CreateRun(c.Request.Context(), rc, req, in.Period)
	h.writeResult(c, res, err)
}

func (h *PayrollHandler) approveRun(c *gin.Context) {
	rc, req, ok := h.commandRequest(c)
	if !ok {
		return
	}
	res, err := h.Commands.ApproveRun(c.Request.Context(), rc, req, c.Param("runId"))
	h.writeResult(c, res, err)
}

func (h *PayrollHandler) disburseRun(c *gin.Context) {
	rc, req, ok := h.commandRequest(c)
	if !ok {
		return
	}
	res, err := h.Commands.DisburseRun(c.Request.Context(), rc, req, c.Param("runId"))
	h.writeResult(c, res, err)
}

func (h *PayrollHandler) emailPayslip(c *gin.Context) {
	rc, req, ok := h.commandRequest(c)
	if !ok {
		return
	}
	res, err := h.Commands.EmailPayslip(c.Request.Context(), rc, req, c.Param("employeeId"), c.Param("period"))
	h.writeResult(c, res, err)
}

// commandRequest reads the idempotency key and body of a mutating request.
func (h *PayrollHandler) commandRequest(c *gin.Context) (appctx.RequestContext, workflow.CommandRequest, bool) {
	rc, ok := requestContext(c)
	if !ok {
		return rc, workflow.CommandRequest{}, false
	}
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key == "" {
		middlewares.AbortWithError(c, http.StatusBadRequest, utils.CodeMissingIdempotencyKey, workflow.ErrMissingIdempotencyKey.Error())
		return rc, workflow.CommandRequest{}, false
	}
	if len(key) > 200 {
		middlewares.AbortWithValidation(c, http.StatusBadRequest, utils.CodeValidationFailed, "request validation failed",
			[]utils.FieldError{{Field: HeaderIdempotencyKey, Message: "must be at most 200 characters"}})
		return rc, workflow.CommandRequest{}, false
	}
	var body []byte
	if c.Request.Body != nil {
		b, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			middlewares.AbortWithValidation(c, http.StatusBadRequest, utils.CodeValidationFailed, "request validation failed",
				[]utils.FieldError{{Field: "body", Message: "request body could not be read"}})
			return rc, workflow.CommandRequest{}, false
		}
		body = b
	}
	return rc, workflow.CommandRequest{
		IdempotencyKey: key,
		Method:         c.Request.Method,
		Path:           c.Request.URL.Path,
		Body:           body,
	}, true
}

func (h *PayrollHandler) writeResult(c *gin.Context, res workflow.CommandResult, err error) {
	if err != nil {
		// caller is gone and nothing was committed
		_ = c.Error(err)
		c.AbortWithStatus(workflow.StatusClientClosedRequest)
		return
	}
	if res.Replayed {
		c.Header(HeaderIdempotencyReplayed, "true")
	}
	c.Data(res.StatusCode, contentTypeJSON, res.Body)
}

func (h *PayrollHandler) writeData(c *gin.Context, status int, rc appctx.RequestContext, data any) {
	body, err := utils.MarshalSuccess(data, rc.TraceID)
	if err != nil {
		h.abortWithDomainError(c, "writeData", err)
		return
	}
	c.Data(status, contentTypeJSON, body)
}

func (h *PayrollHandler) abortWithDomainError(c *gin.Context, funcName string, err error) {
	api := workflow.ErrorFor(err)
	if api.Status >= http.StatusInternalServerError {
		config.LogError(h.Logger, "PayrollHandler", funcName, c.Request.URL.Path, nil, err)
	}
	middlewares.AbortWithError(c, api.Status, api.Code, api.Message)
}

func requestContext(c *gin.Context) (appctx.RequestContext, bool) {
	rc, ok := appctx.RequestContextFrom(c.Request.Context())
	if !ok || !rc.Valid() {
		middlewares.AbortWithError(c, http.StatusUnauthorized, utils.CodeUnauthorized, "unauthorized")
		return rc, false
	}
	return rc, true
}
