package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/metrics"
	"github.com/huminex/payroll_backend/models"
	"github.com/huminex/payroll_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	tracerName = "huminex-payroll"

	ActionApprove  = "approve"
	ActionDisburse = "disburse"
)

// PayrollCommands runs the mutating payroll operations behind an idempotency key.
type PayrollCommands struct {
	DB          *gorm.DB
	Payroll     *models.PayrollRepository
	Idempotency *models.IdempotencyStore
	Audit       *models.AuditRecorder
	Outbox      *models.OutboxRepository
	Documents   DocumentStorage
	Calculator  RunCalculator
	Locker      *redislock.Client
	Logger      *logrus.Logger

	TTL     time.Duration
	LockTTL time.Duration
	Now     func() time.Time
}

func NewPayrollCommands(db *gorm.DB, documents DocumentStorage, logger *logrus.Logger) *PayrollCommands {
	return &PayrollCommands{
		DB:          db,
		Payroll:     models.NewPayrollRepository(db),
		Idempotency: models.NewIdempotencyStore(db),
		Audit:       models.NewAuditRecorder(db, logger),
		Outbox:      models.NewOutboxRepository(db),
		Documents:   documents,
		Calculator:  PayslipTotalsCalculator{},
		Logger:      logger,
		TTL:         24 * time.Hour,
		LockTTL:     30 * time.Second,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// CommandRequest identifies one mutating HTTP request.
type CommandRequest struct {
	IdempotencyKey string
	Method         string
	Path           string
	Body           []byte
}

// CommandResult is the response to write, already enveloped.
type CommandResult struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

type commandOutcome struct {
	status     int
	data       any
	err        error
	resourceID string
	metadata   map[string]any
}

type command struct {
	action       string
	resourceType string
	run          func(ctx context.Context, claim *keyClaim) commandOutcome
}

// keyClaim writes the response of a successful domain change, and its idempotency
// record, in the change's own transaction. A request that loses the key to a
// concurrent one gets ErrDuplicateIdempotencyKey and its transaction rolls back.
type keyClaim struct {
	store       *models.IdempotencyStore
	rc          appctx.RequestContext
	key         string
	req         CommandRequest
	fingerprint string
	ttl         time.Duration

	status int
	body   []byte
}

func (k *keyClaim) commit(ctx context.Context, tx *gorm.DB, status int, data any) error {
	body, err := utils.MarshalSuccess(data, k.rc.TraceID)
	if err != nil {
		return err
	}
	if err := k.store.WithTx(tx).Claim(ctx, k.rc.TenantID, k.key, k.req.Method, k.req.Path, models.StoredResponse{
		StatusCode:  status,
		Body:        body,
		Fingerprint: k.fingerprint,
	}, k.ttl); err != nil {
		return err
	}
	k.status, k.body = status, body
	return nil
}

// CreateRun creates the draft run of a period.
func (c *PayrollCommands) CreateRun(ctx context.Context, rc appctx.RequestContext, req CommandRequest, periodText string) (CommandResult, error) {
	return c.execute(ctx, rc, req, command{
		action:       models.AuditActionCreateRun,
		resourceType: models.AuditResourcePayrollRun,
		run: func(ctx context.Context, claim *keyClaim) commandOutcome {
			meta := map[string]any{"period": periodText}
			period, err := models.ParsePeriod(periodText)
			if err != nil {
				return commandOutcome{err: err, resourceID: periodText, metadata: meta}
			}

			now := c.Now()
			var run *models.PayrollRun
			var linked int64
			err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				payroll := c.Payroll.WithTx(tx)
				totals, err := c.Calculator.Calculate(ctx, payroll, rc.TenantID, period)
				if err != nil {
					return fmt.Errorf("calculate run totals: %w", err)
				}
				run, err = payroll.CreateRun(ctx, rc.TenantID, period, totals, rc.UserID, now)
				if err != nil {
					return err
				}
				linked, err = payroll.LinkPayslipsToRun(ctx, rc.TenantID, period, run.ID)
				if err != nil {
					return err
				}
				if err := c.enqueue(ctx, tx, rc, models.EventPayrollRunCreated, models.AuditResourcePayrollRun, models.BusinessEventPayload{
					ResourceId: run.ID,
					Status:     string(run.Status),
					Period:     run.Period,
				}, now); err != nil {
					return err
				}
				return claim.commit(ctx, tx, http.StatusCreated, run)
			})
			if err != nil {
				return commandOutcome{err: err, resourceID: period.String(), metadata: meta}
			}
			meta["employeesCount"] = run.EmployeesCount
			meta["linkedPayslips"] = linked
			return commandOutcome{status: http.StatusCreated, data: run, resourceID: run.ID, metadata: meta}
		},
	})
}

func (c *PayrollCommands) ApproveRun(ctx context.Context, rc appctx.RequestContext, req CommandRequest, runID string) (CommandResult, error) {
	return c.execute(ctx, rc, req, c.transitionCommand(rc, runID, models.AuditActionApproveRun, ActionApprove,
		models.EventPayrollRunApproved, (*models.PayrollRepository).ApproveRun))
}

func (c *PayrollCommands) DisburseRun(ctx context.Context, rc appctx.RequestContext, req CommandRequest, runID string) (CommandResult, error) {
	return c.execute(ctx, rc, req, c.transitionCommand(rc, runID, models.AuditActionDisburseRun, ActionDisburse,
		models.EventPayrollRunDisbursed, (*models.PayrollRepository).DisburseRun))
}

type runTransitionFunc func(r *models.PayrollRepository, ctx context.Context, tenantID, runID, actorUserID string, now time.Time) (*models.PayrollRun, error)

func (c *PayrollCommands) transitionCommand(rc appctx.RequestContext, runID, auditAction, action, eventName string, transition runTransitionFunc) command {
	return command{
		action:       auditAction,
		resourceType: models.AuditResourcePayrollRun,
		run: func(ctx context.Context, claim *keyClaim) commandOutcome {
			now := c.Now()
			var run *models.PayrollRun
			err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var err error
				run, err = transition(c.Payroll.WithTx(tx), ctx, rc.TenantID, runID, rc.UserID, now)
				if err != nil {
					return err
				}
				if err := c.enqueue(ctx, tx, rc, eventName, models.AuditResourcePayrollRun, models.BusinessEventPayload{
					ResourceId: run.ID,
					Status:     string(run.Status),
					Period:     run.Period,
				}, now); err != nil {
					return err
				}
				return claim.commit(ctx, tx, http.StatusOK, models.RunTransition{RunId: run.ID, Action: action, Status: run.Status})
			})
			if err != nil {
				meta := map[string]any{}
				if run != nil {
					meta["currentStatus"] = run.Status
				}
				return commandOutcome{err: err, resourceID: runID, metadata: meta}
			}
			return commandOutcome{
				status:     http.StatusOK,
				data:       models.RunTransition{RunId: run.ID, Action: action, Status: run.Status},
				resourceID: run.ID,
				metadata:   map[string]any{"status": run.Status, "period": run.Period},
			}
		},
	}
}

// EmailPayslip stores the payslip document and queues the email. A missing payslip
// is answered before document storage is touched.
func (c *PayrollCommands) EmailPayslip(ctx context.Context, rc appctx.RequestContext, req CommandRequest, employeeID, periodText string) (CommandResult, error) {
	return c.execute(ctx, rc, req, command{
		action:       models.AuditActionEmailPayslip,
		resourceType: models.AuditResourcePayslip,
		run: func(ctx context.Context, claim *keyClaim) commandOutcome {
			resourceID := employeeID + "/" + periodText
			meta := map[string]any{"employeeId": employeeID, "period": periodText}
			period, err := models.ParsePeriod(periodText)
			if err != nil {
				return commandOutcome{err: err, resourceID: resourceID, metadata: meta}
			}
			slip, err := c.Payroll.GetPayslip(ctx, rc.TenantID, employeeID, period)
			if err != nil {
				return commandOutcome{err: err, resourceID: resourceID, metadata: meta}
			}
			employee, err := c.Payroll.GetEmployee(ctx, rc.TenantID, employeeID)
			if err != nil {
				meta["missing"] = "employee"
				return commandOutcome{err: err, resourceID: slip.ID, metadata: meta}
			}

			blobRef, err := c.ensureDocument(ctx, rc, *slip, *employee)
			if err != nil {
				return commandOutcome{err: err, resourceID: slip.ID, metadata: meta}
			}

			dispatch := models.PayslipEmailDispatch{
				EmployeeId:     employeeID,
				Period:         period.String(),
				Email:          employee.Email,
				DispatchStatus: models.DispatchStatusQueued,
			}
			now := c.Now()
			err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				payroll := c.Payroll.WithTx(tx)
				if err := payroll.AttachPayslipDocument(ctx, rc.TenantID, employeeID, period, blobRef, now); err != nil {
					return err
				}
				if _, err := payroll.MarkPayslipEmailed(ctx, rc.TenantID, employeeID, period, now); err != nil {
					return err
				}
				if err := c.enqueue(ctx, tx, rc, models.EventPayrollPayslipEmailed, models.AuditResourcePayslip, models.BusinessEventPayload{
					ResourceId:       slip.ID,
					Status:           models.PayslipStatusEmailed,
					Period:           period.String(),
					EmployeeId:       employeeID,
					Email:            employee.Email,
					DocumentBlobName: blobRef,
				}, now); err != nil {
					return err
				}
				return claim.commit(ctx, tx, http.StatusOK, dispatch)
			})
			if err != nil {
				return commandOutcome{err: err, resourceID: slip.ID, metadata: meta}
			}
			meta["documentBlobName"] = blobRef
			return commandOutcome{status: http.StatusOK, data: dispatch, resourceID: slip.ID, metadata: meta}
		},
	})
}

func (c *PayrollCommands) ensureDocument(ctx context.Context, rc appctx.RequestContext, slip models.Payslip, employee models.Employee) (string, error) {
	if c.Documents == nil {
		return "", fmt.Errorf("%w: document storage not configured", ErrDependencyUnavailable)
	}
	blobRef, err := c.Documents.EnsurePayslipDocument(ctx, rc.TenantID, slip, employee)
	if err == nil {
		return blobRef, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	c.log().WithFields(logrus.Fields{
		"module":     "PayrollCommands",
		"funcName":   "EmailPayslip",
		"employeeId": slip.EmployeeId,
		"period":     slip.Period,
	}).Error("payslip document storage failed: " + err.Error())
	return "", fmt.Errorf("%w: payslip document: %v", ErrDependencyUnavailable, err)
}

func (c *PayrollCommands) enqueue(ctx context.Context, tx *gorm.DB, rc appctx.RequestContext, eventName, aggregateType string, payload models.BusinessEventPayload, now time.Time) error {
	evt, err := models.NewOutboxEvent(eventName, aggregateType, rc, payload, now)
	if err != nil {
		return err
	}
	return c.Outbox.WithTx(tx).Enqueue(ctx, evt)
}

// execute is the idempotent command protocol: key check, replay lookup, domain
// operation, audit, response capture. It returns an error only when ctx ended
// before the domain operation committed.
func (c *PayrollCommands) execute(ctx context.Context, rc appctx.RequestContext, req CommandRequest, cmd command) (CommandResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "payroll."+cmd.action, trace.WithAttributes(
		attribute.String("payroll.action", cmd.action),
		attribute.String("tenant.id", rc.TenantID),
	))
	defer span.End()

	if !rc.Valid() {
		return c.errorResult(rc, models.ErrMissingTenant), nil
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return c.errorResult(rc, ErrMissingIdempotencyKey), nil
	}
	fingerprint := utils.RequestFingerprint(req.Body)

	if res, ok, err := c.lookup(ctx, rc, key, req, fingerprint, cmd.action); err != nil || ok {
		span.SetAttributes(attribute.Bool("idempotency.replayed", res.Replayed))
		return res, err
	}

	release := c.lock(ctx, rc, key, req)
	defer release()

	// a concurrent holder of the lock may have stored its response meanwhile
	if res, ok, err := c.lookup(ctx, rc, key, req, fingerprint, cmd.action); err != nil || ok {
		span.SetAttributes(attribute.Bool("idempotency.replayed", res.Replayed))
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return CommandResult{}, err
	}

	claim := &keyClaim{store: c.Idempotency, rc: rc, key: key, req: req, fingerprint: fingerprint, ttl: c.TTL}
	out := cmd.run(ctx, claim)
	if out.err != nil && errors.Is(out.err, context.Canceled) {
		span.SetStatus(codes.Error, "cancelled")
		return CommandResult{}, out.err
	}

	// the domain change is committed or rejected; the caller going away must not
	// prevent the audit row and the idempotency record from being written
	res := c.finish(context.WithoutCancel(ctx), rc, key, req, fingerprint, cmd, out, claim)
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	if res.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(res.StatusCode))
	}
	return res, nil
}

func (c *PayrollCommands) lookup(ctx context.Context, rc appctx.RequestContext, key string, req CommandRequest, fingerprint, action string) (CommandResult, bool, error) {
	stored, err := c.Idempotency.TryGet(ctx, rc.TenantID, key, req.Method, req.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return CommandResult{}, false, ctxErr
		}
		config.LogError(c.log(), "PayrollCommands", "lookup", "idempotency lookup failed", key, err)
		return c.errorResult(rc, fmt.Errorf("%w: idempotency store: %v", ErrDependencyUnavailable, err)), true, nil
	}
	if stored == nil {
		return CommandResult{}, false, nil
	}
	if stored.Fingerprint != fingerprint {
		return c.errorResult(rc, models.ErrDuplicateIdempotencyKey), true, nil
	}
	metrics.ObserveReplay(action)
	return CommandResult{StatusCode: stored.StatusCode, Body: stored.Body, Replayed: true}, true, nil
}

// lock serializes requests sharing an idempotency key across instances. It is
// best effort: without it the idempotency record claimed in the domain
// transaction still lets only one request commit.
func (c *PayrollCommands) lock(ctx context.Context, rc appctx.RequestContext, key string, req CommandRequest) func() {
	if c.Locker == nil {
		return func() {}
	}
	lockKey := fmt.Sprintf("lock:idempotency:%s:%s:%s:%s", rc.TenantID, req.Method, req.Path, key)
	lock, err := c.Locker.Obtain(ctx, lockKey, c.LockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 100),
	})
	if err != nil {
		c.log().WithFields(logrus.Fields{
			"module":         "PayrollCommands",
			"idempotencyKey": key,
		}).Warn("could not obtain redis lock; proceeding without redis lock: " + err.Error())
		return func() {}
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			c.log().WithField("module", "PayrollCommands").Warn("failed to release redis lock: " + err.Error())
		}
	}
}

func (c *PayrollCommands) finish(ctx context.Context, rc appctx.RequestContext, key string, req CommandRequest, fingerprint string, cmd command, out commandOutcome, claim *keyClaim) CommandResult {
	if errors.Is(out.err, models.ErrDuplicateIdempotencyKey) {
		// a concurrent request with the same key committed first and this one rolled back
		return c.replayWinner(ctx, rc, key, req, fingerprint, cmd.action)
	}

	status := out.status
	outcome := models.AuditOutcomeSuccess
	cacheable := true
	var body []byte

	if out.err != nil {
		api := ErrorFor(out.err)
		status, cacheable = api.Status, api.Cacheable
		body = utils.MarshalError(api.Code, api.Message, rc.TraceID, nil)
		outcome = models.AuditOutcomeFailure
		if errors.Is(out.err, models.ErrRecordNotFound) {
			outcome = models.AuditOutcomeNotFound
		}
		if status >= http.StatusInternalServerError {
			config.LogError(c.log(), "PayrollCommands", cmd.action, "command failed", out.resourceID, out.err)
		}
	} else if claim.body != nil {
		// stored with the domain change
		status, body, cacheable = claim.status, claim.body, false
	} else {
		b, err := utils.MarshalSuccess(out.data, rc.TraceID)
		if err != nil {
			config.LogError(c.log(), "PayrollCommands", cmd.action, "marshal response", out.resourceID, err)
			status, cacheable = http.StatusInternalServerError, false
			b = utils.MarshalError(utils.CodeInternal, "internal error", rc.TraceID, nil)
		}
		body = b
	}

	if cacheable {
		err := c.Idempotency.Put(ctx, rc.TenantID, key, req.Method, req.Path, models.StoredResponse{
			StatusCode:  status,
			Body:        body,
			Fingerprint: fingerprint,
		}, c.TTL)
		if errors.Is(err, models.ErrDuplicateIdempotencyKey) {
			// lost the race to a concurrent request with the same key: answer with its response
			return c.replayWinner(ctx, rc, key, req, fingerprint, cmd.action)
		}
		if err != nil {
			config.LogError(c.log(), "PayrollCommands", "finish", "idempotency record not stored", map[string]any{
				"tenantId": rc.TenantID,
				"traceId":  rc.TraceID,
				"key":      key,
			}, err)
		}
	}

	meta := out.metadata
	if meta == nil {
		meta = map[string]any{}
	}
	meta["idempotencyKey"] = key
	meta["statusCode"] = status
	if out.err != nil {
		meta["error"] = out.err.Error()
	}
	c.Audit.Record(ctx, rc, models.AuditEntry{
		Action:       cmd.action,
		ResourceType: cmd.resourceType,
		ResourceId:   out.resourceID,
		Outcome:      outcome,
		Metadata:     meta,
	})
	metrics.ObserveCommand(cmd.action, outcome)
	return CommandResult{StatusCode: status, Body: body}
}

func (c *PayrollCommands) replayWinner(ctx context.Context, rc appctx.RequestContext, key string, req CommandRequest, fingerprint, action string) CommandResult {
	stored, err := c.Idempotency.TryGet(ctx, rc.TenantID, key, req.Method, req.Path)
	if err != nil {
		config.LogError(c.log(), "PayrollCommands", "replayWinner", "idempotency lookup failed", key, err)
		return c.errorResult(rc, fmt.Errorf("%w: idempotency store: %v", ErrDependencyUnavailable, err))
	}
	if stored == nil || stored.Fingerprint != fingerprint {
		return c.errorResult(rc, models.ErrDuplicateIdempotencyKey)
	}
	metrics.ObserveReplay(action)
	return CommandResult{StatusCode: stored.StatusCode, Body: stored.Body, Replayed: true}
}

func (c *PayrollCommands) errorResult(rc appctx.RequestContext, err error) CommandResult {
	api := ErrorFor(err)
	return CommandResult{
		StatusCode: api.Status,
		Body:       utils.MarshalError(api.Code, api.Message, rc.TraceID, nil),
	}
}

func (c *PayrollCommands) log() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return config.GetLogger()
}
