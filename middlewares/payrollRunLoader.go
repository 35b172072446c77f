package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/models"
)

type payrollRunReader struct {
	repo *models.PayrollRepository
}

func (r *payrollRunReader) getPayrollRuns(ctx context.Context, ids []string) []*dataloader.Result[*models.PayrollRun] {
	rc, ok := appctx.RequestContextFrom(ctx)
	if !ok {
		return handleError[*models.PayrollRun](len(ids), models.ErrMissingTenant)
	}
	results, err := r.repo.GetRunsByIDs(ctx, rc.TenantID, ids)
	if err != nil {
		return handleError[*models.PayrollRun](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(run models.PayrollRun) string { return run.ID })
}

func GetPayrollRun(ctx context.Context, id string) (*models.PayrollRun, error) {
	loaders := For(ctx)
	if loaders == nil {
		return nil, models.ErrRecordNotFound
	}
	return loaders.PayrollRunLoader.Load(ctx, id)()
}

func GetPayrollRuns(ctx context.Context, ids []string) ([]*models.PayrollRun, []error) {
	loaders := For(ctx)
	if loaders == nil {
		errs := make([]error, len(ids))
		for i := range errs {
			errs[i] = models.ErrRecordNotFound
		}
		return make([]*models.PayrollRun, len(ids)), errs
	}
	return loaders.PayrollRunLoader.LoadMany(ctx, ids)()
}
