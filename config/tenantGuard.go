package config

import (
	"errors"
	"strings"

	"github.com/huminex/payroll_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrMissingTenantScope = errors.New("tenant scope missing: statement on tenant table has no tenant_id condition")

// TenantGuardPlugin enforces multi-tenant isolation for tables with a tenant_id column.
// Repositories must scope every statement explicitly; the guard never adds a filter,
// it fails any query/update/delete whose WHERE clause does not mention tenant_id.
//
// NOTE:
// - Raw SQL is not inspected.
// - Cross-tenant jobs opt out explicitly with appctx.CrossTenant(ctx).
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Error != nil {
		return
	}
	if ctx := db.Statement.Context; ctx != nil && appctx.IsCrossTenant(ctx) {
		return
	}
	if db.Statement.Schema == nil {
		return
	}
	if db.Statement.Schema.LookUpField("tenant_id") == nil {
		return
	}
	if whereHasTenantID(db.Statement.Clauses["WHERE"]) {
		return
	}
	_ = db.AddError(ErrMissingTenantScope)
}

func whereHasTenantID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasTenantID(e) {
			return true
		}
	}
	return false
}

func exprHasTenantID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsTenantID(v.Column)
	case clause.IN:
		return colIsTenantID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasTenantID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for string conditions such as "tenant_id = ? AND id = ?".
		return strings.Contains(strings.ToLower(v.SQL), "tenant_id")
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), "tenant_id")
	default:
		return false
	}
}

func colIsTenantID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "tenant_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "tenant_id")
	default:
		return false
	}
}
