// internal/dispatch/tenant-removal/handler.go
package tenantremoval

import (
	"context"
	"database/sql"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler marks a tenant as moved out on approval. The row stays for
// history; a later tenant addition for the same person reactivates it.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindTenantRemoval.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindTenantRemoval
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	if resolution != approval.ResolutionApproved {
		return nil
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE tenants SET status = 'inactive', moved_out_at = now() WHERE id = $1`,
		req.TargetID)
	if err != nil {
		return fmt.Errorf("deactivate tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant %s not found", req.TargetID)
	}

	h.logger.Info("tenant removed", map[string]interface{}{
		"requestId": req.ID.String(),
		"tenantId":  req.TargetID,
	})
	return nil
}
