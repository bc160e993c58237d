// internal/dispatch/lease-termination/handler.go
package leasetermination

import (
	"context"
	"database/sql"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler terminates a lease on approval. Rejection leaves the lease
// running and needs no write.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindLeaseTermination.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindLeaseTermination
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	if resolution != approval.ResolutionApproved {
		return nil
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE leases SET status = 'terminated', terminated_at = now(), updated_at = now()
		WHERE id = $1`,
		req.TargetID)
	if err != nil {
		return fmt.Errorf("terminate lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lease %s not found", req.TargetID)
	}

	h.logger.Info("lease terminated", map[string]interface{}{
		"requestId": req.ID.String(),
		"leaseId":   req.TargetID,
	})
	return nil
}
