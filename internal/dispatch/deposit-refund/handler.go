// internal/dispatch/deposit-refund/handler.go
package depositrefund

import (
	"context"
	"database/sql"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler records the verdict on a deposit refund. Both outcomes are
// written back so the finance view shows rejected refunds too.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindDepositRefund.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindDepositRefund
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	status := "rejected"
	if resolution == approval.ResolutionApproved {
		status = "approved"
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE deposit_refunds SET status = $1, updated_at = now() WHERE id = $2`,
		status, req.TargetID)
	if err != nil {
		return fmt.Errorf("update deposit refund: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deposit refund %s not found", req.TargetID)
	}

	h.logger.Info("deposit refund updated", map[string]interface{}{
		"requestId": req.ID.String(),
		"refundId":  req.TargetID,
		"status":    status,
	})
	return nil
}
