// internal/dispatch/payment-exception/handler.go
package paymentexception

import (
	"context"
	"database/sql"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler records the verdict on a payment exception, a one-off waiver or
// adjustment outside the normal billing flow. Both outcomes are written
// back so the billing ledger shows declined exceptions too.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindPaymentException.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindPaymentException
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	status := "rejected"
	if resolution == approval.ResolutionApproved {
		status = "approved"
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE payment_exceptions SET status = $1, updated_at = now() WHERE id = $2`,
		status, req.TargetID)
	if err != nil {
		return fmt.Errorf("update payment exception: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment exception %s not found", req.TargetID)
	}

	h.logger.Info("payment exception updated", map[string]interface{}{
		"requestId":   req.ID.String(),
		"exceptionId": req.TargetID,
		"status":      status,
	})
	return nil
}
