// internal/dispatch/property-addition/handler.go
package propertyaddition

import (
	"context"
	"database/sql"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler publishes or rejects a newly submitted property listing. The
// property row already exists in a draft state; approval makes it visible
// to tenants.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindPropertyAddition.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindPropertyAddition
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	status := "rejected"
	if resolution == approval.ResolutionApproved {
		status = "available"
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE properties SET status = $1, updated_at = now() WHERE id = $2`,
		status, req.TargetID)
	if err != nil {
		return fmt.Errorf("update property status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("property %s not found", req.TargetID)
	}

	h.logger.Info("property listing updated", map[string]interface{}{
		"requestId":  req.ID.String(),
		"propertyId": req.TargetID,
		"status":     status,
	})
	return nil
}
