// internal/dispatch/user-creation/handler.go
package usercreation

import (
	"context"
	"database/sql"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler activates or rejects a self-registered profile. Registration
// creates the profile in a pending state; until approval it cannot sign
// in to the portal.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindUserCreation.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindUserCreation
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	status := "rejected"
	if resolution == approval.ResolutionApproved {
		status = "active"
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE profiles SET status = $1, updated_at = now() WHERE id = $2`,
		status, req.TargetID)
	if err != nil {
		return fmt.Errorf("update profile status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %s not found", req.TargetID)
	}

	h.logger.Info("profile status updated", map[string]interface{}{
		"requestId": req.ID.String(),
		"profileId": req.TargetID,
		"status":    status,
	})
	return nil
}
