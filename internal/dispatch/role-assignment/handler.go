// internal/dispatch/role-assignment/handler.go
package roleassignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler grants the requested portal role on approval. Rejection leaves
// the current role in place.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindRoleAssignment.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindRoleAssignment
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	if resolution != approval.ResolutionApproved {
		return nil
	}

	var meta Metadata
	if err := json.Unmarshal(req.Metadata, &meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if meta.RequestedRole == "" {
		return fmt.Errorf("metadata missing requested_role")
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE profiles SET role = $1, updated_at = now() WHERE id = $2`,
		meta.RequestedRole, req.TargetID)
	if err != nil {
		return fmt.Errorf("update profile role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %s not found", req.TargetID)
	}

	h.logger.Info("role granted", map[string]interface{}{
		"requestId": req.ID.String(),
		"profileId": req.TargetID,
		"role":      meta.RequestedRole,
	})
	return nil
}
