// internal/dispatch/manager-assignment/handler.go
package managerassignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler assigns an approved manager to a property. Rejection leaves the
// property untouched.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindManagerAssignment.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindManagerAssignment
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	if resolution != approval.ResolutionApproved {
		return nil
	}

	var meta Metadata
	if err := json.Unmarshal(req.Metadata, &meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if meta.PropertyID == "" || meta.ManagerID == "" {
		return fmt.Errorf("metadata missing property_id or manager_id")
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE properties SET manager_id = $1, updated_at = now() WHERE id = $2`,
		meta.ManagerID, meta.PropertyID)
	if err != nil {
		return fmt.Errorf("assign manager to property: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("property %s not found", meta.PropertyID)
	}

	// The assignment link doubles as the manager's access grant, so the
	// upsert reactivates a previously revoked link.
	_, err = h.db.ExecContext(ctx, `
		INSERT INTO property_managers (property_id, manager_id, status, assigned_at)
		VALUES ($1, $2, 'active', now())
		ON CONFLICT (property_id, manager_id)
		DO UPDATE SET status = 'active', assigned_at = now()`,
		meta.PropertyID, meta.ManagerID)
	if err != nil {
		return fmt.Errorf("upsert manager link: %w", err)
	}

	h.logger.Info("manager assigned", map[string]interface{}{
		"requestId":  req.ID.String(),
		"propertyId": meta.PropertyID,
		"managerId":  meta.ManagerID,
	})
	return nil
}
