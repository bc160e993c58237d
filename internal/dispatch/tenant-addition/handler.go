// internal/dispatch/tenant-addition/handler.go
package tenantaddition

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler links an approved tenant to a property. The upsert reactivates
// a returning tenant who previously moved out of the same property.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindTenantAddition.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindTenantAddition
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	if resolution != approval.ResolutionApproved {
		return nil
	}

	var meta Metadata
	if err := json.Unmarshal(req.Metadata, &meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if meta.PropertyID == "" {
		return fmt.Errorf("metadata missing property_id")
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO tenants (id, property_id, unit_id, status, moved_in_at)
		VALUES ($1, $2, NULLIF($3, ''), 'active', now())
		ON CONFLICT (id)
		DO UPDATE SET property_id = EXCLUDED.property_id,
			unit_id = EXCLUDED.unit_id,
			status = 'active',
			moved_out_at = NULL`,
		req.TargetID, meta.PropertyID, meta.UnitID)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}

	h.logger.Info("tenant added", map[string]interface{}{
		"requestId":  req.ID.String(),
		"tenantId":   req.TargetID,
		"propertyId": meta.PropertyID,
	})
	return nil
}
