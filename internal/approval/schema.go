// internal/approval/schema.go
package approval

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "property-approvals/internal/common/errors"
)

// metadataSchemas holds the JSON Schema for each kind's metadata payload.
// The store treats metadata as opaque; this is the single place where its
// shape is enforced, at creation time. Handlers decode their own typed
// struct from the validated document.
var metadataSchemas = map[Kind]string{
	KindManagerAssignment: `{
		"type": "object",
		"properties": {
			"property_id": {"type": "string", "minLength": 1},
			"manager_id":  {"type": "string", "minLength": 1}
		},
		"required": ["property_id", "manager_id"]
	}`,
	KindDepositRefund: `{
		"type": "object",
		"properties": {
			"amount": {"type": "number", "minimum": 0},
			"reason": {"type": "string"}
		}
	}`,
	KindPropertyAddition: `{
		"type": "object"
	}`,
	KindUserCreation: `{
		"type": "object",
		"properties": {
			"email": {"type": "string"}
		}
	}`,
	KindLeaseTermination: `{
		"type": "object",
		"properties": {
			"effective_date": {"type": "string"},
			"reason":         {"type": "string"}
		}
	}`,
	KindMaintenanceApproval: `{
		"type": "object",
		"properties": {
			"estimated_cost": {"type": "number", "minimum": 0}
		}
	}`,
	KindPaymentException: `{
		"type": "object",
		"properties": {
			"amount": {"type": "number", "minimum": 0},
			"reason": {"type": "string"}
		}
	}`,
	KindRoleAssignment: `{
		"type": "object",
		"properties": {
			"requested_role": {"type": "string", "enum": ["admin", "manager", "landlord", "tenant"]}
		},
		"required": ["requested_role"]
	}`,
	KindTenantAddition: `{
		"type": "object",
		"properties": {
			"property_id": {"type": "string", "minLength": 1},
			"unit_id":     {"type": "string"},
			"full_name":   {"type": "string"},
			"email":       {"type": "string"},
			"phone":       {"type": "string"}
		},
		"required": ["property_id"]
	}`,
	KindTenantRemoval: `{
		"type": "object",
		"properties": {
			"move_out_date": {"type": "string"},
			"reason":        {"type": "string"}
		}
	}`,
}

// ValidateMetadata checks a kind's metadata document against its schema.
// An empty document is treated as {} so kinds without required fields
// accept requests with no metadata at all.
func ValidateMetadata(kind Kind, metadata json.RawMessage) error {
	schemaStr, ok := metadataSchemas[kind]
	if !ok {
		return apperrors.NewUnknownKindError(kind.String())
	}

	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaStr),
		gojsonschema.NewBytesLoader(metadata),
	)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("metadata is not valid JSON: %v", err))
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return apperrors.NewValidationError("metadata: " + strings.Join(msgs, "; "))
	}

	return nil
}
