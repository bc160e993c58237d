// internal/dispatch/tenant-addition/models.go
package tenantaddition

type Metadata struct {
	PropertyID string `json:"property_id"`
	UnitID     string `json:"unit_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}
