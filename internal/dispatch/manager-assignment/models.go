// internal/dispatch/manager-assignment/models.go
package managerassignment

type Metadata struct {
	PropertyID string `json:"property_id"`
	ManagerID  string `json:"manager_id"`
}
