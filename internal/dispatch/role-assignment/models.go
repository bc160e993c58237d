// internal/dispatch/role-assignment/models.go
package roleassignment

type Metadata struct {
	RequestedRole string `json:"requested_role"`
}
