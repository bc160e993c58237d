// internal/dispatch/lease-termination/models.go
package leasetermination

type Metadata struct {
	EffectiveDate string `json:"effective_date"`
	Reason        string `json:"reason"`
}
