// internal/dispatch/deposit-refund/models.go
package depositrefund

type Metadata struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}
