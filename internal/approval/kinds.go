// internal/approval/kinds.go
package approval

// Kind is the closed category of what is being approved. The enumeration
// is closed on purpose: the dispatcher registry covers every member, which
// makes an unknown kind unreachable once a request passes validation.
type Kind string

const (
	KindManagerAssignment   Kind = "manager_assignment"
	KindDepositRefund       Kind = "deposit_refund"
	KindPropertyAddition    Kind = "property_addition"
	KindUserCreation        Kind = "user_creation"
	KindLeaseTermination    Kind = "lease_termination"
	KindMaintenanceApproval Kind = "maintenance_approval"
	KindPaymentException    Kind = "payment_exception"
	KindRoleAssignment      Kind = "role_assignment"
	KindTenantAddition      Kind = "tenant_addition"
	KindTenantRemoval       Kind = "tenant_removal"
)

var validKinds = map[Kind]bool{
	KindManagerAssignment:   true,
	KindDepositRefund:       true,
	KindPropertyAddition:    true,
	KindUserCreation:        true,
	KindLeaseTermination:    true,
	KindMaintenanceApproval: true,
	KindPaymentException:    true,
	KindRoleAssignment:      true,
	KindTenantAddition:      true,
	KindTenantRemoval:       true,
}

// IsValid returns true if the kind is a member of the closed enumeration
func (k Kind) IsValid() bool {
	return validKinds[k]
}

func (k Kind) String() string {
	return string(k)
}

// AllKinds returns the closed enumeration in a stable order.
func AllKinds() []Kind {
	return []Kind{
		KindManagerAssignment,
		KindDepositRefund,
		KindPropertyAddition,
		KindUserCreation,
		KindLeaseTermination,
		KindMaintenanceApproval,
		KindPaymentException,
		KindRoleAssignment,
		KindTenantAddition,
		KindTenantRemoval,
	}
}

// Status represents a state in the approval lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusPending:   true,
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
}

var terminalStatuses = map[Status]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
}

// IsTerminal returns true if the status permits no further transitions
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsValid returns true if the status is a valid lifecycle state
func (s Status) IsValid() bool {
	return validStatuses[s]
}

func (s Status) String() string {
	return string(s)
}

// Resolution is the reviewer's verdict on a pending request.
type Resolution string

const (
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
)

// IsValid returns true for the two recognized verdicts.
func (r Resolution) IsValid() bool {
	return r == ResolutionApproved || r == ResolutionRejected
}

// Status maps the resolution onto the terminal status it produces.
func (r Resolution) Status() Status {
	if r == ResolutionApproved {
		return StatusApproved
	}
	return StatusRejected
}

func (r Resolution) String() string {
	return string(r)
}
