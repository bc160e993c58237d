// internal/dispatch/dispatcher.go

// Package dispatch routes resolved approval requests to the handler that
// applies their domain side effect. One handler package per request kind;
// the registry covers the whole kind enumeration so a lookup miss is a
// wiring bug, not a runtime condition.
package dispatch

import (
	"context"
	"database/sql"

	"property-approvals/internal/approval"
	apperrors "property-approvals/internal/common/errors"
	"property-approvals/internal/common/logger"

	depositrefund "property-approvals/internal/dispatch/deposit-refund"
	leasetermination "property-approvals/internal/dispatch/lease-termination"
	maintenanceapproval "property-approvals/internal/dispatch/maintenance-approval"
	managerassignment "property-approvals/internal/dispatch/manager-assignment"
	paymentexception "property-approvals/internal/dispatch/payment-exception"
	propertyaddition "property-approvals/internal/dispatch/property-addition"
	roleassignment "property-approvals/internal/dispatch/role-assignment"
	tenantaddition "property-approvals/internal/dispatch/tenant-addition"
	tenantremoval "property-approvals/internal/dispatch/tenant-removal"
	usercreation "property-approvals/internal/dispatch/user-creation"
)

// Handler applies one kind's side effect. Handlers must be idempotent per
// request: the engine's pending guard means Apply runs at most once per
// request, but a reconciliation replay after a dispatch failure may call
// it again.
type Handler interface {
	Kind() approval.Kind
	Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error
}

// Registry maps request kinds to their side-effect handlers. It satisfies
// the engine's Dispatcher interface.
type Registry struct {
	handlers map[approval.Kind]Handler
	logger   logger.Logger
}

func NewRegistry(log logger.Logger, handlers ...Handler) *Registry {
	r := &Registry{
		handlers: make(map[approval.Kind]Handler, len(handlers)),
		logger:   log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
	for _, h := range handlers {
		r.handlers[h.Kind()] = h
	}
	return r
}

// Default builds the registry with the full handler set.
func Default(db *sql.DB, log logger.Logger) *Registry {
	return NewRegistry(log,
		managerassignment.NewHandler(db, log),
		depositrefund.NewHandler(db, log),
		propertyaddition.NewHandler(db, log),
		usercreation.NewHandler(db, log),
		leasetermination.NewHandler(db, log),
		maintenanceapproval.NewHandler(db, log),
		paymentexception.NewHandler(db, log),
		roleassignment.NewHandler(db, log),
		tenantaddition.NewHandler(db, log),
		tenantremoval.NewHandler(db, log),
	)
}

// Apply routes the request to its kind's handler.
func (r *Registry) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	handler, ok := r.handlers[req.Kind]
	if !ok {
		return apperrors.NewUnknownKindError(req.Kind.String())
	}

	r.logger.Debug("dispatching side effect", map[string]interface{}{
		"requestId":  req.ID.String(),
		"kind":       req.Kind.String(),
		"resolution": resolution.String(),
	})
	return handler.Apply(ctx, req, resolution)
}

// Kinds returns the kinds with a registered handler.
func (r *Registry) Kinds() []approval.Kind {
	kinds := make([]approval.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
