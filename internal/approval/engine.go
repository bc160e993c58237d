// internal/approval/engine.go
package approval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"property-approvals/internal/common/auth"
	"property-approvals/internal/common/config"
	apperrors "property-approvals/internal/common/errors"
	"property-approvals/internal/common/logger"
	"property-approvals/internal/common/metrics"
	"property-approvals/internal/common/notify"
	"property-approvals/internal/common/observability"
)

// Dispatcher applies the domain side effect of a resolved request. It is
// declared here, on the consumer side, so side-effect handlers can import
// this package without a cycle.
type Dispatcher interface {
	Apply(ctx context.Context, req *Request, resolution Resolution) error
}

// Indexer mirrors resolved and created requests into a secondary search
// index. Indexing is best effort and never fails the operation.
type Indexer interface {
	Index(ctx context.Context, req *Request) error
}

// StatsProvider serves aggregate snapshots, possibly from a cache. A
// provider that also implements Invalidate has its cache dropped after
// every engine write.
type StatsProvider interface {
	Snapshot(ctx context.Context, since *time.Time) (*Stats, error)
}

// CreateInput carries the caller-supplied fields of a new request.
type CreateInput struct {
	Kind        Kind            `json:"kind"`
	TargetID    string          `json:"target_id"`
	RequestedBy string          `json:"requested_by"`
	Notes       *string         `json:"notes,omitempty"`
	Metadata    []byte          `json:"metadata,omitempty"`
}

// Engine coordinates the approval request lifecycle. Ordering on resolve
// is status first, side effect second, notification last: the durable
// status change is the source of truth, and a later failure is logged and
// metered but never rolls it back.
type Engine struct {
	store      Store
	dispatcher Dispatcher
	identity   auth.Identity
	notifier   notify.Notifier
	indexer    Indexer
	stats      StatsProvider
	obs        *observability.Observability
	logger     logger.Logger
	cfg        config.EngineConfig
}

type EngineOption func(*Engine)

func WithIndexer(idx Indexer) EngineOption {
	return func(e *Engine) { e.indexer = idx }
}

func WithStatsProvider(sp StatsProvider) EngineOption {
	return func(e *Engine) { e.stats = sp }
}

func WithObservability(obs *observability.Observability) EngineOption {
	return func(e *Engine) { e.obs = obs }
}

func NewEngine(store Store, dispatcher Dispatcher, identity auth.Identity, notifier notify.Notifier, log logger.Logger, cfg config.EngineConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      store,
		dispatcher: dispatcher,
		identity:   identity,
		notifier:   notifier,
		logger:     log.WithFields(map[string]interface{}{"component": "engine"}),
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateRequest validates and persists a new pending request.
func (e *Engine) CreateRequest(ctx context.Context, input CreateInput) (*Request, error) {
	timer := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("create").Observe(time.Since(timer).Seconds())
	}()

	if !input.Kind.IsValid() {
		return nil, apperrors.NewValidationError("unknown request kind: " + string(input.Kind))
	}
	if err := ValidateMetadata(input.Kind, input.Metadata); err != nil {
		return nil, err
	}

	created, err := e.store.Create(ctx, &Request{
		Kind:        input.Kind,
		TargetID:    input.TargetID,
		RequestedBy: input.RequestedBy,
		Notes:       input.Notes,
		Metadata:    input.Metadata,
	})
	if err != nil {
		return nil, err
	}

	metrics.RequestsCreated.WithLabelValues(created.Kind.String()).Inc()
	e.index(ctx, created)
	e.invalidateStats(ctx)

	e.logger.Info("approval request created", map[string]interface{}{
		"requestId":   created.ID.String(),
		"kind":        created.Kind.String(),
		"targetId":    created.TargetID,
		"requestedBy": created.RequestedBy,
	})
	return created, nil
}

// GetRequest returns a single request by id.
func (e *Engine) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return e.store.GetByID(ctx, id)
}

// ListRequests returns a filtered page, clamped to the configured bounds.
func (e *Engine) ListRequests(ctx context.Context, filter Filter) (*Page, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, apperrors.NewValidationError("unknown status filter: " + filter.Status.String())
	}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, apperrors.NewValidationError("unknown kind filter: " + filter.Kind.String())
	}

	if filter.PageSize < 1 {
		filter.PageSize = e.cfg.DefaultPageSize
	}
	if e.cfg.MaxPageSize > 0 && filter.PageSize > e.cfg.MaxPageSize {
		filter.PageSize = e.cfg.MaxPageSize
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	return e.store.List(ctx, filter)
}

// ResolveRequest moves a pending request to approved or rejected, applies
// the kind's side effect, and notifies the requester. The pending guard in
// the store guarantees the side effect fires at most once per request even
// under concurrent resolvers.
func (e *Engine) ResolveRequest(ctx context.Context, callerID string, id uuid.UUID, resolution Resolution, notes *string) (*Request, error) {
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("resolve").Observe(time.Since(start).Seconds())
	}()

	if !resolution.IsValid() {
		return nil, apperrors.NewValidationError("resolution must be approved or rejected")
	}

	principal, err := e.identity.Lookup(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !principal.IsReviewer() {
		return nil, apperrors.NewAuthorizationError("only admins and managers may resolve requests")
	}

	req, err := e.store.TransitionFromPending(ctx, id, resolution.Status(), callerID, notes)
	if err != nil {
		return nil, e.classifyTransitionFailure(ctx, id, resolution.String(), err)
	}

	metrics.RequestsResolved.WithLabelValues(req.Kind.String(), resolution.String()).Inc()
	if e.obs != nil {
		e.obs.RecordResolution(ctx, resolution.String())
		e.obs.RecordResolutionDuration(ctx, time.Since(start), resolution.String())
	}

	e.dispatch(ctx, req, resolution)
	e.index(ctx, req)
	e.invalidateStats(ctx)
	e.notifyRequester(req.RequestedBy, req.ID.String(), resolution.String())

	e.logger.Info("approval request resolved", map[string]interface{}{
		"requestId":  req.ID.String(),
		"kind":       req.Kind.String(),
		"resolution": resolution.String(),
		"reviewedBy": callerID,
	})
	return req, nil
}

// CancelRequest withdraws a pending request. Only the original requester
// or an admin may cancel, and cancellation triggers no side effect and no
// notification.
func (e *Engine) CancelRequest(ctx context.Context, callerID string, id uuid.UUID) (*Request, error) {
	principal, err := e.identity.Lookup(ctx, callerID)
	if err != nil {
		return nil, err
	}

	current, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.RequestedBy != callerID && !principal.IsAdmin() {
		return nil, apperrors.NewAuthorizationError("only the requester or an admin may cancel a request")
	}

	req, err := e.store.TransitionFromPending(ctx, id, StatusCancelled, callerID, nil)
	if err != nil {
		return nil, e.classifyTransitionFailure(ctx, id, StatusCancelled.String(), err)
	}

	metrics.RequestsCancelled.WithLabelValues(req.Kind.String()).Inc()
	e.index(ctx, req)
	e.invalidateStats(ctx)

	e.logger.Info("approval request cancelled", map[string]interface{}{
		"requestId":   req.ID.String(),
		"kind":        req.Kind.String(),
		"cancelledBy": callerID,
	})
	return req, nil
}

// BulkResolve applies one resolution to a batch of requests with partial
// success semantics: requests no longer pending are skipped, never an
// error for the batch. Each resolved request gets its side effect; each
// distinct requester gets one notification.
func (e *Engine) BulkResolve(ctx context.Context, callerID string, ids []uuid.UUID, resolution Resolution, notes *string) (*BulkResult, error) {
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("bulk_resolve").Observe(time.Since(start).Seconds())
	}()

	if !resolution.IsValid() {
		return nil, apperrors.NewValidationError("resolution must be approved or rejected")
	}
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("ids must not be empty")
	}
	if e.cfg.BulkLimit > 0 && len(ids) > e.cfg.BulkLimit {
		return nil, apperrors.NewValidationError("batch exceeds the bulk resolution limit")
	}

	principal, err := e.identity.Lookup(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !principal.IsReviewer() {
		return nil, apperrors.NewAuthorizationError("only admins and managers may resolve requests")
	}

	updated, err := e.store.BulkTransitionFromPending(ctx, ids, resolution.Status(), callerID, notes)
	if err != nil {
		return nil, err
	}

	resolved := make(map[uuid.UUID]bool, len(updated))
	requesters := make(map[string]uuid.UUID)
	for _, req := range updated {
		resolved[req.ID] = true
		if _, seen := requesters[req.RequestedBy]; !seen {
			requesters[req.RequestedBy] = req.ID
		}

		metrics.RequestsResolved.WithLabelValues(req.Kind.String(), resolution.String()).Inc()
		if e.obs != nil {
			e.obs.RecordResolution(ctx, resolution.String())
		}
		e.dispatch(ctx, req, resolution)
		e.index(ctx, req)
	}

	if len(updated) > 0 {
		e.invalidateStats(ctx)
	}

	for requestedBy, requestID := range requesters {
		e.notifyRequester(requestedBy, requestID.String(), resolution.String())
	}

	result := &BulkResult{Resolved: []uuid.UUID{}, Skipped: []uuid.UUID{}}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if resolved[id] {
			result.Resolved = append(result.Resolved, id)
		} else {
			result.Skipped = append(result.Skipped, id)
		}
	}

	e.logger.Info("bulk resolution completed", map[string]interface{}{
		"resolution": resolution.String(),
		"resolved":   len(result.Resolved),
		"skipped":    len(result.Skipped),
		"reviewedBy": callerID,
	})
	return result, nil
}

// GetStats returns the aggregate snapshot, through the cache when one is
// configured.
func (e *Engine) GetStats(ctx context.Context, since *time.Time) (*Stats, error) {
	if e.stats != nil {
		return e.stats.Snapshot(ctx, since)
	}
	return e.store.CountByStatusAndKind(ctx, since)
}

// classifyTransitionFailure turns a pending-guard miss into the error the
// caller can act on: NotFound for an unknown id, InvalidState when the
// request exists but was already resolved or cancelled.
func (e *Engine) classifyTransitionFailure(ctx context.Context, id uuid.UUID, attempted string, err error) error {
	if err != ErrNotPending {
		return err
	}
	current, getErr := e.store.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	return apperrors.NewInvalidStateError(id.String(), current.Status.String(), attempted)
}

// dispatch applies the side effect after the durable status change. A
// failure here leaves the request resolved; it is logged and metered for
// manual reconciliation.
func (e *Engine) dispatch(ctx context.Context, req *Request, resolution Resolution) {
	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Apply(ctx, req, resolution); err != nil {
		dispatchErr := apperrors.NewDispatchFailedError(
			req.ID.String(), req.Kind.String(), resolution.String(), err)
		metrics.DispatchFailures.WithLabelValues(req.Kind.String(), resolution.String()).Inc()
		e.logger.WithError(dispatchErr).Error("side effect failed after status change", map[string]interface{}{
			"requestId":  req.ID.String(),
			"kind":       req.Kind.String(),
			"resolution": resolution.String(),
		})
	}
}

// invalidateStats drops the cached snapshot after a write so dashboards
// observe the change within one cache miss instead of one TTL.
func (e *Engine) invalidateStats(ctx context.Context) {
	if inv, ok := e.stats.(interface{ Invalidate(context.Context) }); ok {
		inv.Invalidate(ctx)
	}
}

func (e *Engine) index(ctx context.Context, req *Request) {
	if e.indexer == nil {
		return
	}
	if err := e.indexer.Index(ctx, req); err != nil {
		e.logger.Warn("search index update failed", map[string]interface{}{
			"requestId": req.ID.String(),
			"error":     err.Error(),
		})
	}
}

// notifyRequester delivers the outcome asynchronously. The notification is
// detached from the request context so an already-answered HTTP request
// does not cancel it.
func (e *Engine) notifyRequester(principalID, requestID, outcome string) {
	if e.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.notifier.Notify(ctx, principalID, requestID, outcome); err != nil {
			e.logger.Warn("requester notification failed", map[string]interface{}{
				"principalId": principalID,
				"requestId":   requestID,
				"error":       err.Error(),
			})
		}
	}()
}
