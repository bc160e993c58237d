// internal/approval/engine_test.go
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-approvals/internal/common/auth"
	"property-approvals/internal/common/config"
	apperrors "property-approvals/internal/common/errors"
	"property-approvals/internal/common/logger"
)

// ---- fakes ----

type fakeStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*Request
}

func newFakeStore() *fakeStore {
	return &fakeStore{requests: map[uuid.UUID]*Request{}}
}

func (f *fakeStore) add(req *Request) *Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	f.requests[req.ID] = req
	return req
}

func (f *fakeStore) Create(ctx context.Context, req *Request) (*Request, error) {
	clone := *req
	return f.add(&clone), nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("approval request", id.String())
	}
	clone := *req
	return &clone, nil
}

func (f *fakeStore) List(ctx context.Context, filter Filter) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := &Page{Items: []*Request{}, Page: filter.Page, PageSize: filter.PageSize}
	for _, req := range f.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		clone := *req
		page.Items = append(page.Items, &clone)
	}
	page.Total = len(page.Items)
	return page, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reviewedBy string, notes *string) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("approval request", id.String())
	}
	req.Status = status
	clone := *req
	return &clone, nil
}

func (f *fakeStore) TransitionFromPending(ctx context.Context, id uuid.UUID, to Status, actor string, notes *string) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Status != StatusPending {
		return nil, ErrNotPending
	}
	now := time.Now()
	req.Status = to
	req.ReviewedBy = &actor
	req.ReviewedAt = &now
	if notes != nil {
		req.Notes = notes
	}
	req.UpdatedAt = now
	clone := *req
	return &clone, nil
}

func (f *fakeStore) BulkTransitionFromPending(ctx context.Context, ids []uuid.UUID, to Status, actor string, notes *string) ([]*Request, error) {
	var updated []*Request
	for _, id := range ids {
		req, err := f.TransitionFromPending(ctx, id, to, actor, notes)
		if err != nil {
			continue
		}
		updated = append(updated, req)
	}
	return updated, nil
}

func (f *fakeStore) CountByStatusAndKind(ctx context.Context, since *time.Time) (*Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &Stats{ByKind: map[Kind]int{}}
	for _, req := range f.requests {
		stats.Total++
		stats.ByKind[req.Kind]++
		switch req.Status {
		case StatusPending:
			stats.Pending++
		case StatusApproved:
			stats.Approved++
		case StatusRejected:
			stats.Rejected++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

type fakeDispatcher struct {
	mu      sync.Mutex
	applied []uuid.UUID
	err     error
}

func (f *fakeDispatcher) Apply(ctx context.Context, req *Request, resolution Resolution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, req.ID)
	return f.err
}

func (f *fakeDispatcher) appliedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID{}, f.applied...)
}

type fakeStatsProvider struct {
	mu            sync.Mutex
	invalidations int
}

func (f *fakeStatsProvider) Snapshot(ctx context.Context, since *time.Time) (*Stats, error) {
	return &Stats{ByKind: map[Kind]int{}}, nil
}

func (f *fakeStatsProvider) Invalidate(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
}

func (f *fakeStatsProvider) invalidated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidations
}

type fakeIdentity struct {
	principals map[string]*auth.Principal
}

func (f *fakeIdentity) Lookup(ctx context.Context, principalID string) (*auth.Principal, error) {
	p, ok := f.principals[principalID]
	if !ok {
		return nil, apperrors.NewNotFoundError("principal", principalID)
	}
	return p, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) Notify(ctx context.Context, principalID, requestID, outcome string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, principalID+":"+outcome)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// ---- harness ----

type engineHarness struct {
	engine     *Engine
	store      *fakeStore
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
}

func newEngineHarness(t *testing.T) *engineHarness {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	notifier := &fakeNotifier{}
	identity := &fakeIdentity{principals: map[string]*auth.Principal{
		"admin-1":    {ID: "admin-1", Role: auth.RoleAdmin},
		"manager-1":  {ID: "manager-1", Role: auth.RoleManager},
		"landlord-1": {ID: "landlord-1", Role: auth.RoleLandlord},
		"tenant-1":   {ID: "tenant-1", Role: auth.RoleTenant},
	}}

	cfg := config.EngineConfig{
		DefaultPageSize: 25,
		MaxPageSize:     200,
		BulkLimit:       100,
	}

	engine := NewEngine(store, dispatcher, identity, notifier, logger.NewTestLogger(t), cfg)
	return &engineHarness{engine: engine, store: store, dispatcher: dispatcher, notifier: notifier}
}

// ---- tests ----

func TestEngineCreateRequest(t *testing.T) {
	h := newEngineHarness(t)

	req, err := h.engine.CreateRequest(context.Background(), CreateInput{
		Kind:        KindManagerAssignment,
		TargetID:    "property-7",
		RequestedBy: "landlord-1",
		Metadata:    json.RawMessage(`{"property_id": "property-7", "manager_id": "manager-1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.Nil(t, req.ReviewedBy)
}

func TestEngineCreateRequestValidation(t *testing.T) {
	h := newEngineHarness(t)

	tests := []struct {
		name  string
		input CreateInput
	}{
		{
			name:  "unknown kind",
			input: CreateInput{Kind: "reboot_server", TargetID: "t", RequestedBy: "u"},
		},
		{
			name: "metadata missing required field",
			input: CreateInput{
				Kind:        KindManagerAssignment,
				TargetID:    "property-7",
				RequestedBy: "landlord-1",
				Metadata:    json.RawMessage(`{"property_id": "property-7"}`),
			},
		},
		{
			name: "metadata wrong type",
			input: CreateInput{
				Kind:        KindDepositRefund,
				TargetID:    "deposit-1",
				RequestedBy: "tenant-1",
				Metadata:    json.RawMessage(`{"amount": "not a number"}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateRequest(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidationFailed))
		})
	}
}

func TestEngineResolveRequestApprove(t *testing.T) {
	h := newEngineHarness(t)
	pending := h.store.add(&Request{
		Kind: KindDepositRefund, TargetID: "deposit-1", RequestedBy: "tenant-1",
		Metadata: json.RawMessage(`{}`),
	})

	resolved, err := h.engine.ResolveRequest(context.Background(), "manager-1", pending.ID, ResolutionApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, resolved.Status)
	require.NotNil(t, resolved.ReviewedBy)
	assert.Equal(t, "manager-1", *resolved.ReviewedBy)
	assert.NotNil(t, resolved.ReviewedAt)

	assert.Equal(t, []uuid.UUID{pending.ID}, h.dispatcher.appliedIDs())

	assert.Eventually(t, func() bool { return h.notifier.count() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestEngineResolveRequestNotReviewer(t *testing.T) {
	h := newEngineHarness(t)
	pending := h.store.add(&Request{
		Kind: KindDepositRefund, TargetID: "deposit-1", RequestedBy: "tenant-1",
	})

	for _, caller := range []string{"tenant-1", "landlord-1"} {
		_, err := h.engine.ResolveRequest(context.Background(), caller, pending.ID, ResolutionApproved, nil)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeAuthorizationFailed))
	}
	assert.Empty(t, h.dispatcher.appliedIDs())
}

func TestEngineResolveRequestAlreadyResolved(t *testing.T) {
	h := newEngineHarness(t)
	reviewer := "admin-1"
	now := time.Now()
	done := h.store.add(&Request{
		Kind: KindDepositRefund, TargetID: "deposit-1", RequestedBy: "tenant-1",
		Status: StatusApproved, ReviewedBy: &reviewer, ReviewedAt: &now,
	})

	_, err := h.engine.ResolveRequest(context.Background(), "manager-1", done.ID, ResolutionRejected, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidState))

	// The side effect must not fire a second time.
	assert.Empty(t, h.dispatcher.appliedIDs())
}

func TestEngineResolveRequestConcurrentSingleDispatch(t *testing.T) {
	h := newEngineHarness(t)
	pending := h.store.add(&Request{
		Kind: KindDepositRefund, TargetID: "deposit-1", RequestedBy: "tenant-1",
		Metadata: json.RawMessage(`{}`),
	})

	const resolvers = 8
	var successes, invalidState int32
	var wg sync.WaitGroup
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.ResolveRequest(context.Background(), "manager-1", pending.ID, ResolutionApproved, nil)
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case apperrors.Is(err, apperrors.ErrCodeInvalidState):
				atomic.AddInt32(&invalidState, 1)
			}
		}()
	}
	wg.Wait()

	// Exactly one resolver wins the pending guard; the rest observe the
	// already-resolved row.
	assert.Equal(t, int32(1), atomic.LoadInt32(&successes))
	assert.Equal(t, int32(resolvers-1), atomic.LoadInt32(&invalidState))
	assert.Equal(t, []uuid.UUID{pending.ID}, h.dispatcher.appliedIDs())

	assert.Eventually(t, func() bool { return h.notifier.count() == 1 },
		time.Second, 10*time.Millisecond)
	// And the count stays at one.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.notifier.count())
}

func TestEngineResolveRequestNotFound(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.engine.ResolveRequest(context.Background(), "admin-1", uuid.New(), ResolutionApproved, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestEngineResolveRequestDispatchFailureKeepsStatus(t *testing.T) {
	h := newEngineHarness(t)
	h.dispatcher.err = errors.New("downstream table missing")
	pending := h.store.add(&Request{
		Kind: KindLeaseTermination, TargetID: "lease-3", RequestedBy: "landlord-1",
	})

	resolved, err := h.engine.ResolveRequest(context.Background(), "admin-1", pending.ID, ResolutionApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, resolved.Status)

	stored, err := h.store.GetByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
}

func TestEngineCancelRequest(t *testing.T) {
	h := newEngineHarness(t)
	pending := h.store.add(&Request{
		Kind: KindTenantRemoval, TargetID: "tenant-9", RequestedBy: "tenant-1",
	})

	cancelled, err := h.engine.CancelRequest(context.Background(), "tenant-1", pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Cancellation triggers no side effect and no notification.
	assert.Empty(t, h.dispatcher.appliedIDs())
	assert.Equal(t, 0, h.notifier.count())
}

func TestEngineCancelRequestAuthorization(t *testing.T) {
	h := newEngineHarness(t)
	pending := h.store.add(&Request{
		Kind: KindTenantRemoval, TargetID: "tenant-9", RequestedBy: "tenant-1",
	})

	_, err := h.engine.CancelRequest(context.Background(), "landlord-1", pending.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeAuthorizationFailed))

	// Admins may cancel on anyone's behalf.
	cancelled, err := h.engine.CancelRequest(context.Background(), "admin-1", pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestEngineCancelRequestAlreadyTerminal(t *testing.T) {
	h := newEngineHarness(t)
	pending := h.store.add(&Request{
		Kind: KindTenantRemoval, TargetID: "tenant-9", RequestedBy: "tenant-1",
	})

	_, err := h.engine.CancelRequest(context.Background(), "tenant-1", pending.ID)
	require.NoError(t, err)

	_, err = h.engine.CancelRequest(context.Background(), "tenant-1", pending.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidState))
}

func TestEngineBulkResolvePartialSuccess(t *testing.T) {
	h := newEngineHarness(t)
	pendingA := h.store.add(&Request{Kind: KindDepositRefund, TargetID: "d1", RequestedBy: "tenant-1"})
	pendingB := h.store.add(&Request{Kind: KindDepositRefund, TargetID: "d2", RequestedBy: "tenant-1"})
	resolvedC := h.store.add(&Request{Kind: KindDepositRefund, TargetID: "d3", RequestedBy: "tenant-1", Status: StatusApproved})
	missing := uuid.New()

	result, err := h.engine.BulkResolve(context.Background(), "manager-1",
		[]uuid.UUID{pendingA.ID, pendingB.ID, resolvedC.ID, missing}, ResolutionRejected, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uuid.UUID{pendingA.ID, pendingB.ID}, result.Resolved)
	assert.ElementsMatch(t, []uuid.UUID{resolvedC.ID, missing}, result.Skipped)
	assert.ElementsMatch(t, []uuid.UUID{pendingA.ID, pendingB.ID}, h.dispatcher.appliedIDs())

	// One requester, so exactly one notification for the whole batch.
	assert.Eventually(t, func() bool { return h.notifier.count() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestEngineBulkResolveLimit(t *testing.T) {
	h := newEngineHarness(t)

	ids := make([]uuid.UUID, 101)
	for i := range ids {
		ids[i] = uuid.New()
	}

	_, err := h.engine.BulkResolve(context.Background(), "admin-1", ids, ResolutionApproved, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidationFailed))
}

func TestEngineBulkResolveEmpty(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.engine.BulkResolve(context.Background(), "admin-1", nil, ResolutionApproved, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidationFailed))
}

func TestEngineBulkResolveNotReviewer(t *testing.T) {
	h := newEngineHarness(t)
	pending := h.store.add(&Request{Kind: KindDepositRefund, TargetID: "d1", RequestedBy: "tenant-1"})

	_, err := h.engine.BulkResolve(context.Background(), "tenant-1",
		[]uuid.UUID{pending.ID}, ResolutionApproved, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeAuthorizationFailed))
}

func TestEngineListRequestsClampsPageSize(t *testing.T) {
	h := newEngineHarness(t)

	page, err := h.engine.ListRequests(context.Background(), Filter{PageSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, 200, page.PageSize)

	page, err = h.engine.ListRequests(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 25, page.PageSize)
}

func TestEngineListRequestsInvalidFilter(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.engine.ListRequests(context.Background(), Filter{Status: "archived"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidationFailed))
}

func TestEngineWritesInvalidateStatsCache(t *testing.T) {
	h := newEngineHarness(t)
	stats := &fakeStatsProvider{}
	WithStatsProvider(stats)(h.engine)

	created, err := h.engine.CreateRequest(context.Background(), CreateInput{
		Kind:        KindDepositRefund,
		TargetID:    "deposit-1",
		RequestedBy: "tenant-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.invalidated())

	_, err = h.engine.ResolveRequest(context.Background(), "manager-1", created.ID, ResolutionApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.invalidated())

	pending := h.store.add(&Request{Kind: KindTenantRemoval, TargetID: "t1", RequestedBy: "tenant-1"})
	_, err = h.engine.CancelRequest(context.Background(), "tenant-1", pending.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.invalidated())

	bulkPending := h.store.add(&Request{Kind: KindTenantRemoval, TargetID: "t2", RequestedBy: "tenant-1"})
	_, err = h.engine.BulkResolve(context.Background(), "admin-1",
		[]uuid.UUID{bulkPending.ID}, ResolutionRejected, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.invalidated())

	// A batch where nothing was pending leaves the cache alone.
	_, err = h.engine.BulkResolve(context.Background(), "admin-1",
		[]uuid.UUID{bulkPending.ID}, ResolutionRejected, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.invalidated())
}

func TestEngineGetStats(t *testing.T) {
	h := newEngineHarness(t)
	h.store.add(&Request{Kind: KindDepositRefund, TargetID: "d1", RequestedBy: "tenant-1"})
	h.store.add(&Request{Kind: KindDepositRefund, TargetID: "d2", RequestedBy: "tenant-1", Status: StatusApproved})
	h.store.add(&Request{Kind: KindTenantAddition, TargetID: "t1", RequestedBy: "landlord-1", Status: StatusCancelled})

	stats, err := h.engine.GetStats(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, stats.Total, stats.Pending+stats.Approved+stats.Rejected+stats.Cancelled)
	assert.Equal(t, 2, stats.ByKind[KindDepositRefund])
}
