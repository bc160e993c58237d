// internal/approval/store_test.go
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "property-approvals/internal/common/errors"
)

var storeColumns = []string{
	"id", "kind", "target_id", "requested_by", "status",
	"reviewed_by", "reviewed_at", "notes", "metadata", "created_at", "updated_at",
}

func TestSQLStoreCreate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	id := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows(storeColumns).
		AddRow(id, "deposit_refund", "target-1", "user-1", "pending",
			nil, nil, nil, []byte(`{}`), now, now)

	mock.ExpectQuery(`INSERT INTO approval_requests`).
		WithArgs(sqlmock.AnyArg(), "deposit_refund", "target-1", "user-1", nil, []byte(`{"amount":150}`)).
		WillReturnRows(rows)

	created, err := store.Create(context.Background(), &Request{
		Kind:        KindDepositRefund,
		TargetID:    "target-1",
		RequestedBy: "user-1",
		Metadata:    json.RawMessage(`{"amount":150}`),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, KindDepositRefund, created.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreateValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)

	tests := []struct {
		name string
		req  *Request
	}{
		{"unknown kind", &Request{Kind: "reboot_server", TargetID: "t", RequestedBy: "u"}},
		{"missing target", &Request{Kind: KindDepositRefund, TargetID: "  ", RequestedBy: "u"}},
		{"missing requester", &Request{Kind: KindDepositRefund, TargetID: "t", RequestedBy: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidationFailed))
		})
	}
}

func TestSQLStoreGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM approval_requests WHERE id`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(storeColumns))

	_, err = store.GetByID(context.Background(), id)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreList(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	now := time.Now()

	cols := append(append([]string{}, storeColumns...), "total")
	rows := sqlmock.NewRows(cols).
		AddRow(uuid.New(), "deposit_refund", "t1", "u1", "pending", nil, nil, nil, []byte(`{}`), now, now, 42).
		AddRow(uuid.New(), "deposit_refund", "t2", "u2", "pending", nil, nil, nil, []byte(`{}`), now, now, 42)

	mock.ExpectQuery(`SELECT .+ COUNT\(\*\) OVER\(\) AS total`).
		WithArgs("pending", "deposit_refund", 25, 0).
		WillReturnRows(rows)

	page, err := store.List(context.Background(), Filter{
		Status:   StatusPending,
		Kind:     KindDepositRefund,
		Page:     1,
		PageSize: 25,
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 42, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListSearchFilter(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)

	cols := append(append([]string{}, storeColumns...), "total")
	mock.ExpectQuery(`ILIKE`).
		WithArgs("%unit 4b%", 25, 0).
		WillReturnRows(sqlmock.NewRows(cols))

	page, err := store.List(context.Background(), Filter{Search: "unit 4b"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreTransitionFromPending(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	id := uuid.New()
	now := time.Now()
	reviewer := "reviewer-1"

	rows := sqlmock.NewRows(storeColumns).
		AddRow(id, "lease_termination", "lease-9", "user-1", "approved",
			&reviewer, &now, nil, []byte(`{}`), now, now)

	mock.ExpectQuery(`UPDATE approval_requests .+ WHERE id = \$1 AND status = 'pending'`).
		WithArgs(id, "approved", reviewer, nil).
		WillReturnRows(rows)

	req, err := store.TransitionFromPending(context.Background(), id, StatusApproved, reviewer, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
	require.NotNil(t, req.ReviewedBy)
	assert.Equal(t, reviewer, *req.ReviewedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreTransitionFromPendingAlreadyResolved(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	id := uuid.New()

	mock.ExpectQuery(`UPDATE approval_requests`).
		WithArgs(id, "approved", "reviewer-1", nil).
		WillReturnRows(sqlmock.NewRows(storeColumns))

	_, err = store.TransitionFromPending(context.Background(), id, StatusApproved, "reviewer-1", nil)
	assert.True(t, errors.Is(err, ErrNotPending))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreBulkTransitionFromPending(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	idA := uuid.New()
	idB := uuid.New()
	now := time.Now()
	reviewer := "reviewer-1"

	// idB is no longer pending so only idA comes back.
	rows := sqlmock.NewRows(storeColumns).
		AddRow(idA, "tenant_removal", "tenant-3", "user-1", "rejected",
			&reviewer, &now, nil, []byte(`{}`), now, now)

	mock.ExpectQuery(`UPDATE approval_requests .+ WHERE id = ANY\(\$1\) AND status = 'pending'`).
		WithArgs(sqlmock.AnyArg(), "rejected", reviewer, nil).
		WillReturnRows(rows)

	updated, err := store.BulkTransitionFromPending(
		context.Background(), []uuid.UUID{idA, idB}, StatusRejected, reviewer, nil)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, idA, updated[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreBulkTransitionFromPendingEmpty(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	updated, err := store.BulkTransitionFromPending(context.Background(), nil, StatusApproved, "r", nil)
	require.NoError(t, err)
	assert.Empty(t, updated)
}

func TestSQLStoreCountByStatusAndKind(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)

	rows := sqlmock.NewRows([]string{"kind", "status", "count", "today", "this_week"}).
		AddRow("deposit_refund", "pending", 3, 1, 2).
		AddRow("deposit_refund", "approved", 5, 0, 0).
		AddRow("tenant_addition", "pending", 2, 0, 1).
		AddRow("tenant_addition", "cancelled", 1, 0, 0).
		AddRow("role_assignment", "rejected", 4, 0, 0)

	mock.ExpectQuery(`GROUP BY kind, status`).WillReturnRows(rows)

	stats, err := store.CountByStatusAndKind(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Pending)
	assert.Equal(t, 5, stats.Approved)
	assert.Equal(t, 4, stats.Rejected)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 15, stats.Total)
	assert.Equal(t, stats.Total, stats.Pending+stats.Approved+stats.Rejected+stats.Cancelled)
	assert.Equal(t, 8, stats.ByKind[KindDepositRefund])
	assert.Equal(t, 3, stats.ByKind[KindTenantAddition])
	assert.Equal(t, 1, stats.TodayPending)
	assert.Equal(t, 3, stats.ThisWeekPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCountByStatusAndKindSince(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	since := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(`WHERE created_at >= \$1`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "status", "count", "today", "this_week"}))

	stats, err := store.CountByStatusAndKind(context.Background(), &since)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
