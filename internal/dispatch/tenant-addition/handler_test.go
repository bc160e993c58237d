// internal/dispatch/tenant-addition/handler_test.go
package tenantaddition

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

func newRequest(metadata string) *approval.Request {
	return &approval.Request{
		ID:       uuid.New(),
		Kind:     approval.KindTenantAddition,
		TargetID: "tenant-6",
		Metadata: json.RawMessage(metadata),
	}
}

func TestApplyApprovedUpserts(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(db, logger.NewTestLogger(t))

	mock.ExpectExec(`INSERT INTO tenants`).
		WithArgs("tenant-6", "property-7", "unit-2b").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = handler.Apply(context.Background(),
		newRequest(`{"property_id": "property-7", "unit_id": "unit-2b"}`),
		approval.ResolutionApproved)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRejectedIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(db, logger.NewTestLogger(t))

	err = handler.Apply(context.Background(),
		newRequest(`{"property_id": "property-7"}`), approval.ResolutionRejected)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMissingProperty(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(db, logger.NewTestLogger(t))

	err = handler.Apply(context.Background(), newRequest(`{}`), approval.ResolutionApproved)
	assert.Error(t, err)
}
