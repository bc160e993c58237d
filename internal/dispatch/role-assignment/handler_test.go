// internal/dispatch/role-assignment/handler_test.go
package roleassignment

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
		Kind:     approval.KindRoleAssignment,
		TargetID: "user-2",
		Metadata: json.RawMessage(metadata),
	}
}

func TestApplyApprovedGrantsRole(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(db, logger.NewTestLogger(t))

	mock.ExpectExec(`UPDATE profiles SET role`).
		WithArgs("manager", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = handler.Apply(context.Background(),
		newRequest(`{"requested_role": "manager"}`), approval.ResolutionApproved)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRejectedIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(db, logger.NewTestLogger(t))

	err = handler.Apply(context.Background(),
		newRequest(`{"requested_role": "manager"}`), approval.ResolutionRejected)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMissingRole(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(db, logger.NewTestLogger(t))

	err = handler.Apply(context.Background(), newRequest(`{}`), approval.ResolutionApproved)
	assert.Error(t, err)
}
