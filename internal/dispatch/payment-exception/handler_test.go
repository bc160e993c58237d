// internal/dispatch/payment-exception/handler_test.go
package paymentexception

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

func TestApplyWritesVerdict(t *testing.T) {
	tests := []struct {
		resolution approval.Resolution
		status     string
	}{
		{approval.ResolutionApproved, "approved"},
		{approval.ResolutionRejected, "rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
			require.NoError(t, err)
			defer db.Close()

			handler := NewHandler(db, logger.NewTestLogger(t))

			mock.ExpectExec(`UPDATE payment_exceptions SET status`).
				WithArgs(tt.status, "exception-1").
				WillReturnResult(sqlmock.NewResult(0, 1))

			err = handler.Apply(context.Background(), &approval.Request{
				ID:       uuid.New(),
				Kind:     approval.KindPaymentException,
				TargetID: "exception-1",
			}, tt.resolution)
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApplyExceptionMissing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(db, logger.NewTestLogger(t))

	mock.ExpectExec(`UPDATE payment_exceptions SET status`).
		WithArgs("approved", "exception-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = handler.Apply(context.Background(), &approval.Request{
		ID:       uuid.New(),
		Kind:     approval.KindPaymentException,
		TargetID: "exception-1",
	}, approval.ResolutionApproved)
	assert.Error(t, err)
}
