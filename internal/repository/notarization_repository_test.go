package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-points-api/internal/models"
)

func TestNotarizationFindAndSave(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotarizationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM notarizations WHERE complaint_id = $1")).
		WithArgs("c-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("(?s)" + regexp.QuoteMeta("INSERT INTO notarizations") + ".*" + regexp.QuoteMeta("ON CONFLICT (complaint_id) DO UPDATE SET") + ".*" + regexp.QuoteMeta("WHERE notarizations.confirmed = false")).
		WithArgs("c-1", "0xabc", 15, false, "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM notarizations WHERE complaint_id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"complaint_id", "transaction_hash", "points", "confirmed", "submitted_by", "created_at"}).
			AddRow("c-1", "0xabc", 15, false, "admin-1", time.Now()))

	ctx := context.Background()
	_, err := repo.FindByComplaint(ctx, "c-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	points := 15
	require.NoError(t, repo.Save(ctx, &models.Notarization{ComplaintID: "c-1", TransactionHash: "0xabc", Points: &points, SubmittedBy: "admin-1"}))

	n, err := repo.FindByComplaint(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", n.TransactionHash)
	require.NotNil(t, n.Points)
	assert.Equal(t, 15, *n.Points)
	assert.False(t, n.Confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
