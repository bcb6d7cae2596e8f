package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/service"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/roster"
)

type rosterServiceMock struct {
	result *models.RosterApprovalResult
	err    error
	link   string
}

func (m *rosterServiceMock) Preview(_ context.Context, _ models.Principal, link string) (*service.RosterPreview, error) {
	m.link = link
	return &service.RosterPreview{Roster: &roster.Roster{Format: roster.FormatCSV}, Matched: []string{"CS001"}, Unmatched: []string{}}, nil
}

func (m *rosterServiceMock) ApproveActivity(context.Context, models.Principal, string) (*models.RosterApprovalResult, error) {
	return m.result, m.err
}

func (m *rosterServiceMock) DisapproveActivity(context.Context, models.Principal, string) error {
	return m.err
}

func (m *rosterServiceMock) ListPendingRosters(_ context.Context, _ models.Principal, page, size int) ([]models.Activity, *models.Pagination, error) {
	return []models.Activity{{ID: "act-1"}}, &models.Pagination{Page: page, PageSize: size, TotalCount: 1}, nil
}

func TestRosterHandlerApprove(t *testing.T) {
	mock := &rosterServiceMock{result: &models.RosterApprovalResult{ActivityID: "act-1", Awarded: []models.RosterAward{{USN: "CS001", Points: 10}}, PointsAwarded: 10}}
	router := routerAs(&superadminPrincipal, http.MethodPost, "/activities/:id/approve", NewRosterHandler(mock).Approve)

	rec := do(router, http.MethodPost, "/activities/act-1/approve", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.RosterApprovalResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &result))
	assert.Equal(t, int64(10), result.PointsAwarded)
}

func TestRosterHandlerApprovePartial(t *testing.T) {
	mock := &rosterServiceMock{
		result: &models.RosterApprovalResult{ActivityID: "act-1", FailedTotals: []string{"CS002"}},
		err:    appErrors.Clone(appErrors.ErrPartialAward, "1 of 2 totals could not be updated"),
	}
	router := routerAs(&superadminPrincipal, http.MethodPost, "/activities/:id/approve", NewRosterHandler(mock).Approve)

	rec := do(router, http.MethodPost, "/activities/act-1/approve", nil, "")
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "PARTIAL_AWARD", env.Error.Code)
	assert.Contains(t, string(env.Data), "CS002")
}

func TestRosterHandlerApproveFailure(t *testing.T) {
	mock := &rosterServiceMock{err: appErrors.Clone(appErrors.ErrNoMatch, "none of the 2 roster usns match a registered student")}
	router := routerAs(&superadminPrincipal, http.MethodPost, "/activities/:id/approve", NewRosterHandler(mock).Approve)

	rec := do(router, http.MethodPost, "/activities/act-1/approve", nil, "")
	assert.Equal(t, appErrors.ErrNoMatch.Status, rec.Code)
	assert.Nil(t, decode(t, rec).Data)
}

func TestRosterHandlerDisapproveAndPending(t *testing.T) {
	h := NewRosterHandler(&rosterServiceMock{})

	disapprove := routerAs(&superadminPrincipal, http.MethodPost, "/activities/:id/disapprove", h.Disapprove)
	assert.Equal(t, http.StatusNoContent, do(disapprove, http.MethodPost, "/activities/act-1/disapprove", nil, "").Code)

	pending := routerAs(&superadminPrincipal, http.MethodGet, "/activities/pending-rosters", h.Pending)
	rec := do(pending, http.MethodGet, "/activities/pending-rosters", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode(t, rec).Pagination.TotalCount)
}

func TestRosterHandlerPreview(t *testing.T) {
	mock := &rosterServiceMock{}
	router := routerAs(&superadminPrincipal, http.MethodPost, "/rosters/preview", NewRosterHandler(mock).Preview)

	rec := do(router, http.MethodPost, "/rosters/preview", []byte(`{"roster_link":"https://example.edu/r.csv"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.edu/r.csv", mock.link)

	rec = do(router, http.MethodPost, "/rosters/preview", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
