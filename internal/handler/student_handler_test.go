package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-points-api/internal/models"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
)

type pointsServiceMock struct {
	filter models.StudentFilter
	limit  int
	hit    bool
}

func (m *pointsServiceMock) List(_ context.Context, _ models.Principal, filter models.StudentFilter) ([]models.StudentPoints, *models.Pagination, error) {
	m.filter = filter
	return []models.StudentPoints{{USN: "CS001", TotalPoints: 35}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *pointsServiceMock) Leaderboard(_ context.Context, _ models.Principal, limit int) ([]models.StudentPoints, bool, error) {
	m.limit = limit
	return []models.StudentPoints{{USN: "CS001", TotalPoints: 35}}, m.hit, nil
}

func (m *pointsServiceMock) StudentActivities(_ context.Context, p models.Principal, usn string) (*models.StudentPointsDetail, error) {
	if p.Is(models.RoleStudent) && usn != "CS001" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only view their own points")
	}
	return &models.StudentPointsDetail{StudentPoints: models.StudentPoints{USN: usn, TotalPoints: 35}, Entries: []models.StudentActivity{}}, nil
}

func (m *pointsServiceMock) MyPoints(context.Context, models.Principal) (*models.StudentPointsDetail, error) {
	return &models.StudentPointsDetail{StudentPoints: models.StudentPoints{USN: "CS001"}}, nil
}

func (m *pointsServiceMock) Reconcile(_ context.Context, _ models.Principal, usn string) (*models.ReconcileResult, error) {
	return &models.ReconcileResult{USN: usn, LedgerTotal: 35, CachedTotal: 30, Drift: 5, Corrected: true}, nil
}

type studentLookupMock struct{}

func (studentLookupMock) StudentFor(_ context.Context, p models.Principal) (*models.Student, error) {
	return &models.Student{USN: "CS001", Email: p.Email}, nil
}

func TestStudentHandlerList(t *testing.T) {
	mock := &pointsServiceMock{}
	router := routerAs(&counsellorPrincipal, http.MethodGet, "/students", NewStudentHandler(mock).List)

	rec := do(router, http.MethodGet, "/students?search=%20asha%20&page=3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StudentFilter{Search: "asha", Page: 3, PageSize: 20}, mock.filter)
}

func TestStudentHandlerLeaderboardReportsCacheHit(t *testing.T) {
	mock := &pointsServiceMock{hit: true}
	router := routerAs(&counsellorPrincipal, http.MethodGet, "/students/leaderboard", NewStudentHandler(mock).Leaderboard)

	rec := do(router, http.MethodGet, "/students/leaderboard?limit=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, mock.limit)
	assert.Equal(t, true, decode(t, rec).Meta["cache_hit"])
}

func TestStudentHandlerActivities(t *testing.T) {
	router := routerAs(&studentPrincipal, http.MethodGet, "/students/:usn/activities", NewStudentHandler(&pointsServiceMock{}).Activities)

	rec := do(router, http.MethodGet, "/students/CS001/activities", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail models.StudentPointsDetail
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &detail))
	assert.Equal(t, int64(35), detail.TotalPoints)

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/students/CS002/activities", nil, "").Code)
}

func TestStudentHandlerReconcileAndMyPoints(t *testing.T) {
	h := NewStudentHandler(&pointsServiceMock{})

	reconcile := routerAs(&superadminPrincipal, http.MethodPost, "/students/:usn/reconcile", h.Reconcile)
	rec := do(reconcile, http.MethodPost, "/students/CS001/reconcile", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"drift":5`)

	mine := routerAs(&studentPrincipal, http.MethodGet, "/students/me/points", h.MyPoints)
	assert.Equal(t, http.StatusOK, do(mine, http.MethodGet, "/students/me/points", nil, "").Code)
}

func TestIdentityHandlerMe(t *testing.T) {
	h := NewIdentityHandler(studentLookupMock{})

	rec := do(routerAs(&studentPrincipal, http.MethodGet, "/me", h.Me), http.MethodGet, "/me", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &me))
	assert.Equal(t, models.RoleStudent, me.Role)
	require.NotNil(t, me.Student)
	assert.Equal(t, "CS001", me.Student.USN)

	rec = do(routerAs(&adminPrincipal, http.MethodGet, "/me", h.Me), http.MethodGet, "/me", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"student"`)
}
