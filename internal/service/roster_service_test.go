package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/roster"
)

type fakeRosterActivities struct {
	mu         sync.Mutex
	activities map[string]models.Activity
}

func (f *fakeRosterActivities) FindByID(_ context.Context, id string) (*models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (f *fakeRosterActivities) List(_ context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Activity
	for _, a := range f.activities {
		if filter.PendingRoster && (!a.HasRoster() || a.Status == models.ActivityApproved) {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (f *fakeRosterActivities) MarkApproved(_ context.Context, id, by string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok || a.Status == models.ActivityApproved {
		return sql.ErrNoRows
	}
	a.Status = models.ActivityApproved
	a.ApprovedBy = &by
	f.activities[id] = a
	return nil
}

func (f *fakeRosterActivities) Disapprove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok || a.Status == models.ActivityApproved {
		return sql.ErrNoRows
	}
	a.Status = models.ActivityRejected
	a.RosterReference = nil
	f.activities[id] = a
	return nil
}

type fakeRosterStudents struct {
	known map[string]bool
}

func (f *fakeRosterStudents) FindByUSNs(_ context.Context, usns []string) ([]models.Student, error) {
	var out []models.Student
	for _, u := range usns {
		if f.known[u] {
			out = append(out, models.Student{USN: u})
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]models.LedgerEntry
	totals  map[string]int64
	failFor map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[string]models.LedgerEntry{}, totals: map[string]int64{}, failFor: map[string]bool{}}
}

func (f *fakeLedger) AppendBatch(_ context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var inserted []models.LedgerEntry
	for _, e := range entries {
		key := e.USN + "|" + e.ActivityID
		if _, ok := f.entries[key]; ok {
			continue
		}
		f.entries[key] = e
		inserted = append(inserted, e)
	}
	return inserted, nil
}

func (f *fakeLedger) IncrementTotal(_ context.Context, usn string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[usn] {
		return fmt.Errorf("increment %s: %w", usn, sql.ErrConnDone)
	}
	f.totals[usn] += int64(delta)
	return nil
}

func (f *fakeLedger) sum(usn string) int64 {
	var total int64
	for _, e := range f.entries {
		if e.USN == usn {
			total += int64(e.Points)
		}
	}
	return total
}

type fakeParser struct {
	roster *roster.Roster
	err    error
	links  []string
}

func (f *fakeParser) Parse(_ context.Context, link string) (*roster.Roster, error) {
	f.links = append(f.links, link)
	if f.err != nil {
		return nil, f.err
	}
	return f.roster, nil
}

func intPtr(n int) *int { return &n }

type rosterFixture struct {
	svc        *RosterService
	activities *fakeRosterActivities
	ledger     *fakeLedger
	parser     *fakeParser
	reporter   *recordingReporter
	audit      *memoryAudit
}

func newRosterFixture(records ...roster.Record) *rosterFixture {
	ref := "https://docs.google.com/spreadsheets/d/abc/export?format=xlsx"
	f := &rosterFixture{
		activities: &fakeRosterActivities{activities: map[string]models.Activity{
			"act-1":  {ID: "act-1", Points: 10, Status: models.ActivityPending, RosterReference: &ref},
			"act-ok": {ID: "act-ok", Points: 10, Status: models.ActivityApproved, RosterReference: &ref},
			"act-no": {ID: "act-no", Points: 10, Status: models.ActivityPending},
		}},
		ledger:   newFakeLedger(),
		parser:   &fakeParser{roster: &roster.Roster{Format: roster.FormatCSV, Records: records}},
		reporter: &recordingReporter{},
		audit:    &memoryAudit{},
	}
	f.svc = NewRosterService(RosterDeps{
		Activities: f.activities,
		Students:   &fakeRosterStudents{known: map[string]bool{"CS001": true, "CS002": true, "CS003": true}},
		Ledger:     f.ledger,
		Parser:     f.parser,
		Audit:      f.audit,
		Cache:      NewCacheService(newMemoryCache(), nil, time.Minute, zap.NewNop(), true),
		Reporter:   f.reporter,
	}, RosterConfig{AwardWorkers: 2}, zap.NewNop())
	return f
}

func TestApproveActivityAwardsDefaultPoints(t *testing.T) {
	f := newRosterFixture(roster.Record{USN: "CS001"}, roster.Record{USN: "CS002"})

	result, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.RosterAward{{USN: "CS001", Points: 10}, {USN: "CS002", Points: 10}}, result.Awarded)
	assert.Equal(t, int64(20), result.PointsAwarded)
	assert.Equal(t, int64(10), f.ledger.totals["CS001"])
	assert.Equal(t, int64(10), f.ledger.totals["CS002"])
	assert.Len(t, f.ledger.entries, 2)
	assert.Equal(t, models.LedgerSourceRoster, f.ledger.entries["CS001|act-1"].Source)

	activity := f.activities.activities["act-1"]
	assert.Equal(t, models.ActivityApproved, activity.Status)
	assert.Equal(t, superadmin.PrincipalID, *activity.ApprovedBy)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionRosterApprove, f.audit.logs[0].Action)
}

func TestApproveActivityRowPointsOverrideDefault(t *testing.T) {
	f := newRosterFixture(roster.Record{USN: "CS001", Points: intPtr(25)})

	result, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	require.NoError(t, err)
	assert.Equal(t, []models.RosterAward{{USN: "CS001", Points: 25}}, result.Awarded)
	assert.Equal(t, 25, f.ledger.entries["CS001|act-1"].Points)
}

func TestApproveActivityReportsUnmatchedAndAlreadyAwarded(t *testing.T) {
	f := newRosterFixture(roster.Record{USN: "CS001"}, roster.Record{USN: "ZZ999"}, roster.Record{USN: "CS003"})
	f.ledger.entries["CS003|act-1"] = models.LedgerEntry{USN: "CS003", ActivityID: "act-1", Points: 10}
	f.ledger.totals["CS003"] = 10

	result, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ZZ999"}, result.Unmatched)
	assert.Equal(t, []string{"CS003"}, result.AlreadyAwarded)
	assert.Equal(t, []models.RosterAward{{USN: "CS001", Points: 10}}, result.Awarded)
	assert.Equal(t, int64(10), f.ledger.totals["CS003"], "no double increment")
}

func TestApproveActivityTotalsMatchLedger(t *testing.T) {
	f := newRosterFixture(roster.Record{USN: "CS001"}, roster.Record{USN: "CS002", Points: intPtr(7)}, roster.Record{USN: "CS003"})
	f.ledger.entries["CS001|act-0"] = models.LedgerEntry{USN: "CS001", ActivityID: "act-0", Points: 4}
	f.ledger.totals["CS001"] = 4

	_, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	require.NoError(t, err)
	for _, usn := range []string{"CS001", "CS002", "CS003"} {
		assert.Equal(t, f.ledger.sum(usn), f.ledger.totals[usn], usn)
	}
}

func TestApproveActivityFetchFailureLeavesStatus(t *testing.T) {
	f := newRosterFixture()
	f.parser.err = fmt.Errorf("fetch roster: %w", roster.ErrUnreadable)

	_, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	require.True(t, appErrors.Is(err, appErrors.ErrRosterParse))
	assert.Equal(t, models.ActivityPending, f.activities.activities["act-1"].Status)
	assert.Empty(t, f.ledger.entries)
}

func TestApproveActivityEmptyRoster(t *testing.T) {
	f := newRosterFixture()
	f.parser.err = roster.ErrEmpty

	_, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrEmptyRoster))
}

func TestApproveActivityNoMatch(t *testing.T) {
	f := newRosterFixture(roster.Record{USN: "XX001"}, roster.Record{USN: "XX002"})

	_, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNoMatch))
	assert.Equal(t, models.ActivityPending, f.activities.activities["act-1"].Status)
}

func TestApproveActivityPartialAward(t *testing.T) {
	f := newRosterFixture(roster.Record{USN: "CS001"}, roster.Record{USN: "CS002"})
	f.ledger.failFor["CS002"] = true

	result, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	require.True(t, appErrors.Is(err, appErrors.ErrPartialAward))
	require.NotNil(t, result)
	assert.Equal(t, []string{"CS002"}, result.FailedTotals)
	assert.Equal(t, int64(10), f.ledger.totals["CS001"])
	assert.Equal(t, models.ActivityApproved, f.activities.activities["act-1"].Status)
	assert.Len(t, f.reporter.errs, 1)
}

func TestApproveActivityPreconditions(t *testing.T) {
	f := newRosterFixture(roster.Record{USN: "CS001"})

	_, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-ok")
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = f.svc.ApproveActivity(context.Background(), superadmin, "act-no")
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = f.svc.ApproveActivity(context.Background(), superadmin, "ghost")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.ApproveActivity(context.Background(), adminA, "act-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, f.parser.links)
}

func TestApproveActivityTwiceIsPrecondition(t *testing.T) {
	f := newRosterFixture(roster.Record{USN: "CS001"})

	_, err := f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	require.NoError(t, err)
	_, err = f.svc.ApproveActivity(context.Background(), superadmin, "act-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Equal(t, int64(10), f.ledger.totals["CS001"])
}

func TestDisapproveActivity(t *testing.T) {
	f := newRosterFixture()

	require.NoError(t, f.svc.DisapproveActivity(context.Background(), superadmin, "act-1"))
	activity := f.activities.activities["act-1"]
	assert.Equal(t, models.ActivityRejected, activity.Status)
	assert.False(t, activity.HasRoster())

	err := f.svc.DisapproveActivity(context.Background(), superadmin, "act-ok")
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	err = f.svc.DisapproveActivity(context.Background(), superadmin, "ghost")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestListPendingRosters(t *testing.T) {
	f := newRosterFixture()

	activities, page, err := f.svc.ListPendingRosters(context.Background(), superadmin, 1, 20)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "act-1", activities[0].ID)
	assert.Equal(t, 1, page.TotalCount)

	_, _, err = f.svc.ListPendingRosters(context.Background(), adminA, 1, 20)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestPreviewConvertsSheetsLinkAndMatches(t *testing.T) {
	f := newRosterFixture(roster.Record{USN: "CS001"}, roster.Record{USN: "ZZ001"})

	preview, err := f.svc.Preview(context.Background(), superadmin, "https://docs.google.com/spreadsheets/d/abc123/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, []string{"CS001"}, preview.Matched)
	assert.Equal(t, []string{"ZZ001"}, preview.Unmatched)
	require.Len(t, f.parser.links, 1)
	assert.Contains(t, f.parser.links[0], "/export?format=xlsx")
}

func TestParseRosterMapsErrors(t *testing.T) {
	f := newRosterFixture()
	f.parser.err = errors.New("boom")
	_, err := f.svc.ParseRoster(context.Background(), "https://example.edu/r.csv")
	assert.True(t, appErrors.Is(err, appErrors.ErrRosterParse))
	assert.Contains(t, err.Error(), "boom")
}
