package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	saves [][]RequestRecord
	err   error
}

func (w *fakeWriter) Save(_ context.Context, records []RequestRecord) error {
	w.saves = append(w.saves, records)
	return w.err
}

func testCatalog() *Catalog {
	return &Catalog{
		Employees: []Employee{
			{EmployeeNumber: "1001", Name: "A. Khan", Designation: "Technician", Cluster: "North"},
			{EmployeeNumber: "1002.0", Name: "B. Ali", Designation: "Lineman", Cluster: "South"},
			{EmployeeNumber: "1001", Name: "Duplicate", Designation: "Clerk", Cluster: "East"},
			{EmployeeNumber: "2001", Name: "C. Shah", Designation: "Supervisor", Cluster: "West"},
		},
		Tools: []ToolEligibility{
			{Designation: "Technician", ToolName: "Multimeter"},
			{Designation: "Lineman", ToolName: "Safety Belt"},
			{Designation: "Technician", ToolName: "Ladder"},
		},
	}
}

var fixedNow = time.Date(2026, 3, 14, 7, 30, 0, 0, time.UTC)

func newComposer(w LogWriter) *Composer {
	return NewComposer(testCatalog(), w, LocalZone(5), func() time.Time { return fixedNow })
}

func TestNormalizeEmployeeNumber(t *testing.T) {
	tests := map[string]string{
		" 1001 ":  "1001",
		"1001.0":  "1001",
		"1001.00": "1001",
		"1001.5":  "1001.5",
		"A-12.0":  "A-12.0",
		"":        "",
		".0":      ".0",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeEmployeeNumber(in), "input %q", in)
	}
}

func TestEligibleToolsKeepsTableOrder(t *testing.T) {
	c := testCatalog()
	assert.Equal(t, []string{"Multimeter", "Ladder"}, c.EligibleTools("Technician"))

	none := c.EligibleTools("Supervisor")
	require.NotNil(t, none)
	assert.Empty(t, none)
}

func TestEligibleToolsDropsRepeatedRows(t *testing.T) {
	c := testCatalog()
	c.Tools = append(c.Tools,
		ToolEligibility{Designation: "Technician", ToolName: "Multimeter"},
		ToolEligibility{Designation: "Technician", ToolName: "Crimper"},
	)
	eligible := c.EligibleTools("Technician")
	assert.Equal(t, []string{"Multimeter", "Ladder", "Crimper"}, eligible)

	s := NewSession("s1", nil, fixedNow)
	s.SetWidget("Multimeter", true, 2)
	assert.Equal(t, []Selection{{ToolName: "Multimeter", Quantity: 2}}, s.Selections(eligible))
}

func TestResolveFindsFirstMatch(t *testing.T) {
	s := NewSession("s1", nil, fixedNow)
	emp, err := NewResolver(testCatalog()).Resolve(s, "1001")
	require.NoError(t, err)
	assert.Equal(t, "A. Khan", emp.Name)
	require.NotNil(t, s.Employee)
	assert.Equal(t, PhaseResolved, s.Phase())
}

func TestResolveToleratesNumericStorage(t *testing.T) {
	s := NewSession("s1", nil, fixedNow)
	emp, err := NewResolver(testCatalog()).Resolve(s, "1002")
	require.NoError(t, err)
	assert.Equal(t, "B. Ali", emp.Name)
}

func TestResolveUnknownClearsPriorEmployee(t *testing.T) {
	r := NewResolver(testCatalog())
	s := NewSession("s1", nil, fixedNow)
	_, err := r.Resolve(s, "1001")
	require.NoError(t, err)
	s.SetWidget("Multimeter", true, 2)

	for _, number := range []string{"9999", "10011", "abc"} {
		_, err = r.Resolve(s, "1001")
		require.NoError(t, err)

		_, err = r.Resolve(s, number)
		assert.ErrorIs(t, err, ErrEmployeeNotFound)
		assert.Nil(t, s.Employee)
		assert.Equal(t, PhaseIdle, s.Phase())
		assert.Empty(t, s.Checked)
	}
}

func TestResolveEmptyInputStaysIdle(t *testing.T) {
	r := NewResolver(testCatalog())
	s := NewSession("s1", nil, fixedNow)

	_, err := r.Resolve(s, "")
	assert.ErrorIs(t, err, ErrNoEmployeeNumber)
	assert.Equal(t, PhaseIdle, s.Phase())

	_, err = r.Resolve(s, "1001")
	require.NoError(t, err)
	_, err = r.Resolve(s, "   ")
	assert.ErrorIs(t, err, ErrNoEmployeeNumber)
	assert.Nil(t, s.Employee)
}

func TestResolveDifferentEmployeeClearsSelections(t *testing.T) {
	r := NewResolver(testCatalog())
	s := NewSession("s1", nil, fixedNow)
	_, err := r.Resolve(s, "1001")
	require.NoError(t, err)
	s.SetWidget("Ladder", true, 1)

	_, err = r.Resolve(s, "1001")
	require.NoError(t, err)
	assert.True(t, s.Checked["Ladder"], "same employee keeps selections")

	_, err = r.Resolve(s, "1002")
	require.NoError(t, err)
	assert.Empty(t, s.Checked)
}

func TestSelectionsFollowEligibleOrder(t *testing.T) {
	s := NewSession("s1", nil, fixedNow)
	s.SetWidget("Ladder", true, 4)
	s.SetWidget("Multimeter", true, 2)
	s.SetWidget("Crane", true, 1)
	s.SetWidget("Multimeter", false, 0)
	s.SetWidget("Multimeter", true, 3)

	got := s.Selections([]string{"Multimeter", "Ladder"})
	assert.Equal(t, []Selection{{ToolName: "Multimeter", Quantity: 3}, {ToolName: "Ladder", Quantity: 4}}, got)
}

func TestSubmitScenario(t *testing.T) {
	w := &fakeWriter{}
	c := newComposer(w)
	s := NewSession("s1", []RequestRecord{{EmployeeNumber: "7", Designation: "Clerk", Status: StatusSubmitted}}, fixedNow)
	_, err := NewResolver(c.catalog).Resolve(s, "1001")
	require.NoError(t, err)
	before := Summarize(s.Log, SummaryOptions{Now: fixedNow, Designation: "Technician"})

	res, err := c.Submit(context.Background(), s, "Gizri", []Selection{{ToolName: "Multimeter", Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, s.Log, 2)

	rec := s.Log[1]
	assert.Equal(t, RequestRecord{
		EmployeeNumber: "1001",
		Name:           "A. Khan",
		Designation:    "Technician",
		Cluster:        "North",
		AOC:            "Gizri",
		ToolName:       "Multimeter",
		Quantity:       2,
		Timestamp:      "2026-03-14 12:30:00",
		Status:         StatusSubmitted,
	}, rec)

	after := Summarize(s.Log, SummaryOptions{Now: fixedNow, Designation: "Technician"})
	assert.Equal(t, before.ByDesignation+1, after.ByDesignation)

	require.Len(t, w.saves, 1)
	assert.Len(t, w.saves[0], 2)
	assert.Equal(t, PhasePendingReset, s.Phase())
}

func TestSubmitSharesOneTimestamp(t *testing.T) {
	calls := 0
	c := NewComposer(testCatalog(), &fakeWriter{}, LocalZone(5), func() time.Time {
		calls++
		return fixedNow.Add(time.Duration(calls) * time.Second)
	})
	s := NewSession("s1", nil, fixedNow)
	_, err := NewResolver(c.catalog).Resolve(s, "1001")
	require.NoError(t, err)

	selections := []Selection{{ToolName: "Multimeter", Quantity: 1}, {ToolName: "Ladder", Quantity: 3}}
	res, err := c.Submit(context.Background(), s, "Defence", selections)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, calls)
	for _, rec := range s.Log {
		assert.Equal(t, res.Records[0].Timestamp, rec.Timestamp)
		assert.Equal(t, StatusSubmitted, rec.Status)
	}
}

func TestSubmitEmptySelectionIsNoop(t *testing.T) {
	w := &fakeWriter{}
	c := newComposer(w)
	s := NewSession("s1", []RequestRecord{{ToolName: "Old"}}, fixedNow)
	_, err := NewResolver(c.catalog).Resolve(s, "1001")
	require.NoError(t, err)

	for _, sel := range [][]Selection{nil, {}} {
		_, err = c.Submit(context.Background(), s, "Gizri", sel)
		assert.ErrorIs(t, err, ErrEmptySelection)
		assert.Len(t, s.Log, 1)
		assert.Equal(t, PhaseResolved, s.Phase())
	}
	assert.Empty(t, w.saves)
}

func TestSubmitRequiresEmployee(t *testing.T) {
	c := newComposer(&fakeWriter{})
	s := NewSession("s1", nil, fixedNow)
	_, err := c.Submit(context.Background(), s, "Gizri", []Selection{{ToolName: "Ladder", Quantity: 1}})
	assert.ErrorIs(t, err, ErrNoEmployee)
	assert.Empty(t, s.Log)
}

func TestSubmitKeepsAppendWhenPersistFails(t *testing.T) {
	w := &fakeWriter{err: errors.New("disk full")}
	c := newComposer(w)
	s := NewSession("s1", nil, fixedNow)
	_, err := NewResolver(c.catalog).Resolve(s, "1001")
	require.NoError(t, err)

	res, err := c.Submit(context.Background(), s, "Korangi", []Selection{{ToolName: "Ladder", Quantity: 1}})
	require.NoError(t, err)
	assert.EqualError(t, res.PersistErr, "disk full")
	assert.Len(t, s.Log, 1)
	assert.True(t, s.PendingReset)
}

func TestSubmitOnlyOncePerCycle(t *testing.T) {
	c := newComposer(&fakeWriter{})
	s := NewSession("s1", nil, fixedNow)
	_, err := NewResolver(c.catalog).Resolve(s, "1001")
	require.NoError(t, err)
	sel := []Selection{{ToolName: "Ladder", Quantity: 1}}

	_, err = c.Submit(context.Background(), s, "Gizri", sel)
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), s, "Gizri", sel)
	assert.ErrorIs(t, err, ErrResetPending)
	assert.Len(t, s.Log, 1)
}

func TestResetSweepAfterSubmit(t *testing.T) {
	c := newComposer(&fakeWriter{})
	s := NewSession("s1", nil, fixedNow)
	_, err := NewResolver(c.catalog).Resolve(s, " 1001")
	require.NoError(t, err)
	s.SetWidget("Multimeter", true, 2)
	s.SetWidget("Ladder", true, 1)
	s.DownloadOK = true
	s.DownloadAttempts = 2

	_, err = c.Submit(context.Background(), s, "Gizri", s.Selections(c.catalog.EligibleTools("Technician")))
	require.NoError(t, err)
	assert.NotNil(t, s.Employee, "sweep is deferred to the next cycle")

	assert.True(t, BeginCycle(s))
	assert.Nil(t, s.Employee)
	assert.Empty(t, s.Checked)
	assert.Empty(t, s.Quantities)
	assert.False(t, s.DownloadOK)
	assert.Zero(t, s.DownloadAttempts)
	assert.Equal(t, " 1001", s.EmployeeInput)
	assert.Equal(t, PhaseIdle, s.Phase())

	assert.False(t, BeginCycle(s), "sweep is idempotent")
	assert.Len(t, s.Log, 2)
}

func TestBeginCycleWithoutPendingResetKeepsState(t *testing.T) {
	s := NewSession("s1", nil, fixedNow)
	emp := Employee{EmployeeNumber: "1001"}
	s.Employee = &emp
	s.SetWidget("Ladder", true, 1)
	s.DownloadOK = true

	assert.False(t, BeginCycle(s))
	assert.NotNil(t, s.Employee)
	assert.True(t, s.Checked["Ladder"])
	assert.True(t, s.DownloadOK)
}

func TestLogNeverShrinks(t *testing.T) {
	c := newComposer(&fakeWriter{})
	r := NewResolver(c.catalog)
	s := NewSession("s1", []RequestRecord{{ToolName: "Seed"}}, fixedNow)
	gate := NewExportGate(func(p string) bool { return p == "2313" }, 3)

	prev := len(s.Log)
	steps := []func(){
		func() { _, _ = r.Resolve(s, "1001") },
		func() { _, _ = c.Submit(context.Background(), s, "Gizri", nil) },
		func() { _, _ = c.Submit(context.Background(), s, "Gizri", []Selection{{ToolName: "Ladder", Quantity: 1}}) },
		func() { BeginCycle(s) },
		func() { _ = gate.Unlock(s, "nope") },
		func() { _, _ = r.Resolve(s, "missing") },
		func() { _, _ = r.Resolve(s, "1002") },
		func() { _, _ = c.Submit(context.Background(), s, "Defence", []Selection{{ToolName: "Safety Belt", Quantity: 5}}) },
		func() { BeginCycle(s) },
	}
	first := s.Log[0]
	for i, step := range steps {
		step()
		assert.GreaterOrEqual(t, len(s.Log), prev, "step %d", i)
		prev = len(s.Log)
	}
	assert.Equal(t, first, s.Log[0])
	assert.Len(t, s.Log, 3)
}

func TestExportGateLocksAfterThreeFailures(t *testing.T) {
	gate := NewExportGate(func(p string) bool { return p == "2313" }, 3)
	s := NewSession("s1", nil, fixedNow)

	err := gate.Unlock(s, "1111")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 2, authErr.Remaining)

	err = gate.Unlock(s, "2222")
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 1, authErr.Remaining)

	err = gate.Unlock(s, "3333")
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Locked)
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.False(t, s.DownloadOK)
	assert.Zero(t, s.DownloadAttempts)
	assert.False(t, gate.Authorized(s))
}

func TestExportGateUnlock(t *testing.T) {
	gate := NewExportGate(func(p string) bool { return p == "2313" }, 3)
	s := NewSession("s1", nil, fixedNow)

	require.Error(t, gate.Unlock(s, "0000"))
	require.NoError(t, gate.Unlock(s, "2313"))
	assert.True(t, gate.Authorized(s))
	assert.Zero(t, s.DownloadAttempts)

	require.Error(t, gate.Unlock(s, "0000"))
	assert.False(t, gate.Authorized(s), "a failed attempt revokes a prior unlock")
}

func TestSummarize(t *testing.T) {
	records := make([]RequestRecord, 0, 60)
	for i := 0; i < 60; i++ {
		rec := RequestRecord{ToolName: "T", Status: StatusSubmitted, Designation: "Lineman", Timestamp: "2026-03-13 23:00:00", Quantity: i + 1}
		if i%2 == 0 {
			rec.Designation = "Technician"
		}
		if i%3 == 0 {
			rec.Timestamp = "2026-03-14 01:00:00"
		}
		if i == 59 {
			rec.Status = "Cancelled"
		}
		records = append(records, rec)
	}

	// 21:00 UTC on the 13th is already the 14th at UTC+5.
	now := time.Date(2026, 3, 13, 21, 0, 0, 0, time.UTC)
	sum := Summarize(records, SummaryOptions{Now: now, Location: LocalZone(5), Designation: "Technician", RecentLimit: 50})
	assert.Equal(t, 60, sum.Total)
	assert.Equal(t, 59, sum.Submitted)
	assert.Equal(t, 30, sum.ByDesignation)
	assert.Equal(t, 20, sum.Today)
	require.Len(t, sum.Recent, 50)
	assert.Equal(t, 11, sum.Recent[0].Quantity)
	assert.Equal(t, 60, sum.Recent[49].Quantity)
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil, SummaryOptions{RecentLimit: 50})
	assert.Zero(t, sum.Total)
	assert.Empty(t, sum.Recent)
}
