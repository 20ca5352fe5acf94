package intake

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoEmployee     = errors.New("no employee resolved")
	ErrEmptySelection = errors.New("select at least one tool")
	ErrResetPending   = errors.New("form reset pending")
)

// LogWriter mirrors the full request log to the persistent store.
type LogWriter interface {
	Save(ctx context.Context, records []RequestRecord) error
}

type SubmitResult struct {
	Created int
	Records []RequestRecord
	// PersistErr is set when the log could not be written back. The
	// in-memory append has already happened and is kept.
	PersistErr error
}

type Composer struct {
	catalog *Catalog
	writer  LogWriter
	loc     *time.Location
	now     func() time.Time
}

func NewComposer(catalog *Catalog, writer LogWriter, loc *time.Location, now func() time.Time) *Composer {
	if loc == nil {
		loc = LocalZone(5)
	}
	if now == nil {
		now = time.Now
	}
	return &Composer{catalog: catalog, writer: writer, loc: loc, now: now}
}

// Submit turns the selections into request records for the session's
// resolved employee, appends them, persists the whole log and arms the
// form reset. Quantities are validated at the input boundary.
func (c *Composer) Submit(ctx context.Context, s *Session, site string, selections []Selection) (SubmitResult, error) {
	if s.PendingReset {
		return SubmitResult{}, ErrResetPending
	}
	if s.Employee == nil {
		return SubmitResult{}, ErrNoEmployee
	}
	if len(selections) == 0 {
		return SubmitResult{}, ErrEmptySelection
	}

	emp := *s.Employee
	stamp := c.now().In(c.loc).Format(TimestampLayout)
	records := make([]RequestRecord, 0, len(selections))
	for _, sel := range selections {
		records = append(records, RequestRecord{
			EmployeeNumber: emp.EmployeeNumber,
			Name:           emp.Name,
			Designation:    emp.Designation,
			Cluster:        emp.Cluster,
			AOC:            site,
			ToolName:       sel.ToolName,
			Quantity:       sel.Quantity,
			Timestamp:      stamp,
			Status:         StatusSubmitted,
		})
	}

	next := make([]RequestRecord, 0, len(s.Log)+len(records))
	next = append(next, s.Log...)
	next = append(next, records...)
	s.Log = next

	result := SubmitResult{Created: len(records), Records: records}
	if c.writer != nil {
		if err := c.writer.Save(ctx, s.Records()); err != nil {
			result.PersistErr = err
		}
	}

	s.Site = site
	s.ResetTools = c.catalog.EligibleTools(emp.Designation)
	for _, sel := range selections {
		s.ResetTools = appendMissing(s.ResetTools, sel.ToolName)
	}
	s.PendingReset = true
	return result, nil
}

func appendMissing(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
