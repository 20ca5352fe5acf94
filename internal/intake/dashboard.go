package intake

import (
	"strings"
	"time"
)

type SummaryOptions struct {
	Now         time.Time
	Location    *time.Location
	Designation string
	RecentLimit int
}

type Summary struct {
	Total         int             `json:"total"`
	Submitted     int             `json:"submitted"`
	Designation   string          `json:"designation"`
	ByDesignation int             `json:"byDesignation"`
	Today         int             `json:"today"`
	Recent        []RequestRecord `json:"recent"`
}

// Summarize computes the dashboard cards and the recent-requests table.
func Summarize(records []RequestRecord, opts SummaryOptions) Summary {
	loc := opts.Location
	if loc == nil {
		loc = LocalZone(5)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := now.In(loc).Format(dateLayout)

	sum := Summary{Total: len(records), Designation: opts.Designation}
	for _, rec := range records {
		if rec.Status == StatusSubmitted {
			sum.Submitted++
		}
		if opts.Designation != "" && rec.Designation == opts.Designation {
			sum.ByDesignation++
		}
		if strings.HasPrefix(strings.TrimSpace(rec.Timestamp), today) {
			sum.Today++
		}
	}

	start := 0
	if opts.RecentLimit > 0 && len(records) > opts.RecentLimit {
		start = len(records) - opts.RecentLimit
	}
	sum.Recent = make([]RequestRecord, len(records)-start)
	copy(sum.Recent, records[start:])
	return sum
}
