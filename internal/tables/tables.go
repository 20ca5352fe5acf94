// Package tables loads the spreadsheet-backed reference tables: employees,
// tool eligibility, and the persisted request log.
package tables

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/phillip-england/toolform/internal/intake"
)

var ErrMissingColumn = errors.New("missing column")

var (
	EmployeeColumns = []string{"EmployeeNumber", "Name", "Designation", "Cluster"}
	ToolColumns     = []string{"Designation", "ToolName"}
	RequestColumns  = []string{"EmployeeNumber", "Name", "Designation", "Cluster", "AOC", "ToolName", "Quantity", "Timestamp", "Status"}
)

// headerAliases maps normalized legacy headers onto canonical column names.
var headerAliases = map[string]string{
	"date": "Timestamp",
}

type table struct {
	index map[string]int
	rows  [][]string
}

func newTable(rows [][]string, required []string) (*table, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyWorksheet
	}

	canonical := make(map[string]string, len(required))
	for _, col := range required {
		canonical[normalizeHeader(col)] = col
	}

	index := map[string]int{}
	for idx, header := range rows[0] {
		key := normalizeHeader(header)
		name, ok := canonical[key]
		if !ok {
			name, ok = headerAliases[key]
		}
		if !ok {
			continue
		}
		if _, seen := index[name]; !seen {
			index[name] = idx
		}
	}

	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		body = append(body, row)
	}
	return &table{index: index, rows: body}, nil
}

func (t *table) value(row []string, col string) string {
	idx, ok := t.index[col]
	if !ok {
		return ""
	}
	return cellValue(row, idx)
}

func ParseEmployees(rows [][]string) ([]intake.Employee, error) {
	t, err := newTable(rows, EmployeeColumns)
	if err != nil {
		return nil, err
	}
	employees := make([]intake.Employee, 0, len(t.rows))
	for _, row := range t.rows {
		employees = append(employees, intake.Employee{
			EmployeeNumber: intake.NormalizeEmployeeNumber(t.value(row, "EmployeeNumber")),
			Name:           t.value(row, "Name"),
			Designation:    t.value(row, "Designation"),
			Cluster:        t.value(row, "Cluster"),
		})
	}
	return employees, nil
}

func ParseTools(rows [][]string) ([]intake.ToolEligibility, error) {
	t, err := newTable(rows, ToolColumns)
	if err != nil {
		return nil, err
	}
	tools := make([]intake.ToolEligibility, 0, len(t.rows))
	for _, row := range t.rows {
		name := t.value(row, "ToolName")
		if name == "" {
			continue
		}
		tools = append(tools, intake.ToolEligibility{
			Designation: t.value(row, "Designation"),
			ToolName:    name,
		})
	}
	return tools, nil
}

// ParseRequestLog reads persisted request rows. Quantities written as
// floats by other tools ("2.0") are accepted; unreadable ones load as 0.
func ParseRequestLog(rows [][]string) ([]intake.RequestRecord, error) {
	t, err := newTable(rows, RequestColumns)
	if err != nil {
		return nil, err
	}
	records := make([]intake.RequestRecord, 0, len(t.rows))
	for _, row := range t.rows {
		records = append(records, intake.RequestRecord{
			EmployeeNumber: intake.NormalizeEmployeeNumber(t.value(row, "EmployeeNumber")),
			Name:           t.value(row, "Name"),
			Designation:    t.value(row, "Designation"),
			Cluster:        t.value(row, "Cluster"),
			AOC:            t.value(row, "AOC"),
			ToolName:       t.value(row, "ToolName"),
			Quantity:       parseQuantity(t.value(row, "Quantity")),
			Timestamp:      t.value(row, "Timestamp"),
			Status:         t.value(row, "Status"),
		})
	}
	return records, nil
}

func parseQuantity(raw string) int {
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}
