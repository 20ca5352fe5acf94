// Package intake holds the tool-request workflow: employee lookup, tool
// eligibility, request composition and the form reset protocol that runs
// between interaction cycles.
package intake

import (
	"strconv"
	"strings"
	"time"
)

const (
	StatusSubmitted = "Submitted"
	TimestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

type Employee struct {
	EmployeeNumber string `json:"employeeNumber"`
	Name           string `json:"name"`
	Designation    string `json:"designation"`
	Cluster        string `json:"cluster"`
}

type ToolEligibility struct {
	Designation string `json:"designation"`
	ToolName    string `json:"toolName"`
}

type RequestRecord struct {
	EmployeeNumber string `json:"employeeNumber"`
	Name           string `json:"name"`
	Designation    string `json:"designation"`
	Cluster        string `json:"cluster"`
	AOC            string `json:"aoc"`
	ToolName       string `json:"toolName"`
	Quantity       int    `json:"quantity"`
	Timestamp      string `json:"timestamp"`
	Status         string `json:"status"`
}

// Selection is one checked tool and its requested quantity.
type Selection struct {
	ToolName string `json:"toolName"`
	Quantity int    `json:"quantity"`
}

// Catalog is the read-only reference data shared by every session.
type Catalog struct {
	Employees []Employee
	Tools     []ToolEligibility
}

// FindEmployee returns the first employee whose number matches. Both sides
// are canonicalized so numeric cells ("1001.0") match typed text ("1001").
func (c *Catalog) FindEmployee(number string) (Employee, bool) {
	key := NormalizeEmployeeNumber(number)
	if c == nil || key == "" {
		return Employee{}, false
	}
	for _, emp := range c.Employees {
		if NormalizeEmployeeNumber(emp.EmployeeNumber) == key {
			return emp, true
		}
	}
	return Employee{}, false
}

// EligibleTools lists the tools configured for a designation in table order.
// Repeated rows for the same tool are listed once.
// A designation with no rows yields an empty, non-nil slice.
func (c *Catalog) EligibleTools(designation string) []string {
	tools := []string{}
	if c == nil {
		return tools
	}
	seen := map[string]bool{}
	for _, row := range c.Tools {
		if row.Designation != designation || seen[row.ToolName] {
			continue
		}
		seen[row.ToolName] = true
		tools = append(tools, row.ToolName)
	}
	return tools
}

// NormalizeEmployeeNumber trims the value and drops an all-zero fractional
// part left behind by spreadsheet number formatting.
func NormalizeEmployeeNumber(value string) string {
	value = strings.TrimSpace(value)
	idx := strings.IndexByte(value, '.')
	if idx <= 0 {
		return value
	}
	whole, frac := value[:idx], value[idx+1:]
	if strings.Trim(frac, "0") != "" {
		return value
	}
	for _, r := range whole {
		if r < '0' || r > '9' {
			return value
		}
	}
	return whole
}

// LocalZone is the fixed-offset zone request timestamps are written in.
func LocalZone(offsetHours int) *time.Location {
	sign := "+"
	if offsetHours < 0 {
		sign = "-"
	}
	abs := offsetHours
	if abs < 0 {
		abs = -abs
	}
	return time.FixedZone("UTC"+sign+strconv.Itoa(abs), offsetHours*3600)
}
