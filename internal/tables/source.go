package tables

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phillip-england/toolform/internal/intake"
)

// Source yields the raw rows (header first) of the two reference tables.
type Source interface {
	EmployeeRows(ctx context.Context) ([][]string, error)
	ToolRows(ctx context.Context) ([][]string, error)
}

type FileSource struct {
	EmployeesPath string
	ToolsPath     string
}

func (s FileSource) EmployeeRows(_ context.Context) ([][]string, error) {
	return ReadFile(s.EmployeesPath)
}

func (s FileSource) ToolRows(_ context.Context) ([][]string, error) {
	return ReadFile(s.ToolsPath)
}

// Reference is the loaded catalog plus any warnings raised while loading.
type Reference struct {
	Catalog  *intake.Catalog
	Warnings []string
}

// Load never fails: a table that cannot be read degrades to empty and
// contributes a warning.
func Load(ctx context.Context, src Source) *Reference {
	ref := &Reference{Catalog: &intake.Catalog{
		Employees: []intake.Employee{},
		Tools:     []intake.ToolEligibility{},
	}}

	if rows, err := src.EmployeeRows(ctx); err != nil {
		ref.warn("employees", err)
	} else if employees, err := ParseEmployees(rows); err != nil {
		ref.warn("employees", err)
	} else {
		ref.Catalog.Employees = employees
	}

	if rows, err := src.ToolRows(ctx); err != nil {
		ref.warn("tool mapping", err)
	} else if tools, err := ParseTools(rows); err != nil {
		ref.warn("tool mapping", err)
	} else {
		ref.Catalog.Tools = tools
	}

	return ref
}

func (r *Reference) warn(table string, err error) {
	msg := fmt.Sprintf("Could not read %s: %v", table, err)
	slog.Warn("reference table unavailable", "table", table, "error", err)
	r.Warnings = append(r.Warnings, msg)
}

// Cache loads the reference tables once per process.
type Cache struct {
	src  Source
	once sync.Once
	ref  *Reference
}

func NewCache(src Source) *Cache {
	return &Cache{src: src}
}

func (c *Cache) Get(ctx context.Context) *Reference {
	c.once.Do(func() {
		c.ref = Load(context.WithoutCancel(ctx), c.src)
		slog.Info("reference tables loaded",
			"employees", len(c.ref.Catalog.Employees),
			"tools", len(c.ref.Catalog.Tools),
			"warnings", len(c.ref.Warnings),
		)
	})
	return c.ref
}
