package intake

import (
	"errors"
	"strings"
)

var (
	ErrNoEmployeeNumber = errors.New("employee number is empty")
	ErrEmployeeNotFound = errors.New("employee not found")
)

type Resolver struct {
	catalog *Catalog
}

func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve looks up the typed employee number and binds the result to the
// session. Any failure, including an empty input, drops the previously
// resolved employee so stale details never stay on screen.
func (r *Resolver) Resolve(s *Session, employeeNumber string) (Employee, error) {
	s.EmployeeInput = employeeNumber
	if strings.TrimSpace(employeeNumber) == "" {
		s.setEmployee(nil)
		return Employee{}, ErrNoEmployeeNumber
	}

	emp, ok := r.catalog.FindEmployee(employeeNumber)
	if !ok {
		s.setEmployee(nil)
		return Employee{}, ErrEmployeeNotFound
	}
	s.setEmployee(&emp)
	return emp, nil
}

// Reject records an input that failed validation before lookup. It clears the
// bound employee the same way a NotFound lookup does.
func (r *Resolver) Reject(s *Session, employeeNumber string) {
	s.EmployeeInput = employeeNumber
	s.setEmployee(nil)
}
