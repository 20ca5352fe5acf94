package intake

import (
	"errors"
	"fmt"
)

var ErrAuthFailure = errors.New("wrong export passphrase")

// AuthError reports a rejected passphrase. Locked is set when the attempt
// budget ran out and the gate was forced closed.
type AuthError struct {
	Remaining int
	Locked    bool
}

func (e *AuthError) Error() string {
	if e.Locked {
		return "wrong passphrase: too many attempts"
	}
	return fmt.Sprintf("wrong passphrase: %d attempt(s) left", e.Remaining)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuthFailure
}

type ExportGate struct {
	verify      func(passphrase string) bool
	maxAttempts int
}

func NewExportGate(verify func(passphrase string) bool, maxAttempts int) *ExportGate {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ExportGate{verify: verify, maxAttempts: maxAttempts}
}

func (g *ExportGate) MaxAttempts() int {
	return g.maxAttempts
}

// Unlock checks the passphrase against the gate. After maxAttempts
// consecutive failures the gate closes and the counter starts over.
func (g *ExportGate) Unlock(s *Session, passphrase string) error {
	if g.verify(passphrase) {
		s.DownloadAttempts = 0
		s.DownloadOK = true
		return nil
	}

	s.DownloadOK = false
	s.DownloadAttempts++
	remaining := g.maxAttempts - s.DownloadAttempts
	if remaining > 0 {
		return &AuthError{Remaining: remaining}
	}
	s.DownloadAttempts = 0
	return &AuthError{Locked: true}
}

func (g *ExportGate) Authorized(s *Session) bool {
	return s.DownloadOK && s.DownloadAttempts < g.maxAttempts
}

func (g *ExportGate) AttemptsLeft(s *Session) int {
	return g.maxAttempts - s.DownloadAttempts
}
