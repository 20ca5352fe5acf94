package intake

// BeginCycle must run at the start of every interaction before any widget
// state is read. When the previous interaction ended in a successful submit
// it sweeps the form back to Idle and reports true.
//
// The sweep clears the resolved employee, the widget entries of the tools
// that were on screen at submit time, and the export authorization. The raw
// employee-number input is left as typed.
func BeginCycle(s *Session) bool {
	if !s.PendingReset {
		return false
	}
	s.Employee = nil
	s.clearWidgets(s.ResetTools)
	s.DownloadOK = false
	s.DownloadAttempts = 0
	s.ResetTools = nil
	s.PendingReset = false
	return true
}
