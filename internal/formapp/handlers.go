package formapp

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/phillip-england/toolform/internal/intake"
	"github.com/phillip-england/toolform/internal/notify"
	"github.com/phillip-england/toolform/internal/requestlog"
	"github.com/phillip-england/toolform/internal/session"
)

const exportFilename = "requests.xlsx"

type pageData struct {
	Notice   notice
	Warnings []string
	Phase    string

	Sites         []string
	Site          string
	EmployeeInput string
	Employee      *intake.Employee
	Tools         []toolView

	HasRecords     bool
	ExportUnlocked bool
	AttemptsLeft   int
	Summary        intake.Summary
}

type toolView struct {
	Index    int
	Name     string
	Checked  bool
	Quantity int
}

type dashboardResponse struct {
	Phase    string           `json:"phase"`
	Employee *intake.Employee `json:"employee"`
	Summary  intake.Summary   `json:"summary"`
	Warnings []string         `json:"warnings"`
}

func (s *server) formPage(r *http.Request, in *interaction) reply {
	return s.renderPage(s.buildPage(in, noticeFromRequest(r)))
}

func (s *server) buildPage(in *interaction, n notice) pageData {
	sess := in.sess
	data := pageData{
		Notice:         n,
		Warnings:       in.ref.Warnings,
		Phase:          sess.Phase().String(),
		Sites:          s.cfg.Form.Sites,
		Site:           sess.Site,
		EmployeeInput:  sess.EmployeeInput,
		Employee:       sess.Employee,
		HasRecords:     len(sess.Log) > 0,
		ExportUnlocked: s.gate.Authorized(sess),
		AttemptsLeft:   s.gate.AttemptsLeft(sess),
		Summary:        s.summarize(sess),
	}
	if data.Site == "" && len(data.Sites) > 0 {
		data.Site = data.Sites[0]
	}
	if sess.Employee != nil {
		eligible := in.ref.Catalog.EligibleTools(sess.Employee.Designation)
		data.Tools = make([]toolView, 0, len(eligible))
		for i, tool := range eligible {
			view := toolView{Index: i, Name: tool, Checked: sess.Checked[tool], Quantity: 1}
			if qty, ok := sess.Quantities[tool]; ok && view.Checked {
				view.Quantity = qty
			}
			data.Tools = append(data.Tools, view)
		}
	}
	return data
}

func (s *server) summarize(sess *intake.Session) intake.Summary {
	return intake.Summarize(sess.Records(), intake.SummaryOptions{
		Now:         s.now(),
		Location:    s.loc,
		Designation: s.cfg.Form.HighlightDesignation,
		RecentLimit: s.cfg.Form.RecentLimit,
	})
}

func (s *server) lookup(r *http.Request, in *interaction) reply {
	if err := r.ParseForm(); err != nil {
		return redirectHome(notice{Error: "Invalid form submission"})
	}
	form := lookupForm{EmployeeNumber: r.PostForm.Get("employee_number")}
	resolver := intake.NewResolver(in.ref.Catalog)
	if err := s.validate.Struct(form); err != nil {
		resolver.Reject(in.sess, form.EmployeeNumber)
		return redirectHome(notice{Error: s.validationMessage(err)})
	}

	_, err := resolver.Resolve(in.sess, form.EmployeeNumber)
	switch {
	case errors.Is(err, intake.ErrNoEmployeeNumber):
		return redirectHome(notice{})
	case errors.Is(err, intake.ErrEmployeeNotFound):
		return redirectHome(notice{Error: "Employee not found"})
	case err != nil:
		return redirectHome(notice{Error: err.Error()})
	}
	return redirectHome(notice{Message: "Employee found"})
}

func (s *server) submit(r *http.Request, in *interaction) reply {
	if err := r.ParseForm(); err != nil {
		return redirectHome(notice{Error: "Invalid form submission"})
	}
	sess := in.sess
	if sess.Employee == nil {
		return redirectHome(notice{Info: "Enter a valid Employee Number first."})
	}

	eligible := in.ref.Catalog.EligibleTools(sess.Employee.Designation)
	readWidgets(r, sess, eligible)
	site := strings.TrimSpace(r.PostForm.Get("site"))
	selections := sess.Selections(eligible)

	form := submitForm{Site: site, Selections: toSelectionForms(selections)}
	if err := s.validate.Struct(form); err != nil {
		return redirectHome(notice{Error: s.validationMessage(err)})
	}
	sess.Site = site

	composer := intake.NewComposer(in.ref.Catalog, s.requestLog, s.loc, s.now)
	result, err := composer.Submit(r.Context(), sess, site, selections)
	switch {
	case errors.Is(err, intake.ErrEmptySelection):
		return redirectHome(notice{Warning: "Select at least one tool."})
	case errors.Is(err, intake.ErrNoEmployee):
		return redirectHome(notice{Info: "Enter a valid Employee Number first."})
	case err != nil:
		return redirectHome(notice{Error: err.Error()})
	}

	n := notice{Message: fmt.Sprintf("%d request(s) submitted.", result.Created)}
	if result.PersistErr != nil {
		s.logger.Warn("request log write failed", "path", s.requestLog.Path(), "error", result.PersistErr)
		n.Warning = fmt.Sprintf("Could not write %s: %v", filepath.Base(s.requestLog.Path()), result.PersistErr)
	}
	s.logger.Info("requests submitted",
		"session", shortID(sess.ID),
		"employee", sess.Employee.EmployeeNumber,
		"site", site,
		"count", result.Created,
	)
	if err := s.publisher.Publish(r.Context(), notify.Submission{SessionID: sess.ID, Records: result.Records}); err != nil {
		s.logger.Warn("submission notification failed", "session", shortID(sess.ID), "error", err)
	}
	return redirectHome(n)
}

func (s *server) unlockExport(r *http.Request, in *interaction) reply {
	if err := r.ParseForm(); err != nil {
		return redirectHome(notice{Error: "Invalid form submission"})
	}
	if len(in.sess.Log) == 0 {
		return redirectHome(notice{Info: "No requests yet to download."})
	}
	form := unlockForm{Passphrase: r.PostForm.Get("passphrase")}
	if err := s.validate.Struct(form); err != nil {
		return redirectHome(notice{Error: s.validationMessage(err)})
	}

	err := s.gate.Unlock(in.sess, form.Passphrase)
	var authErr *intake.AuthError
	switch {
	case err == nil:
		return redirectHome(notice{Message: "Password correct. You can download the file below."})
	case errors.As(err, &authErr) && authErr.Locked:
		s.logger.Warn("export gate locked", "session", shortID(in.sess.ID))
		return redirectHome(notice{Error: fmt.Sprintf("%d wrong attempts. Refreshing the page.", s.gate.MaxAttempts())})
	case errors.As(err, &authErr):
		return redirectHome(notice{Error: fmt.Sprintf("Wrong password. Attempts left: %d", authErr.Remaining)})
	default:
		return redirectHome(notice{Error: err.Error()})
	}
}

func (s *server) downloadRequests(r *http.Request, in *interaction) reply {
	if len(in.sess.Log) == 0 {
		return redirectHome(notice{Info: "No requests yet to download."})
	}
	if !s.gate.Authorized(in.sess) {
		return redirectHome(notice{Error: "Unlock the download first."})
	}

	var buf bytes.Buffer
	if err := requestlog.WriteWorkbook(&buf, in.sess.Records()); err != nil {
		s.logger.Error("export workbook failed", "error", err)
		return redirectHome(notice{Error: "Could not build " + exportFilename})
	}
	return fileReply(requestlog.ContentType, exportFilename, buf.Bytes())
}

func (s *server) dashboard(r *http.Request, in *interaction) reply {
	warnings := in.ref.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return jsonReply(http.StatusOK, dashboardResponse{
		Phase:    in.sess.Phase().String(),
		Employee: in.sess.Employee,
		Summary:  s.summarize(in.sess),
		Warnings: warnings,
	})
}

func (s *server) endSession(w http.ResponseWriter, r *http.Request) {
	if id, ok := sessionIDFromRequest(r); ok {
		unlock := s.locks.lock(id)
		err := s.sessions.Delete(r.Context(), id)
		unlock()
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			s.logger.Error("session delete failed", "session", shortID(id), "error", err)
			http.Error(w, "unable to end session", http.StatusInternalServerError)
			return
		}
	}
	expireSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
