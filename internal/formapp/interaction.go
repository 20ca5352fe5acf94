package formapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/phillip-england/toolform/internal/intake"
	"github.com/phillip-england/toolform/internal/security"
	"github.com/phillip-england/toolform/internal/session"
	"github.com/phillip-england/toolform/internal/tables"
)

// interaction is one request against one session. The reset sweep has
// already run by the time a handler sees it.
type interaction struct {
	sess    *intake.Session
	ref     *tables.Reference
	created bool
}

// reply writes the response once the session has been saved.
type reply func(w http.ResponseWriter, r *http.Request)

type interactionFunc func(r *http.Request, in *interaction) reply

// interact runs fn as one interaction cycle: lock the session, load or
// start it, sweep a pending reset, run the handler, save, then respond.
func (s *server) interact(fn interactionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var sess *intake.Session

		if id, ok := sessionIDFromRequest(r); ok {
			unlock := s.locks.lock(id)
			defer unlock()

			existing, err := s.sessions.Get(ctx, id)
			switch {
			case err == nil:
				sess = existing
			case errors.Is(err, session.ErrNotFound):
			default:
				s.logger.Error("session load failed", "session", shortID(id), "error", err)
				http.Error(w, "unable to load session", http.StatusInternalServerError)
				return
			}
		}

		in := &interaction{sess: sess, ref: s.refs.Get(ctx)}
		if in.sess == nil {
			started, err := s.startSession(r)
			if err != nil {
				s.logger.Error("session start failed", "error", err)
				http.Error(w, "unable to start session", http.StatusInternalServerError)
				return
			}
			in.sess = started
			in.created = true
		}

		if intake.BeginCycle(in.sess) {
			s.logger.Debug("form reset applied", "session", shortID(in.sess.ID))
		}

		respond := fn(r, in)

		if err := s.sessions.Save(ctx, in.sess); err != nil {
			s.logger.Error("session save failed", "session", shortID(in.sess.ID), "error", err)
			http.Error(w, "unable to save session", http.StatusInternalServerError)
			return
		}
		if in.created {
			s.setSessionCookie(w, in.sess.ID)
		}
		respond(w, r)
	}
}

// startSession opens a session under a fresh id, seeded from the persisted
// log. An unreadable log starts the session empty.
func (s *server) startSession(r *http.Request) (*intake.Session, error) {
	id, err := security.RandomToken(32)
	if err != nil {
		return nil, err
	}
	seed, err := s.requestLog.Load(r.Context())
	if err != nil {
		s.logger.Warn("request log unavailable, starting empty", "path", s.requestLog.Path(), "error", err)
	}
	return intake.NewSession(id, seed, s.now()), nil
}

func sessionIDFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", false
	}
	return cookie.Value, true
}

func (s *server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.cfg.Session.TTL.Seconds()),
	})
}

func expireSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// notice carries the one-shot messages shown after a redirect.
type notice struct {
	Error   string
	Warning string
	Message string
	Info    string
}

func (n notice) query() string {
	values := url.Values{}
	if n.Error != "" {
		values.Set("error", n.Error)
	}
	if n.Warning != "" {
		values.Set("warning", n.Warning)
	}
	if n.Message != "" {
		values.Set("message", n.Message)
	}
	if n.Info != "" {
		values.Set("info", n.Info)
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

func noticeFromRequest(r *http.Request) notice {
	q := r.URL.Query()
	return notice{
		Error:   q.Get("error"),
		Warning: q.Get("warning"),
		Message: q.Get("message"),
		Info:    q.Get("info"),
	}
}

func redirectHome(n notice) reply {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/"+n.query(), http.StatusSeeOther)
	}
}

func (s *server) renderPage(data pageData) reply {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := renderHTMLTemplate(w, s.formTmpl, data); err != nil {
			http.Error(w, "template render failed", http.StatusInternalServerError)
			s.logger.Error("form template render failed", "error", err)
		}
	}
}

func jsonReply(status int, payload any) reply {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, payload)
	}
}

func fileReply(contentType, filename string, body []byte) reply {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		_, _ = w.Write(body)
	}
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
