// Package formapp serves the tool request form: employee lookup, tool
// selection, submission, the gated export and the requests dashboard.
package formapp

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/phillip-england/toolform/internal/config"
	"github.com/phillip-england/toolform/internal/intake"
	"github.com/phillip-england/toolform/internal/middleware"
	"github.com/phillip-england/toolform/internal/notify"
	"github.com/phillip-england/toolform/internal/requestlog"
	"github.com/phillip-england/toolform/internal/security"
	"github.com/phillip-england/toolform/internal/session"
	"github.com/phillip-england/toolform/internal/tables"
	"github.com/phillip-england/toolform/internal/tables/sheets"
)

const sessionCookieName = "toolform_session"

//go:embed templates/form.html assets/app.css
var templatesFS embed.FS

// Deps are the collaborators the form server runs against.
type Deps struct {
	Source         tables.Source
	RequestLog     *requestlog.Store
	Sessions       session.Store
	Publisher      notify.Publisher
	PassphraseHash string
	Now            func() time.Time
	Logger         *slog.Logger
}

type server struct {
	cfg        *config.Config
	formTmpl   *template.Template
	refs       *tables.Cache
	requestLog *requestlog.Store
	sessions   session.Store
	publisher  notify.Publisher
	gate       *intake.ExportGate
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
	validate   *validator.Validate
	translator ut.Translator
	locks      *sessionLocks
}

func newServer(cfg *config.Config, deps Deps) (*server, error) {
	if deps.Source == nil {
		return nil, errors.New("reference source is required")
	}
	if deps.RequestLog == nil {
		return nil, errors.New("request log store is required")
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewMemoryStore(cfg.Session.TTL)
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.PassphraseHash == "" {
		hash, err := security.HashPassphrase(cfg.Export.Passphrase)
		if err != nil {
			return nil, err
		}
		deps.PassphraseHash = hash
	}

	validate, translator, err := newValidator(cfg.Form.Sites)
	if err != nil {
		return nil, fmt.Errorf("set up validator: %w", err)
	}

	return &server{
		cfg:        cfg,
		formTmpl:   template.Must(template.ParseFS(templatesFS, "templates/form.html")),
		refs:       tables.NewCache(deps.Source),
		requestLog: deps.RequestLog,
		sessions:   deps.Sessions,
		publisher:  deps.Publisher,
		gate:       intake.NewExportGate(security.Verifier(deps.PassphraseHash), cfg.Export.MaxAttempts),
		loc:        intake.LocalZone(cfg.Form.TimezoneOffsetHours),
		now:        deps.Now,
		logger:     deps.Logger,
		validate:   validate,
		translator: translator,
		locks:      newSessionLocks(),
	}, nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger))

	r.Get("/", s.interact(s.formPage))
	r.Post("/lookup", s.interact(s.lookup))
	r.Post("/submit", s.interact(s.submit))
	r.Post("/export/unlock", s.interact(s.unlockExport))
	r.Get("/export/requests.xlsx", s.interact(s.downloadRequests))
	r.Post("/session/end", s.endSession)
	r.Get("/assets/app.css", s.appCSSFile)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/dashboard", s.interact(s.dashboard))
	})

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self'",
		"img-src 'self' data:",
		"script-src 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	return middleware.Chain(
		r,
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	)
}

// Run builds the configured backends and serves the form until ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := newServer(cfg, deps)
	if err != nil {
		return err
	}
	s.refs.Get(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("tool form listening", "addr", cfg.Server.Addr, "requests", s.requestLog.Path())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func buildDeps(ctx context.Context, cfg *config.Config) (Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := Deps{
		RequestLog: requestlog.NewStore(cfg.Data.RequestsPath, cfg.Data.BackupLog),
		Logger:     slog.Default(),
	}

	src, err := NewSource(ctx, cfg)
	if err != nil {
		return Deps{}, nil, err
	}
	deps.Source = src

	switch cfg.Session.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return Deps{}, nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		deps.Sessions = session.NewRedisStore(rdb, cfg.Session.TTL)
	default:
		deps.Sessions = session.NewMemoryStore(cfg.Session.TTL)
	}

	if cfg.AMQP.DSN != "" {
		pub, err := notify.DialAMQP(cfg.AMQP.DSN, cfg.AMQP.Queue, cfg.AMQP.PublishTimeout)
		if err != nil {
			cleanup()
			return Deps{}, nil, err
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Publisher = pub
	} else {
		deps.Publisher = notify.Nop{}
	}

	return deps, cleanup, nil
}

// NewSource picks the Google Sheets source when a spreadsheet is configured
// and the local workbooks otherwise.
func NewSource(ctx context.Context, cfg *config.Config) (tables.Source, error) {
	if cfg.Sheets.SpreadsheetID == "" {
		return tables.FileSource{
			EmployeesPath: cfg.Data.EmployeesPath,
			ToolsPath:     cfg.Data.ToolsPath,
		}, nil
	}
	src, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.Sheets.SpreadsheetID,
		EmployeesRange:  cfg.Sheets.EmployeesRange,
		ToolsRange:      cfg.Sheets.ToolsRange,
		CredentialsJSON: cfg.Sheets.CredentialsJSON,
		CredentialsFile: cfg.Sheets.CredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("google sheets source: %w", err)
	}
	return src, nil
}

func (s *server) appCSSFile(w http.ResponseWriter, r *http.Request) {
	data, err := templatesFS.ReadFile("assets/app.css")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionLocks hands out one mutex per session id so interactions from the
// same session never interleave.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: map[string]*sessionLock{}}
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &sessionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
