package toolformcli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/phillip-england/toolform/internal/config"
	"github.com/phillip-england/toolform/internal/envutil"
	"github.com/phillip-england/toolform/internal/formapp"
	"github.com/phillip-england/toolform/internal/requestlog"
	"github.com/phillip-england/toolform/internal/security"
	"github.com/phillip-england/toolform/internal/tables"
)

var ErrUsage = errors.New("usage")

var stdout io.Writer = os.Stdout

func Execute(args []string) error {
	if len(args) < 1 {
		return usageError()
	}

	switch args[0] {
	case "setup":
		return runSetup(args[1:])
	case "run":
		return runCommand(args[1:])
	case "check":
		return runCheck(args[1:])
	case "export":
		return runExport(args[1:])
	case "restore":
		return runRestore(args[1:])
	case "help", "-h", "--help":
		PrintUsage(stdout)
		return nil
	default:
		return usageError()
	}
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: toolform setup [--export-passphrase <passphrase>] [--env-file .env] [--force]")
	fmt.Fprintln(w, "       toolform run [--env-file .env]")
	fmt.Fprintln(w, "       toolform check [--env-file .env]")
	fmt.Fprintln(w, "       toolform export --out <file.xlsx> [--env-file .env]")
	fmt.Fprintln(w, "       toolform restore [--env-file .env]")
}

// configureLogging installs a text slog handler as the default logger.
func configureLogging(w io.Writer, level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

func usageError() error {
	return fmt.Errorf("%w: toolform <setup|run|check|export|restore> [...]", ErrUsage)
}

func runSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	passphrase := fs.String("export-passphrase", "2313", "passphrase that unlocks the requests download")
	envPath := fs.String("env-file", ".env", "path to .env file")
	employees := fs.String("employees", "employees.xlsx", "employee workbook")
	tools := fs.String("tools", "Tool_mapping.xlsx", "tool mapping workbook")
	requests := fs.String("requests", "requests.xlsx", "request log workbook")
	addr := fs.String("addr", ":3000", "listen address")
	force := fs.Bool("force", false, "overwrite existing env file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := security.HashPassphrase(*passphrase); err != nil {
		return fmt.Errorf("invalid export passphrase: %w", err)
	}

	values := map[string]string{
		config.Prefix + "SERVER_ADDR":         *addr,
		config.Prefix + "DATA_EMPLOYEES_PATH": *employees,
		config.Prefix + "DATA_TOOLS_PATH":     *tools,
		config.Prefix + "DATA_REQUESTS_PATH":  *requests,
		config.Prefix + "EXPORT_PASSPHRASE":   *passphrase,
		config.Prefix + "SESSION_BACKEND":     "memory",
	}

	if err := envutil.WriteDotEnv(*envPath, values, *force); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *envPath)
	return nil
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	envPath := fs.String("env-file", ".env", "path to .env file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := envutil.LoadDotEnv(*envPath); err != nil {
		return nil, fmt.Errorf("load %s: %w", *envPath, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	configureLogging(os.Stdout, cfg.LogLevel)
	return cfg, nil
}

func runCommand(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("run", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	if err := ensureParentDirs(cfg.Data.RequestsPath); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := formapp.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runCheck(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("check", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	ctx := context.Background()

	src, err := formapp.NewSource(ctx, cfg)
	if err != nil {
		return err
	}
	ref := tables.Load(ctx, src)
	fmt.Fprintf(stdout, "employees: %d\n", len(ref.Catalog.Employees))
	fmt.Fprintf(stdout, "tool mappings: %d\n", len(ref.Catalog.Tools))

	records, err := requestlog.NewStore(cfg.Data.RequestsPath, false).Load(ctx)
	if err != nil {
		ref.Warnings = append(ref.Warnings, fmt.Sprintf("Could not read %s: %v", cfg.Data.RequestsPath, err))
	}
	fmt.Fprintf(stdout, "requests: %d\n", len(records))

	for _, warning := range ref.Warnings {
		fmt.Fprintf(stdout, "warning: %s\n", warning)
	}
	if len(ref.Warnings) > 0 {
		return fmt.Errorf("reference data loaded with %s", pluralize(len(ref.Warnings), "warning", "warnings"))
	}
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "", "destination workbook")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return fmt.Errorf("%w: toolform export --out <file.xlsx>", ErrUsage)
	}

	records, err := requestlog.NewStore(cfg.Data.RequestsPath, false).Load(context.Background())
	if err != nil {
		return fmt.Errorf("read %s: %w", cfg.Data.RequestsPath, err)
	}
	if err := ensureParentDirs(*out); err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := requestlog.WriteWorkbook(f, records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %s to %s\n", pluralize(len(records), "request", "requests"), *out)
	return nil
}

func runRestore(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("restore", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	store := requestlog.NewStore(cfg.Data.RequestsPath, true)
	if err := store.RestoreBackup(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "restored %s from %s\n", store.Path(), store.BackupPath())
	return nil
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}

func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
