package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"workportal/config"
	"workportal/handlers"
	"workportal/importer"
	"workportal/middleware"
	"workportal/models"
	"workportal/portal"
	"workportal/roster"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"golang.org/x/term"
)

const WorkPortalVersion = "0.1.0"

func main() {
	usage := `Work unit allocation portal.

Configuration comes from the environment or a .env file in the working
directory (DB_HOST, DB_PORT, DB_NAME, ROSTER_PATH, JWT_SECRET, ...).

Usage:
    workportal serve [--port=<port>] [--verbosity=<level>]
    workportal import <csv> --user=<emp_id>
        [--table=<table>]
        [--truncate]
        [--yes]
        [--verbosity=<level>]
    workportal -h | --help
    workportal --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --port=<port>      Listen port, overrides SERVER_PORT.
    --user=<emp_id>    Employee id to log in as.
    --table=<table>    production_inputs or tm_production_inputs [default: production_inputs].
    --truncate         Empty the table before loading.
    --yes              Do not ask before truncating or ending other sessions.
    --verbosity=<level>  glog verbosity [default: 0].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], WorkPortalVersion)
	if err != nil {
		panic(err)
	}

	initLogging(opts)
	defer glog.Flush()

	cfg := config.Load()
	middleware.SetJWTSecret(cfg.JWTSecret)

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(cfg, opts)
	} else if import_, _ := opts.Bool("import"); import_ {
		if err := importFile(cfg, opts); err != nil {
			glog.Flush()
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			os.Exit(1)
		}
	}
}

// initLogging points glog at stderr since the portal runs under a supervisor
// that collects it.
func initLogging(opts docopt.Opts) {
	flag.CommandLine.Parse([]string{})
	flag.Set("logtostderr", "true")
	if level, err := opts.String("--verbosity"); err == nil {
		flag.Set("v", level)
	}
}

func loadRoster(cfg *config.Config) *roster.Roster {
	ro, err := roster.Load(cfg.RosterPath, cfg.PrivilegedUser)
	if err != nil {
		glog.Exitf("Failed to load roster: %v", err)
	}
	glog.Infof("roster loaded with %d employees", ro.Len())
	return ro
}

func serve(cfg *config.Config, opts docopt.Opts) {
	if port, err := opts.String("--port"); err == nil && port != "" {
		cfg.ServerPort = port
	}

	ro := loadRoster(cfg)
	sessions := portal.NewRegistry()

	authHandler := handlers.NewAuthHandler(cfg, ro, sessions)
	gridHandler := handlers.NewGridHandler()

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: handlers.NewRouter(authHandler, gridHandler, sessions),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		glog.Infof("shutting down, closing %d sessions", sessions.Len())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			glog.Warningf("shutdown: %v", err)
		}
	}()

	glog.Infof("Server starting on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		glog.Errorf("server: %v", err)
	}
	sessions.Close()
}

func importFile(cfg *config.Config, opts docopt.Opts) error {
	path, _ := opts.String("<csv>")
	empID, _ := opts.String("--user")
	tableName, _ := opts.String("--table")
	truncate, _ := opts.Bool("--truncate")
	yes, _ := opts.Bool("--yes")

	kind, err := models.ParseTableKind(tableName)
	if err != nil {
		return err
	}
	schema, err := models.SchemaFor(kind)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", empID)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	ro := loadRoster(cfg)
	emp, err := ro.Authenticate(empID, string(password))
	if err != nil {
		return err
	}
	if !emp.Role.CanImport() {
		return &models.PrivilegeError{Role: emp.Role, Field: "import"}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdin := bufio.NewReader(os.Stdin)
	ask := func(question string) bool {
		if yes {
			return true
		}
		fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
		answer, _ := stdin.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}

	session, err := portal.Open(ctx, cfg, emp, schema, string(password), func(n int) bool {
		return ask(fmt.Sprintf("%s has %d other sessions open. End them?", emp.EmpID, n))
	})
	if err != nil {
		return err
	}
	defer session.Teardown()

	res, err := session.Import(ctx, f, importer.Options{
		Truncate: truncate,
		Confirm: func(table string) bool {
			return ask(fmt.Sprintf("Delete every row of %s before loading?", table))
		},
	})
	if err != nil {
		return err
	}
	if res.Truncated {
		fmt.Printf("truncated %s\n", schema.Table)
	}
	fmt.Printf("inserted %d rows into %s\n", res.Inserted, schema.Table)
	return nil
}
