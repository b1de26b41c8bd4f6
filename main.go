// listpulse keeps paginated, sorted and filtered Kubernetes resource lists
// live by polling a dashboard-style backend, and aggregates their counts
// into a cluster overview.
//
// Usage:
//
//	listpulse [flags]
//
// Flags:
//
//	-c, --config string      Path to configuration file (TOML or YAML)
//	    --daemon             Poll continuously and serve the HTTP control surface
//	    --once               Fetch every list once and print the overview (default)
//	    --status             Print the last persisted overview and daemon health
//	-n, --namespace string   Namespace to list ("_all" for every namespace)
//	    --listen string      Control surface address in daemon mode
//	    --json               Print JSON instead of text
//	-v, --verbose            Enable debug logging
//	    --version            Print version and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	flag "github.com/spf13/pflag"

	"gitlab.com/tinyland/lab/listpulse/pkg/config"
	"gitlab.com/tinyland/lab/listpulse/pkg/daemon"
	"gitlab.com/tinyland/lab/listpulse/pkg/overview"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

type options struct {
	configPath string
	daemon     bool
	once       bool
	status     bool
	namespace  string
	listen     string
	json       bool
	verbose    bool
	version    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(errOut, "error:", err)
		return 2
	}

	if opts.version {
		fmt.Fprintf(out, "listpulse %s (%s) built %s\n", version, commit, date)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return 1
	}

	if opts.status {
		return printStatus(out, errOut, cfg, opts.json)
	}

	logger := newLogger(errOut, cfg.General.LogLevel, opts.verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(daemon.Options{Config: cfg, Logger: logger, Version: version})
	if err != nil {
		logger.Error("init failed", "error", err)
		return 1
	}

	if opts.daemon {
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("daemon error", "error", err)
			return 1
		}
		return 0
	}

	snap, err := d.RunOnce(ctx)
	if err != nil {
		logger.Error("fetch failed", "error", err)
	}
	if perr := printOverview(out, snap, opts.json); perr != nil {
		fmt.Fprintln(errOut, "error:", perr)
		return 1
	}
	if err != nil {
		return 1
	}
	return 0
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("listpulse", flag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (TOML or YAML)")
	fs.BoolVar(&opts.daemon, "daemon", false, "Poll continuously and serve the HTTP control surface")
	fs.BoolVar(&opts.once, "once", false, "Fetch every list once and print the overview (default)")
	fs.BoolVar(&opts.status, "status", false, "Print the last persisted overview and daemon health")
	fs.StringVarP(&opts.namespace, "namespace", "n", "", `Namespace to list ("_all" for every namespace)`)
	fs.StringVar(&opts.listen, "listen", "", "Control surface address in daemon mode")
	fs.BoolVar(&opts.json, "json", false, "Print JSON instead of text")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	modes := 0
	for _, set := range []bool{opts.daemon, opts.once, opts.status} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return opts, errors.New("--daemon, --once and --status are mutually exclusive")
	}
	return opts, nil
}

func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.namespace != "" {
		cfg.General.Namespace = opts.namespace
	}
	if opts.listen != "" {
		cfg.Daemon.Listen = opts.listen
	}
	return cfg, nil
}

// newLogger logs text to terminals and JSON everywhere else.
func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: lvl}

	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

type statusReport struct {
	Running  bool                 `json:"running"`
	PID      int                  `json:"pid,omitempty"`
	Health   *daemon.HealthStatus `json:"health,omitempty"`
	Overview *overview.Snapshot   `json:"overview,omitempty"`
	CachedAt time.Time            `json:"cached_at,omitempty"`
}

func printStatus(out, errOut io.Writer, cfg *config.Config, asJSON bool) int {
	var report statusReport
	if pid, err := daemon.ReadPID(daemon.PIDPath(cfg)); err == nil && daemon.IsProcessAlive(pid) {
		report.Running = true
		report.PID = pid
	}
	if h, err := daemon.ReadHealthFile(daemon.HealthPath(cfg)); err == nil {
		report.Health = h
	}
	if snap, at, ok := daemon.ReadOverview(cfg); ok {
		report.Overview = &snap
		report.CachedAt = at
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		return 0
	}

	if report.Running {
		fmt.Fprintf(out, "daemon: running (PID %d)\n", report.PID)
	} else {
		fmt.Fprintln(out, "daemon: not running")
	}
	if h := report.Health; h != nil {
		state := "healthy"
		if !h.Healthy {
			state = "degraded"
		}
		fmt.Fprintf(out, "health: %s, %d streams, up %s, updated %s\n",
			state, len(h.Streams), h.Uptime, h.UpdatedAt.Format(time.RFC3339))
	}
	if report.Overview == nil {
		fmt.Fprintln(out, "overview: no cached snapshot")
		return 1
	}
	fmt.Fprintf(out, "cached: %s\n", report.CachedAt.Format(time.RFC3339))
	return exitOnErr(errOut, printOverview(out, *report.Overview, false))
}

func exitOnErr(errOut io.Writer, err error) int {
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func printOverview(out io.Writer, snap overview.Snapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	if snap.Cluster != "" {
		fmt.Fprintf(out, "cluster: %s\n", snap.Cluster)
	}
	if snap.ZeroState {
		fmt.Fprintln(out, "nothing to show in this namespace")
		return nil
	}

	groups := make([]string, 0, len(snap.Groups))
	for g := range snap.Groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		gs := snap.Groups[g]
		if !gs.Visible {
			continue
		}
		fmt.Fprintf(out, "%s (%d)\n", g, gs.Total)

		ids := make([]string, 0, len(gs.Lists))
		for id := range gs.Lists {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "  %-28s %d\n", id, gs.Lists[id])
			for _, r := range snap.Ratios[id] {
				fmt.Fprintf(out, "    %-26s %5.1f%%\n", r.Name, r.Value)
			}
		}
	}
	return nil
}
