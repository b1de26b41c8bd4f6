// Package daemon wires the list pipeline into a long-running process: one
// polling source shared by every configured list, the overview aggregate
// persisted to the snapshot cache, a health file and an HTTP control surface.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.com/tinyland/lab/listpulse/pkg/cache"
	"gitlab.com/tinyland/lab/listpulse/pkg/config"
	"gitlab.com/tinyland/lab/listpulse/pkg/listctl"
	"gitlab.com/tinyland/lab/listpulse/pkg/namespace"
	"gitlab.com/tinyland/lab/listpulse/pkg/notify"
	"gitlab.com/tinyland/lab/listpulse/pkg/overview"
	"gitlab.com/tinyland/lab/listpulse/pkg/poll"
	"gitlab.com/tinyland/lab/listpulse/pkg/query"
	"gitlab.com/tinyland/lab/listpulse/pkg/settings"
	"gitlab.com/tinyland/lab/listpulse/pkg/status"
	"gitlab.com/tinyland/lab/listpulse/pkg/transport"
)

// OverviewKey is the cache key the overview snapshot is stored under.
const OverviewKey = "overview"

const (
	healthFileName = "health.json"
	pidFileName    = "listpulse.pid"

	healthInterval  = 15 * time.Second
	shutdownTimeout = 5 * time.Second
	onceGrace       = 5 * time.Second
)

// ErrIncomplete is returned by RunOnce when some lists never completed a
// fetch.
var ErrIncomplete = errors.New("daemon: not every list completed a fetch")

// Options configures a Daemon.
type Options struct {
	Config *config.Config
	Logger *slog.Logger

	// Getter replaces the backend built from Config.Backend.
	Getter transport.Getter

	Version string
}

// Daemon owns the collaborators shared by every list.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string
	started time.Time

	prefs    *settings.Provider
	ns       *namespace.Service
	notes    *notify.Center
	source   *poll.Source
	overview *overview.Aggregator
	store    *cache.Store

	lists []*listctl.Controller
	byID  map[string]*listctl.Controller

	persist chan struct{}
}

// HealthPath returns where a daemon running with cfg writes its health file.
func HealthPath(cfg *config.Config) string {
	return filepath.Join(cfg.General.CacheDir, healthFileName)
}

// PIDPath returns where a daemon running with cfg writes its PID file.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.General.CacheDir, pidFileName)
}

// NewGetter builds the backend selected by cfg.
func NewGetter(cfg config.BackendConfig) (transport.Getter, error) {
	switch cfg.Mode {
	case config.BackendHTTP:
		return transport.NewHTTPGetter(cfg.BaseURL, cfg.Timeout.Duration), nil
	case config.BackendKube:
		g, err := transport.NewKubeGetter(transport.KubeConfig{
			Kubeconfig:       cfg.Kubeconfig,
			Context:          cfg.Context,
			ServiceNamespace: cfg.ServiceNamespace,
			Service:          cfg.Service,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend.mode %q", config.ErrInvalid, cfg.Mode)
	}
}

// New validates the configuration and builds every list controller. Nothing
// is fetched until Run or RunOnce.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	getter := opts.Getter
	if getter == nil {
		var err error
		if getter, err = NewGetter(cfg.Backend); err != nil {
			return nil, fmt.Errorf("build backend: %w", err)
		}
	}

	store, err := cache.NewStore(cache.StoreConfig{Dir: cfg.General.CacheDir})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	d := &Daemon{
		cfg:     cfg,
		logger:  logger,
		version: opts.Version,
		started: time.Now(),
		prefs: settings.New(settings.Values{
			ItemsPerPage:           cfg.Settings.ItemsPerPage,
			RefreshIntervalSeconds: cfg.Settings.RefreshInterval.WholeSeconds(),
			PageVisible:            cfg.Settings.PageVisible,
		}),
		ns:       namespace.NewService(cfg.General.Namespace),
		notes:    notify.NewCenter(notify.WithLogger(logger)),
		overview: overview.New(overview.WithCluster(clusterName(cfg.Backend)), overview.WithLogger(logger)),
		store:    store,
		byID:     make(map[string]*listctl.Controller),
		persist:  make(chan struct{}, 1),
	}
	d.source = poll.New(getter, poll.WithInterval(d.prefs.EffectiveInterval), poll.WithLogger(logger))

	// A visibility or interval change rearms every stream so the new
	// interval applies now instead of after the current wait.
	last := d.prefs.EffectiveInterval()
	var lastMu sync.Mutex
	d.prefs.OnUpdate(func(v settings.Values) {
		next := settings.EffectiveInterval(v)
		lastMu.Lock()
		changed := next != last
		last = next
		lastMu.Unlock()
		if changed {
			d.source.Rearm()
		}
	})

	for _, lc := range cfg.ResolvedLists() {
		ctrl, err := d.newList(lc)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", lc.ID, err)
		}
		d.lists = append(d.lists, ctrl)
		d.byID[lc.ID] = ctrl
		d.overview.Watch(ctrl)
	}
	d.overview.OnUpdate(func(overview.Snapshot) { d.schedulePersist() })

	return d, nil
}

func (d *Daemon) newList(lc config.ListConfig) (*listctl.Controller, error) {
	ctrl, err := listctl.New(listctl.Config{
		ID:            lc.ID,
		GroupID:       lc.Group,
		Endpoint:      lc.Endpoint,
		Collection:    lc.Collection,
		Columns:       lc.Columns,
		Hideable:      lc.Hideable,
		SearchContext: lc.SearchContext,
		Sort:          query.Sort{Column: lc.SortColumn},
	}, listctl.Deps{
		Source:    d.source,
		Paginator: d.prefs,
		Namespace: d.ns,
		Settings:  d.prefs,
		Notifier:  d.notes,
		Logger:    d.logger,
	})
	if err != nil {
		return nil, err
	}

	switch lc.Status {
	case config.StatusPod:
		status.RegisterPodBindings(ctrl.StatusRegistry())
	case config.StatusWorkload:
		status.RegisterWorkloadBindings(ctrl.StatusRegistry())
	}
	for _, action := range lc.Actions {
		ctrl.RegisterActionColumn(action)
	}
	for _, dc := range lc.Dynamic {
		var when listctl.Condition
		if dc.When == config.WhenMultiNamespace {
			when = ctrl.MultiNamespace
		}
		ctrl.RegisterDynamicColumn(dc.Name, dc.After, when)
	}
	return ctrl, nil
}

func clusterName(cfg config.BackendConfig) string {
	if cfg.Mode == config.BackendKube {
		if cfg.Context != "" {
			return cfg.Context
		}
		return "in-cluster"
	}
	return strings.TrimSuffix(cfg.BaseURL, "/")
}

// Settings returns the settings provider shared by every list.
func (d *Daemon) Settings() *settings.Provider { return d.prefs }

// Namespace returns the namespace service shared by every list.
func (d *Daemon) Namespace() *namespace.Service { return d.ns }

// Overview returns the overview aggregate.
func (d *Daemon) Overview() *overview.Aggregator { return d.overview }

// Notifications returns the notification center.
func (d *Daemon) Notifications() *notify.Center { return d.notes }

// List returns the controller with the given id.
func (d *Daemon) List(id string) (*listctl.Controller, bool) {
	c, ok := d.byID[id]
	return c, ok
}

// Lists returns every controller in configuration order.
func (d *Daemon) Lists() []*listctl.Controller {
	return append([]*listctl.Controller(nil), d.lists...)
}

// Refresh makes every stream fetch now.
func (d *Daemon) Refresh() { d.source.Rearm() }

// Search sends term to every list. Only lists marked as search context put
// it on the wire.
func (d *Daemon) Search(term string) {
	for _, c := range d.lists {
		c.Dispatch(listctl.SearchChanged(term))
	}
}

// Health reports the current state of the daemon.
func (d *Daemon) Health() *HealthStatus {
	now := time.Now()
	streams := d.source.Statuses()
	return &HealthStatus{
		Healthy:       healthy(streams),
		PID:           os.Getpid(),
		Version:       d.version,
		StartedAt:     d.started,
		UpdatedAt:     now,
		Uptime:        now.Sub(d.started).Round(time.Second).String(),
		Namespace:     d.ns.Current(),
		Streams:       streams,
		Lists:         d.overview.Snapshot().Lists,
		Notifications: len(d.notes.Recent()),
	}
}

// Run polls every list and serves the control surface until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	pidPath := PIDPath(d.cfg)
	if err := AcquirePID(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := ReleasePID(pidPath); err != nil {
			d.logger.Warn("failed to release PID file", "error", err)
		}
	}()

	d.logger.Info("daemon started",
		"lists", len(d.lists),
		"namespace", d.ns.Current(),
		"backend", d.cfg.Backend.Mode,
		"listen", d.cfg.Daemon.Listen,
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range d.lists {
		c := c // per-iteration copy (pre-Go 1.22 loop semantics)
		g.Go(func() error { return c.Run(gctx) })
	}
	g.Go(func() error { return d.persistLoop(gctx) })
	g.Go(func() error { return d.healthLoop(gctx) })

	if addr := d.cfg.Daemon.Listen; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           d.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	d.source.Close()
	d.writeSnapshot()
	if herr := WriteHealthFile(HealthPath(d.cfg), d.Health()); herr != nil {
		d.logger.Warn("failed to write health file", "error", herr)
	}
	d.logger.Info("daemon stopped")
	return err
}

// RunOnce runs every list until each has completed one fetch, persists the
// overview and returns it. Lists that fail until the backend timeout has
// passed are reported through ErrIncomplete.
func (d *Daemon) RunOnce(ctx context.Context) (overview.Snapshot, error) {
	timeout := d.cfg.Backend.Timeout.Duration
	if timeout <= 0 {
		timeout = transport.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout+onceGrace)
	defer cancel()

	var mu sync.Mutex
	pending := make(map[string]bool, len(d.lists))
	for _, c := range d.lists {
		pending[c.ID()] = true
	}
	for _, c := range d.lists {
		defer c.OnChange(func(ev listctl.ChangeEvent) {
			mu.Lock()
			defer mu.Unlock()
			delete(pending, ev.ListID)
			if len(pending) == 0 {
				cancel()
			}
		})()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range d.lists {
		c := c // per-iteration copy (pre-Go 1.22 loop semantics)
		g.Go(func() error { return c.Run(gctx) })
	}
	err := g.Wait()
	d.source.Close()
	d.writeSnapshot()

	snap := d.overview.Snapshot()
	if err != nil {
		return snap, err
	}

	mu.Lock()
	defer mu.Unlock()
	if len(pending) > 0 {
		missing := make([]string, 0, len(pending))
		for id := range pending {
			missing = append(missing, id)
		}
		sort.Strings(missing)
		if cerr := context.Cause(ctx); cerr != nil && !errors.Is(cerr, context.DeadlineExceeded) {
			return snap, cerr
		}
		return snap, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return snap, nil
}

// ReadOverview returns the last overview a daemon persisted under cfg's cache
// directory.
func ReadOverview(cfg *config.Config) (overview.Snapshot, time.Time, bool) {
	store, err := cache.NewStore(cache.StoreConfig{Dir: cfg.General.CacheDir})
	if err != nil {
		return overview.Snapshot{}, time.Time{}, false
	}
	return cache.GetTyped[overview.Snapshot](store, OverviewKey)
}

// schedulePersist asks persistLoop to write the overview. It never blocks;
// requests made while a write is pending are merged.
func (d *Daemon) schedulePersist() {
	select {
	case d.persist <- struct{}{}:
	default:
	}
}

func (d *Daemon) persistLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.persist:
			d.writeSnapshot()
		}
	}
}

func (d *Daemon) writeSnapshot() {
	if err := cache.PutTyped(d.store, OverviewKey, d.overview.Snapshot()); err != nil {
		d.logger.Warn("failed to persist overview", "error", err)
	}
}

func (d *Daemon) healthLoop(ctx context.Context) error {
	path := HealthPath(d.cfg)
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		if err := WriteHealthFile(path, d.Health()); err != nil {
			d.logger.Warn("failed to write health file", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
